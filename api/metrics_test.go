package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestTracer(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter, func()) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	return tp, exporter, func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	}
}

func spanAttr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestRequestMetricsLogProducesObservabilityEvent(t *testing.T) {
	logger, hook := test.NewNullLogger()
	tp, exporter, restore := setupTestTracer(t)
	defer restore()

	m, _ := newRequestMetrics(context.Background(), logger, http.MethodGet, "/api/tasks")
	m.start = m.start.Add(-40 * time.Millisecond)
	m.ObserveGateway(12 * time.Millisecond)
	m.SetRecords(3)
	m.SetIdempotent(true)
	m.Log(http.StatusOK, nil)

	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Message != "observability.event" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.Data["event.name"] != requestEventName || entry.Data["event.domain"] != eventDomain {
		t.Fatalf("unexpected event identity: %v %v", entry.Data["event.name"], entry.Data["event.domain"])
	}
	if entry.Data["severity_text"] != "INFO" || entry.Data["severity_number"] != 9 {
		t.Fatalf("unexpected severity: %v %v", entry.Data["severity_text"], entry.Data["severity_number"])
	}
	if _, ok := entry.Data["trace_id"].(string); !ok {
		t.Fatalf("expected trace id on log entry")
	}
	attrs, ok := entry.Data["attributes"].(map[string]any)
	if !ok {
		t.Fatalf("attributes not logged as map: %#v", entry.Data["attributes"])
	}
	if attrs["http.route"] != "/api/tasks" || attrs[attrPrefix+"idempotency_key"] != true {
		t.Fatalf("unexpected attributes %#v", attrs)
	}
	if attrs[attrPrefix+"records"] != int64(3) {
		t.Fatalf("unexpected records attribute %#v", attrs[attrPrefix+"records"])
	}
	if total, _ := attrs[attrPrefix+"total_ms"].(float64); total < 40 {
		t.Fatalf("expected total_ms >= 40, got %v", attrs[attrPrefix+"total_ms"])
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != requestSpanName || span.Status.Code != codes.Ok {
		t.Fatalf("unexpected span %s status %v", span.Name, span.Status.Code)
	}
	if len(span.Events) != 1 || span.Events[0].Name != "observability.event" {
		t.Fatalf("expected one observability event, got %+v", span.Events)
	}
	if v, ok := spanAttr(span.Attributes, attrPrefix+"gateway_ms"); !ok || v.AsFloat64() != 12 {
		t.Fatalf("unexpected gateway_ms %v", v.AsInterface())
	}
}

func TestRequestMetricsRecordsErrors(t *testing.T) {
	logger, hook := test.NewNullLogger()
	_, exporter, restore := setupTestTracer(t)
	defer restore()

	m, _ := newRequestMetrics(context.Background(), logger, http.MethodPost, "/api/projects")
	m.SetErrorStage("remote_write")
	m.Log(http.StatusBadGateway, errors.New("remote unreachable"))

	entry := hook.LastEntry()
	if entry.Level != log.ErrorLevel || entry.Data["severity_number"] != 17 {
		t.Fatalf("unexpected level %v severity %v", entry.Level, entry.Data["severity_number"])
	}
	attrs := entry.Data["attributes"].(map[string]any)
	if attrs[attrPrefix+"error_stage"] != "remote_write" || attrs["error.message"] != "remote unreachable" {
		t.Fatalf("unexpected attributes %#v", attrs)
	}
	spans := exporter.GetSpans()
	if len(spans) != 1 || spans[0].Status.Code != codes.Error || spans[0].Status.Description != "remote unreachable" {
		t.Fatalf("unexpected span status %+v", spans)
	}
}

func TestNilRequestMetricsIsSafe(t *testing.T) {
	var m *requestMetrics
	m.ObserveGateway(time.Second)
	m.SetRecords(1)
	m.SetIdempotent(true)
	m.SetErrorStage("x")
	m.Log(http.StatusOK, nil)
}

func TestSeverityForStatus(t *testing.T) {
	tests := []struct {
		status int
		err    error
		text   string
		number int
	}{
		{http.StatusOK, nil, "INFO", 9},
		{http.StatusCreated, nil, "INFO", 9},
		{http.StatusConflict, nil, "WARN", 13},
		{http.StatusUnauthorized, errors.New("bad token"), "WARN", 13},
		{http.StatusBadGateway, nil, "ERROR", 17},
		{http.StatusOK, errors.New("late failure"), "ERROR", 17},
	}
	for _, tt := range tests {
		text, number := severityForStatus(tt.status, tt.err)
		if text != tt.text || number != tt.number {
			t.Fatalf("severityForStatus(%d, %v) = %s/%d, want %s/%d", tt.status, tt.err, text, number, tt.text, tt.number)
		}
	}
}
