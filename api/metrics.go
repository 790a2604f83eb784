package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName       = "nexus-gateway/api"
	requestSpanName  = "nexus.api.request"
	requestEventName = "nexus.api.request.metrics"
	eventDomain      = "nexus.api"
	metricsKey       = "request.metrics"
	attrPrefix       = "nexus.api."
)

type requestMetrics struct {
	logger       *log.Logger
	span         trace.Span
	start        time.Time
	route        string
	method       string
	gateDuration time.Duration
	records      int
	recordsSet   bool
	idempotent   bool
	errorStage   string
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, method, route string) (*requestMetrics, context.Context) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, requestSpanName, trace.WithSpanKind(trace.SpanKindServer))
	return &requestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
		route:  route,
		method: method,
	}, ctx
}

// ObserveGateway records the time spent inside the persistence gateway.
func (m *requestMetrics) ObserveGateway(d time.Duration) {
	if m != nil && d > 0 {
		m.gateDuration = d
	}
}

func (m *requestMetrics) SetRecords(n int) {
	if m == nil {
		return
	}
	if n < 0 {
		n = 0
	}
	m.records = n
	m.recordsSet = true
}

func (m *requestMetrics) SetIdempotent(v bool) {
	if m != nil {
		m.idempotent = v
	}
}

func (m *requestMetrics) SetErrorStage(stage string) {
	if m != nil && stage != "" {
		m.errorStage = stage
	}
}

func (m *requestMetrics) attributes(status int, err error) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("http.route", m.route),
		attribute.String("http.method", m.method),
		attribute.Int("http.status_code", status),
		attribute.Float64(attrPrefix+"total_ms", durationToMillis(time.Since(m.start))),
		attribute.Bool(attrPrefix+"idempotency_key", m.idempotent),
	}
	if m.gateDuration > 0 {
		attrs = append(attrs, attribute.Float64(attrPrefix+"gateway_ms", durationToMillis(m.gateDuration)))
	}
	if m.recordsSet {
		attrs = append(attrs, attribute.Int(attrPrefix+"records", m.records))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String(attrPrefix+"error_stage", m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}
	return attrs
}

// Log ends the request span and writes one observability event.
func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	severity, number := severityForStatus(status, err)
	attrs := m.attributes(status, err)

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		eventAttrs := append([]attribute.KeyValue{
			attribute.String("event.name", requestEventName),
			attribute.String("event.domain", eventDomain),
			attribute.String("severity_text", severity),
			attribute.Int("severity_number", number),
		}, attrs...)
		m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))
		if severity == "ERROR" {
			desc := http.StatusText(status)
			if err != nil {
				desc = err.Error()
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	attrMap := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		attrMap[string(kv.Key)] = kv.Value.AsInterface()
	}
	fields := log.Fields{
		"event.name":      requestEventName,
		"event.domain":    eventDomain,
		"attributes":      attrMap,
		"severity_text":   severity,
		"severity_number": number,
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}
	m.logger.WithFields(fields).Log(logLevel(severity), "observability.event")
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case status >= 500:
		return "ERROR", 17
	case status >= 400:
		return "WARN", 13
	case err != nil:
		return "ERROR", 17
	default:
		return "INFO", 9
	}
}

func logLevel(severity string) log.Level {
	switch severity {
	case "ERROR":
		return log.ErrorLevel
	case "WARN":
		return log.WarnLevel
	default:
		return log.InfoLevel
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

// RequestMetricsMiddleware traces and logs every request it wraps.
func RequestMetricsMiddleware(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()
			m, ctx := newRequestMetrics(req.Context(), logger, req.Method, c.Path())
			c.SetRequest(req.WithContext(ctx))
			c.Set(metricsKey, m)
			defer func() {
				status := c.Response().Status
				if err != nil {
					if he, ok := err.(*echo.HTTPError); ok {
						status = he.Code
					} else if !c.Response().Committed {
						status = http.StatusInternalServerError
					}
				}
				m.Log(status, err)
			}()
			return next(c)
		}
	}
}

func metricsFrom(c echo.Context) *requestMetrics {
	if m, ok := c.Get(metricsKey).(*requestMetrics); ok {
		return m
	}
	return nil
}
