package wire

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"nexus-gateway/domain"
)

func TestEncodeTaskUsesSnakeCase(t *testing.T) {
	value := -1200.0
	task := domain.Task{
		Title:             "Pay rent",
		Niche:             domain.FinanceNiche,
		Status:            domain.StatusTodo,
		DueDate:           "2026-11-01",
		Value:             &value,
		FinancialType:     domain.Expense,
		FinancialCategory: "Casa",
		RescheduleCount:   2,
	}

	row, err := EncodeTask(task)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	payload := string(row)
	for _, want := range []string{`"due_date":"2026-11-01"`, `"financial_type":"expense"`, `"financial_category":"Casa"`, `"reschedule_count":2`, `"value":-1200`} {
		if !strings.Contains(payload, want) {
			t.Fatalf("expected %s in %s", want, payload)
		}
	}
	for _, unwanted := range []string{`"id"`, `"created_at"`, `dueDate`, `"priority"`} {
		if strings.Contains(payload, unwanted) {
			t.Fatalf("did not expect %s in %s", unwanted, payload)
		}
	}
}

func TestDecodeTaskFromRemoteRow(t *testing.T) {
	row := Row(`{"id":"42","title":"Ship","niche":"Trabalho","status":"in-progress","due_date":"2026-10-20","priority":"high","created_at":"2026-10-19T08:30:00.123456+00:00","attachments":[{"id":"a1","name":"brief.pdf","type":"pdf","data":"data:application/pdf;base64,AA==","timestamp":1760862600000}],"extra":"kept"}`)

	task, err := DecodeTask(row)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if task.ID != "42" || task.Status != domain.StatusInProgress || task.DueDate != "2026-10-20" || task.Priority != domain.PriorityHigh {
		t.Fatalf("unexpected task: %#v", task)
	}
	wantCreated := time.Date(2026, 10, 19, 8, 30, 0, 123456000, time.UTC)
	if !task.CreatedAt.Equal(wantCreated) {
		t.Fatalf("unexpected created_at: %v", task.CreatedAt)
	}
	if len(task.Attachments) != 1 || task.Attachments[0].Type != domain.AttachmentPDF {
		t.Fatalf("unexpected attachments: %#v", task.Attachments)
	}
	if task.Attachments[0].Timestamp.UnixMilli() != 1760862600000 {
		t.Fatalf("unexpected attachment timestamp: %v", task.Attachments[0].Timestamp)
	}
}

func TestTaskRoundTrip(t *testing.T) {
	value := 99.5
	in := domain.Task{
		ID:          "t1",
		Title:       "Invoice",
		Description: "client A",
		Niche:       domain.FinanceNiche,
		Status:      domain.StatusDone,
		Priority:    domain.PriorityMedium,
		Value:       &value,
		IsHabit:     true,
		Attachments: []domain.Attachment{{ID: "a", Name: "n", Type: domain.AttachmentText, Data: "data:text/plain;base64,aGk=", Timestamp: time.UnixMilli(1700000000000).UTC()}},
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	row, err := EncodeTask(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeTask(row)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch:\n in=%#v\nout=%#v", in, out)
	}
}

func TestFolderRootEncodesNullParent(t *testing.T) {
	row, err := EncodeFolder(domain.IdeaFolder{ProjectID: "p1", Name: "Root"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(string(row), `"parent_id":null`) {
		t.Fatalf("expected explicit null parent, got %s", row)
	}
	f, err := DecodeFolder(row)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.ParentID != "" || f.ProjectID != "p1" {
		t.Fatalf("unexpected folder: %#v", f)
	}
}

func TestPatches(t *testing.T) {
	done := domain.StatusDone
	if got := TaskPatch(domain.TaskPatch{Status: &done}); !reflect.DeepEqual(got, map[string]any{"status": "done"}) {
		t.Fatalf("unexpected task patch: %#v", got)
	}
	due := "2026-12-01"
	if got := TaskPatch(domain.TaskPatch{DueDate: &due}); got["due_date"] != due {
		t.Fatalf("unexpected task patch: %#v", got)
	}
	empty := []domain.Attachment{}
	if got := TaskPatch(domain.TaskPatch{Attachments: &empty}); !reflect.DeepEqual(got["attachments"], []Attachment{}) {
		t.Fatalf("expected empty attachment list, got %#v", got["attachments"])
	}
	completed := true
	if got := SubtaskPatch(domain.SubtaskPatch{Completed: &completed}); got["completed"] != true {
		t.Fatalf("unexpected subtask patch: %#v", got)
	}
	root := ""
	got := IdeaItemPatch(domain.IdeaItemPatch{FolderID: &root})
	if v, ok := got["folder_id"]; !ok || v.(*string) != nil {
		t.Fatalf("expected nil folder_id, got %#v", got)
	}
}

func TestMergeKeepsUnknownFields(t *testing.T) {
	row := Row(`{"id":"1","title":"a","custom":{"x":1}}`)
	merged, err := Merge(row, map[string]any{"title": "b", "status": "done"})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	fields, err := Fields(merged)
	if err != nil {
		t.Fatalf("fields: %v", err)
	}
	if string(fields["title"]) != `"b"` || string(fields["status"]) != `"done"` || string(fields["custom"]) != `{"x":1}` {
		t.Fatalf("unexpected merge result: %s", merged)
	}
}

func TestStringField(t *testing.T) {
	row := Row(`{"id":"abc","project_id":"p","n":3}`)
	if v, ok := StringField(row, FieldProjectID); !ok || v != "p" {
		t.Fatalf("unexpected project id %q %v", v, ok)
	}
	if _, ok := StringField(row, "n"); ok {
		t.Fatalf("numeric field must not read as string")
	}
	if _, ok := StringField(Row(`not json`), FieldID); ok {
		t.Fatalf("malformed row must not yield a field")
	}
}

func TestDecodeRows(t *testing.T) {
	rows, err := DecodeRows([]byte(`[{"id":"1"},{"id":"2"}]`))
	if err != nil || len(rows) != 2 {
		t.Fatalf("unexpected result: %v %v", rows, err)
	}
	for _, bad := range []string{`{`, `{"id":"1"}`, `[1,2]`, `[null]`, `"x"`} {
		if _, err := DecodeRows([]byte(bad)); err == nil {
			t.Fatalf("expected error for %s", bad)
		}
	}
	data, err := EncodeRows(nil)
	if err != nil || string(data) != "[]" {
		t.Fatalf("unexpected empty encoding %s %v", data, err)
	}
}

func TestParseTime(t *testing.T) {
	if !ParseTime("garbage").IsZero() {
		t.Fatalf("expected zero time")
	}
	got := ParseTime("2026-10-19T10:00:00.5")
	if got.IsZero() || got.Nanosecond() != 500000000 {
		t.Fatalf("unexpected time %v", got)
	}
}
