package storage

import (
	"testing"

	"github.com/bytedance/sonic"

	"nexus-gateway/domain"
	"nexus-gateway/wire"
)

func TestTableName(t *testing.T) {
	if got := TableName("Nexus", domain.IdeaItems); got != "Nexusideaitems" {
		t.Fatalf("unexpected table name %q", got)
	}
}

func TestListFilter(t *testing.T) {
	q := Query{Collection: domain.Folders, Scope: &Scope{Field: wire.FieldProjectID, Value: "o'brien"}}
	want := "PartitionKey eq 'folders' and ProjectID eq 'o''brien'"
	if got := listFilter(q); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if got := listFilter(Query{Collection: domain.Tasks}); got != "PartitionKey eq 'tasks'" {
		t.Fatalf("unexpected unscoped filter %q", got)
	}
}

func TestEncodeEntityCopiesScopeColumns(t *testing.T) {
	row := wire.Row(`{"id":"s1","task_id":"t1","title":"Call landlord","created_at":"2024-05-01T10:00:00Z"}`)
	data, err := encodeEntity(domain.Subtasks, row)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var ent map[string]any
	if err := sonic.Unmarshal(data, &ent); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ent["PartitionKey"] != "subtasks" || ent["RowKey"] != "s1" || ent["TaskID"] != "t1" {
		t.Fatalf("unexpected entity %v", ent)
	}
	if _, ok := ent["ProjectID"]; ok {
		t.Fatalf("unset scope column must be omitted: %v", ent)
	}
	if ent["Row"] != string(row) || ent["CreatedAt"] != "2024-05-01T10:00:00Z" {
		t.Fatalf("row not preserved: %v", ent)
	}
}

func TestEncodeEntityRequiresID(t *testing.T) {
	if _, err := encodeEntity(domain.Tasks, wire.Row(`{"title":"x"}`)); err == nil {
		t.Fatalf("expected error for row without id")
	}
}

func TestDecodeEntityRejectsBadRow(t *testing.T) {
	data := []byte(`{"PartitionKey":"tasks","RowKey":"t1","Row":"[1,2]","CreatedAt":""}`)
	if _, err := decodeEntity(data); err == nil {
		t.Fatalf("expected error for non-object row")
	}
}

func TestOrderRows(t *testing.T) {
	ents := []rowEntity{
		{Row: `{"id":"old"}`, CreatedAt: "2024-01-01T00:00:00Z"},
		{Row: `{"id":"new"}`, CreatedAt: "2024-03-01T00:00:00Z"},
		{Row: `{"id":"mid"}`, CreatedAt: "2024-02-01T00:00:00.5Z"},
	}
	rows := orderRows(ents, Query{Collection: domain.VoiceNotes, OrderDesc: wire.FieldCreatedAt, Limit: 2})
	if len(rows) != 2 {
		t.Fatalf("expected limit to apply, got %d rows", len(rows))
	}
	first, _ := wire.StringField(rows[0], wire.FieldID)
	second, _ := wire.StringField(rows[1], wire.FieldID)
	if first != "new" || second != "mid" {
		t.Fatalf("unexpected order %s, %s", first, second)
	}
}
