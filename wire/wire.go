// Package wire maps domain records to and from the snake_case rows stored by
// the remote data service and the local mirror. Nothing outside this package
// refers to wire field names.
package wire

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/bytedance/sonic"
)

// Field names shared by every collection.
const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldProjectID = "project_id"
	FieldTaskID    = "task_id"
)

// Row is a single JSON object as exchanged with a backend.
type Row = json.RawMessage

var (
	codec        = sonic.ConfigStd
	errNotObject = errors.New("row is not a JSON object")
)

// FormatTime renders a creation timestamp the way the remote service does.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime parses a wire timestamp, returning the zero time when malformed.
func ParseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		// Postgres without a zone suffix.
		t, err = time.Parse("2006-01-02T15:04:05.999999999", s)
		if err != nil {
			return time.Time{}
		}
	}
	return t.UTC()
}

func encode(v any) (Row, error) {
	data, err := codec.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Row(data), nil
}

func decode(row Row, v any) error {
	return codec.Unmarshal(row, v)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Fields decodes a row into its top-level fields without touching values.
func Fields(row Row) (map[string]json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if err := codec.Unmarshal(row, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, errNotObject
	}
	return fields, nil
}

// StringField returns a top-level string field of row.
func StringField(row Row, name string) (string, bool) {
	fields, err := Fields(row)
	if err != nil {
		return "", false
	}
	raw, ok := fields[name]
	if !ok {
		return "", false
	}
	var s string
	if err := codec.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Merge returns row with every key of patch set to the patch value, the way
// an object spread would. Keys absent from patch are preserved verbatim.
func Merge(row Row, patch map[string]any) (Row, error) {
	fields, err := Fields(row)
	if err != nil {
		return nil, err
	}
	for k, v := range patch {
		data, err := codec.Marshal(v)
		if err != nil {
			return nil, err
		}
		fields[k] = data
	}
	return encode(fields)
}

// Stamp sets id and created_at on row, overwriting any existing values.
func Stamp(row Row, id string, at time.Time) (Row, error) {
	return Merge(row, map[string]any{FieldID: id, FieldCreatedAt: FormatTime(at)})
}

// EncodeRows marshals a snapshot.
func EncodeRows(rows []Row) ([]byte, error) {
	if rows == nil {
		rows = []Row{}
	}
	return codec.Marshal(rows)
}

// DecodeRows unmarshals a snapshot. Anything but a JSON array of objects is an error.
func DecodeRows(data []byte) ([]Row, error) {
	var raw []json.RawMessage
	if err := codec.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(raw))
	for _, r := range raw {
		if _, err := Fields(r); err != nil {
			return nil, err
		}
		rows = append(rows, Row(r))
	}
	return rows, nil
}
