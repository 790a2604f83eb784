package gateway

import (
	"nexus-gateway/domain"
	"nexus-gateway/storage"
	"nexus-gateway/wire"
)

// readPolicy decides what a remote-mode read returns. On success the remote
// rows win; on failure the caller serves the mirror snapshot instead.
func readPolicy(res storage.Result[[]wire.Row]) (rows []wire.Row, fromRemote bool) {
	if !res.IsOk() {
		return nil, false
	}
	rows = res.Value()
	if rows == nil {
		rows = []wire.Row{}
	}
	return rows, true
}

// writePolicy propagates a remote write failure as a *WriteError.
func writePolicy[T any](c domain.Collection, op domain.Op, res storage.Result[T]) (T, error) {
	v, err := res.Unwrap()
	if err != nil {
		return v, &WriteError{Collection: c, Op: op, Err: err}
	}
	return v, nil
}

func prepend(rows []wire.Row, row wire.Row) []wire.Row {
	out := make([]wire.Row, 0, len(rows)+1)
	out = append(out, row)
	return append(out, rows...)
}

func rowID(row wire.Row) string {
	id, _ := wire.StringField(row, wire.FieldID)
	return id
}

// mergeByID applies patch to every row whose id matches. Rows that cannot
// be merged are kept as they were.
func mergeByID(rows []wire.Row, id string, patch map[string]any) []wire.Row {
	out := make([]wire.Row, 0, len(rows))
	for _, r := range rows {
		if rowID(r) == id {
			if merged, err := wire.Merge(r, patch); err == nil {
				r = merged
			}
		}
		out = append(out, r)
	}
	return out
}

func removeByID(rows []wire.Row, id string) []wire.Row {
	out := make([]wire.Row, 0, len(rows))
	for _, r := range rows {
		if rowID(r) != id {
			out = append(out, r)
		}
	}
	return out
}

func inScope(row wire.Row, scope *storage.Scope) bool {
	v, _ := wire.StringField(row, scope.Field)
	return v == scope.Value
}

// filterScope keeps the rows inside scope; a nil scope keeps everything.
func filterScope(rows []wire.Row, scope *storage.Scope) []wire.Row {
	if scope == nil {
		return rows
	}
	out := make([]wire.Row, 0, len(rows))
	for _, r := range rows {
		if inScope(r, scope) {
			out = append(out, r)
		}
	}
	return out
}

// replaceScope swaps the rows inside scope for fresh, leaving rows of other
// scopes untouched. A nil scope replaces the whole snapshot.
func replaceScope(rows []wire.Row, scope *storage.Scope, fresh []wire.Row) []wire.Row {
	if scope == nil {
		return fresh
	}
	out := make([]wire.Row, 0, len(rows)+len(fresh))
	out = append(out, fresh...)
	for _, r := range rows {
		if !inScope(r, scope) {
			out = append(out, r)
		}
	}
	return out
}
