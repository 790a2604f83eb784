package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"nexus-gateway/domain"
	"nexus-gateway/wire"
)

type recorded struct {
	method string
	path   string
	query  map[string]string
	header http.Header
	body   string
}

func newRESTServer(t *testing.T, status int, reply string) (*REST, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		q := map[string]string{}
		for k, v := range r.URL.Query() {
			q[k] = v[0]
		}
		calls = append(calls, recorded{method: r.Method, path: r.URL.Path, query: q, header: r.Header.Clone(), body: string(body)})
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	rest, err := NewREST(srv.URL+"/", "anon-key", srv.Client())
	if err != nil {
		t.Fatalf("new rest: %v", err)
	}
	return rest, &calls
}

func TestRESTFetchBuildsQuery(t *testing.T) {
	rest, calls := newRESTServer(t, http.StatusOK, `[{"id":"a"},{"id":"b"}]`)
	res := rest.Fetch(context.Background(), Query{
		Collection: domain.VoiceNotes,
		OrderDesc:  wire.FieldCreatedAt,
		Limit:      10,
	})
	rows, err := res.Unwrap()
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	c := (*calls)[0]
	if c.method != http.MethodGet || c.path != "/rest/v1/voice_notes" {
		t.Fatalf("unexpected request %s %s", c.method, c.path)
	}
	if c.query["order"] != "created_at.desc" || c.query["limit"] != "10" || c.query["select"] != "*" {
		t.Fatalf("unexpected query %v", c.query)
	}
	if c.header.Get("apikey") != "anon-key" || c.header.Get("Authorization") != "Bearer anon-key" {
		t.Fatalf("unexpected auth headers %v", c.header)
	}
}

func TestRESTFetchScopeAndToken(t *testing.T) {
	rest, calls := newRESTServer(t, http.StatusOK, `[]`)
	ctx := WithAccessToken(context.Background(), "user-jwt")
	res := rest.Fetch(ctx, Query{
		Collection: domain.IdeaItems,
		Scope:      &Scope{Field: wire.FieldProjectID, Value: "p1"},
	})
	if !res.IsOk() {
		t.Fatalf("fetch: %v", res.Err())
	}
	c := (*calls)[0]
	if c.query["project_id"] != "eq.p1" {
		t.Fatalf("expected project filter, got %v", c.query)
	}
	if _, ok := c.query["order"]; ok {
		t.Fatalf("order must be omitted when unset")
	}
	if c.header.Get("Authorization") != "Bearer user-jwt" {
		t.Fatalf("session token not forwarded: %q", c.header.Get("Authorization"))
	}
}

func TestRESTInsertAsksForRepresentation(t *testing.T) {
	rest, calls := newRESTServer(t, http.StatusCreated, `[{"id":"srv-1","title":"Pay rent"}]`)
	res := rest.Insert(context.Background(), domain.Tasks, wire.Row(`{"title":"Pay rent"}`))
	rows, err := res.Unwrap()
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id, _ := wire.StringField(rows[0], wire.FieldID); id != "srv-1" {
		t.Fatalf("expected server id, got %q", id)
	}
	c := (*calls)[0]
	if c.method != http.MethodPost || c.header.Get("Prefer") != "return=representation" {
		t.Fatalf("unexpected insert request %s prefer=%q", c.method, c.header.Get("Prefer"))
	}
	if c.body != `{"title":"Pay rent"}` {
		t.Fatalf("unexpected body %s", c.body)
	}
}

func TestRESTUpdateAndDeleteFilterByID(t *testing.T) {
	rest, calls := newRESTServer(t, http.StatusNoContent, ``)
	ctx := context.Background()
	if res := rest.Update(ctx, domain.Tasks, "t1", map[string]any{"status": "done"}); !res.IsOk() {
		t.Fatalf("update: %v", res.Err())
	}
	if res := rest.Delete(ctx, domain.Subtasks, "s1"); !res.IsOk() {
		t.Fatalf("delete: %v", res.Err())
	}
	up, del := (*calls)[0], (*calls)[1]
	if up.method != http.MethodPatch || up.query["id"] != "eq.t1" || up.body != `{"status":"done"}` {
		t.Fatalf("unexpected update %+v", up)
	}
	if del.method != http.MethodDelete || del.path != "/rest/v1/subtasks" || del.query["id"] != "eq.s1" {
		t.Fatalf("unexpected delete %+v", del)
	}
}

func TestRESTNonSuccessIsRemoteError(t *testing.T) {
	rest, _ := newRESTServer(t, http.StatusUnauthorized, `{"message":"JWT expired"}`)
	res := rest.Fetch(context.Background(), Query{Collection: domain.Tasks})
	var re *RemoteError
	if !errors.As(res.Err(), &re) {
		t.Fatalf("expected RemoteError, got %v", res.Err())
	}
	if re.Status != http.StatusUnauthorized || re.Body != `{"message":"JWT expired"}` {
		t.Fatalf("unexpected remote error %+v", re)
	}
}

func TestRESTRejectsMalformedBody(t *testing.T) {
	rest, _ := newRESTServer(t, http.StatusOK, `{"not":"an array"}`)
	if res := rest.Fetch(context.Background(), Query{Collection: domain.Tasks}); res.IsOk() {
		t.Fatalf("expected decode failure")
	}
}

func TestRESTRejectsInvalidQueries(t *testing.T) {
	rest, calls := newRESTServer(t, http.StatusOK, `[]`)
	ctx := context.Background()
	bad := []Query{
		{Collection: "users"},
		{Collection: domain.Tasks, OrderDesc: "title"},
		{Collection: domain.Tasks, Scope: &Scope{Field: "owner", Value: "x"}},
		{Collection: domain.Tasks, Limit: -1},
	}
	for _, q := range bad {
		if res := rest.Fetch(ctx, q); res.IsOk() {
			t.Fatalf("expected %+v to be rejected", q)
		}
	}
	if len(*calls) != 0 {
		t.Fatalf("invalid queries must not reach the network")
	}
}

func TestRESTPing(t *testing.T) {
	rest, calls := newRESTServer(t, http.StatusOK, `{}`)
	if err := rest.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if (*calls)[0].path != "/rest/v1/" {
		t.Fatalf("unexpected ping path %s", (*calls)[0].path)
	}
}

func TestNewRESTRequiresAbsoluteURL(t *testing.T) {
	if _, err := NewREST("localhost", "k", nil); err == nil {
		t.Fatalf("expected error for relative url")
	}
}

func TestResult(t *testing.T) {
	if r := Err[int](nil); r.IsOk() || r.Err() == nil {
		t.Fatalf("nil error must still fail")
	}
	v, err := From(3, nil).Unwrap()
	if err != nil || v != 3 {
		t.Fatalf("unexpected %d %v", v, err)
	}
	if v, err := From(3, errors.New("x")).Unwrap(); err == nil || v != 0 {
		t.Fatalf("failed result must not expose a value")
	}
}
