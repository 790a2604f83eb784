package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	"nexus-gateway/domain"
	"nexus-gateway/wire"
)

const (
	restPath         = "/rest/v1/"
	maxResponseBytes = 64 << 20 // attachments travel inline as data URIs
	maxErrorBody     = 512
)

// REST talks to a PostgREST-style table API.
type REST struct {
	base   *url.URL
	apiKey string
	client *http.Client
}

// NewREST creates a REST backend for the service at baseURL. A nil client
// uses http.DefaultClient and its default timeouts.
func NewREST(baseURL, apiKey string, client *http.Client) (*REST, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse remote url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("remote url %q must be absolute", baseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &REST{base: u, apiKey: apiKey, client: client}, nil
}

func (r *REST) endpoint(c domain.Collection, params url.Values) string {
	u := *r.base
	u.Path = strings.TrimRight(u.Path, "/") + restPath + string(c)
	u.RawQuery = params.Encode()
	return u.String()
}

func (r *REST) newRequest(ctx context.Context, method, target string, body []byte) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", r.apiKey)
	bearer := r.apiKey
	if token, ok := AccessToken(ctx); ok {
		bearer = token
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (r *REST) do(req *http.Request, op string) ([]byte, error) {
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body := string(data)
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &RemoteError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(body)}
	}
	return data, nil
}

func idFilter(id string) url.Values {
	return url.Values{wire.FieldID: {"eq." + id}}
}

// Fetch reads the rows selected by q.
func (r *REST) Fetch(ctx context.Context, q Query) Result[[]wire.Row] {
	if err := validQuery(q); err != nil {
		return Err[[]wire.Row](err)
	}
	params := url.Values{"select": {"*"}}
	if q.Scope != nil {
		params.Set(q.Scope.Field, "eq."+q.Scope.Value)
	}
	if q.OrderDesc != "" {
		params.Set("order", q.OrderDesc+".desc")
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	op := "fetch " + string(q.Collection)
	req, err := r.newRequest(ctx, http.MethodGet, r.endpoint(q.Collection, params), nil)
	if err != nil {
		return Err[[]wire.Row](err)
	}
	data, err := r.do(req, op)
	if err != nil {
		return Err[[]wire.Row](err)
	}
	rows, err := wire.DecodeRows(data)
	if err != nil {
		return Err[[]wire.Row](fmt.Errorf("%s: decode: %w", op, err))
	}
	return Ok(rows)
}

// Insert creates a row and returns the stored representation.
func (r *REST) Insert(ctx context.Context, c domain.Collection, row wire.Row) Result[[]wire.Row] {
	if err := validCollection(c); err != nil {
		return Err[[]wire.Row](err)
	}
	op := "insert " + string(c)
	req, err := r.newRequest(ctx, http.MethodPost, r.endpoint(c, url.Values{"select": {"*"}}), row)
	if err != nil {
		return Err[[]wire.Row](err)
	}
	req.Header.Set("Prefer", "return=representation")
	data, err := r.do(req, op)
	if err != nil {
		return Err[[]wire.Row](err)
	}
	rows, err := wire.DecodeRows(data)
	if err != nil {
		return Err[[]wire.Row](fmt.Errorf("%s: decode: %w", op, err))
	}
	return Ok(rows)
}

// Update applies patch to the row with the given id. PostgREST does not
// report missed rows, so a missing id is not an error here.
func (r *REST) Update(ctx context.Context, c domain.Collection, id string, patch map[string]any) Result[struct{}] {
	if err := validCollection(c); err != nil {
		return Err[struct{}](err)
	}
	body, err := sonic.Marshal(patch)
	if err != nil {
		return Err[struct{}](fmt.Errorf("encode patch: %w", err))
	}
	req, err := r.newRequest(ctx, http.MethodPatch, r.endpoint(c, idFilter(id)), body)
	if err != nil {
		return Err[struct{}](err)
	}
	req.Header.Set("Prefer", "return=minimal")
	if _, err := r.do(req, "update "+string(c)); err != nil {
		return Err[struct{}](err)
	}
	return Ok(struct{}{})
}

func (r *REST) Delete(ctx context.Context, c domain.Collection, id string) Result[struct{}] {
	if err := validCollection(c); err != nil {
		return Err[struct{}](err)
	}
	req, err := r.newRequest(ctx, http.MethodDelete, r.endpoint(c, idFilter(id)), nil)
	if err != nil {
		return Err[struct{}](err)
	}
	if _, err := r.do(req, "delete "+string(c)); err != nil {
		return Err[struct{}](err)
	}
	return Ok(struct{}{})
}

// Ping requests the API root, which answers without touching any table.
func (r *REST) Ping(ctx context.Context) error {
	u := *r.base
	u.Path = strings.TrimRight(u.Path, "/") + restPath
	req, err := r.newRequest(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	_, err = r.do(req, "ping")
	return err
}
