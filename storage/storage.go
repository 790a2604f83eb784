// Package storage adapts the remote data service. Each call maps to exactly
// one remote request: no retries, no pagination.
package storage

import (
	"context"
	"errors"
	"fmt"

	"nexus-gateway/domain"
	"nexus-gateway/wire"
)

var (
	// ErrNotFound is returned by backends that can tell an update missed.
	ErrNotFound = errors.New("record not found")

	errNilFailure = errors.New("remote call failed")
)

// RemoteError carries a non-success response from the remote service.
type RemoteError struct {
	Op     string
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: remote status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: remote status %d: %s", e.Op, e.Status, e.Body)
}

// Scope restricts a fetch to rows whose Field equals Value.
type Scope struct {
	Field string
	Value string
}

// Query describes one fetch.
type Query struct {
	Collection domain.Collection
	Scope      *Scope
	// OrderDesc names the column to sort newest-first by; empty keeps the
	// service's default order.
	OrderDesc string
	// Limit caps the number of rows; zero means the service default.
	Limit int
}

// Remote is the remote data service.
type Remote interface {
	Fetch(ctx context.Context, q Query) Result[[]wire.Row]
	Insert(ctx context.Context, c domain.Collection, row wire.Row) Result[[]wire.Row]
	Update(ctx context.Context, c domain.Collection, id string, patch map[string]any) Result[struct{}]
	Delete(ctx context.Context, c domain.Collection, id string) Result[struct{}]
	Ping(ctx context.Context) error
}

type accessTokenKey struct{}

// WithAccessToken attaches the caller's session token to ctx. Backends that
// authenticate per user forward it to the remote service.
func WithAccessToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, accessTokenKey{}, token)
}

// AccessToken returns the session token attached to ctx.
func AccessToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(accessTokenKey{}).(string)
	return token, ok && token != ""
}

func validCollection(c domain.Collection) error {
	if !c.Valid() {
		return fmt.Errorf("unknown collection %q", c)
	}
	return nil
}

var scopeFields = map[string]bool{wire.FieldProjectID: true, wire.FieldTaskID: true, wire.FieldID: true}

func validQuery(q Query) error {
	if err := validCollection(q.Collection); err != nil {
		return err
	}
	if q.Scope != nil && !scopeFields[q.Scope.Field] {
		return fmt.Errorf("unsupported scope field %q", q.Scope.Field)
	}
	if q.OrderDesc != "" && q.OrderDesc != wire.FieldCreatedAt {
		return fmt.Errorf("unsupported order column %q", q.OrderDesc)
	}
	if q.Limit < 0 {
		return fmt.Errorf("invalid limit %d", q.Limit)
	}
	return nil
}
