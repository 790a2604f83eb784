package gateway

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"nexus-gateway/domain"
	"nexus-gateway/mirror"
	"nexus-gateway/storage"
	"nexus-gateway/wire"
)

type collectionDef struct {
	name  domain.Collection
	order string
	limit int
	// scope is the parent field of scoped collections, empty otherwise.
	scope string
}

func (d collectionDef) query(scope *storage.Scope) storage.Query {
	return storage.Query{Collection: d.name, Scope: scope, OrderDesc: d.order, Limit: d.limit}
}

type entityCodec[T, P any] struct {
	encode func(T) (wire.Row, error)
	decode func(wire.Row) (T, error)
	patch  func(P) map[string]any
}

type handle[T, P any] struct {
	g     *Gateway
	def   collectionDef
	codec entityCodec[T, P]
}

func newHandle[T, P any](g *Gateway, def collectionDef, codec entityCodec[T, P]) *handle[T, P] {
	return &handle[T, P]{g: g, def: def, codec: codec}
}

// Collection is the handle of an unscoped collection.
type Collection[T, P any] struct {
	*handle[T, P]
}

// Fetch returns every record. In remote mode a failed read is served from
// the mirror; only a cancelled ctx makes Fetch fail.
func (c *Collection[T, P]) Fetch(ctx context.Context) ([]T, error) {
	return c.fetch(ctx, nil)
}

// ScopedCollection is the handle of a collection read per parent record.
type ScopedCollection[T, P any] struct {
	*handle[T, P]
}

// Fetch returns the records belonging to parentID.
func (c *ScopedCollection[T, P]) Fetch(ctx context.Context, parentID string) ([]T, error) {
	return c.fetch(ctx, &storage.Scope{Field: c.def.scope, Value: parentID})
}

func (h *handle[T, P]) fetch(ctx context.Context, scope *storage.Scope) ([]T, error) {
	guest := h.g.mode.IsGuest(ctx)
	ctx, span := h.g.startSpan(ctx, "gateway.fetch", h.def.name, guest)
	defer span.End()

	if guest {
		return h.decodeRows(filterScope(h.g.mirror.Get(ctx, h.def.name), scope)), nil
	}

	res := h.g.remote.Fetch(ctx, h.def.query(scope))
	if rows, ok := readPolicy(res); ok {
		h.refresh(ctx, scope, rows)
		span.SetAttributes(attribute.Bool("nexus.degraded", false))
		return h.decodeRows(rows), nil
	}
	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Bool("nexus.degraded", true))
	span.RecordError(res.Err())
	h.g.logger.WithFields(log.Fields{
		"collection": h.def.name,
		"error":      res.Err().Error(),
	}).Warn("remote fetch failed, serving mirror snapshot")
	return h.decodeRows(filterScope(h.g.mirror.Get(ctx, h.def.name), scope)), nil
}

// refresh stores freshly fetched rows. Reads never fail, so a mirror write
// error is logged and the fresh rows are still returned.
func (h *handle[T, P]) refresh(ctx context.Context, scope *storage.Scope, rows []wire.Row) {
	var err error
	if scope == nil {
		err = h.g.mirror.Set(ctx, h.def.name, rows)
	} else {
		err = h.g.mirror.Update(ctx, h.def.name, func(snapshot []wire.Row) ([]wire.Row, error) {
			return replaceScope(snapshot, scope, rows), nil
		})
	}
	if err != nil {
		h.g.logger.WithFields(log.Fields{
			"collection": h.def.name,
			"error":      err.Error(),
		}).Warn("mirror refresh failed")
	}
}

func (h *handle[T, P]) decodeRows(rows []wire.Row) []T {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		v, err := h.codec.decode(r)
		if err != nil {
			h.g.logger.WithFields(log.Fields{
				"collection": h.def.name,
				"error":      err.Error(),
			}).Debug("skipping undecodable row")
			continue
		}
		out = append(out, v)
	}
	return out
}

// Insert stores a new record and returns what was stored. In guest mode the
// record gets a fresh id and creation time and is placed first in the
// snapshot; in remote mode the service assigns both and the mirror is left
// alone until the next fetch.
func (h *handle[T, P]) Insert(ctx context.Context, record T) ([]T, error) {
	guest := h.g.mode.IsGuest(ctx)
	ctx, span := h.g.startSpan(ctx, "gateway.insert", h.def.name, guest)
	defer span.End()

	row, err := h.codec.encode(record)
	if err != nil {
		return nil, failSpan(span, fmt.Errorf("encode %s: %w", h.def.name, err))
	}

	if guest {
		stamped, err := wire.Stamp(row, h.g.newID(), h.g.now())
		if err != nil {
			return nil, failSpan(span, fmt.Errorf("stamp %s: %w", h.def.name, err))
		}
		err = h.g.mirror.Update(ctx, h.def.name, func(rows []wire.Row) ([]wire.Row, error) {
			return prepend(rows, stamped), nil
		})
		if err != nil {
			return nil, failSpan(span, err)
		}
		stored, err := h.codec.decode(stamped)
		if err != nil {
			return nil, failSpan(span, err)
		}
		return []T{stored}, nil
	}

	rows, err := writePolicy(h.def.name, domain.OpInsert, h.g.remote.Insert(ctx, h.def.name, row))
	if err != nil {
		return nil, failSpan(span, err)
	}
	for _, r := range rows {
		h.g.notify(ctx, h.def.name, domain.OpInsert, rowID(r))
	}
	stored := h.decodeRows(rows)
	if dropped := len(rows) - len(stored); dropped > 0 {
		span.AddEvent("undecodable rows", trace.WithAttributes(attribute.Int("nexus.dropped", dropped)))
		h.g.logger.WithFields(log.Fields{
			"collection": h.def.name,
			"returned":   len(rows),
			"dropped":    dropped,
		}).Warn("remote insert stored rows that could not be decoded")
	}
	return stored, nil
}

// Update applies a partial update to the record with id. Fields absent from
// patch keep their values.
func (h *handle[T, P]) Update(ctx context.Context, id string, patch P) error {
	guest := h.g.mode.IsGuest(ctx)
	ctx, span := h.g.startSpan(ctx, "gateway.update", h.def.name, guest)
	defer span.End()

	fields := h.codec.patch(patch)
	if guest {
		err := h.g.mirror.Update(ctx, h.def.name, func(rows []wire.Row) ([]wire.Row, error) {
			return mergeByID(rows, id, fields), nil
		})
		return failSpan(span, err)
	}

	if _, err := writePolicy(h.def.name, domain.OpUpdate, h.g.remote.Update(ctx, h.def.name, id, fields)); err != nil {
		return failSpan(span, err)
	}
	h.g.notify(ctx, h.def.name, domain.OpUpdate, id)
	return nil
}

// Delete removes the record with id.
func (h *handle[T, P]) Delete(ctx context.Context, id string) error {
	guest := h.g.mode.IsGuest(ctx)
	ctx, span := h.g.startSpan(ctx, "gateway.delete", h.def.name, guest)
	defer span.End()

	if guest {
		err := h.g.mirror.Update(ctx, h.def.name, func(rows []wire.Row) ([]wire.Row, error) {
			return removeByID(rows, id), nil
		})
		return failSpan(span, err)
	}

	if _, err := writePolicy(h.def.name, domain.OpDelete, h.g.remote.Delete(ctx, h.def.name, id)); err != nil {
		return failSpan(span, err)
	}
	h.g.notify(ctx, h.def.name, domain.OpDelete, id)
	return nil
}

func failSpan(span trace.Span, err error) error {
	if err == nil {
		return nil
	}
	span.RecordError(err)
	status := "local write failed"
	var we *WriteError
	switch {
	case errors.As(err, &we):
		status = "remote write failed"
	case errors.Is(err, mirror.ErrRead):
		status = "local read failed"
	}
	span.SetStatus(codes.Error, status)
	return err
}
