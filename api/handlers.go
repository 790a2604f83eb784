package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"nexus-gateway/domain"
	"nexus-gateway/gateway"
	"nexus-gateway/mirror"
)

type writer[T, P any] interface {
	Insert(ctx context.Context, record T) ([]T, error)
	Update(ctx context.Context, id string, patch P) error
	Delete(ctx context.Context, id string) error
}

// resource serves one collection: list, create, patch and delete.
type resource[T, P any] struct {
	collection domain.Collection
	list       func(c echo.Context) ([]T, error)
	store      writer[T, P]
	// prepare fills server-side defaults before validation.
	prepare func(*T)
}

func unscopedList[T, P any](col *gateway.Collection[T, P]) func(echo.Context) ([]T, error) {
	return func(c echo.Context) ([]T, error) {
		return col.Fetch(c.Request().Context())
	}
}

func scopedList[T, P any](col *gateway.ScopedCollection[T, P], param string) func(echo.Context) ([]T, error) {
	return func(c echo.Context) ([]T, error) {
		parent := strings.TrimSpace(c.QueryParam(param))
		if parent == "" {
			return nil, echo.NewHTTPError(http.StatusBadRequest, param+" is required")
		}
		return col.Fetch(c.Request().Context(), parent)
	}
}

func registerResource[T, P any](g *echo.Group, path string, r resource[T, P], deduper Deduper, logger *log.Logger) {
	g.GET(path, r.listHandler())
	g.POST(path, r.createHandler(deduper, logger))
	g.PATCH(path+"/:id", r.updateHandler())
	g.DELETE(path+"/:id", r.deleteHandler())
}

func (r resource[T, P]) listHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		m := metricsFrom(c)
		start := time.Now()
		items, err := r.list(c)
		m.ObserveGateway(time.Since(start))
		if err != nil {
			var he *echo.HTTPError
			if errors.As(err, &he) {
				m.SetErrorStage("params")
				return he
			}
			// Remote failures are absorbed by the gateway; only a
			// cancelled request gets here.
			m.SetErrorStage("cancelled")
			return c.String(http.StatusServiceUnavailable, err.Error())
		}
		m.SetRecords(len(items))
		return c.JSON(http.StatusOK, items)
	}
}

func (r resource[T, P]) createHandler(deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		m := metricsFrom(c)
		ctx := c.Request().Context()

		var record T
		if err := bind(c, &record); err != nil {
			m.SetErrorStage("decode")
			return err
		}
		if r.prepare != nil {
			r.prepare(&record)
		}
		if err := c.Validate(&record); err != nil {
			m.SetErrorStage("validate")
			return c.String(http.StatusBadRequest, err.Error())
		}

		key := strings.TrimSpace(c.Request().Header.Get(idempotencyHeader))
		scope := subject(c) + ":" + string(r.collection)
		if key != "" && deduper != nil {
			m.SetIdempotent(true)
			added, err := deduper.Add(ctx, scope, key)
			if err != nil {
				m.SetErrorStage("idempotency")
				return c.String(http.StatusServiceUnavailable, "idempotency store unavailable")
			}
			if !added {
				m.SetErrorStage("duplicate")
				return c.String(http.StatusConflict, "duplicate idempotency key")
			}
		}

		start := time.Now()
		out, err := r.store.Insert(ctx, record)
		m.ObserveGateway(time.Since(start))
		if err != nil {
			if key != "" && deduper != nil {
				if rerr := deduper.Remove(ctx, scope, key); rerr != nil {
					logger.WithFields(log.Fields{"collection": r.collection, "error": rerr.Error()}).
						Warn("release idempotency key failed")
				}
			}
			return writeFailure(c, m, err)
		}
		m.SetRecords(len(out))
		return c.JSON(http.StatusCreated, out)
	}
}

func (r resource[T, P]) updateHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		m := metricsFrom(c)
		var patch P
		if err := bindAndValidate(c, &patch); err != nil {
			m.SetErrorStage("decode")
			return err
		}
		start := time.Now()
		err := r.store.Update(c.Request().Context(), c.Param("id"), patch)
		m.ObserveGateway(time.Since(start))
		if err != nil {
			return writeFailure(c, m, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func (r resource[T, P]) deleteHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		m := metricsFrom(c)
		start := time.Now()
		err := r.store.Delete(c.Request().Context(), c.Param("id"))
		m.ObserveGateway(time.Since(start))
		if err != nil {
			return writeFailure(c, m, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// writeFailure maps a failed write to a response the UI can show.
func writeFailure(c echo.Context, m *requestMetrics, err error) error {
	var we *gateway.WriteError
	switch {
	case errors.As(err, &we):
		m.SetErrorStage("remote_write")
		return c.String(http.StatusBadGateway, err.Error())
	case errors.Is(err, mirror.ErrWrite):
		m.SetErrorStage("local_write")
		return c.String(http.StatusInsufficientStorage, err.Error())
	case errors.Is(err, mirror.ErrRead):
		m.SetErrorStage("local_read")
		return c.String(http.StatusServiceUnavailable, err.Error())
	default:
		m.SetErrorStage("gateway")
		return c.String(http.StatusInternalServerError, err.Error())
	}
}
