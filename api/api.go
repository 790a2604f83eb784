// Package api serves the persistence gateway over HTTP for the board, finance,
// idea lab and voice note surfaces.
package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"nexus-gateway/domain"
	"nexus-gateway/gateway"
	"nexus-gateway/mode"
)

const (
	defaultFinanceMonths = 6
	maxFinanceMonths     = 24
)

// Deps are the collaborators of the HTTP API. Auth and Deduper are optional.
type Deps struct {
	Gateway *gateway.Gateway
	Mode    mode.Toggler
	Auth    Authenticator
	Deduper Deduper
	Logger  *log.Logger
	Now     func() time.Time
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	if d.Logger == nil {
		d.Logger = log.StandardLogger()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if e.Validator == nil {
		e.Validator = NewRequestValidator()
	}
	gw := d.Gateway

	g := e.Group("/api", RequestMetricsMiddleware(d.Logger), SessionMiddleware(d.Auth))

	registerResource(g, "/tasks", resource[domain.Task, domain.TaskPatch]{
		collection: domain.Tasks,
		list:       unscopedList(gw.Tasks),
		store:      gw.Tasks,
		prepare:    prepareTask,
	}, d.Deduper, d.Logger)
	registerResource(g, "/projects", resource[domain.IdeaProject, domain.IdeaProjectPatch]{
		collection: domain.Projects,
		list:       unscopedList(gw.Projects),
		store:      gw.Projects,
		prepare:    func(p *domain.IdeaProject) { p.ID, p.CreatedAt = "", time.Time{} },
	}, d.Deduper, d.Logger)
	registerResource(g, "/idea-items", resource[domain.IdeaItem, domain.IdeaItemPatch]{
		collection: domain.IdeaItems,
		list:       scopedList(gw.IdeaItems, "projectId"),
		store:      gw.IdeaItems,
		prepare:    prepareIdeaItem,
	}, d.Deduper, d.Logger)
	registerResource(g, "/folders", resource[domain.IdeaFolder, domain.IdeaFolderPatch]{
		collection: domain.Folders,
		list:       scopedList(gw.Folders, "projectId"),
		store:      gw.Folders,
		prepare:    func(f *domain.IdeaFolder) { f.ID, f.CreatedAt = "", time.Time{} },
	}, d.Deduper, d.Logger)
	registerResource(g, "/voice-notes", resource[domain.VoiceNote, domain.VoiceNotePatch]{
		collection: domain.VoiceNotes,
		list:       unscopedList(gw.VoiceNotes),
		store:      gw.VoiceNotes,
		prepare:    func(v *domain.VoiceNote) { v.ID, v.CreatedAt = "", time.Time{} },
	}, d.Deduper, d.Logger)
	registerResource(g, "/subtasks", resource[domain.Subtask, domain.SubtaskPatch]{
		collection: domain.Subtasks,
		list:       scopedList(gw.Subtasks, "taskId"),
		store:      gw.Subtasks,
		prepare:    func(s *domain.Subtask) { s.ID, s.CreatedAt = "", time.Time{} },
	}, d.Deduper, d.Logger)

	g.GET("/finance/summary", financeSummary(gw, d.Now))
	g.GET("/mode", getMode(d.Mode))
	g.PUT("/mode", putMode(d.Mode, d.Logger))
	e.GET("/healthz", healthz)
}

func prepareTask(t *domain.Task) {
	t.ID, t.CreatedAt = "", time.Time{}
	if t.Status == "" {
		t.Status = domain.StatusTodo
	}
	if strings.TrimSpace(t.Niche) == "" {
		t.Niche = domain.DefaultNiche
	}
}

func prepareIdeaItem(i *domain.IdeaItem) {
	i.ID, i.CreatedAt = "", time.Time{}
	if i.NeedsHash() && i.Hash == "" {
		i.Hash = domain.ContentHash(i.Content)
	}
}

type modeResponse struct {
	Guest bool `json:"guest"`
}

type modeRequest struct {
	Guest *bool `json:"guest" validate:"required"`
}

func getMode(t mode.Toggler) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, modeResponse{Guest: t.IsGuest(c.Request().Context())})
	}
}

func putMode(t mode.Toggler, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req modeRequest
		if err := bindAndValidate(c, &req); err != nil {
			return err
		}
		ctx := c.Request().Context()
		if err := t.SetGuest(ctx, *req.Guest); err != nil {
			metricsFrom(c).SetErrorStage("local_write")
			return c.String(http.StatusInsufficientStorage, err.Error())
		}
		logger.WithField("mode", modeName(*req.Guest)).Info("persistence mode changed")
		return c.JSON(http.StatusOK, modeResponse{Guest: t.IsGuest(ctx)})
	}
}

func modeName(guest bool) string {
	if guest {
		return "guest"
	}
	return "remote"
}

func financeSummary(gw *gateway.Gateway, now func() time.Time) echo.HandlerFunc {
	return func(c echo.Context) error {
		m := metricsFrom(c)
		months := defaultFinanceMonths
		if raw := strings.TrimSpace(c.QueryParam("months")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > maxFinanceMonths {
				m.SetErrorStage("params")
				return c.String(http.StatusBadRequest, "invalid months")
			}
			months = n
		}
		start := time.Now()
		tasks, err := gw.Tasks.Fetch(c.Request().Context())
		m.ObserveGateway(time.Since(start))
		if err != nil {
			m.SetErrorStage("cancelled")
			return c.String(http.StatusServiceUnavailable, err.Error())
		}
		sum := domain.Summarize(tasks, now(), months)
		m.SetRecords(sum.Entries)
		return c.JSON(http.StatusOK, sum)
	}
}

func healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}
