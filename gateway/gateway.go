// Package gateway is the single data access layer for every entity. Each
// call reads the mode flag once and either works on the local mirror alone
// (guest mode) or on the remote service with the mirror as a read fallback.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"nexus-gateway/domain"
	"nexus-gateway/mirror"
	"nexus-gateway/mode"
	"nexus-gateway/storage"
	"nexus-gateway/wire"
)

const tracerName = "nexus-gateway/gateway"

// ErrUnknownCollection is returned for collection names the gateway does not serve.
var ErrUnknownCollection = errors.New("gateway: unknown collection")

// WriteError reports a remote write the service rejected or never received.
// The mirror is unchanged when it is returned.
type WriteError struct {
	Collection domain.Collection
	Op         domain.Op
	Err        error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("gateway: %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Notifier receives committed remote writes.
type Notifier interface {
	Publish(ctx context.Context, ch domain.Change) error
}

type Option func(*Gateway)

func WithNotifier(n Notifier) Option {
	return func(g *Gateway) { g.notifier = n }
}

func WithLogger(l *log.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithClock sets the source of guest creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

// WithIDGenerator sets the source of guest record ids.
func WithIDGenerator(newID func() string) Option {
	return func(g *Gateway) {
		if newID != nil {
			g.newID = newID
		}
	}
}

// Gateway exposes one typed handle per collection.
type Gateway struct {
	remote   storage.Remote
	mirror   *mirror.Mirror
	mode     mode.Provider
	notifier Notifier
	logger   *log.Logger
	now      func() time.Time
	newID    func() string

	Tasks      *Collection[domain.Task, domain.TaskPatch]
	Projects   *Collection[domain.IdeaProject, domain.IdeaProjectPatch]
	IdeaItems  *ScopedCollection[domain.IdeaItem, domain.IdeaItemPatch]
	Folders    *ScopedCollection[domain.IdeaFolder, domain.IdeaFolderPatch]
	VoiceNotes *Collection[domain.VoiceNote, domain.VoiceNotePatch]
	Subtasks   *ScopedCollection[domain.Subtask, domain.SubtaskPatch]

	defs map[domain.Collection]collectionDef
}

// New wires a gateway. The mode provider is consulted on every call.
func New(remote storage.Remote, m *mirror.Mirror, provider mode.Provider, opts ...Option) *Gateway {
	if remote == nil || m == nil || provider == nil {
		panic("gateway.New: remote, mirror and mode provider are required")
	}
	g := &Gateway{
		remote: remote,
		mirror: m,
		mode:   provider,
		logger: log.StandardLogger(),
		now:    time.Now,
		newID:  uuid.NewString,
		defs:   map[domain.Collection]collectionDef{},
	}
	for _, opt := range opts {
		opt(g)
	}

	tasks := g.define(collectionDef{name: domain.Tasks, order: wire.FieldCreatedAt})
	projects := g.define(collectionDef{name: domain.Projects})
	items := g.define(collectionDef{name: domain.IdeaItems, scope: wire.FieldProjectID})
	folders := g.define(collectionDef{name: domain.Folders, scope: wire.FieldProjectID})
	notes := g.define(collectionDef{name: domain.VoiceNotes, order: wire.FieldCreatedAt, limit: 10})
	subtasks := g.define(collectionDef{name: domain.Subtasks, scope: wire.FieldTaskID})

	g.Tasks = &Collection[domain.Task, domain.TaskPatch]{newHandle(g, tasks, entityCodec[domain.Task, domain.TaskPatch]{
		encode: wire.EncodeTask, decode: wire.DecodeTask, patch: wire.TaskPatch,
	})}
	g.Projects = &Collection[domain.IdeaProject, domain.IdeaProjectPatch]{newHandle(g, projects, entityCodec[domain.IdeaProject, domain.IdeaProjectPatch]{
		encode: wire.EncodeProject, decode: wire.DecodeProject, patch: wire.ProjectPatch,
	})}
	g.IdeaItems = &ScopedCollection[domain.IdeaItem, domain.IdeaItemPatch]{newHandle(g, items, entityCodec[domain.IdeaItem, domain.IdeaItemPatch]{
		encode: wire.EncodeIdeaItem, decode: wire.DecodeIdeaItem, patch: wire.IdeaItemPatch,
	})}
	g.Folders = &ScopedCollection[domain.IdeaFolder, domain.IdeaFolderPatch]{newHandle(g, folders, entityCodec[domain.IdeaFolder, domain.IdeaFolderPatch]{
		encode: wire.EncodeFolder, decode: wire.DecodeFolder, patch: wire.FolderPatch,
	})}
	g.VoiceNotes = &Collection[domain.VoiceNote, domain.VoiceNotePatch]{newHandle(g, notes, entityCodec[domain.VoiceNote, domain.VoiceNotePatch]{
		encode: wire.EncodeVoiceNote, decode: wire.DecodeVoiceNote, patch: wire.VoiceNotePatch,
	})}
	g.Subtasks = &ScopedCollection[domain.Subtask, domain.SubtaskPatch]{newHandle(g, subtasks, entityCodec[domain.Subtask, domain.SubtaskPatch]{
		encode: wire.EncodeSubtask, decode: wire.DecodeSubtask, patch: wire.SubtaskPatch,
	})}
	return g
}

func (g *Gateway) define(def collectionDef) collectionDef {
	g.defs[def.name] = def
	return def
}

// IsGuest reports the current mode.
func (g *Gateway) IsGuest(ctx context.Context) bool {
	return g.mode.IsGuest(ctx)
}

// Warm copies the full remote contents of the given collections into the
// mirror so they stay readable offline. It does nothing in guest mode and
// stops at the first remote or mirror failure.
func (g *Gateway) Warm(ctx context.Context, collections ...domain.Collection) error {
	for _, c := range collections {
		if _, ok := g.defs[c]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownCollection, c)
		}
	}
	if g.mode.IsGuest(ctx) {
		return nil
	}
	for _, c := range collections {
		def := g.defs[c]
		res := g.remote.Fetch(ctx, storage.Query{Collection: c, OrderDesc: def.order})
		rows, err := res.Unwrap()
		if err != nil {
			return fmt.Errorf("warm %s: %w", c, err)
		}
		if err := g.mirror.Set(ctx, c, rows); err != nil {
			return err
		}
		g.logger.WithFields(log.Fields{"collection": c, "rows": len(rows)}).Debug("mirror warmed")
	}
	return nil
}

func modeName(guest bool) string {
	if guest {
		return "guest"
	}
	return "remote"
}

func (g *Gateway) startSpan(ctx context.Context, name string, c domain.Collection, guest bool) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(
		attribute.String("nexus.collection", string(c)),
		attribute.String("nexus.mode", modeName(guest)),
	))
}

// notify publishes a committed remote write. The write already succeeded, so
// failures are only logged.
func (g *Gateway) notify(ctx context.Context, c domain.Collection, op domain.Op, id string) {
	if g.notifier == nil {
		return
	}
	ch := domain.Change{Collection: c, Op: op, ID: id, At: g.now().UTC()}
	if err := g.notifier.Publish(ctx, ch); err != nil {
		g.logger.WithFields(log.Fields{
			"collection": c,
			"op":         op,
			"id":         id,
			"error":      err.Error(),
		}).Warn("change notification failed")
	}
}
