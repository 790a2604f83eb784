// Package mirror keeps the last known snapshot of every collection in a
// local key/value store.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"nexus-gateway/domain"
	"nexus-gateway/kv"
	"nexus-gateway/wire"
)

// KeyPrefix namespaces snapshot keys in the shared store.
const KeyPrefix = "nexus_v2_"

var (
	// ErrWrite wraps failures to persist a snapshot (quota, disk, connection).
	ErrWrite = errors.New("mirror: snapshot write failed")
	// ErrRead wraps store failures met while loading a snapshot for an update.
	ErrRead = errors.New("mirror: snapshot read failed")
)

// Key returns the store key holding the snapshot of c.
func Key(c domain.Collection) string {
	return KeyPrefix + string(c)
}

// Mirror reads and replaces whole-collection snapshots.
type Mirror struct {
	store  kv.Store
	logger *log.Logger

	mu    sync.Mutex
	locks map[domain.Collection]*sync.Mutex
}

func New(store kv.Store, logger *log.Logger) *Mirror {
	if store == nil {
		panic("mirror.New: store is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Mirror{store: store, logger: logger, locks: map[domain.Collection]*sync.Mutex{}}
}

// Get returns the snapshot of c. Missing, unreadable or malformed snapshots
// read as empty; Get never fails.
func (m *Mirror) Get(ctx context.Context, c domain.Collection) []wire.Row {
	rows, err := m.load(ctx, c)
	if err != nil {
		m.logger.WithFields(log.Fields{"collection": c, "error": err.Error()}).Warn("mirror read failed")
		return []wire.Row{}
	}
	return rows
}

// load reads the snapshot of c. Missing and malformed snapshots load as
// empty; any other store error is returned wrapped in ErrRead.
func (m *Mirror) load(ctx context.Context, c domain.Collection) ([]wire.Row, error) {
	data, err := m.store.Get(ctx, Key(c))
	if errors.Is(err, kv.ErrNotFound) {
		return []wire.Row{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRead, c, err)
	}
	rows, err := wire.DecodeRows(data)
	if err != nil {
		m.logger.WithFields(log.Fields{"collection": c, "error": err.Error()}).Debug("mirror snapshot malformed")
		return []wire.Row{}, nil
	}
	return rows, nil
}

// Set replaces the snapshot of c with rows.
func (m *Mirror) Set(ctx context.Context, c domain.Collection, rows []wire.Row) error {
	lock := m.lock(c)
	lock.Lock()
	defer lock.Unlock()
	return m.set(ctx, c, rows)
}

// Update runs a read-modify-write cycle on the snapshot of c. Cycles on the
// same collection are serialized; fn sees the snapshot left by the previous
// cycle. An unreadable snapshot fails the cycle with ErrRead before fn is
// called. Returning an error from fn leaves the snapshot unchanged.
func (m *Mirror) Update(ctx context.Context, c domain.Collection, fn func([]wire.Row) ([]wire.Row, error)) error {
	lock := m.lock(c)
	lock.Lock()
	defer lock.Unlock()

	current, err := m.load(ctx, c)
	if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	return m.set(ctx, c, next)
}

func (m *Mirror) set(ctx context.Context, c domain.Collection, rows []wire.Row) error {
	data, err := wire.EncodeRows(rows)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrWrite, c, err)
	}
	if err := m.store.Set(ctx, Key(c), data); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, c, err)
	}
	return nil
}

func (m *Mirror) lock(c domain.Collection) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[c]
	if !ok {
		l = &sync.Mutex{}
		m.locks[c] = l
	}
	return l
}
