// Package mode holds the process-wide guest mode flag. The gateway reads it
// on every call and never writes it.
package mode

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"nexus-gateway/kv"
)

// GuestKey is the store key of the persisted flag.
const GuestKey = "nexus_guest_mode"

// Provider reports whether persistence is local only.
type Provider interface {
	IsGuest(ctx context.Context) bool
}

// Toggler is a Provider whose flag can be set explicitly.
type Toggler interface {
	Provider
	SetGuest(ctx context.Context, guest bool) error
}

// Stored persists the flag in a key/value store so it survives restarts.
type Stored struct {
	store  kv.Store
	logger *log.Logger
}

func NewStored(store kv.Store, logger *log.Logger) *Stored {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Stored{store: store, logger: logger}
}

// IsGuest reads the flag. A missing or unreadable flag means remote mode.
func (s *Stored) IsGuest(ctx context.Context) bool {
	data, err := s.store.Get(ctx, GuestKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.logger.WithError(err).Warn("guest mode flag unreadable, assuming remote mode")
		}
		return false
	}
	return string(data) == "true"
}

func (s *Stored) SetGuest(ctx context.Context, guest bool) error {
	return s.store.Set(ctx, GuestKey, []byte(strconv.FormatBool(guest)))
}

// Static is an in-memory flag.
type Static struct {
	guest atomic.Bool
}

func NewStatic(guest bool) *Static {
	s := &Static{}
	s.guest.Store(guest)
	return s
}

func (s *Static) IsGuest(context.Context) bool { return s.guest.Load() }

func (s *Static) SetGuest(_ context.Context, guest bool) error {
	s.guest.Store(guest)
	return nil
}
