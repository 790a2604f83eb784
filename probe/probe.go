// Package probe decides at start-up whether the remote service is reachable.
package probe

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultTimeout bounds the single probe request.
const DefaultTimeout = 2500 * time.Millisecond

// Pinger is anything that can make one cheap round trip to the remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check reports whether p answers within timeout. Every failure, including
// a timeout or a panic in p, is reported as false.
func Check(ctx context.Context, p Pinger, timeout time.Duration) (ok bool) {
	if p == nil {
		return false
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Warn("connectivity probe panicked")
			ok = false
		}
	}()

	start := time.Now()
	if err := p.Ping(ctx); err != nil {
		log.WithFields(log.Fields{
			"error":   err,
			"elapsed": time.Since(start).String(),
		}).Info("remote service unreachable")
		return false
	}
	log.WithField("elapsed", time.Since(start).String()).Debug("remote service reachable")
	return true
}
