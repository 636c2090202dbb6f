package location

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jagawarga/jagawarga/internal/pkg/models"
)

var (
	// ErrPermissionDenied means location access was refused. Terminal for
	// this session's tracking; callers surface it once and stop.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrUnavailable means no fix could be produced right now. Transient;
	// callers may retry on the next user-initiated reload.
	ErrUnavailable = errors.New("location unavailable")
)

// Provider abstracts the device location source: one-shot reads and
// continuous tracking.
type Provider interface {
	// Current returns a position snapshot, or ErrPermissionDenied /
	// ErrUnavailable.
	Current(ctx context.Context) (models.Coordinate, error)
	// Watch starts continuous tracking at the given interval. The returned
	// subscription must be stopped on teardown; tracking holds resources
	// open until then.
	Watch(ctx context.Context, interval time.Duration) (*Subscription, error)
}

// Subscription is a handle on a continuous tracking stream.
type Subscription struct {
	fixes chan models.Coordinate
	stop  chan struct{}
	once  sync.Once
}

func newSubscription() *Subscription {
	return &Subscription{
		fixes: make(chan models.Coordinate, 1),
		stop:  make(chan struct{}),
	}
}

// Fixes delivers position updates until the subscription is stopped.
func (s *Subscription) Fixes() <-chan models.Coordinate {
	return s.fixes
}

// Stop ends tracking. Safe to call more than once.
func (s *Subscription) Stop() {
	s.once.Do(func() { close(s.stop) })
}
