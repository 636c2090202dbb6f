package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jagawarga/jagawarga/internal/pkg/ws"
)

var (
	// ErrModerationInFlight means a false-report call is already
	// outstanding; further submissions are disabled until it completes.
	ErrModerationInFlight = errors.New("a false report is already being processed")
	// ErrNotLive means the inbox has not been started.
	ErrNotLive = errors.New("case inbox is not live")
)

// EventChannel is the duplex connection surface the inbox polls over.
type EventChannel interface {
	Connect(ctx context.Context) error
	On(topic string, handler ws.Handler)
	Request(ctx context.Context, topic string, payload interface{}) (json.RawMessage, error)
	Disconnect()
	State() ws.State
}

// Moderator performs the false-report moderation call. Never auto-retried:
// the backend does not guarantee idempotency for it.
type Moderator interface {
	UpdateCaseActive(ctx context.Context, sharedID string, active bool) error
}

// Ticker abstracts the polling timer so tests can drive virtual time.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory builds the polling timer for a given period.
type TickerFactory func(d time.Duration) Ticker

type systemTicker struct {
	t *time.Ticker
}

func (s systemTicker) C() <-chan time.Time { return s.t.C }
func (s systemTicker) Stop()               { s.t.Stop() }

// SystemTicker is the TickerFactory backed by the wall clock.
func SystemTicker(d time.Duration) Ticker {
	return systemTicker{t: time.NewTicker(d)}
}
