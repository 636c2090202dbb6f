package report

import (
	"context"
	"errors"

	"github.com/jagawarga/jagawarga/internal/pkg/models"
)

var (
	// ErrNoPeersInRange is a valid empty outcome of a radius query, not a
	// failure: nobody is within the configured distance right now.
	ErrNoPeersInRange = errors.New("no volunteers within radius range")
	// ErrNoLocation means no coordinate has been resolved yet; a submit
	// before the first fix is a no-op.
	ErrNoLocation = errors.New("no location fix available yet")
	// ErrReportInFlight means a report is already being submitted.
	// Re-entrant submits are dropped, not queued.
	ErrReportInFlight = errors.New("a report is already in flight")
)

// Gateway is the HTTP client surface to the report backend.
type Gateway interface {
	// GetUsersWithinRadius submits a location and returns who is nearby.
	// Returns ErrNoPeersInRange when the radius is empty.
	GetUsersWithinRadius(ctx context.Context, report models.LocationReport) (*models.ProximityResult, error)
	// SaveUser registers the volunteer's starting position.
	SaveUser(ctx context.Context, report models.LocationReport) error
	// UpdateCaseActive flips a case's active flag. The backend call is not
	// guaranteed idempotent, so callers never auto-retry it.
	UpdateCaseActive(ctx context.Context, sharedID string, active bool) error
}

// EventPublisher publishes fire-and-forget events on the duplex channel.
type EventPublisher interface {
	Emit(topic string, payload interface{}) error
}
