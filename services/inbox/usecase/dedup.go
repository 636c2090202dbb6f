package usecase

import (
	"github.com/jagawarga/jagawarga/internal/pkg/constants"
	"github.com/jagawarga/jagawarga/internal/pkg/models"
)

// Decision is the outcome of processing one case batch.
type Decision struct {
	// ToNotify is the single case worth surfacing, or nil.
	ToNotify *models.Case
	// State is the dedup state after the batch.
	State models.InboxState
	// Window is the display window retained from the batch, arrival order.
	Window []models.Case
}

// Decide ingests an ordered case batch and decides whether it carries new
// information worth a notification. Pure: it never mutates its inputs and
// identical inputs yield identical outputs.
//
// Only the newest retained entry is ever the notification candidate, and it
// fires only when its report time differs from the one already surfaced.
// Two new cases landing in the same batch therefore produce one alert, for
// the newer one; repeated polls of an unchanged feed produce none.
func Decide(batch []models.Case, state models.InboxState) Decision {
	// Deactivated cases stop being surfaced entirely.
	active := make([]models.Case, 0, len(batch))
	for _, c := range batch {
		if c.IsActive {
			active = append(active, c)
		}
	}

	if len(active) > constants.DisplayWindow {
		active = active[len(active)-constants.DisplayWindow:]
	}

	next := state.Clone()
	for _, c := range active {
		next.KnownCaseIDs[c.SharedID] = struct{}{}
	}

	if len(active) == 0 {
		return Decision{State: next, Window: active}
	}

	candidate := active[len(active)-1]
	if candidate.LocationStartTime == state.LastSeenTimestamp {
		return Decision{State: next, Window: active}
	}
	if state.LastSeenTimestamp != 0 && candidate.LocationStartTime < state.LastSeenTimestamp {
		// The feed moved backwards; never re-alert for older material.
		return Decision{State: next, Window: active}
	}

	next.LastSeenTimestamp = candidate.LocationStartTime
	return Decision{ToNotify: &candidate, State: next, Window: active}
}
