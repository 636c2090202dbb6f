package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jagawarga/jagawarga/internal/pkg/constants"
	"github.com/jagawarga/jagawarga/internal/pkg/location"
	"github.com/jagawarga/jagawarga/internal/pkg/logger"
	"github.com/jagawarga/jagawarga/internal/pkg/models"
	"github.com/jagawarga/jagawarga/internal/utils"
	"github.com/jagawarga/jagawarga/services/report"
)

// Reporter owns the reporting state machine: Idle -> Reporting -> Idle on
// every outcome, with re-entrant submits dropped while one is in flight.
type Reporter struct {
	session       models.Session
	provider      location.Provider
	gw            report.Gateway
	events        report.EventPublisher
	watchInterval time.Duration

	mu         sync.Mutex
	reporting  bool
	lastResult *models.ProximityResult

	fixMu   sync.RWMutex
	lastFix *models.Coordinate

	sub *location.Subscription
	wg  sync.WaitGroup
}

// NewReporter creates a proximity reporter for the given session.
func NewReporter(
	session models.Session,
	provider location.Provider,
	gw report.Gateway,
	events report.EventPublisher,
	watchInterval time.Duration,
) *Reporter {
	return &Reporter{
		session:       session,
		provider:      provider,
		gw:            gw,
		events:        events,
		watchInterval: watchInterval,
	}
}

// Start resolves an initial fix, registers the starting position with the
// backend and begins continuous tracking. A permission refusal is terminal:
// it is surfaced once and tracking stays off for the session.
func (r *Reporter) Start(ctx context.Context) error {
	coord, err := r.provider.Current(ctx)
	switch {
	case errors.Is(err, location.ErrPermissionDenied):
		logger.Error("Location permission denied, tracking disabled",
			logger.String("user_id", r.session.UserID))
		return err
	case err != nil:
		// Transient; the watch below will deliver the first usable fix.
		logger.Warn("No initial location fix", logger.Err(err))
	default:
		r.setFix(coord)
		if err := r.gw.SaveUser(ctx, models.NewLocationReport(r.session, coord)); err != nil {
			logger.Warn("Failed to save initial location", logger.Err(err))
		}
	}

	sub, err := r.provider.Watch(ctx, r.watchInterval)
	if err != nil {
		return err
	}
	r.sub = sub

	r.wg.Add(1)
	go r.trackLoop(sub)
	return nil
}

// Stop ends continuous tracking. Tracking holds a foreground resource on the
// provider, so this must run on teardown. Safe to call more than once.
func (r *Reporter) Stop() {
	if r.sub == nil {
		return
	}
	r.sub.Stop()
	r.wg.Wait()
}

func (r *Reporter) trackLoop(sub *location.Subscription) {
	defer r.wg.Done()

	for fix := range sub.Fixes() {
		r.setFix(fix)

		event := models.LocationEvent{
			UserID:    r.session.UserID,
			Username:  r.session.Username,
			Latitude:  fix.Latitude,
			Longitude: fix.Longitude,
			Geohash:   utils.EncodeLocation(fix, utils.GeohashPrecision),
			Timestamp: time.Now().UnixMilli(),
		}
		if err := r.events.Emit(constants.TopicSendLocation, event); err != nil {
			logger.Warn("Failed to publish location event", logger.Err(err))
		}
	}
}

// Submit runs one report: it sends the latest fix to the backend and returns
// who is nearby, with the caller's own entry removed. While a report is in
// flight further submits are no-ops. The in-flight guard is released on
// every exit path.
func (r *Reporter) Submit(ctx context.Context) (*models.ProximityResult, error) {
	r.mu.Lock()
	if r.reporting {
		r.mu.Unlock()
		logger.Debug("Report already in flight, ignoring submit",
			logger.String("user_id", r.session.UserID))
		return nil, report.ErrReportInFlight
	}
	r.reporting = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.reporting = false
		r.mu.Unlock()
	}()

	fix, ok := r.LastFix()
	if !ok {
		logger.Info("Location not available yet, skipping report",
			logger.String("user_id", r.session.UserID))
		return nil, report.ErrNoLocation
	}

	result, err := r.gw.GetUsersWithinRadius(ctx, models.NewLocationReport(r.session, fix))
	if err != nil {
		if errors.Is(err, report.ErrNoPeersInRange) {
			logger.Info("No volunteers within radius",
				logger.String("user_id", r.session.UserID),
				logger.String("geohash", utils.EncodeLocation(fix, utils.GeohashPrecision)))
			return nil, err
		}
		logger.Error("Report submission failed", logger.Err(err))
		return nil, err
	}

	filtered := result.ExcludeUser(r.session.UserID)

	r.mu.Lock()
	r.lastResult = filtered
	r.mu.Unlock()

	logger.Info("Report submitted",
		logger.String("user_id", r.session.UserID),
		logger.Int("peers_within_radius", len(filtered.UsersWithinRadius)))
	return filtered, nil
}

// LastResult returns the most recent radius query result, if any.
func (r *Reporter) LastResult() *models.ProximityResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastResult
}

// LastFix returns the most recent resolved coordinate.
func (r *Reporter) LastFix() (models.Coordinate, bool) {
	r.fixMu.RLock()
	defer r.fixMu.RUnlock()
	if r.lastFix == nil {
		return models.Coordinate{}, false
	}
	return *r.lastFix, true
}

func (r *Reporter) setFix(coord models.Coordinate) {
	r.fixMu.Lock()
	defer r.fixMu.Unlock()
	r.lastFix = &coord
}
