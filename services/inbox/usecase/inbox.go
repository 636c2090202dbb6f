package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jagawarga/jagawarga/internal/pkg/constants"
	"github.com/jagawarga/jagawarga/internal/pkg/logger"
	"github.com/jagawarga/jagawarga/internal/pkg/models"
	"github.com/jagawarga/jagawarga/internal/pkg/notify"
	"github.com/jagawarga/jagawarga/services/inbox"
)

// Inbox maintains the live feed of incoming cases for one volunteer. It owns
// the event channel lifecycle: connect on Start, poll the shared topic on a
// timer, deduplicate each batch and surface new cases as local
// notifications, and disconnect exactly once on Stop.
type Inbox struct {
	session      models.Session
	events       inbox.EventChannel
	moderator    inbox.Moderator
	sink         notify.Sink
	newTicker    inbox.TickerFactory
	pollInterval time.Duration

	mu         sync.Mutex
	state      models.InboxState
	window     []models.Case
	fetching   bool
	moderating bool
	started    bool

	alive    atomic.Bool
	stop     chan struct{}
	kick     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewInbox creates a case inbox for the given session.
func NewInbox(
	session models.Session,
	events inbox.EventChannel,
	moderator inbox.Moderator,
	sink notify.Sink,
	newTicker inbox.TickerFactory,
	pollInterval time.Duration,
) *Inbox {
	return &Inbox{
		session:      session,
		events:       events,
		moderator:    moderator,
		sink:         sink,
		newTicker:    newTicker,
		pollInterval: pollInterval,
		state:        models.NewInboxState(),
		stop:         make(chan struct{}),
		kick:         make(chan struct{}, 1),
	}
}

// Start connects the event channel and begins polling: Closed -> Connecting
// -> Live. Unsolicited pushes on the case topic are accepted for this
// session's requester id only.
func (in *Inbox) Start(ctx context.Context) error {
	in.mu.Lock()
	if in.started {
		in.mu.Unlock()
		return nil
	}
	in.started = true
	in.mu.Unlock()

	if err := in.events.Connect(ctx); err != nil {
		in.mu.Lock()
		in.started = false
		in.mu.Unlock()
		return fmt.Errorf("failed to open case inbox: %w", err)
	}

	in.alive.Store(true)
	in.events.On(constants.TopicGetLocation, in.handlePush)

	in.wg.Add(1)
	go in.pollLoop(ctx)

	logger.Info("Case inbox live",
		logger.String("user_id", in.session.UserID),
		logger.Duration("poll_interval", in.pollInterval))
	return nil
}

// Stop tears the inbox down: the timer stops and the channel is
// disconnected exactly once. Safe to call more than once.
func (in *Inbox) Stop() {
	in.stopOnce.Do(func() {
		in.mu.Lock()
		started := in.started
		in.mu.Unlock()

		in.alive.Store(false)
		close(in.stop)
		if started {
			in.wg.Wait()
			in.events.Disconnect()
		}
		logger.Info("Case inbox stopped", logger.String("user_id", in.session.UserID))
	})
}

// Cases returns the current display window, newest first.
func (in *Inbox) Cases() []models.Case {
	in.mu.Lock()
	defer in.mu.Unlock()

	out := make([]models.Case, len(in.window))
	for i, c := range in.window {
		out[len(in.window)-1-i] = c
	}
	return out
}

// FalseReport flags a case as no longer active. While the call is
// outstanding further false reports are rejected; the polling timer keeps
// running. Completion, success or failure, forces one immediate fetch so
// the deactivated case disappears promptly. The moderation call itself is
// never retried automatically.
func (in *Inbox) FalseReport(ctx context.Context, sharedID string) error {
	in.mu.Lock()
	if !in.started {
		in.mu.Unlock()
		return inbox.ErrNotLive
	}
	if in.moderating {
		in.mu.Unlock()
		return inbox.ErrModerationInFlight
	}
	in.moderating = true
	in.mu.Unlock()

	defer func() {
		in.mu.Lock()
		in.moderating = false
		in.mu.Unlock()

		// Reconcile promptly instead of waiting for the next tick.
		select {
		case in.kick <- struct{}{}:
		default:
		}
	}()

	err := in.moderator.UpdateCaseActive(ctx, sharedID, false)
	if err != nil {
		// Local state is not rolled back; the forced fetch reconciles.
		logger.Error("False report failed",
			logger.String("shared_id", sharedID),
			logger.Err(err))
		return err
	}

	logger.Info("Case flagged as false report", logger.String("shared_id", sharedID))
	return nil
}

func (in *Inbox) pollLoop(ctx context.Context) {
	defer in.wg.Done()

	ticker := in.newTicker(in.pollInterval)
	defer ticker.Stop()

	in.fetch(ctx)

	for {
		// A moderation-forced refresh is served before any pending tick.
		select {
		case <-in.stop:
			return
		case <-in.kick:
			in.fetch(ctx)
			continue
		default:
		}

		select {
		case <-in.stop:
			return
		case <-in.kick:
			in.fetch(ctx)
		case <-ticker.C():
			in.fetch(ctx)
			// A tick that fired while that fetch was running would overlap
			// it; drop it rather than queue it.
			select {
			case <-ticker.C():
			default:
			}
		}
	}
}

// fetch issues one "give me cases for my id" request and ingests the reply.
func (in *Inbox) fetch(ctx context.Context) {
	in.mu.Lock()
	if in.fetching {
		in.mu.Unlock()
		logger.Debug("Case fetch already in flight, skipping")
		return
	}
	in.fetching = true
	in.mu.Unlock()

	defer func() {
		in.mu.Lock()
		in.fetching = false
		in.mu.Unlock()
	}()

	data, err := in.events.Request(ctx, constants.TopicGetLocation, models.CaseQuery{RequestID: in.session.UserID})
	if err != nil {
		logger.Warn("Case fetch failed", logger.Err(err))
		return
	}

	batch, err := parseBatch(data)
	if err != nil {
		logger.Warn("Dropping malformed case batch", logger.Err(err))
		return
	}
	in.accept(ctx, batch)
}

// handlePush receives unsolicited batches published on the shared topic.
func (in *Inbox) handlePush(data json.RawMessage) {
	batch, err := parseBatch(data)
	if err != nil {
		logger.Debug("Ignoring malformed push on case topic", logger.Err(err))
		return
	}
	in.accept(context.Background(), batch)
}

// accept filters cross-talk and hands the batch to the deduper. Anything
// arriving after teardown is discarded rather than written into disposed
// state.
func (in *Inbox) accept(ctx context.Context, batch models.CaseBatch) {
	if batch.RequestID != "" && batch.RequestID != in.session.UserID {
		logger.Debug("Ignoring case batch for another requester",
			logger.String("requester", batch.RequestID))
		return
	}
	if !in.alive.Load() {
		logger.Debug("Discarding case batch after teardown")
		return
	}

	in.mu.Lock()
	d := Decide(batch.Cases, in.state)
	in.state = d.State
	in.window = d.Window
	in.mu.Unlock()

	if d.ToNotify == nil {
		return
	}

	n := models.Notification{
		Title: "New Case",
		Body:  fmt.Sprintf("New notification: %s", d.ToNotify.SharedUsername),
	}
	// Fire-and-forget: a failed schedule never blocks the next tick.
	if err := in.sink.Schedule(ctx, n); err != nil {
		logger.Warn("Failed to schedule notification", logger.Err(err))
	}
}

// parseBatch accepts either the envelope form or a bare case array, which
// older backend revisions still emit.
func parseBatch(data json.RawMessage) (models.CaseBatch, error) {
	var batch models.CaseBatch
	if err := json.Unmarshal(data, &batch); err == nil && batch.Cases != nil {
		return batch, nil
	}

	var cases []models.Case
	if err := json.Unmarshal(data, &cases); err != nil {
		return models.CaseBatch{}, fmt.Errorf("unrecognized case batch shape: %w", err)
	}
	return models.CaseBatch{Cases: cases}, nil
}
