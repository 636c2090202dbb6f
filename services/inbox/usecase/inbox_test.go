package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jagawarga/jagawarga/internal/pkg/constants"
	"github.com/jagawarga/jagawarga/internal/pkg/models"
	"github.com/jagawarga/jagawarga/internal/pkg/ws"
	"github.com/jagawarga/jagawarga/services/inbox"
)

type fakeChannel struct {
	mu             sync.Mutex
	connected      bool
	connectErr     error
	disconnects    int
	requests       int
	handlers       map[string]ws.Handler
	reply          func(payload interface{}) (json.RawMessage, error)
	requestStarted chan struct{}
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: make(map[string]ws.Handler)}
}

func (f *fakeChannel) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeChannel) On(topic string, handler ws.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
}

func (f *fakeChannel) Request(ctx context.Context, topic string, payload interface{}) (json.RawMessage, error) {
	f.mu.Lock()
	f.requests++
	reply := f.reply
	started := f.requestStarted
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if reply == nil {
		return json.RawMessage(`{"cases":[]}`), nil
	}
	return reply(payload)
}

func (f *fakeChannel) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.connected = false
}

func (f *fakeChannel) State() ws.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connected {
		return ws.StateConnected
	}
	return ws.StateDisconnected
}

func (f *fakeChannel) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func (f *fakeChannel) push(t *testing.T, topic string, data json.RawMessage) {
	t.Helper()
	f.mu.Lock()
	h := f.handlers[topic]
	f.mu.Unlock()
	require.NotNil(t, h, "no handler registered for %s", topic)
	h(data)
}

type fakeModerator struct {
	mu      sync.Mutex
	calls   int
	err     error
	release chan struct{}
}

func (f *fakeModerator) UpdateCaseActive(ctx context.Context, sharedID string, active bool) error {
	f.mu.Lock()
	f.calls++
	release := f.release
	err := f.err
	f.mu.Unlock()

	if release != nil {
		<-release
	}
	return err
}

type fakeSink struct {
	mu   sync.Mutex
	sent []models.Notification
	err  error
}

func (f *fakeSink) Schedule(ctx context.Context, n models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return f.err
}

func (f *fakeSink) notifications() []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Notification, len(f.sent))
	copy(out, f.sent)
	return out
}

type fakeTicker struct {
	ch chan time.Time
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               {}

// silentTicker never ticks, so every fetch beyond the initial one must have
// been forced explicitly.
func silentTickerFactory(ticker *fakeTicker) inbox.TickerFactory {
	return func(d time.Duration) inbox.Ticker { return ticker }
}

func testSession() models.Session {
	return models.Session{UserID: "volunteer-1", Username: "budi"}
}

func batchJSON(t *testing.T, requestID string, cases ...models.Case) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(models.CaseBatch{RequestID: requestID, Cases: cases})
	require.NoError(t, err)
	return data
}

func newTestInbox(ch *fakeChannel, mod *fakeModerator, sink *fakeSink, ticker *fakeTicker) *Inbox {
	return NewInbox(testSession(), ch, mod, sink, silentTickerFactory(ticker), time.Second)
}

func TestInbox_StartConnectsAndFetches(t *testing.T) {
	ch := newFakeChannel()
	ch.reply = func(interface{}) (json.RawMessage, error) {
		return json.Marshal(models.CaseBatch{
			RequestID: "volunteer-1",
			Cases:     []models.Case{activeCase("c1", 100)},
		})
	}
	sink := &fakeSink{}
	in := newTestInbox(ch, &fakeModerator{}, sink, &fakeTicker{ch: make(chan time.Time)})

	require.NoError(t, in.Start(context.Background()))
	defer in.Stop()

	require.Eventually(t, func() bool {
		return len(sink.notifications()) == 1
	}, time.Second, 5*time.Millisecond)

	got := sink.notifications()[0]
	assert.Equal(t, "New Case", got.Title)
	assert.Contains(t, got.Body, "volunteer-c1")

	cases := in.Cases()
	require.Len(t, cases, 1)
	assert.Equal(t, "c1", cases[0].SharedID)
}

func TestInbox_StartConnectFailure(t *testing.T) {
	ch := newFakeChannel()
	ch.connectErr = errors.New("dial refused")
	in := newTestInbox(ch, &fakeModerator{}, &fakeSink{}, &fakeTicker{ch: make(chan time.Time)})

	err := in.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, ch.requestCount())
}

func TestInbox_TimerDrivesFetches(t *testing.T) {
	ch := newFakeChannel()
	ticks := make(chan time.Time)
	in := newTestInbox(ch, &fakeModerator{}, &fakeSink{}, &fakeTicker{ch: ticks})

	require.NoError(t, in.Start(context.Background()))
	defer in.Stop()

	require.Eventually(t, func() bool {
		return ch.requestCount() == 1
	}, time.Second, 5*time.Millisecond)

	ticks <- time.Now()
	require.Eventually(t, func() bool {
		return ch.requestCount() == 2
	}, time.Second, 5*time.Millisecond)
}

func TestInbox_RepeatedBatchNotifiesOnce(t *testing.T) {
	ch := newFakeChannel()
	ch.reply = func(interface{}) (json.RawMessage, error) {
		return json.Marshal(models.CaseBatch{
			RequestID: "volunteer-1",
			Cases:     []models.Case{activeCase("c1", 100), activeCase("c2", 200)},
		})
	}
	sink := &fakeSink{}
	ticks := make(chan time.Time)
	in := newTestInbox(ch, &fakeModerator{}, sink, &fakeTicker{ch: ticks})

	require.NoError(t, in.Start(context.Background()))
	defer in.Stop()

	require.Eventually(t, func() bool {
		return ch.requestCount() == 1
	}, time.Second, 5*time.Millisecond)

	ticks <- time.Now()
	require.Eventually(t, func() bool {
		return ch.requestCount() == 2
	}, time.Second, 5*time.Millisecond)

	// Two new cases in one batch surface a single alert, and the second
	// identical poll surfaces none.
	assert.Len(t, sink.notifications(), 1)
	assert.Contains(t, sink.notifications()[0].Body, "volunteer-c2")
}

func TestInbox_FalseReportForcesSingleRefresh(t *testing.T) {
	ch := newFakeChannel()
	mod := &fakeModerator{}
	in := newTestInbox(ch, mod, &fakeSink{}, &fakeTicker{ch: make(chan time.Time)})

	require.NoError(t, in.Start(context.Background()))
	defer in.Stop()

	require.Eventually(t, func() bool {
		return ch.requestCount() == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, in.FalseReport(context.Background(), "c1"))
	assert.Equal(t, 1, mod.calls)

	// The ticker never fires, so the extra fetch can only be the forced one.
	require.Eventually(t, func() bool {
		return ch.requestCount() == 2
	}, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, ch.requestCount())
}

func TestInbox_FalseReportFailureStillRefreshes(t *testing.T) {
	ch := newFakeChannel()
	mod := &fakeModerator{err: errors.New("backend down")}
	in := newTestInbox(ch, mod, &fakeSink{}, &fakeTicker{ch: make(chan time.Time)})

	require.NoError(t, in.Start(context.Background()))
	defer in.Stop()

	require.Eventually(t, func() bool {
		return ch.requestCount() == 1
	}, time.Second, 5*time.Millisecond)

	err := in.FalseReport(context.Background(), "c1")
	require.Error(t, err)
	assert.Equal(t, 1, mod.calls)

	require.Eventually(t, func() bool {
		return ch.requestCount() == 2
	}, time.Second, 5*time.Millisecond)
}

func TestInbox_FalseReportWhileModeratingRejected(t *testing.T) {
	ch := newFakeChannel()
	mod := &fakeModerator{release: make(chan struct{})}
	in := newTestInbox(ch, mod, &fakeSink{}, &fakeTicker{ch: make(chan time.Time)})

	require.NoError(t, in.Start(context.Background()))
	defer in.Stop()

	first := make(chan error, 1)
	go func() {
		first <- in.FalseReport(context.Background(), "c1")
	}()

	require.Eventually(t, func() bool {
		mod.mu.Lock()
		defer mod.mu.Unlock()
		return mod.calls == 1
	}, time.Second, 5*time.Millisecond)

	err := in.FalseReport(context.Background(), "c2")
	require.ErrorIs(t, err, inbox.ErrModerationInFlight)

	close(mod.release)
	require.NoError(t, <-first)
	assert.Equal(t, 1, mod.calls)
}

func TestInbox_FalseReportBeforeStart(t *testing.T) {
	in := newTestInbox(newFakeChannel(), &fakeModerator{}, &fakeSink{}, &fakeTicker{ch: make(chan time.Time)})

	err := in.FalseReport(context.Background(), "c1")
	require.ErrorIs(t, err, inbox.ErrNotLive)
}

func TestInbox_StopIdempotentDisconnectsOnce(t *testing.T) {
	ch := newFakeChannel()
	in := newTestInbox(ch, &fakeModerator{}, &fakeSink{}, &fakeTicker{ch: make(chan time.Time)})

	require.NoError(t, in.Start(context.Background()))

	in.Stop()
	in.Stop()
	in.Stop()

	assert.Equal(t, 1, ch.disconnects)
}

func TestInbox_PushForOtherRequesterIgnored(t *testing.T) {
	ch := newFakeChannel()
	sink := &fakeSink{}
	in := newTestInbox(ch, &fakeModerator{}, sink, &fakeTicker{ch: make(chan time.Time)})

	require.NoError(t, in.Start(context.Background()))
	defer in.Stop()

	require.Eventually(t, func() bool {
		return ch.requestCount() == 1
	}, time.Second, 5*time.Millisecond)

	ch.push(t, constants.TopicGetLocation, batchJSON(t, "someone-else", activeCase("c9", 900)))

	assert.Empty(t, sink.notifications())
	assert.Empty(t, in.Cases())
}

func TestInbox_PushForOwnRequesterAccepted(t *testing.T) {
	ch := newFakeChannel()
	sink := &fakeSink{}
	in := newTestInbox(ch, &fakeModerator{}, sink, &fakeTicker{ch: make(chan time.Time)})

	require.NoError(t, in.Start(context.Background()))
	defer in.Stop()

	ch.push(t, constants.TopicGetLocation, batchJSON(t, "volunteer-1", activeCase("c3", 300)))

	require.Eventually(t, func() bool {
		return len(sink.notifications()) == 1
	}, time.Second, 5*time.Millisecond)
	require.Len(t, in.Cases(), 1)
	assert.Equal(t, "c3", in.Cases()[0].SharedID)
}

func TestInbox_StaleBatchAfterStopDiscarded(t *testing.T) {
	ch := newFakeChannel()
	sink := &fakeSink{}
	in := newTestInbox(ch, &fakeModerator{}, sink, &fakeTicker{ch: make(chan time.Time)})

	require.NoError(t, in.Start(context.Background()))
	in.Stop()

	// The handler reference may still be held by a transport goroutine; a
	// late delivery must not touch disposed state or notify.
	ch.push(t, constants.TopicGetLocation, batchJSON(t, "volunteer-1", activeCase("c4", 400)))

	assert.Empty(t, sink.notifications())
	assert.Empty(t, in.Cases())
}

func TestInbox_CasesNewestFirst(t *testing.T) {
	ch := newFakeChannel()
	ch.reply = func(interface{}) (json.RawMessage, error) {
		return json.Marshal(models.CaseBatch{
			RequestID: "volunteer-1",
			Cases: []models.Case{
				activeCase("old", 100),
				activeCase("mid", 200),
				activeCase("new", 300),
			},
		})
	}
	in := newTestInbox(ch, &fakeModerator{}, &fakeSink{}, &fakeTicker{ch: make(chan time.Time)})

	require.NoError(t, in.Start(context.Background()))
	defer in.Stop()

	require.Eventually(t, func() bool {
		return len(in.Cases()) == 3
	}, time.Second, 5*time.Millisecond)

	cases := in.Cases()
	assert.Equal(t, "new", cases[0].SharedID)
	assert.Equal(t, "mid", cases[1].SharedID)
	assert.Equal(t, "old", cases[2].SharedID)
}

func TestInbox_BareArrayBatchAccepted(t *testing.T) {
	ch := newFakeChannel()
	sink := &fakeSink{}
	in := newTestInbox(ch, &fakeModerator{}, sink, &fakeTicker{ch: make(chan time.Time)})

	require.NoError(t, in.Start(context.Background()))
	defer in.Stop()

	raw, err := json.Marshal([]models.Case{activeCase("c7", 700)})
	require.NoError(t, err)
	ch.push(t, constants.TopicGetLocation, raw)

	require.Eventually(t, func() bool {
		return len(sink.notifications()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestInbox_SinkFailureDoesNotStopPolling(t *testing.T) {
	ch := newFakeChannel()
	ch.reply = func(interface{}) (json.RawMessage, error) {
		return json.Marshal(models.CaseBatch{
			RequestID: "volunteer-1",
			Cases:     []models.Case{activeCase("c1", 100)},
		})
	}
	sink := &fakeSink{err: errors.New("notifier offline")}
	ticks := make(chan time.Time)
	in := newTestInbox(ch, &fakeModerator{}, sink, &fakeTicker{ch: ticks})

	require.NoError(t, in.Start(context.Background()))
	defer in.Stop()

	require.Eventually(t, func() bool {
		return ch.requestCount() == 1
	}, time.Second, 5*time.Millisecond)

	ticks <- time.Now()
	require.Eventually(t, func() bool {
		return ch.requestCount() == 2
	}, time.Second, 5*time.Millisecond)
}
