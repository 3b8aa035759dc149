package broadcast

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/Vihanga22365/governance-analysis/pkg/domain"
	"github.com/Vihanga22365/governance-analysis/pkg/telemetry"
)

var errBrokenPipe = errors.New("broken pipe")

type fakeSubscriber struct {
	id       string
	frames   chan []byte
	failSend atomic.Bool
	failPing atomic.Bool
	sends    atomic.Int32
	closes   atomic.Int32
}

func newFakeSubscriber(id string) *fakeSubscriber {
	return &fakeSubscriber{id: id, frames: make(chan []byte, 64)}
}

func (f *fakeSubscriber) ID() string { return f.id }

func (f *fakeSubscriber) Send(frame []byte, _ time.Time) error {
	f.sends.Add(1)
	if f.failSend.Load() {
		return errBrokenPipe
	}
	f.frames <- frame
	return nil
}

func (f *fakeSubscriber) Ping(time.Time) error {
	if f.failPing.Load() {
		return errBrokenPipe
	}
	return nil
}

func (f *fakeSubscriber) Close() error {
	f.closes.Add(1)
	return nil
}

func (f *fakeSubscriber) next(t *testing.T) []byte {
	t.Helper()
	select {
	case frame := <-f.frames:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatalf("subscriber %s received nothing", f.id)
		return nil
	}
}

func startHub(t *testing.T, cfg Config, opts ...HubOption) (*Hub, *Bridge) {
	t.Helper()
	hub := NewHub(cfg, nil, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.Run(ctx) }()
	require.Eventually(t, hub.Ready, time.Second, time.Millisecond)
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
	})
	return hub, NewBridge(hub, nil, nil)
}

func testSnapshot(id string) domain.CleanSnapshot {
	return domain.CleanSnapshot{
		GovernanceID: id,
		Section:      "none",
		SubSection:   "none",
		Slots:        map[domain.SourceName]any{domain.SourceRiskDetails: map[string]any{"level": "low"}},
	}
}

// waitConnections blocks until the loop reports n members.
func waitConnections(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return hub.Stats(context.Background()).Connections == n
	}, 2*time.Second, time.Millisecond)
}

func TestScheduleBeforeStart(t *testing.T) {
	hub := NewHub(Config{}, nil)
	bridge := NewBridge(hub, nil, telemetry.NewMetrics())

	err := bridge.ScheduleBroadcast(testSnapshot("GOV0001"))

	assert.ErrorIs(t, err, ErrLoopNotReady)
	assert.ErrorIs(t, hub.Register(context.Background(), newFakeSubscriber("a")), ErrLoopNotReady)
	assert.Equal(t, Stats{}, hub.Stats(context.Background()))
}

func TestScheduleAfterStop(t *testing.T) {
	hub := NewHub(Config{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.Run(ctx) }()
	require.Eventually(t, hub.Ready, time.Second, time.Millisecond)

	sub := newFakeSubscriber("a")
	require.NoError(t, hub.Register(context.Background(), sub))
	waitConnections(t, hub, 1)

	cancel()
	<-hub.Done()

	assert.ErrorIs(t, NewBridge(hub, nil, nil).ScheduleBroadcast(testSnapshot("GOV0001")), ErrLoopNotReady)
	assert.Equal(t, int32(1), sub.closes.Load(), "shutdown closes members")
	assert.ErrorIs(t, hub.Run(context.Background()), ErrLoopNotReady)
}

func TestBroadcastReachesEveryMember(t *testing.T) {
	hub, bridge := startHub(t, Config{})
	a, b := newFakeSubscriber("a"), newFakeSubscriber("b")
	require.NoError(t, hub.Register(context.Background(), a))
	require.NoError(t, hub.Register(context.Background(), b))

	require.NoError(t, bridge.ScheduleBroadcast(testSnapshot("GOV0001")))

	want := `{"type":"governance_details_update","data":{"governance_id":"GOV0001","section":"none","sub_section":"none","risk_details":{"level":"low"}}}`
	assert.JSONEq(t, want, string(a.next(t)))
	assert.JSONEq(t, want, string(b.next(t)))
}

func TestChatHistoryMessage(t *testing.T) {
	hub, bridge := startHub(t, Config{})
	a := newFakeSubscriber("a")
	require.NoError(t, hub.Register(context.Background(), a))

	require.NoError(t, bridge.ScheduleChatHistory("GOV0001", []byte(`{"events":[1]}`)))

	assert.JSONEq(t, `{"type":"chat_history_update","data":{"events":[1]}}`, string(a.next(t)))
}

func TestFailedSubscriberRemovedExactlyOnce(t *testing.T) {
	hub, bridge := startHub(t, Config{})
	healthy, broken := newFakeSubscriber("healthy"), newFakeSubscriber("broken")
	broken.failSend.Store(true)
	require.NoError(t, hub.Register(context.Background(), healthy))
	require.NoError(t, hub.Register(context.Background(), broken))

	require.NoError(t, bridge.ScheduleBroadcast(testSnapshot("GOV0001")))
	healthy.next(t)
	waitConnections(t, hub, 1)

	require.NoError(t, bridge.ScheduleBroadcast(testSnapshot("GOV0002")))
	healthy.next(t)

	hub.Unregister("broken")
	waitConnections(t, hub, 1)

	assert.Equal(t, int32(1), broken.sends.Load(), "pruned subscriber is not reached again")
	assert.Equal(t, int32(1), broken.closes.Load())
}

func TestBroadcastTwiceIsTwoDeliveries(t *testing.T) {
	hub, bridge := startHub(t, Config{})
	a := newFakeSubscriber("a")
	require.NoError(t, hub.Register(context.Background(), a))

	snap := testSnapshot("GOV0001")
	require.NoError(t, bridge.ScheduleBroadcast(snap))
	require.NoError(t, bridge.ScheduleBroadcast(snap))

	first, second := a.next(t), a.next(t)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, hub.Stats(context.Background()).Connections)
}

func TestUnregisterIsIdempotent(t *testing.T) {
	hub, _ := startHub(t, Config{})
	a := newFakeSubscriber("a")
	require.NoError(t, hub.Register(context.Background(), a))
	waitConnections(t, hub, 1)

	hub.Unregister("a")
	hub.Unregister("a")
	hub.Unregister("missing")
	waitConnections(t, hub, 0)

	assert.Equal(t, int32(1), a.closes.Load())
}

func TestPingSweepPrunesDeadConnections(t *testing.T) {
	hub, _ := startHub(t, Config{PingInterval: 10 * time.Millisecond})
	alive, dead := newFakeSubscriber("alive"), newFakeSubscriber("dead")
	dead.failPing.Store(true)
	require.NoError(t, hub.Register(context.Background(), alive))
	require.NoError(t, hub.Register(context.Background(), dead))

	waitConnections(t, hub, 1)
	assert.Equal(t, int32(1), dead.closes.Load())
	assert.Zero(t, alive.closes.Load())
}

func TestQueueFull(t *testing.T) {
	hub := NewHub(Config{QueueSize: 1}, nil)
	// Mark ready without running the loop so the inbox is never drained.
	hub.ready.Store(true)
	bridge := NewBridge(hub, nil, nil)

	require.NoError(t, bridge.ScheduleBroadcast(testSnapshot("GOV0001")))
	assert.ErrorIs(t, bridge.ScheduleBroadcast(testSnapshot("GOV0002")), ErrQueueFull)
}

func TestConcurrentSchedulersNeverBlock(t *testing.T) {
	hub, bridge := startHub(t, Config{QueueSize: 8})
	a := newFakeSubscriber("a")
	a.frames = make(chan []byte, 1024)
	require.NoError(t, hub.Register(context.Background(), a))

	var wg sync.WaitGroup
	var accepted atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bridge.ScheduleBroadcast(testSnapshot("GOV0001")); err == nil {
				accepted.Add(1)
			} else {
				assert.ErrorIs(t, err, ErrQueueFull)
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return a.sends.Load() == accepted.Load() }, 2*time.Second, time.Millisecond)
}

func TestChurnProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		hub := NewHub(Config{}, nil)
		ctx, cancel := context.WithCancel(context.Background())
		go func() { _ = hub.Run(ctx) }()
		defer func() {
			cancel()
			<-hub.Done()
		}()
		for !hub.Ready() {
			time.Sleep(time.Millisecond)
		}
		bridge := NewBridge(hub, nil, nil)

		n := rapid.IntRange(1, 12).Draw(rt, "subscribers")
		subs := make([]*fakeSubscriber, n)
		broken := 0
		for i := range subs {
			subs[i] = newFakeSubscriber(string(rune('a' + i)))
			if rapid.Bool().Draw(rt, "broken") {
				subs[i].failSend.Store(true)
				broken++
			}
			require.NoError(rt, hub.Register(context.Background(), subs[i]))
		}

		rounds := rapid.IntRange(1, 4).Draw(rt, "rounds")
		for r := 0; r < rounds; r++ {
			require.NoError(rt, bridge.ScheduleBroadcast(testSnapshot("GOV0001")))
		}

		deadline := time.Now().Add(2 * time.Second)
		for hub.Stats(context.Background()).Connections != n-broken && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		for _, sub := range subs {
			if sub.failSend.Load() {
				assert.Equal(rt, int32(1), sub.sends.Load())
				assert.Equal(rt, int32(1), sub.closes.Load())
			}
		}
		assert.Equal(rt, n-broken, hub.Stats(context.Background()).Connections)
	})
}
