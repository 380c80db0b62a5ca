package hub

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/PipeOpsHQ/livehook/internal/metrics"
)

func newTestHub(t *testing.T, opts Options) *Hub {
	t.Helper()
	opts.Logger = zaptest.NewLogger(t)
	h := New(opts)
	t.Cleanup(h.Close)
	return h
}

func receive(t *testing.T, sub *Subscription) Message {
	t.Helper()
	select {
	case m := <-sub.Messages():
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func assertEmpty(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case m := <-sub.Messages():
		t.Fatalf("unexpected message: %+v", m)
	default:
	}
}

func TestHub_PublishOnlyToMatchingEndpoint(t *testing.T) {
	h := newTestHub(t, Options{Heartbeat: time.Hour})

	a := h.Subscribe("hook1")
	b := h.Subscribe("hook2")
	defer a.Unsubscribe()
	defer b.Unsubscribe()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); h.Publish("hook1", map[string]int{"id": 1}) }()
	go func() { defer wg.Done(); h.Publish("hook2", map[string]int{"id": 2}) }()
	wg.Wait()

	m := receive(t, a)
	assert.Equal(t, KindEvent, m.Kind)
	assert.JSONEq(t, `{"id":1}`, string(m.Data))
	assertEmpty(t, a)

	m = receive(t, b)
	assert.JSONEq(t, `{"id":2}`, string(m.Data))
	assertEmpty(t, b)
}

func TestHub_PublishReachesEverySubscriber(t *testing.T) {
	h := newTestHub(t, Options{Heartbeat: time.Hour})

	subs := make([]*Subscription, 5)
	for i := range subs {
		subs[i] = h.Subscribe("hook1")
	}

	n, err := h.Publish("hook1", "x")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	for _, s := range subs {
		assert.Equal(t, `"x"`, string(receive(t, s).Data))
	}
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	h := newTestHub(t, Options{Heartbeat: time.Hour})

	sub := h.Subscribe("hook1")
	require.Equal(t, 1, h.Count("hook1"))

	sub.Unsubscribe()
	sub.Unsubscribe()

	assert.Equal(t, 0, h.Count("hook1"))
	n, err := h.Publish("hook1", "x")
	require.NoError(t, err)
	assert.Zero(t, n)
	assertEmpty(t, sub)

	select {
	case <-sub.Done():
	default:
		t.Fatal("done should be closed")
	}
}

func TestHub_OverflowDropsOldest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	h := newTestHub(t, Options{Heartbeat: time.Hour, QueueSize: 2, Metrics: m})

	sub := h.Subscribe("hook1")
	for i := 1; i <= 4; i++ {
		_, err := h.Publish("hook1", i)
		require.NoError(t, err)
	}

	assert.Equal(t, "3", string(receive(t, sub).Data))
	assert.Equal(t, "4", string(receive(t, sub).Data))
	assertEmpty(t, sub)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DroppedEvents))
}

func TestHub_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	h := newTestHub(t, Options{Heartbeat: time.Hour, QueueSize: 1})

	slow := h.Subscribe("hook1")
	fast := h.Subscribe("hook1")
	defer slow.Unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			h.Publish("hook1", i)
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Equal(t, "99", string(receive(t, fast).Data))
}

func TestHub_Heartbeat(t *testing.T) {
	h := newTestHub(t, Options{Heartbeat: 10 * time.Millisecond})

	sub := h.Subscribe("hook1")
	defer sub.Unsubscribe()

	assert.Equal(t, KindHeartbeat, receive(t, sub).Kind)
}

func TestHub_HeartbeatNeverEvictsEvents(t *testing.T) {
	h := newTestHub(t, Options{Heartbeat: 20 * time.Millisecond, QueueSize: 1})

	sub := h.Subscribe("hook1")
	defer sub.Unsubscribe()
	// Let the first heartbeat land, then replace it with an event.
	require.Equal(t, KindHeartbeat, receive(t, sub).Kind)
	_, err := h.Publish("hook1", "evt")
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	msg := receive(t, sub)
	assert.Equal(t, KindEvent, msg.Kind)
	assert.Equal(t, `"evt"`, string(msg.Data))
}

func TestHub_HeartbeatStopsAfterUnsubscribe(t *testing.T) {
	h := newTestHub(t, Options{Heartbeat: 5 * time.Millisecond})

	sub := h.Subscribe("hook1")
	sub.Unsubscribe()
	for len(sub.Messages()) > 0 {
		<-sub.Messages()
	}
	time.Sleep(30 * time.Millisecond)

	assertEmpty(t, sub)
}

func TestHub_CloseReleasesAll(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	h := New(Options{Heartbeat: time.Hour, Metrics: m})

	a := h.Subscribe("hook1")
	b := h.Subscribe("hook2")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Subscribers))

	h.Close()

	for _, s := range []*Subscription{a, b} {
		select {
		case <-s.Done():
		default:
			t.Fatal("subscription still open after Close")
		}
	}
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Subscribers))

	late := h.Subscribe("hook1")
	<-late.Done()
	assert.Equal(t, 0, h.Count("hook1"))
}

func TestHub_ConcurrentMembershipAndPublish(t *testing.T) {
	h := newTestHub(t, Options{Heartbeat: time.Millisecond, QueueSize: 4})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		endpoint := fmt.Sprintf("hook%d", i%3)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				sub := h.Subscribe(endpoint)
				h.Publish(endpoint, j)
				sub.Unsubscribe()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				h.Publish(endpoint, j)
			}
		}()
	}
	wg.Wait()

	for i := 0; i < 3; i++ {
		assert.Zero(t, h.Count(fmt.Sprintf("hook%d", i)))
	}
}
