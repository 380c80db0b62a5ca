// Package hub fans captured requests out to live viewers, keyed by endpoint.
package hub

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PipeOpsHQ/livehook/internal/metrics"
)

const (
	DefaultHeartbeat = 15 * time.Second
	DefaultQueueSize = 64
)

type Kind int

const (
	KindEvent Kind = iota
	KindHeartbeat
)

// Message is one item on a subscription queue. Data is the serialized record
// for KindEvent and empty for KindHeartbeat.
type Message struct {
	Kind Kind
	Data []byte
}

type Options struct {
	Heartbeat time.Duration
	QueueSize int
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// Hub is the registry of live subscriptions.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[string]*Subscription // endpointID -> subID -> sub
	closed bool

	heartbeat time.Duration
	queueSize int
	log       *zap.Logger
	metrics   *metrics.Metrics
}

func New(opts Options) *Hub {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Hub{
		subs:      make(map[string]map[string]*Subscription),
		heartbeat: opts.Heartbeat,
		queueSize: opts.QueueSize,
		log:       opts.Logger,
		metrics:   opts.Metrics,
	}
}

// Subscribe registers a viewer for endpointID and starts its heartbeat. The
// caller must Unsubscribe when the connection ends. After Close the returned
// subscription is already done.
func (h *Hub) Subscribe(endpointID string) *Subscription {
	sub := &Subscription{
		ID:         newSubscriptionID(),
		EndpointID: endpointID,
		queue:      make(chan Message, h.queueSize),
		done:       make(chan struct{}),
		hub:        h,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.once.Do(func() { close(sub.done) })
		return sub
	}
	set, ok := h.subs[endpointID]
	if !ok {
		set = make(map[string]*Subscription)
		h.subs[endpointID] = set
	}
	set[sub.ID] = sub
	h.mu.Unlock()

	h.metrics.SubscriberAdded()
	h.log.Debug("subscriber connected", zap.String("endpoint", endpointID), zap.String("subscription", sub.ID))

	go sub.heartbeatLoop(h.heartbeat)
	return sub
}

// Publish serializes v once and queues it for every subscriber of endpointID.
// It never blocks on a slow subscriber and returns the number of subscribers
// the event was queued for.
func (h *Hub) Publish(endpointID string, v any) (int, error) {
	targets := h.snapshot(endpointID)
	if len(targets) == 0 {
		return 0, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("encode event: %w", err)
	}

	msg := Message{Kind: KindEvent, Data: data}
	delivered := 0
	for _, sub := range targets {
		queued, dropped := sub.offer(msg)
		if dropped {
			h.metrics.ObserveDrop()
			h.log.Warn("subscriber queue full, dropped oldest event",
				zap.String("endpoint", endpointID), zap.String("subscription", sub.ID))
		}
		if queued {
			delivered++
		}
	}
	return delivered, nil
}

// Count returns the number of open subscriptions for endpointID.
func (h *Hub) Count(endpointID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[endpointID])
}

// Close releases every subscription. Later subscriptions are born closed.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*Subscription
	for _, set := range h.subs {
		for _, sub := range set {
			all = append(all, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range all {
		sub.Unsubscribe()
	}
}

func (h *Hub) snapshot(endpointID string) []*Subscription {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.subs[endpointID]
	out := make([]*Subscription, 0, len(set))
	for _, sub := range set {
		out = append(out, sub)
	}
	return out
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sub.EndpointID]
	if !ok {
		return
	}
	delete(set, sub.ID)
	if len(set) == 0 {
		delete(h.subs, sub.EndpointID)
	}
}

// Time-ordered so ids sort by connection time.
func newSubscriptionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
