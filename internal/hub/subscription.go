package hub

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Subscription is one viewer's bounded queue. The connection goroutine that
// owns it is the only reader of Messages and the only writer to its sink.
type Subscription struct {
	ID         string
	EndpointID string

	queue chan Message
	done  chan struct{}
	once  sync.Once
	mu    sync.Mutex // serializes offers so drop-oldest is atomic
	hub   *Hub
}

// Messages is never closed; select on Done as well.
func (s *Subscription) Messages() <-chan Message {
	return s.queue
}

// Done is closed once the subscription has been released.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Unsubscribe removes the subscription from the hub and stops its heartbeat.
// Safe to call more than once and from any goroutine.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.remove(s)
		close(s.done)
		s.hub.metrics.SubscriberRemoved()
		s.hub.log.Debug("subscriber disconnected", zap.String("endpoint", s.EndpointID), zap.String("subscription", s.ID))
	})
}

// offer enqueues m without blocking. When the queue is full the oldest
// message is discarded to make room.
func (s *Subscription) offer(m Message) (queued, dropped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		return false, false
	default:
	}

	for {
		select {
		case s.queue <- m:
			return true, dropped
		default:
		}
		select {
		case <-s.queue:
			dropped = true
		default:
		}
	}
}

func (s *Subscription) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.offerHeartbeat()
		}
	}
}

// offerHeartbeat queues a heartbeat only into an empty queue. Pending
// messages already keep the connection alive, and a heartbeat must never
// push out an event.
func (s *Subscription) offerHeartbeat() {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		return
	default:
	}
	if len(s.queue) > 0 {
		return
	}
	select {
	case s.queue <- Message{Kind: KindHeartbeat}:
	default:
	}
}
