// Package hub fans change events out to live subscribers. Producers are
// fully decoupled from consumers: delivery is a non-blocking enqueue onto a
// bounded per-subscriber queue, and a subscriber that cannot keep up is
// evicted rather than ever backpressuring a moderation transaction.
package hub

import (
	"comment-hub/domain/event"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const DefaultQueueSize = 256

type Hub struct {
	mu      sync.RWMutex
	subs    map[uuid.UUID]map[uuid.UUID]*Subscription // thread id -> subscription id
	queue   int
	log     *slog.Logger
	metrics *Metrics
}

func New(log *slog.Logger, queueSize int, metrics *Metrics) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{
		subs:    make(map[uuid.UUID]map[uuid.UUID]*Subscription),
		queue:   queueSize,
		log:     log,
		metrics: metrics,
	}
}

// Subscribe registers a consumer for one thread. The returned handle carries
// the delivery channel and the eviction side channel; it stays valid until
// Unsubscribe or eviction on overflow.
func (h *Hub) Subscribe(threadID uuid.UUID) *Subscription {
	sub := newSubscription(threadID, h.queue)

	h.mu.Lock()
	if _, ok := h.subs[threadID]; !ok {
		h.subs[threadID] = make(map[uuid.UUID]*Subscription)
	}
	h.subs[threadID][sub.ID] = sub
	h.mu.Unlock()

	h.metrics.Subscribers.Inc()
	return sub
}

// Unsubscribe is idempotent. Buffered events not yet consumed are released
// when the delivery channel closes.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	removed := h.remove(sub)
	h.mu.Unlock()
	if removed {
		sub.close()
		h.metrics.Subscribers.Dec()
	}
}

// Publish delivers to every current subscriber of the event's thread. It
// never blocks the publisher: a full queue evicts that subscriber while the
// others keep receiving. Channel closes only happen under the write lock, so
// enqueueing under the read lock can never hit a closed channel.
func (h *Hub) Publish(e event.ChangeEvent) {
	h.mu.RLock()
	var overflowed []*Subscription
	for _, sub := range h.subs[e.ThreadID()] {
		select {
		case sub.events <- e:
			h.metrics.Delivered.Inc()
		default:
			overflowed = append(overflowed, sub)
		}
	}
	h.mu.RUnlock()
	h.metrics.Published.Inc()

	for _, sub := range overflowed {
		h.evict(sub, e)
	}
}

func (h *Hub) SubscriberCount(threadID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[threadID])
}

// TotalSubscribers counts live subscriptions across every thread.
func (h *Hub) TotalSubscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, subs := range h.subs {
		total += len(subs)
	}
	return total
}

// evict drops a subscriber whose queue overflowed. The notice is delivered
// best-effort on the side channel; a full re-sync through the query view is
// the gateway's job on reconnect, not the hub's.
func (h *Hub) evict(sub *Subscription, e event.ChangeEvent) {
	h.mu.Lock()
	removed := h.remove(sub)
	h.mu.Unlock()
	if !removed {
		return
	}

	notice := OverflowNotice{
		SubscriptionID: sub.ID,
		ThreadID:       sub.Thread,
		MissedSeq:      e.Sequence(),
	}
	select {
	case sub.evicted <- notice:
	default:
	}
	sub.close()

	h.metrics.Subscribers.Dec()
	h.metrics.Evictions.Inc()
	h.log.Warn(fmt.Sprintf("Subscriber overflow, evicting %s", sub.ID),
		"thread_id", sub.Thread,
		"missed_seq", e.Sequence())
}

// remove expects h.mu held for writing.
func (h *Hub) remove(sub *Subscription) bool {
	members, ok := h.subs[sub.Thread]
	if !ok {
		return false
	}
	if _, ok := members[sub.ID]; !ok {
		return false
	}
	delete(members, sub.ID)
	if len(members) == 0 {
		delete(h.subs, sub.Thread)
	}
	return true
}
