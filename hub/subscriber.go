package hub

import (
	"comment-hub/domain/event"
	"sync"

	"github.com/google/uuid"
)

// OverflowNotice tells an evicted consumer that it missed events and must
// re-sync through the query view before resubscribing.
type OverflowNotice struct {
	SubscriptionID uuid.UUID
	ThreadID       uuid.UUID
	MissedSeq      uint64 // sequence of the first event that could not be delivered
}

// Subscription is the handle returned by Subscribe. The consumer reads
// Events until it closes; a receive on Evicted means the queue overflowed
// and the subscription is already gone.
type Subscription struct {
	ID     uuid.UUID
	Thread uuid.UUID

	events  chan event.ChangeEvent
	evicted chan OverflowNotice
	once    sync.Once
}

func newSubscription(threadID uuid.UUID, queueSize int) *Subscription {
	return &Subscription{
		ID:      uuid.New(),
		Thread:  threadID,
		events:  make(chan event.ChangeEvent, queueSize),
		evicted: make(chan OverflowNotice, 1),
	}
}

// Events is the bounded delivery queue. It closes on unsubscribe or
// eviction; buffered events remain readable until drained.
func (s *Subscription) Events() <-chan event.ChangeEvent {
	return s.events
}

// Evicted receives at most one overflow notice, best-effort.
func (s *Subscription) Evicted() <-chan OverflowNotice {
	return s.evicted
}

func (s *Subscription) close() {
	s.once.Do(func() {
		close(s.events)
	})
}
