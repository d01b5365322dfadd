package hub

import (
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"comment-hub/domain/event"
)

func newTestHub(queueSize int) *Hub {
	return New(slog.Default(), queueSize, NewMetrics(prometheus.NewRegistry()))
}

func testEvent(threadID uuid.UUID, seq uint64) event.ChangeEvent {
	return event.ThreadLockChanged{
		Meta: event.Meta{ID: uuid.New(), Seq: seq, Thread: threadID},
	}
}

func Test_Publish_RoutesByThreadInOrder(t *testing.T) {
	req := require.New(t)
	h := newTestHub(16)
	threadA, threadB := uuid.New(), uuid.New()

	subA := h.Subscribe(threadA)
	subB := h.Subscribe(threadB)
	defer h.Unsubscribe(subA)
	defer h.Unsubscribe(subB)

	for seq := uint64(1); seq <= 5; seq++ {
		h.Publish(testEvent(threadA, seq))
	}
	h.Publish(testEvent(threadB, 6))

	// Then A receives its five events in publication order
	for seq := uint64(1); seq <= 5; seq++ {
		evt := <-subA.Events()
		req.Equal(seq, evt.Sequence())
	}
	// And B only sees its own thread
	evt := <-subB.Events()
	req.Equal(uint64(6), evt.Sequence())
	req.Empty(subB.Events())
}

func Test_Publish_OverflowEvictsOnlySlowSubscriber(t *testing.T) {
	req := require.New(t)
	h := newTestHub(4)
	threadID := uuid.New()

	slow := h.Subscribe(threadID)
	fast := h.Subscribe(threadID)
	defer h.Unsubscribe(fast)

	// When publishing past the slow subscriber's queue capacity while the
	// fast one drains
	for seq := uint64(1); seq <= 10; seq++ {
		h.Publish(testEvent(threadID, seq))
		evt := <-fast.Events()
		req.Equal(seq, evt.Sequence())
	}

	// Then the slow subscriber was evicted with the first missed sequence
	notice := <-slow.Evicted()
	req.Equal(slow.ID, notice.SubscriptionID)
	req.Equal(threadID, notice.ThreadID)
	req.Equal(uint64(5), notice.MissedSeq)

	// Its buffered events stay readable until the closed channel drains
	for seq := uint64(1); seq <= 4; seq++ {
		evt, open := <-slow.Events()
		req.True(open)
		req.Equal(seq, evt.Sequence())
	}
	_, open := <-slow.Events()
	req.False(open)

	// And the fast subscriber is still registered
	req.Equal(1, h.SubscriberCount(threadID))
}

func Test_Unsubscribe_Idempotent(t *testing.T) {
	req := require.New(t)
	h := newTestHub(4)
	threadID := uuid.New()

	sub := h.Subscribe(threadID)
	req.Equal(1, h.SubscriberCount(threadID))

	h.Unsubscribe(sub)
	h.Unsubscribe(sub)
	h.Unsubscribe(nil)

	req.Equal(0, h.SubscriberCount(threadID))
	_, open := <-sub.Events()
	req.False(open)
}

func Test_Publish_NoSubscribersIsANoop(t *testing.T) {
	req := require.New(t)
	h := newTestHub(4)

	// Publishing into the void must not panic or leak
	h.Publish(testEvent(uuid.New(), 1))
	req.Equal(0, h.TotalSubscribers())
}

func Test_Metrics_TrackSubscribersAndEvictions(t *testing.T) {
	req := require.New(t)
	registry := prometheus.NewRegistry()
	h := New(slog.Default(), 2, NewMetrics(registry))
	threadID := uuid.New()

	sub := h.Subscribe(threadID)
	req.Equal(float64(1), testutil.ToFloat64(h.metrics.Subscribers))

	// Saturate the queue so the subscriber gets evicted
	for seq := uint64(1); seq <= 3; seq++ {
		h.Publish(testEvent(threadID, seq))
	}
	<-sub.Evicted()

	req.Equal(float64(0), testutil.ToFloat64(h.metrics.Subscribers))
	req.Equal(float64(1), testutil.ToFloat64(h.metrics.Evictions))
	req.Equal(float64(3), testutil.ToFloat64(h.metrics.Published))
}
