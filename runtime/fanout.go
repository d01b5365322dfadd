package runtime

import (
	"comment-hub/contract"
	"comment-hub/domain/event"
	"context"
	"log/slog"
	"time"
)

// FanoutWorker drains the engine's out-of-band feed and hands each event to
// the registered sinks (search index, stats projection). Best-effort: a slow
// sink is cut off by the per-sink timeout, a failing sink is logged and
// skipped, and neither ever reaches back into the moderation path.
type FanoutWorker struct {
	log         *slog.Logger
	feed        <-chan event.ChangeEvent
	sinks       []contract.EventSink
	sinkTimeout time.Duration
}

func NewFanoutWorker(log *slog.Logger, feed <-chan event.ChangeEvent,
	sinkTimeout time.Duration, sinks ...contract.EventSink) *FanoutWorker {
	return &FanoutWorker{log: log, feed: feed, sinks: sinks, sinkTimeout: sinkTimeout}
}

func (w *FanoutWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping fan-out")
			return nil
		case evt, ok := <-w.feed:
			if !ok {
				return nil
			}
			w.Fanout(ctx, evt)
		}
	}
}

// Fanout delivers one event to every sink sequentially, preserving the feed
// order each sink observes.
func (w *FanoutWorker) Fanout(ctx context.Context, evt event.ChangeEvent) {
	for _, sink := range w.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		if err := sink.Consume(sinkCtx, evt); err != nil {
			w.log.Warn("Sink failed to consume event",
				"kind", evt.Kind(),
				"seq", evt.Sequence(),
				"error", err)
		}
		cancel()
	}
}
