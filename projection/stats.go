// Package projection builds read models from observed change events.
// It does not emit events and never touches the store.
package projection

import (
	"comment-hub/contract"
	"comment-hub/domain"
	"comment-hub/domain/event"
	"context"
	"sync"

	"github.com/google/uuid"
)

// Stats is the moderation dashboard counter set.
type Stats struct {
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Deleted  int `json:"deleted"`
	Total    int `json:"total"`
	Threads  int `json:"threads"`
}

// StatsProjection folds the event feed into live moderation counters.
// Eventually consistent with the store by design; the feed is best-effort.
type StatsProjection struct {
	mu       sync.RWMutex
	statuses map[uuid.UUID]domain.Status
	owner    map[uuid.UUID]uuid.UUID // comment -> thread
	threads  map[uuid.UUID]struct{}
}

var _ contract.EventSink = (*StatsProjection)(nil)

func NewStatsProjection() *StatsProjection {
	return &StatsProjection{
		statuses: make(map[uuid.UUID]domain.Status),
		owner:    make(map[uuid.UUID]uuid.UUID),
		threads:  make(map[uuid.UUID]struct{}),
	}
}

// Seed primes the counters from persisted state at boot, before any live
// events arrive.
func (p *StatsProjection) Seed(stored []contract.StoredThread) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, st := range stored {
		p.threads[st.Thread.ID] = struct{}{}
		for _, c := range st.Comments {
			p.statuses[c.ID] = c.Status
			p.owner[c.ID] = c.ThreadID
		}
	}
}

func (p *StatsProjection) Consume(_ context.Context, e event.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch evt := e.(type) {
	case event.ThreadCreated:
		p.threads[evt.ThreadID()] = struct{}{}
	case event.ThreadDeleted:
		delete(p.threads, evt.ThreadID())
		for id, threadID := range p.owner {
			if threadID == evt.ThreadID() {
				delete(p.owner, id)
				delete(p.statuses, id)
			}
		}
	case event.CommentAdded:
		p.threads[evt.ThreadID()] = struct{}{}
		p.statuses[evt.Comment.ID] = evt.Comment.Status
		p.owner[evt.Comment.ID] = evt.ThreadID()
	case event.StatusChanged:
		if _, ok := p.statuses[evt.CommentID]; ok {
			p.statuses[evt.CommentID] = evt.To
		}
	}
	return nil
}

func (p *StatsProjection) Snapshot() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := Stats{Threads: len(p.threads)}
	for _, status := range p.statuses {
		switch status {
		case domain.StatusPending:
			stats.Pending++
		case domain.StatusApproved:
			stats.Approved++
		case domain.StatusRejected:
			stats.Rejected++
		case domain.StatusDeleted:
			stats.Deleted++
		}
		stats.Total++
	}
	return stats
}
