// Package event defines the immutable change records produced by store
// mutations. Events serve both audit and live fan-out; payloads are
// snapshots, never references into the store.
package event

import (
	"comment-hub/domain"
	"time"

	"github.com/google/uuid"
)

// ChangeEvent describes one state transition applied by the store.
type ChangeEvent interface {
	ThreadID() uuid.UUID
	Sequence() uint64
	Kind() string
}

// Meta carries the fields shared by every change event. Seq is a single
// logical counter, monotonically increasing in operation-acceptance order.
type Meta struct {
	ID     uuid.UUID
	Seq    uint64
	Thread uuid.UUID
	Actor  string
	At     time.Time
}

func (m Meta) ThreadID() uuid.UUID { return m.Thread }
func (m Meta) Sequence() uint64    { return m.Seq }

type ThreadCreated struct {
	Meta
	PageKey string
	Title   string
}

func (ThreadCreated) Kind() string { return "thread_created" }

type ThreadDeleted struct {
	Meta
}

func (ThreadDeleted) Kind() string { return "thread_deleted" }

type ThreadLockChanged struct {
	Meta
	Locked bool
}

func (ThreadLockChanged) Kind() string { return "thread_lock_changed" }

type CommentAdded struct {
	Meta
	Comment domain.Comment
}

func (CommentAdded) Kind() string { return "comment_added" }

type StatusChanged struct {
	Meta
	CommentID uuid.UUID
	From      domain.Status
	To        domain.Status
}

func (StatusChanged) Kind() string { return "status_changed" }

// BulkModerationCompleted aggregates one atomic batch. Consumers may render
// either this record or the individual StatusChanged events.
type BulkModerationCompleted struct {
	Meta
	CommentIDs []uuid.UUID
	Target     domain.Status
}

func (BulkModerationCompleted) Kind() string { return "bulk_moderation_completed" }
