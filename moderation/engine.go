// Package moderation applies single and bulk status transitions and screens
// newly submitted comments. It is the only mutation path into the store;
// every successful operation publishes its change events to the hub and
// hands them to the out-of-band sink feed.
package moderation

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"comment-hub/contract"
	"comment-hub/domain"
	"comment-hub/domain/event"
	apperrors "comment-hub/errors"
	"comment-hub/store"
)

// Publisher is the live fan-out side of the engine, satisfied by hub.Hub.
type Publisher interface {
	Publish(e event.ChangeEvent)
}

// Allowed is the moderation state machine. Deleted is terminal.
func Allowed(from, to domain.Status) bool {
	switch {
	case from == domain.StatusDeleted:
		return false
	case to == domain.StatusDeleted:
		return true
	case from == domain.StatusPending && (to == domain.StatusApproved || to == domain.StatusRejected):
		return true
	case from == domain.StatusApproved && to == domain.StatusRejected:
		return true
	case from == domain.StatusRejected && to == domain.StatusApproved:
		return true
	default:
		return false
	}
}

// SubmitCommand carries one comment submission with its verified author.
type SubmitCommand struct {
	ThreadID uuid.UUID
	ParentID *uuid.UUID
	Author   domain.Author
	Body     string
}

// emitGate serializes the mutate-then-publish window per thread. Sequence
// numbers are assigned inside the store's thread lock but publication happens
// after it is released; without the gate two operations on one thread could
// reach the hub with their sequence numbers swapped. Gates for a bulk are
// taken in ascending thread-id order so concurrent bulks cannot deadlock.
type emitGate struct {
	mu    sync.Mutex
	gates map[uuid.UUID]*sync.Mutex
}

func newEmitGate() *emitGate {
	return &emitGate{gates: make(map[uuid.UUID]*sync.Mutex)}
}

func (g *emitGate) gateFor(threadID uuid.UUID) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	gate, ok := g.gates[threadID]
	if !ok {
		gate = &sync.Mutex{}
		g.gates[threadID] = gate
	}
	return gate
}

func (g *emitGate) acquire(threadIDs ...uuid.UUID) func() {
	unique := make([]uuid.UUID, 0, len(threadIDs))
	seen := make(map[uuid.UUID]struct{}, len(threadIDs))
	for _, id := range threadIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	slices.SortFunc(unique, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })

	held := make([]*sync.Mutex, 0, len(unique))
	for _, id := range unique {
		gate := g.gateFor(id)
		gate.Lock()
		held = append(held, gate)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

type Engine struct {
	store    *store.ThreadStore
	hub      Publisher
	screener contract.Screener
	feed     chan event.ChangeEvent
	gate     *emitGate
	log      *slog.Logger
}

func NewEngine(log *slog.Logger, st *store.ThreadStore, hub Publisher,
	screener contract.Screener, feedBuffer int) *Engine {
	return &Engine{
		store:    st,
		hub:      hub,
		screener: screener,
		feed:     make(chan event.ChangeEvent, feedBuffer),
		gate:     newEmitGate(),
		log:      log,
	}
}

// Feed exposes the out-of-band event stream consumed by the fan-out worker
// (search indexing, stats, audit). Delivery there is best-effort.
func (e *Engine) Feed() <-chan event.ChangeEvent {
	return e.feed
}

func (e *Engine) CreateThread(pageKey, title, actor string) (domain.Thread, error) {
	// Ungated: the thread id is unknown outside until this call returns,
	// so no concurrent operation on it can exist yet.
	thread, events, err := e.store.CreateThread(pageKey, title, actor)
	if err != nil {
		return domain.Thread{}, err
	}
	e.publish(events)
	return thread, nil
}

// SubmitComment screens the body for its initial status, then stores and
// publishes the comment. The screener is a hook point; spam or trust scoring
// may replace the shipped blocklist implementation.
func (e *Engine) SubmitComment(_ context.Context, cmd SubmitCommand) (domain.Comment, error) {
	verdict := e.screener.Screen(cmd.Body)
	if len(verdict.Matched) > 0 {
		e.log.Info("comment held for review",
			"thread_id", cmd.ThreadID,
			"author", cmd.Author.Name,
			"lang", verdict.Lang,
			"matched", verdict.Matched)
	}

	release := e.gate.acquire(cmd.ThreadID)
	defer release()

	comment, events, err := e.store.AddComment(
		cmd.ThreadID, cmd.ParentID, cmd.Author, cmd.Body, verdict.Status, cmd.Author.Name)
	if err != nil {
		return domain.Comment{}, err
	}
	e.publish(events)
	return comment, nil
}

// Moderate applies a single transition. An author self-delete goes through
// the same path with target StatusDeleted.
func (e *Engine) Moderate(id uuid.UUID, target domain.Status, actor string) error {
	comment, ok := e.store.GetComment(id)
	if !ok {
		return apperrors.ErrCommentNotFound
	}
	release := e.gate.acquire(comment.ThreadID)
	defer release()

	events, err := e.store.ApplyTransition([]uuid.UUID{id}, target, actor, Allowed)
	if err != nil {
		return err
	}
	e.publish(events)
	return nil
}

// BulkModerate transitions every id or none. A single invalid transition
// rejects the whole batch; the offending ids travel in the returned
// InvalidTransitionError. Valid batches yield one StatusChanged per comment
// plus one BulkModerationCompleted aggregate per affected thread.
func (e *Engine) BulkModerate(ids []uuid.UUID, target domain.Status, actor string) error {
	threadIDs := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		comment, ok := e.store.GetComment(id)
		if !ok {
			return apperrors.ErrCommentNotFound
		}
		threadIDs = append(threadIDs, comment.ThreadID)
	}
	release := e.gate.acquire(threadIDs...)
	defer release()

	events, err := e.store.ApplyTransition(ids, target, actor, Allowed)
	if err != nil {
		return err
	}

	// Aggregate per thread so each thread's subscribers receive a coherent
	// summary of the batch slice that concerns them.
	perThread := make(map[uuid.UUID][]uuid.UUID)
	var threadOrder []uuid.UUID
	for _, evt := range events {
		changed, ok := evt.(event.StatusChanged)
		if !ok {
			continue
		}
		if _, seen := perThread[changed.ThreadID()]; !seen {
			threadOrder = append(threadOrder, changed.ThreadID())
		}
		perThread[changed.ThreadID()] = append(perThread[changed.ThreadID()], changed.CommentID)
	}
	for _, threadID := range threadOrder {
		events = append(events, event.BulkModerationCompleted{
			Meta: event.Meta{
				ID:     uuid.New(),
				Seq:    e.store.NextSeq(),
				Thread: threadID,
				Actor:  actor,
				At:     time.Now().UTC(),
			},
			CommentIDs: perThread[threadID],
			Target:     target,
		})
	}

	e.publish(events)
	return nil
}

func (e *Engine) DeleteThread(id uuid.UUID, actor string) error {
	release := e.gate.acquire(id)
	defer release()

	events, err := e.store.DeleteThread(id, actor)
	if err != nil {
		return err
	}
	e.publish(events)
	return nil
}

func (e *Engine) SetThreadLocked(id uuid.UUID, locked bool, actor string) error {
	release := e.gate.acquire(id)
	defer release()

	events, err := e.store.SetThreadLocked(id, locked, actor)
	if err != nil {
		return err
	}
	e.publish(events)
	return nil
}

// publish delivers to the live hub synchronously (the hub never blocks on a
// slow subscriber) and to the out-of-band feed without blocking the caller.
func (e *Engine) publish(events []event.ChangeEvent) {
	for _, evt := range events {
		e.hub.Publish(evt)
		select {
		case e.feed <- evt:
		default:
			e.log.Warn(fmt.Sprintf("Out-of-band feed full, dropping %s", evt.Kind()),
				"seq", evt.Sequence())
		}
	}
}
