// Package store owns the canonical tree of threads and comments. Mutations
// are atomic per call, durably persisted before being acknowledged, and
// return the change events they produced. The store never publishes events
// itself, which keeps it testable in isolation.
package store

import (
	"bytes"
	"comment-hub/contract"
	"comment-hub/domain"
	"comment-hub/domain/event"
	apperrors "comment-hub/errors"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultMaxDepth      = 10
	DefaultMaxBodyLength = 5000
	DefaultLockTimeout   = 2 * time.Second
)

type Options struct {
	MaxDepth         int
	MaxBodyLength    int
	LockTimeout      time.Duration
	IdempotentCreate bool // CreateThread returns the existing thread instead of failing
	HardDeleteThread bool // DeleteThread removes records instead of soft-deleting
}

func (o Options) withDefaults() Options {
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.MaxBodyLength <= 0 {
		o.MaxBodyLength = DefaultMaxBodyLength
	}
	if o.LockTimeout <= 0 {
		o.LockTimeout = DefaultLockTimeout
	}
	return o
}

// threadRecord is one thread and its comment arena. Comments are stored flat
// by id; parent/child relations are id references only.
type threadRecord struct {
	lock     timedRWMutex
	removed  bool
	thread   domain.Thread
	comments map[uuid.UUID]domain.Comment
}

type ThreadStore struct {
	mu        sync.RWMutex // guards the three maps, never held across persist calls
	threads   map[uuid.UUID]*threadRecord
	byPage    map[string]uuid.UUID
	byComment map[uuid.UUID]uuid.UUID // comment id -> owning thread id

	seq       atomic.Uint64
	persister contract.Persister
	opts      Options
	log       *slog.Logger
}

func New(log *slog.Logger, persister contract.Persister, opts Options) *ThreadStore {
	return &ThreadStore{
		threads:   make(map[uuid.UUID]*threadRecord),
		byPage:    make(map[string]uuid.UUID),
		byComment: make(map[uuid.UUID]uuid.UUID),
		persister: persister,
		opts:      opts.withDefaults(),
		log:       log,
	}
}

// Seed loads previously persisted state, typically at boot.
func (s *ThreadStore) Seed(stored []contract.StoredThread) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range stored {
		rec := &threadRecord{
			thread:   st.Thread,
			comments: make(map[uuid.UUID]domain.Comment, len(st.Comments)),
		}
		for _, c := range st.Comments {
			rec.comments[c.ID] = c
			s.byComment[c.ID] = st.Thread.ID
		}
		s.threads[st.Thread.ID] = rec
		s.byPage[st.Thread.PageKey] = st.Thread.ID
	}
	s.log.Info("store seeded", "threads", len(stored))
}

// NextSeq reserves the next slot of the global event sequence. Used by
// callers that append aggregate events to a batch.
func (s *ThreadStore) NextSeq() uint64 {
	return s.seq.Add(1)
}

func (s *ThreadStore) meta(threadID uuid.UUID, actor string) event.Meta {
	return event.Meta{
		ID:     uuid.New(),
		Seq:    s.seq.Add(1),
		Thread: threadID,
		Actor:  actor,
		At:     time.Now().UTC(),
	}
}

// CreateThread binds a new thread to a page key. Depending on policy a
// duplicate page key either fails with ErrDuplicateThread or returns the
// existing thread with no events.
func (s *ThreadStore) CreateThread(pageKey, title, actor string) (domain.Thread, []event.ChangeEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, ok := s.byPage[pageKey]; ok {
		if s.opts.IdempotentCreate {
			return cloneThread(s.threads[existingID].thread), nil, nil
		}
		return domain.Thread{}, nil, apperrors.ErrDuplicateThread
	}

	thread := domain.Thread{
		ID:        uuid.New(),
		PageKey:   pageKey,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.persister.Persist(thread.ID, contract.Delta{Thread: &thread}); err != nil {
		return domain.Thread{}, nil, err
	}

	s.threads[thread.ID] = &threadRecord{
		thread:   thread,
		comments: make(map[uuid.UUID]domain.Comment),
	}
	s.byPage[pageKey] = thread.ID

	evt := event.ThreadCreated{Meta: s.meta(thread.ID, actor), PageKey: pageKey, Title: title}
	return thread, []event.ChangeEvent{evt}, nil
}

// AddComment appends a comment to a thread, optionally as a reply. The
// initial status is decided by the caller (screening hook); validation and
// structural invariants are enforced here.
func (s *ThreadStore) AddComment(threadID uuid.UUID, parentID *uuid.UUID,
	author domain.Author, body string, initial domain.Status, actor string) (domain.Comment, []event.ChangeEvent, error) {
	if strings.TrimSpace(body) == "" {
		return domain.Comment{}, nil, apperrors.ErrEmptyBody
	}
	if len([]rune(body)) > s.opts.MaxBodyLength {
		return domain.Comment{}, nil, apperrors.ErrBodyTooLong
	}

	rec, err := s.record(threadID)
	if err != nil {
		return domain.Comment{}, nil, err
	}
	if !rec.lock.lockTimeout(s.opts.LockTimeout) {
		return domain.Comment{}, nil, apperrors.ErrLockTimeout
	}
	defer rec.lock.unlock()

	if rec.removed {
		return domain.Comment{}, nil, apperrors.ErrThreadNotFound
	}
	if rec.thread.Locked {
		return domain.Comment{}, nil, apperrors.ErrThreadLocked
	}

	var parent domain.Comment
	if parentID != nil {
		var ok bool
		parent, ok = rec.comments[*parentID]
		if !ok {
			return domain.Comment{}, nil, apperrors.ErrParentNotFound
		}
		if depth(rec, parent)+1 > s.opts.MaxDepth {
			return domain.Comment{}, nil, apperrors.ErrThreadTooDeep
		}
	}

	now := time.Now().UTC()
	comment := domain.Comment{
		ID:        uuid.New(),
		ThreadID:  threadID,
		ParentID:  parentID,
		Author:    author,
		Body:      body,
		CreatedAt: now,
		UpdatedAt: now,
		Status:    initial,
	}

	delta := contract.Delta{Comments: []domain.Comment{comment}}
	threadCopy := rec.thread
	if parentID == nil {
		threadCopy.Roots = append(slices.Clone(threadCopy.Roots), comment.ID)
		delta.Thread = &threadCopy
	} else {
		parent.Children = append(slices.Clone(parent.Children), comment.ID)
		parent.UpdatedAt = now
		delta.Comments = append(delta.Comments, parent)
	}
	if err := s.persister.Persist(threadID, delta); err != nil {
		return domain.Comment{}, nil, err
	}

	rec.comments[comment.ID] = comment
	if parentID == nil {
		rec.thread = threadCopy
	} else {
		rec.comments[parent.ID] = parent
	}
	s.mu.Lock()
	s.byComment[comment.ID] = threadID
	s.mu.Unlock()

	evt := event.CommentAdded{Meta: s.meta(threadID, actor), Comment: comment}
	return comment, []event.ChangeEvent{evt}, nil
}

// ApplyTransition atomically moves every listed comment to target. The guard
// is evaluated inside the write locks so check-and-apply cannot race; if any
// id is missing the whole call aborts with ErrCommentNotFound, and if any
// current status fails the guard the offending id set is reported via
// InvalidTransitionError. Events come back in ascending comment-id order.
func (s *ThreadStore) ApplyTransition(ids []uuid.UUID, target domain.Status, actor string,
	guard func(from, to domain.Status) bool) ([]event.ChangeEvent, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ids = dedupe(ids)

	// Resolve owning threads first; lock acquisition happens in ascending
	// thread-id order so concurrent bulks cannot deadlock.
	s.mu.RLock()
	byThread := make(map[uuid.UUID][]uuid.UUID)
	for _, id := range ids {
		threadID, ok := s.byComment[id]
		if !ok {
			s.mu.RUnlock()
			return nil, apperrors.ErrCommentNotFound
		}
		byThread[threadID] = append(byThread[threadID], id)
	}
	records := make(map[uuid.UUID]*threadRecord, len(byThread))
	for threadID := range byThread {
		records[threadID] = s.threads[threadID]
	}
	s.mu.RUnlock()

	threadIDs := sortedIDs(byThread)
	var locked []*threadRecord
	release := func() {
		for _, rec := range locked {
			rec.lock.unlock()
		}
	}
	for _, threadID := range threadIDs {
		rec := records[threadID]
		if !rec.lock.lockTimeout(s.opts.LockTimeout) {
			release()
			return nil, apperrors.ErrLockTimeout
		}
		locked = append(locked, rec)
	}
	defer release()

	// Validate the full batch before touching anything.
	var offending []uuid.UUID
	fromStatus := make(map[uuid.UUID]domain.Status, len(ids))
	for _, threadID := range threadIDs {
		rec := records[threadID]
		if rec.removed {
			return nil, apperrors.ErrCommentNotFound
		}
		for _, id := range byThread[threadID] {
			comment, ok := rec.comments[id]
			if !ok {
				return nil, apperrors.ErrCommentNotFound
			}
			fromStatus[id] = comment.Status
			if !guard(comment.Status, target) {
				offending = append(offending, id)
			}
		}
	}
	if len(offending) > 0 {
		sortIDs(offending)
		return nil, &apperrors.InvalidTransitionError{Offending: offending}
	}

	// Stage every thread's delta, persist them all, and only then touch
	// memory. A failed persist anywhere in the batch leaves the store
	// unchanged, even when the batch spans threads.
	now := time.Now().UTC()
	staged := make(map[uuid.UUID][]domain.Comment, len(threadIDs))
	for _, threadID := range threadIDs {
		rec := records[threadID]
		updated := make([]domain.Comment, 0, len(byThread[threadID]))
		for _, id := range byThread[threadID] {
			comment := rec.comments[id]
			comment.Status = target
			comment.UpdatedAt = now
			updated = append(updated, comment)
		}
		staged[threadID] = updated
	}
	for _, threadID := range threadIDs {
		if err := s.persister.Persist(threadID, contract.Delta{Comments: staged[threadID]}); err != nil {
			return nil, err
		}
	}
	for _, threadID := range threadIDs {
		rec := records[threadID]
		for _, comment := range staged[threadID] {
			rec.comments[comment.ID] = comment
		}
	}

	// Emit in ascending comment-id order for deterministic replay.
	ordered := slices.Clone(ids)
	sortIDs(ordered)
	events := make([]event.ChangeEvent, 0, len(ordered))
	for _, id := range ordered {
		events = append(events, event.StatusChanged{
			Meta:      s.meta(idOwner(byThread, id), actor),
			CommentID: id,
			From:      fromStatus[id],
			To:        target,
		})
	}
	return events, nil
}

// DeleteThread removes a thread. The hard policy drops every record; the
// soft policy marks all comments deleted and locks the thread, preserving
// shape for audit. Either way exactly one ThreadDeleted event is emitted.
func (s *ThreadStore) DeleteThread(threadID uuid.UUID, actor string) ([]event.ChangeEvent, error) {
	rec, err := s.record(threadID)
	if err != nil {
		return nil, err
	}
	if !rec.lock.lockTimeout(s.opts.LockTimeout) {
		return nil, apperrors.ErrLockTimeout
	}
	defer rec.lock.unlock()
	if rec.removed {
		return nil, apperrors.ErrThreadNotFound
	}

	if s.opts.HardDeleteThread {
		if err := s.persister.Persist(threadID, contract.Delta{RemoveThread: true}); err != nil {
			return nil, err
		}
		rec.removed = true
		s.mu.Lock()
		delete(s.threads, threadID)
		delete(s.byPage, rec.thread.PageKey)
		for id := range rec.comments {
			delete(s.byComment, id)
		}
		s.mu.Unlock()
	} else {
		now := time.Now().UTC()
		threadCopy := rec.thread
		threadCopy.Locked = true
		updated := make([]domain.Comment, 0, len(rec.comments))
		for _, comment := range rec.comments {
			if comment.Status == domain.StatusDeleted {
				continue
			}
			comment.Status = domain.StatusDeleted
			comment.UpdatedAt = now
			updated = append(updated, comment)
		}
		delta := contract.Delta{Thread: &threadCopy, Comments: updated}
		if err := s.persister.Persist(threadID, delta); err != nil {
			return nil, err
		}
		rec.thread = threadCopy
		for _, comment := range updated {
			rec.comments[comment.ID] = comment
		}
	}

	return []event.ChangeEvent{event.ThreadDeleted{Meta: s.meta(threadID, actor)}}, nil
}

// SetThreadLocked toggles the lock status of a thread.
func (s *ThreadStore) SetThreadLocked(threadID uuid.UUID, lockedState bool, actor string) ([]event.ChangeEvent, error) {
	rec, err := s.record(threadID)
	if err != nil {
		return nil, err
	}
	if !rec.lock.lockTimeout(s.opts.LockTimeout) {
		return nil, apperrors.ErrLockTimeout
	}
	defer rec.lock.unlock()
	if rec.removed {
		return nil, apperrors.ErrThreadNotFound
	}
	if rec.thread.Locked == lockedState {
		return nil, nil
	}

	threadCopy := rec.thread
	threadCopy.Locked = lockedState
	if err := s.persister.Persist(threadID, contract.Delta{Thread: &threadCopy}); err != nil {
		return nil, err
	}
	rec.thread = threadCopy

	evt := event.ThreadLockChanged{Meta: s.meta(threadID, actor), Locked: lockedState}
	return []event.ChangeEvent{evt}, nil
}

func (s *ThreadStore) GetThread(threadID uuid.UUID) (domain.Thread, bool) {
	s.mu.RLock()
	rec, ok := s.threads[threadID]
	s.mu.RUnlock()
	if !ok {
		return domain.Thread{}, false
	}
	rec.lock.rLock()
	defer rec.lock.rUnlock()
	return cloneThread(rec.thread), true
}

func (s *ThreadStore) GetThreadByPage(pageKey string) (domain.Thread, bool) {
	s.mu.RLock()
	threadID, ok := s.byPage[pageKey]
	s.mu.RUnlock()
	if !ok {
		return domain.Thread{}, false
	}
	return s.GetThread(threadID)
}

func (s *ThreadStore) GetComment(id uuid.UUID) (domain.Comment, bool) {
	s.mu.RLock()
	threadID, ok := s.byComment[id]
	rec := s.threads[threadID]
	s.mu.RUnlock()
	if !ok || rec == nil {
		return domain.Comment{}, false
	}
	rec.lock.rLock()
	defer rec.lock.rUnlock()
	comment, ok := rec.comments[id]
	if !ok {
		return domain.Comment{}, false
	}
	return cloneComment(comment), true
}

// SnapshotThreads returns copies of every live thread record.
func (s *ThreadStore) SnapshotThreads() []domain.Thread {
	s.mu.RLock()
	recs := make([]*threadRecord, 0, len(s.threads))
	for _, rec := range s.threads {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	threads := make([]domain.Thread, 0, len(recs))
	for _, rec := range recs {
		rec.lock.rLock()
		if !rec.removed {
			threads = append(threads, cloneThread(rec.thread))
		}
		rec.lock.rUnlock()
	}
	return threads
}

// SnapshotComments returns copies of one thread's comments. The per-thread
// read lock guarantees a reader never observes a half-applied bulk
// transition within that thread.
func (s *ThreadStore) SnapshotComments(threadID uuid.UUID) ([]domain.Comment, bool) {
	s.mu.RLock()
	rec, ok := s.threads[threadID]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	rec.lock.rLock()
	defer rec.lock.rUnlock()
	if rec.removed {
		return nil, false
	}
	comments := make([]domain.Comment, 0, len(rec.comments))
	for _, comment := range rec.comments {
		comments = append(comments, cloneComment(comment))
	}
	return comments, true
}

// SnapshotAllComments returns copies of every comment across all threads.
func (s *ThreadStore) SnapshotAllComments() []domain.Comment {
	var all []domain.Comment
	for _, thread := range s.SnapshotThreads() {
		comments, ok := s.SnapshotComments(thread.ID)
		if ok {
			all = append(all, comments...)
		}
	}
	return all
}

func (s *ThreadStore) ThreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads)
}

func (s *ThreadStore) record(threadID uuid.UUID) (*threadRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.threads[threadID]
	if !ok {
		return nil, apperrors.ErrThreadNotFound
	}
	return rec, nil
}

// depth counts ancestors starting at 1 for a root comment. Caller holds the
// thread lock.
func depth(rec *threadRecord, comment domain.Comment) int {
	d := 1
	current := comment
	for current.ParentID != nil {
		parent, ok := rec.comments[*current.ParentID]
		if !ok {
			break
		}
		current = parent
		d++
	}
	return d
}

func cloneThread(t domain.Thread) domain.Thread {
	t.Roots = slices.Clone(t.Roots)
	return t
}

func cloneComment(c domain.Comment) domain.Comment {
	c.Children = slices.Clone(c.Children)
	if c.ParentID != nil {
		parent := *c.ParentID
		c.ParentID = &parent
	}
	return c
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
}

func sortedIDs(byThread map[uuid.UUID][]uuid.UUID) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(byThread))
	for id := range byThread {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

func idOwner(byThread map[uuid.UUID][]uuid.UUID, id uuid.UUID) uuid.UUID {
	for threadID, ids := range byThread {
		for _, candidate := range ids {
			if candidate == id {
				return threadID
			}
		}
	}
	return uuid.Nil
}
