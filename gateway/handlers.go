package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/samber/lo"

	"comment-hub/auth"
	"comment-hub/domain"
	"comment-hub/domain/event"
	"comment-hub/errors"
	"comment-hub/moderation"
	"comment-hub/query"
	"comment-hub/search"
)

type commentResponse struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	ParentID  *string   `json:"parent_id,omitempty"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Status    string    `json:"status"`
}

type threadResponse struct {
	ID        string    `json:"id"`
	PageKey   string    `json:"page_key"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	Locked    bool      `json:"locked"`
}

type treeNodeResponse struct {
	commentResponse
	Replies []treeNodeResponse `json:"replies"`
}

type pageResponse struct {
	Items    any `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

func toCommentResponse(c domain.Comment) commentResponse {
	var parent *string
	if c.ParentID != nil {
		id := c.ParentID.String()
		parent = &id
	}
	return commentResponse{
		ID:        c.ID.String(),
		ThreadID:  c.ThreadID.String(),
		ParentID:  parent,
		Author:    c.Author.Name,
		Body:      c.Body,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Status:    c.Status.String(),
	}
}

func toThreadResponse(t domain.Thread) threadResponse {
	return threadResponse{
		ID:        t.ID.String(),
		PageKey:   t.PageKey,
		Title:     t.Title,
		CreatedAt: t.CreatedAt,
		Locked:    t.Locked,
	}
}

func toTreeResponse(nodes []query.TreeNode) []treeNodeResponse {
	return lo.Map(nodes, func(n query.TreeNode, _ int) treeNodeResponse {
		return treeNodeResponse{
			commentResponse: toCommentResponse(n.Comment),
			Replies:         toTreeResponse(n.Replies),
		}
	})
}

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var req CreateThreadRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	thread, err := s.service.CreateThread(req.PageKey, req.Title, actorName(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toThreadResponse(thread))
}

func (s *Server) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.service.DeleteThread(id, actorName(r)); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetLock(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req SetLockRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	if err := s.service.SetThreadLocked(id, req.Locked, actorName(r)); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"locked": req.Locked})
}

func (s *Server) handleSubmitComment(w http.ResponseWriter, r *http.Request) {
	var req SubmitCommentRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	threadID, err := uuid.Parse(req.ThreadID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid thread id")
		return
	}
	var parentID *uuid.UUID
	if req.ParentID != nil {
		pid, err := uuid.Parse(*req.ParentID)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid parent id")
			return
		}
		parentID = &pid
	}
	comment, err := s.service.SubmitComment(r.Context(), moderation.SubmitCommand{
		ThreadID: threadID,
		ParentID: parentID,
		Author:   domain.Author{Name: req.AuthorName, Token: req.AuthorToken},
		Body:     req.Body,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toCommentResponse(comment))
}

// handleSelfDelete lets the original author soft-delete their own comment.
// The author token was chosen by the widget at submit time; possession of
// it is the only proof of authorship we have.
func (s *Server) handleSelfDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	token := r.Header.Get("X-Author-Token")
	if token == "" {
		s.writeError(w, http.StatusUnauthorized, "missing author token")
		return
	}
	comment, found := s.service.GetComment(id)
	if !found {
		s.writeDomainError(w, errors.ErrCommentNotFound)
		return
	}
	if comment.Author.Token != token {
		s.writeError(w, http.StatusForbidden, "author token mismatch")
		return
	}
	if err := s.service.Moderate(id, domain.StatusDeleted, "author:"+comment.Author.Name); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleModerate(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req ModerateRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	target, err := actionStatus(req.Action)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "unknown action")
		return
	}
	if err := s.service.Moderate(id, target, actorName(r)); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": target.String()})
}

func (s *Server) handleBulkModerate(w http.ResponseWriter, r *http.Request) {
	var req BulkModerateRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	target, err := actionStatus(req.Action)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "unknown action")
		return
	}
	// Duplicate ids collapse to one transition, so the applied count
	// reflects unique comments only.
	ids := make([]uuid.UUID, 0, len(req.CommentIDs))
	seen := make(map[uuid.UUID]struct{}, len(req.CommentIDs))
	for _, raw := range req.CommentIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid comment id: "+raw)
			return
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if err := s.service.BulkModerate(ids, target, actorName(r)); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  target.String(),
		"applied": len(ids),
	})
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter query.CommentFilter
	if raw := q.Get("thread_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid thread id")
			return
		}
		filter.ThreadID = &id
	}
	if raw := q.Get("status"); raw != "" {
		status, err := domain.ParseStatus(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "unknown status")
			return
		}
		filter.Status = &status
	}
	filter.Author = q.Get("author")
	filter.TextContains = q.Get("q")
	var ok bool
	if filter.CreatedAfter, ok = s.timeParam(w, q.Get("created_after")); !ok {
		return
	}
	if filter.CreatedBefore, ok = s.timeParam(w, q.Get("created_before")); !ok {
		return
	}

	page, pageSize := intParam(q.Get("page"), 1), intParam(q.Get("page_size"), 50)
	order := query.SortChronological
	if q.Get("sort") == string(query.SortRecent) {
		order = query.SortRecent
	}

	comments, total, err := s.service.ListComments(filter, page, pageSize, order)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pageResponse{
		Items:    lo.Map(comments, func(c domain.Comment, _ int) commentResponse { return toCommentResponse(c) }),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := query.ThreadFilter{
		PageKey:       q.Get("page_key"),
		TitleContains: q.Get("q"),
	}
	if raw := q.Get("locked"); raw != "" {
		locked, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid locked flag")
			return
		}
		filter.Locked = &locked
	}
	page, pageSize := intParam(q.Get("page"), 1), intParam(q.Get("page_size"), 50)

	threads, total, err := s.service.ListThreads(filter, page, pageSize)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pageResponse{
		Items:    lo.Map(threads, func(t domain.Thread, _ int) threadResponse { return toThreadResponse(t) }),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

func (s *Server) handleCommentTree(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	nodes, err := s.service.CommentTree(id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"roots": toTreeResponse(nodes)})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.Stats())
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	terms := q.Get("q")
	if terms == "" {
		s.writeError(w, http.StatusBadRequest, "missing query")
		return
	}
	var threadID *uuid.UUID
	if raw := q.Get("thread_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid thread id")
			return
		}
		threadID = &id
	}
	limit := intParam(q.Get("limit"), 20)

	hits, err := s.service.Search(r.Context(), terms, threadID, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	type hitResponse struct {
		CommentID string  `json:"comment_id"`
		ThreadID  string  `json:"thread_id"`
		Score     float64 `json:"score"`
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"hits": lo.Map(hits, func(h search.Hit, _ int) hitResponse {
			return hitResponse{CommentID: h.CommentID.String(), ThreadID: h.ThreadID.String(), Score: h.Score}
		}),
	})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	account, found := s.moderators[req.Name]
	if !found {
		// Burn a comparison anyway so a missing name costs the same.
		_, _ = auth.ComparePassword(req.Password, dummyHash)
		s.writeDomainError(w, errors.ErrInvalidCredentials)
		return
	}
	match, err := auth.ComparePassword(req.Password, account.PasswordHash)
	if err != nil || !match {
		s.writeDomainError(w, errors.ErrInvalidCredentials)
		return
	}
	token, err := s.tokens.Generate(account.ID, account.Name, account.Roles)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// wireEvent is the SSE payload shape shared by every event kind.
type wireEvent struct {
	ID         string    `json:"id"`
	Seq        uint64    `json:"seq"`
	Kind       string    `json:"kind"`
	ThreadID   string    `json:"thread_id"`
	At         time.Time `json:"at"`
	CommentID  string    `json:"comment_id,omitempty"`
	CommentIDs []string  `json:"comment_ids,omitempty"`
	Status     string    `json:"status,omitempty"`
	From       string    `json:"from,omitempty"`
	Locked     *bool     `json:"locked,omitempty"`
	Comment    any       `json:"comment,omitempty"`
}

func toWireEvent(evt event.ChangeEvent) wireEvent {
	base := func(m event.Meta, kind string) wireEvent {
		return wireEvent{
			ID:       m.ID.String(),
			Seq:      m.Seq,
			Kind:     kind,
			ThreadID: m.Thread.String(),
			At:       m.At,
		}
	}
	switch e := evt.(type) {
	case event.ThreadCreated:
		return base(e.Meta, e.Kind())
	case event.ThreadDeleted:
		return base(e.Meta, e.Kind())
	case event.ThreadLockChanged:
		w := base(e.Meta, e.Kind())
		w.Locked = &e.Locked
		return w
	case event.CommentAdded:
		w := base(e.Meta, e.Kind())
		w.CommentID = e.Comment.ID.String()
		w.Status = e.Comment.Status.String()
		w.Comment = toCommentResponse(e.Comment)
		return w
	case event.StatusChanged:
		w := base(e.Meta, e.Kind())
		w.CommentID = e.CommentID.String()
		w.From = e.From.String()
		w.Status = e.To.String()
		return w
	case event.BulkModerationCompleted:
		w := base(e.Meta, e.Kind())
		w.CommentIDs = lo.Map(e.CommentIDs, func(id uuid.UUID, _ int) string { return id.String() })
		w.Status = e.Target.String()
		return w
	default:
		return wireEvent{Kind: evt.Kind(), Seq: evt.Sequence(), ThreadID: evt.ThreadID().String()}
	}
}

// handleEventStream bridges a hub subscription onto a Server-Sent Events
// response. A closed events channel means eviction or server shutdown; the
// client is told to re-sync through the query view before reconnecting.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if _, found := s.service.GetThread(id); !found {
		s.writeDomainError(w, errors.ErrThreadNotFound)
		return
	}
	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub := s.service.Subscribe(id)
	defer s.service.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case notice := <-sub.Evicted():
			s.writeSSE(w, flusher, "overflow", map[string]any{
				"missed_seq": notice.MissedSeq,
				"thread_id":  notice.ThreadID.String(),
			})
			return
		case evt, open := <-sub.Events():
			if !open {
				return
			}
			s.writeSSE(w, flusher, "change", toWireEvent(evt))
		}
	}
}

func (s *Server) writeSSE(w http.ResponseWriter, flusher http.Flusher, name string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("failed to encode stream event", "error", err)
		return
	}
	if _, err := w.Write([]byte("event: " + name + "\ndata: " + string(body) + "\n\n")); err != nil {
		return
	}
	flusher.Flush()
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) timeParam(w http.ResponseWriter, raw string) (*time.Time, bool) {
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid timestamp, want RFC3339")
		return nil, false
	}
	return &t, true
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func actorName(r *http.Request) string {
	if claims, ok := ClaimsFrom(r.Context()); ok {
		return claims.Name
	}
	return "anonymous"
}

// dummyHash keeps login timing flat when the account does not exist.
var dummyHash = func() string {
	h, err := auth.HashPassword(uuid.NewString())
	if err != nil {
		panic(err)
	}
	return h
}()
