//go:generate go run go.uber.org/mock/mockgen -source=comment_service.go -destination=../mocks/mock_comment_service.go -package=mocks
package services

import (
	"comment-hub/domain"
	"comment-hub/hub"
	"comment-hub/moderation"
	"comment-hub/projection"
	"comment-hub/query"
	"comment-hub/search"
	"comment-hub/store"
	"context"

	"github.com/google/uuid"
)

// ICommentService is the single surface the gateway talks to.
type ICommentService interface {
	CreateThread(pageKey, title, actor string) (domain.Thread, error)
	DeleteThread(id uuid.UUID, actor string) error
	SetThreadLocked(id uuid.UUID, locked bool, actor string) error
	SubmitComment(ctx context.Context, cmd moderation.SubmitCommand) (domain.Comment, error)
	Moderate(id uuid.UUID, target domain.Status, actor string) error
	BulkModerate(ids []uuid.UUID, target domain.Status, actor string) error
	GetComment(id uuid.UUID) (domain.Comment, bool)
	GetThread(id uuid.UUID) (domain.Thread, bool)

	ListComments(filter query.CommentFilter, page, pageSize int, order query.Sort) ([]domain.Comment, int, error)
	ListThreads(filter query.ThreadFilter, page, pageSize int) ([]domain.Thread, int, error)
	CommentTree(threadID uuid.UUID) ([]query.TreeNode, error)
	Stats() projection.Stats
	Search(ctx context.Context, terms string, threadID *uuid.UUID, limit int) ([]search.Hit, error)

	Subscribe(threadID uuid.UUID) *hub.Subscription
	Unsubscribe(sub *hub.Subscription)
	SubscriberCount(threadID uuid.UUID) int
}

type CommentService struct {
	store  *store.ThreadStore
	engine *moderation.Engine
	view   *query.View
	hub    *hub.Hub
	index  *search.Indexer
	stats  *projection.StatsProjection
}

var _ ICommentService = (*CommentService)(nil)

func NewCommentService(st *store.ThreadStore, engine *moderation.Engine, view *query.View,
	h *hub.Hub, index *search.Indexer, stats *projection.StatsProjection) *CommentService {
	return &CommentService{store: st, engine: engine, view: view, hub: h, index: index, stats: stats}
}

func (s *CommentService) GetComment(id uuid.UUID) (domain.Comment, bool) {
	return s.store.GetComment(id)
}

func (s *CommentService) GetThread(id uuid.UUID) (domain.Thread, bool) {
	return s.store.GetThread(id)
}

func (s *CommentService) CreateThread(pageKey, title, actor string) (domain.Thread, error) {
	return s.engine.CreateThread(pageKey, title, actor)
}

func (s *CommentService) DeleteThread(id uuid.UUID, actor string) error {
	return s.engine.DeleteThread(id, actor)
}

func (s *CommentService) SetThreadLocked(id uuid.UUID, locked bool, actor string) error {
	return s.engine.SetThreadLocked(id, locked, actor)
}

func (s *CommentService) SubmitComment(ctx context.Context, cmd moderation.SubmitCommand) (domain.Comment, error) {
	return s.engine.SubmitComment(ctx, cmd)
}

func (s *CommentService) Moderate(id uuid.UUID, target domain.Status, actor string) error {
	return s.engine.Moderate(id, target, actor)
}

func (s *CommentService) BulkModerate(ids []uuid.UUID, target domain.Status, actor string) error {
	return s.engine.BulkModerate(ids, target, actor)
}

func (s *CommentService) ListComments(filter query.CommentFilter, page, pageSize int, order query.Sort) ([]domain.Comment, int, error) {
	return s.view.ListComments(filter, page, pageSize, order)
}

func (s *CommentService) ListThreads(filter query.ThreadFilter, page, pageSize int) ([]domain.Thread, int, error) {
	return s.view.ListThreads(filter, page, pageSize)
}

func (s *CommentService) CommentTree(threadID uuid.UUID) ([]query.TreeNode, error) {
	return s.view.CommentTree(threadID)
}

func (s *CommentService) Stats() projection.Stats {
	return s.stats.Snapshot()
}

func (s *CommentService) Search(ctx context.Context, terms string, threadID *uuid.UUID, limit int) ([]search.Hit, error) {
	return s.index.Search(ctx, terms, threadID, limit)
}

func (s *CommentService) Subscribe(threadID uuid.UUID) *hub.Subscription {
	return s.hub.Subscribe(threadID)
}

func (s *CommentService) Unsubscribe(sub *hub.Subscription) {
	s.hub.Unsubscribe(sub)
}

func (s *CommentService) SubscriberCount(threadID uuid.UUID) int {
	return s.hub.SubscriberCount(threadID)
}
