// Package query is the read-only projection over the store: filtered,
// paginated listings and the nested reply tree. It never mutates and may run
// against slightly stale snapshots without risk to moderation logic.
package query

import (
	"bytes"
	"comment-hub/domain"
	apperrors "comment-hub/errors"
	"comment-hub/store"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const DefaultPageSizeCap = 200

type Sort string

const (
	// SortChronological orders by creation time ascending, the natural
	// reading order within a thread.
	SortChronological Sort = "chronological"
	// SortRecent orders by last-modified descending.
	SortRecent Sort = "recent"
)

// CommentFilter fields are ANDed together; zero values are unconstrained.
type CommentFilter struct {
	ThreadID      *uuid.UUID
	Status        *domain.Status
	Author        string
	TextContains  string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

type ThreadFilter struct {
	PageKey       string
	Locked        *bool
	TitleContains string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// TreeNode is one comment with its replies nested in reply order.
type TreeNode struct {
	Comment domain.Comment
	Replies []TreeNode
}

type View struct {
	store       *store.ThreadStore
	pageSizeCap int
	log         *slog.Logger
}

func NewView(log *slog.Logger, st *store.ThreadStore, pageSizeCap int) *View {
	if pageSizeCap <= 0 {
		pageSizeCap = DefaultPageSizeCap
	}
	return &View{store: st, pageSizeCap: pageSizeCap, log: log}
}

// ListComments returns one page of matching comments and the total match
// count. Soft-deleted comments keep their position in the sort order with a
// redacted body.
func (v *View) ListComments(filter CommentFilter, page, pageSize int, order Sort) ([]domain.Comment, int, error) {
	if err := v.checkPagination(page, pageSize); err != nil {
		return nil, 0, err
	}

	var comments []domain.Comment
	if filter.ThreadID != nil {
		var ok bool
		comments, ok = v.store.SnapshotComments(*filter.ThreadID)
		if !ok {
			return nil, 0, apperrors.ErrThreadNotFound
		}
	} else {
		comments = v.store.SnapshotAllComments()
	}

	matched := comments[:0]
	for _, c := range comments {
		// Redact before matching so a filter can never leak a deleted body.
		c = redact(c)
		if matchComment(filter, c) {
			matched = append(matched, c)
		}
	}

	switch order {
	case SortRecent:
		sort.Slice(matched, func(i, j int) bool {
			if !matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
				return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
			}
			return lessID(matched[i].ID, matched[j].ID)
		})
	default:
		sort.Slice(matched, func(i, j int) bool {
			if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
				return matched[i].CreatedAt.Before(matched[j].CreatedAt)
			}
			return lessID(matched[i].ID, matched[j].ID)
		})
	}

	return paginate(matched, page, pageSize)
}

func (v *View) ListThreads(filter ThreadFilter, page, pageSize int) ([]domain.Thread, int, error) {
	if err := v.checkPagination(page, pageSize); err != nil {
		return nil, 0, err
	}

	threads := v.store.SnapshotThreads()
	matched := threads[:0]
	for _, t := range threads {
		if matchThread(filter, t) {
			matched = append(matched, t)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return lessID(matched[i].ID, matched[j].ID)
	})

	return paginate(matched, page, pageSize)
}

// CommentTree builds the nested reply structure for one thread, roots in
// creation order, replies in reply order.
func (v *View) CommentTree(threadID uuid.UUID) ([]TreeNode, error) {
	thread, ok := v.store.GetThread(threadID)
	if !ok {
		return nil, apperrors.ErrThreadNotFound
	}
	comments, ok := v.store.SnapshotComments(threadID)
	if !ok {
		return nil, apperrors.ErrThreadNotFound
	}

	byID := make(map[uuid.UUID]domain.Comment, len(comments))
	for _, c := range comments {
		byID[c.ID] = redact(c)
	}

	var build func(id uuid.UUID) (TreeNode, bool)
	build = func(id uuid.UUID) (TreeNode, bool) {
		c, ok := byID[id]
		if !ok {
			return TreeNode{}, false
		}
		node := TreeNode{Comment: c}
		for _, childID := range c.Children {
			if child, ok := build(childID); ok {
				node.Replies = append(node.Replies, child)
			}
		}
		return node, true
	}

	var roots []TreeNode
	for _, rootID := range thread.Roots {
		if node, ok := build(rootID); ok {
			roots = append(roots, node)
		}
	}
	return roots, nil
}

func (v *View) checkPagination(page, pageSize int) error {
	if page <= 0 || pageSize <= 0 || pageSize > v.pageSizeCap {
		return apperrors.ErrInvalidPagination
	}
	return nil
}

func matchComment(f CommentFilter, c domain.Comment) bool {
	if f.Status != nil && c.Status != *f.Status {
		return false
	}
	if f.Author != "" && c.Author.Name != f.Author {
		return false
	}
	if f.TextContains != "" &&
		!strings.Contains(strings.ToLower(c.Body), strings.ToLower(f.TextContains)) {
		return false
	}
	if f.CreatedAfter != nil && !c.CreatedAt.After(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && !c.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	return true
}

func matchThread(f ThreadFilter, t domain.Thread) bool {
	if f.PageKey != "" && t.PageKey != f.PageKey {
		return false
	}
	if f.Locked != nil && t.Locked != *f.Locked {
		return false
	}
	if f.TitleContains != "" &&
		!strings.Contains(strings.ToLower(t.Title), strings.ToLower(f.TitleContains)) {
		return false
	}
	if f.CreatedAfter != nil && !t.CreatedAt.After(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && !t.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	return true
}

// redact blanks the body of soft-deleted comments; the node itself keeps its
// position so the thread shape stays intact.
func redact(c domain.Comment) domain.Comment {
	if c.SoftDeleted() {
		c.Body = ""
	}
	return c
}

func paginate[T any](items []T, page, pageSize int) ([]T, int, error) {
	total := len(items)
	start := (page - 1) * pageSize
	if start >= total {
		return nil, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return items[start:end], total, nil
}

func lessID(a, b uuid.UUID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}
