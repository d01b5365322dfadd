package query

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"comment-hub/contract"
	"comment-hub/domain"
	apperrors "comment-hub/errors"
	"comment-hub/store"
)

type nopPersister struct{}

func (nopPersister) Persist(uuid.UUID, contract.Delta) error       { return nil }
func (nopPersister) Load(uuid.UUID) (contract.StoredThread, error) { return contract.StoredThread{}, nil }
func (nopPersister) LoadAll() ([]contract.StoredThread, error)     { return nil, nil }

func newTestView(t *testing.T) (*View, *store.ThreadStore) {
	t.Helper()
	st := store.New(slog.Default(), nopPersister{}, store.Options{})
	return NewView(slog.Default(), st, 10), st
}

func seedThread(t *testing.T, st *store.ThreadStore, pageKey string, bodies ...string) (domain.Thread, []domain.Comment) {
	t.Helper()
	req := require.New(t)
	thread, _, err := st.CreateThread(pageKey, "Post "+pageKey, "admin")
	req.NoError(err)
	comments := make([]domain.Comment, 0, len(bodies))
	for _, body := range bodies {
		c, _, err := st.AddComment(thread.ID, nil, domain.Author{Name: "alice"}, body, domain.StatusApproved, "alice")
		req.NoError(err)
		comments = append(comments, c)
	}
	return thread, comments
}

func Test_ListComments_PaginationBounds(t *testing.T) {
	req := require.New(t)
	v, st := newTestView(t)
	seedThread(t, st, "blog/42", "one")

	for _, tc := range []struct{ page, pageSize int }{
		{0, 10}, {-1, 10}, {1, 0}, {1, -5}, {1, 11},
	} {
		_, _, err := v.ListComments(CommentFilter{}, tc.page, tc.pageSize, SortChronological)
		req.ErrorIs(err, apperrors.ErrInvalidPagination, "page=%d size=%d", tc.page, tc.pageSize)
	}
}

func Test_ListComments_ChronologicalPaging(t *testing.T) {
	req := require.New(t)
	v, st := newTestView(t)
	thread, _ := seedThread(t, st, "blog/42")
	for i := 0; i < 7; i++ {
		_, _, err := st.AddComment(thread.ID, nil, domain.Author{Name: "alice"},
			fmt.Sprintf("comment %d", i), domain.StatusApproved, "alice")
		req.NoError(err)
	}

	first, total, err := v.ListComments(CommentFilter{ThreadID: &thread.ID}, 1, 3, SortChronological)
	req.NoError(err)
	req.Equal(7, total)
	req.Len(first, 3)

	third, total, err := v.ListComments(CommentFilter{ThreadID: &thread.ID}, 3, 3, SortChronological)
	req.NoError(err)
	req.Equal(7, total)
	req.Len(third, 1)

	// Page past the end is empty, not an error
	fourth, total, err := v.ListComments(CommentFilter{ThreadID: &thread.ID}, 4, 3, SortChronological)
	req.NoError(err)
	req.Equal(7, total)
	req.Empty(fourth)

	// Pages never overlap and stay in creation order
	req.True(first[len(first)-1].CreatedAt.Before(third[0].CreatedAt) ||
		first[len(first)-1].CreatedAt.Equal(third[0].CreatedAt))
}

func Test_ListComments_SoftDeletedKeepsPositionRedacted(t *testing.T) {
	req := require.New(t)
	v, st := newTestView(t)
	thread, comments := seedThread(t, st, "blog/42", "first", "second", "third")

	_, err := st.ApplyTransition([]uuid.UUID{comments[1].ID}, domain.StatusDeleted, "mod",
		func(_, _ domain.Status) bool { return true })
	req.NoError(err)

	listed, total, err := v.ListComments(CommentFilter{ThreadID: &thread.ID}, 1, 10, SortChronological)
	req.NoError(err)
	req.Equal(3, total)
	req.Len(listed, 3)

	// Then the deleted comment keeps its slot but loses its body
	req.Equal(comments[1].ID, listed[1].ID)
	req.Empty(listed[1].Body)
	req.Equal(domain.StatusDeleted, listed[1].Status)
	req.Equal("first", listed[0].Body)
	req.Equal("third", listed[2].Body)
}

func Test_ListComments_TextFilterCannotLeakDeletedBody(t *testing.T) {
	req := require.New(t)
	v, st := newTestView(t)
	thread, comments := seedThread(t, st, "blog/42", "the secret ingredient is love")

	_, err := st.ApplyTransition([]uuid.UUID{comments[0].ID}, domain.StatusDeleted, "mod",
		func(_, _ domain.Status) bool { return true })
	req.NoError(err)

	// When filtering on text that only existed in the deleted body
	listed, total, err := v.ListComments(CommentFilter{
		ThreadID:     &thread.ID,
		TextContains: "secret",
	}, 1, 10, SortChronological)
	req.NoError(err)
	req.Zero(total)
	req.Empty(listed)
}

func Test_ListComments_StatusAndAuthorFilters(t *testing.T) {
	req := require.New(t)
	v, st := newTestView(t)
	thread, _, err := st.CreateThread("blog/42", "Post", "admin")
	req.NoError(err)
	_, _, err = st.AddComment(thread.ID, nil, domain.Author{Name: "alice"}, "by alice", domain.StatusApproved, "alice")
	req.NoError(err)
	_, _, err = st.AddComment(thread.ID, nil, domain.Author{Name: "bob"}, "by bob", domain.StatusPending, "bob")
	req.NoError(err)

	pending := domain.StatusPending
	listed, total, err := v.ListComments(CommentFilter{ThreadID: &thread.ID, Status: &pending}, 1, 10, SortChronological)
	req.NoError(err)
	req.Equal(1, total)
	req.Equal("bob", listed[0].Author.Name)

	listed, total, err = v.ListComments(CommentFilter{ThreadID: &thread.ID, Author: "alice"}, 1, 10, SortChronological)
	req.NoError(err)
	req.Equal(1, total)
	req.Equal("by alice", listed[0].Body)
}

func Test_ListComments_RecentSortUsesUpdatedAt(t *testing.T) {
	req := require.New(t)
	v, st := newTestView(t)
	thread, comments := seedThread(t, st, "blog/42", "older", "newer")

	// Touch the older comment via a transition so it becomes most recent
	time.Sleep(5 * time.Millisecond)
	_, err := st.ApplyTransition([]uuid.UUID{comments[0].ID}, domain.StatusRejected, "mod",
		func(_, _ domain.Status) bool { return true })
	req.NoError(err)

	listed, _, err := v.ListComments(CommentFilter{ThreadID: &thread.ID}, 1, 10, SortRecent)
	req.NoError(err)
	req.Equal(comments[0].ID, listed[0].ID)
	req.Equal(comments[1].ID, listed[1].ID)
}

func Test_ListComments_UnknownThread(t *testing.T) {
	req := require.New(t)
	v, _ := newTestView(t)
	missing := uuid.New()

	_, _, err := v.ListComments(CommentFilter{ThreadID: &missing}, 1, 10, SortChronological)
	req.ErrorIs(err, apperrors.ErrThreadNotFound)
}

func Test_ListThreads_Filters(t *testing.T) {
	req := require.New(t)
	v, st := newTestView(t)
	seedThread(t, st, "blog/intro")
	locked, _ := seedThread(t, st, "blog/locked")
	_, err := st.SetThreadLocked(locked.ID, true, "admin")
	req.NoError(err)

	listed, total, err := v.ListThreads(ThreadFilter{PageKey: "blog/intro"}, 1, 10)
	req.NoError(err)
	req.Equal(1, total)
	req.Equal("blog/intro", listed[0].PageKey)

	lockedOnly := true
	listed, total, err = v.ListThreads(ThreadFilter{Locked: &lockedOnly}, 1, 10)
	req.NoError(err)
	req.Equal(1, total)
	req.Equal(locked.ID, listed[0].ID)
}

func Test_CommentTree_NestsRepliesInOrder(t *testing.T) {
	req := require.New(t)
	v, st := newTestView(t)
	thread, _, err := st.CreateThread("blog/42", "Post", "admin")
	req.NoError(err)
	alice := domain.Author{Name: "alice"}

	root1, _, err := st.AddComment(thread.ID, nil, alice, "root one", domain.StatusApproved, "alice")
	req.NoError(err)
	root2, _, err := st.AddComment(thread.ID, nil, alice, "root two", domain.StatusApproved, "alice")
	req.NoError(err)
	reply1, _, err := st.AddComment(thread.ID, &root1.ID, alice, "first reply", domain.StatusApproved, "alice")
	req.NoError(err)
	reply2, _, err := st.AddComment(thread.ID, &root1.ID, alice, "second reply", domain.StatusApproved, "alice")
	req.NoError(err)
	nested, _, err := st.AddComment(thread.ID, &reply1.ID, alice, "nested", domain.StatusApproved, "alice")
	req.NoError(err)

	roots, err := v.CommentTree(thread.ID)
	req.NoError(err)
	req.Len(roots, 2)
	req.Equal(root1.ID, roots[0].Comment.ID)
	req.Equal(root2.ID, roots[1].Comment.ID)

	req.Len(roots[0].Replies, 2)
	req.Equal(reply1.ID, roots[0].Replies[0].Comment.ID)
	req.Equal(reply2.ID, roots[0].Replies[1].Comment.ID)
	req.Len(roots[0].Replies[0].Replies, 1)
	req.Equal(nested.ID, roots[0].Replies[0].Replies[0].Comment.ID)
	req.Empty(roots[1].Replies)
}

func Test_CommentTree_RedactsDeletedNodes(t *testing.T) {
	req := require.New(t)
	v, st := newTestView(t)
	thread, _, err := st.CreateThread("blog/42", "Post", "admin")
	req.NoError(err)
	alice := domain.Author{Name: "alice"}

	root, _, err := st.AddComment(thread.ID, nil, alice, "parent body", domain.StatusApproved, "alice")
	req.NoError(err)
	reply, _, err := st.AddComment(thread.ID, &root.ID, alice, "child body", domain.StatusApproved, "alice")
	req.NoError(err)
	_, err = st.ApplyTransition([]uuid.UUID{root.ID}, domain.StatusDeleted, "mod",
		func(_, _ domain.Status) bool { return true })
	req.NoError(err)

	roots, err := v.CommentTree(thread.ID)
	req.NoError(err)
	req.Len(roots, 1)

	// The deleted parent is a redacted placeholder, its reply intact below it
	req.Empty(roots[0].Comment.Body)
	req.Equal(domain.StatusDeleted, roots[0].Comment.Status)
	req.Len(roots[0].Replies, 1)
	req.Equal(reply.ID, roots[0].Replies[0].Comment.ID)
	req.Equal("child body", roots[0].Replies[0].Comment.Body)
}
