package search

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"comment-hub/domain"
	"comment-hub/domain/event"
)

func newTestIndexer(t *testing.T) *Indexer {
	t.Helper()
	indexer, err := NewIndexer(slog.Default(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = indexer.Close() })
	return indexer
}

func indexComment(t *testing.T, indexer *Indexer, threadID uuid.UUID, body string) domain.Comment {
	t.Helper()
	comment := domain.Comment{
		ID:        uuid.New(),
		ThreadID:  threadID,
		Author:    domain.Author{Name: "alice"},
		Body:      body,
		CreatedAt: time.Now().UTC(),
		Status:    domain.StatusApproved,
	}
	err := indexer.Consume(context.Background(), event.CommentAdded{
		Meta:    event.Meta{Thread: threadID},
		Comment: comment,
	})
	require.NoError(t, err)
	return comment
}

func Test_Search_FindsIndexedComment(t *testing.T) {
	req := require.New(t)
	indexer := newTestIndexer(t)
	threadID := uuid.New()

	match := indexComment(t, indexer, threadID, "the quick brown fox jumps over the lazy dog")
	indexComment(t, indexer, threadID, "something else entirely")

	hits, err := indexer.Search(context.Background(), "quick fox", nil, 10)
	req.NoError(err)
	req.Len(hits, 1)
	req.Equal(match.ID, hits[0].CommentID)
	req.Equal(threadID, hits[0].ThreadID)
	req.Greater(hits[0].Score, 0.0)
}

func Test_Search_ScopedToThread(t *testing.T) {
	req := require.New(t)
	indexer := newTestIndexer(t)
	threadA, threadB := uuid.New(), uuid.New()

	inA := indexComment(t, indexer, threadA, "gardening tips for spring")
	indexComment(t, indexer, threadB, "gardening tips for winter")

	hits, err := indexer.Search(context.Background(), "gardening", &threadA, 10)
	req.NoError(err)
	req.Len(hits, 1)
	req.Equal(inA.ID, hits[0].CommentID)

	hits, err = indexer.Search(context.Background(), "gardening", nil, 10)
	req.NoError(err)
	req.Len(hits, 2)
}

func Test_Consume_DeletionRemovesFromIndex(t *testing.T) {
	req := require.New(t)
	indexer := newTestIndexer(t)
	threadID := uuid.New()
	comment := indexComment(t, indexer, threadID, "soon to be deleted content")

	err := indexer.Consume(context.Background(), event.StatusChanged{
		Meta:      event.Meta{Thread: threadID},
		CommentID: comment.ID,
		From:      domain.StatusApproved,
		To:        domain.StatusDeleted,
	})
	req.NoError(err)

	hits, err := indexer.Search(context.Background(), "deleted content", nil, 10)
	req.NoError(err)
	req.Empty(hits)
}

func Test_Consume_NonDeleteTransitionKeepsIndex(t *testing.T) {
	req := require.New(t)
	indexer := newTestIndexer(t)
	threadID := uuid.New()
	comment := indexComment(t, indexer, threadID, "a perfectly fine comment")

	err := indexer.Consume(context.Background(), event.StatusChanged{
		Meta:      event.Meta{Thread: threadID},
		CommentID: comment.ID,
		From:      domain.StatusPending,
		To:        domain.StatusApproved,
	})
	req.NoError(err)

	hits, err := indexer.Search(context.Background(), "perfectly fine", nil, 10)
	req.NoError(err)
	req.Len(hits, 1)
}

func Test_Consume_ThreadDeletedPurgesAllItsComments(t *testing.T) {
	req := require.New(t)
	indexer := newTestIndexer(t)
	doomed, kept := uuid.New(), uuid.New()

	indexComment(t, indexer, doomed, "doomed comment about cooking")
	indexComment(t, indexer, doomed, "another doomed comment about cooking")
	survivor := indexComment(t, indexer, kept, "surviving comment about cooking")

	err := indexer.Consume(context.Background(), event.ThreadDeleted{
		Meta: event.Meta{Thread: doomed},
	})
	req.NoError(err)

	hits, err := indexer.Search(context.Background(), "cooking", nil, 10)
	req.NoError(err)
	req.Len(hits, 1)
	req.Equal(survivor.ID, hits[0].CommentID)
}
