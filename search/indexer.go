// Package search is the optional full-text collaborator. It consumes change
// events out of band to maintain a Bluge index; delivery order is guaranteed
// upstream, index freshness is not.
package search

import (
	"comment-hub/contract"
	"comment-hub/domain"
	"comment-hub/domain/event"
	"context"
	"fmt"
	"log/slog"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
)

const purgeBatchSize = 1000

// Hit is one search result, resolved back to store ids.
type Hit struct {
	CommentID uuid.UUID
	ThreadID  uuid.UUID
	Score     float64
}

type Indexer struct {
	writer *bluge.Writer
	log    *slog.Logger
}

var _ contract.EventSink = (*Indexer)(nil)

func NewIndexer(log *slog.Logger, path string) (*Indexer, error) {
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(path))
	if err != nil {
		return nil, fmt.Errorf("opening bluge index: %w", err)
	}
	return &Indexer{writer: writer, log: log}, nil
}

func (i *Indexer) Close() error {
	return i.writer.Close()
}

func (i *Indexer) Consume(ctx context.Context, e event.ChangeEvent) error {
	switch evt := e.(type) {
	case event.CommentAdded:
		return i.index(evt.Comment)
	case event.StatusChanged:
		// Deleted bodies must stop matching; other transitions don't change
		// the indexed text.
		if evt.To == domain.StatusDeleted {
			return i.writer.Delete(bluge.Identifier(evt.CommentID.String()))
		}
		return nil
	case event.ThreadDeleted:
		return i.purgeThread(ctx, evt.ThreadID())
	default:
		return nil
	}
}

func (i *Indexer) index(c domain.Comment) error {
	doc := bluge.NewDocument(c.ID.String()).
		AddField(bluge.NewTextField("body", c.Body).StoreValue()).
		AddField(bluge.NewKeywordField("thread_id", c.ThreadID.String()).StoreValue()).
		AddField(bluge.NewKeywordField("author", c.Author.Name).StoreValue()).
		AddField(bluge.NewDateTimeField("created_at", c.CreatedAt))
	return i.writer.Update(doc.ID(), doc)
}

// Search runs a match query over comment bodies, optionally scoped to one
// thread.
func (i *Indexer) Search(ctx context.Context, terms string, threadID *uuid.UUID, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(terms).SetField("body"))
	if threadID != nil {
		query.AddMust(bluge.NewTermQuery(threadID.String()).SetField("thread_id"))
	}

	it, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, err
	}

	var hits []Hit
	for {
		match, err := it.Next()
		if err != nil {
			return nil, err
		}
		if match == nil {
			break
		}
		hit := Hit{Score: match.Score}
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				hit.CommentID, _ = uuid.Parse(string(value))
			case "thread_id":
				hit.ThreadID, _ = uuid.Parse(string(value))
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// purgeThread drops every indexed comment of a deleted thread.
func (i *Indexer) purgeThread(ctx context.Context, threadID uuid.UUID) error {
	reader, err := i.writer.Reader()
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()

	query := bluge.NewTermQuery(threadID.String()).SetField("thread_id")
	it, err := reader.Search(ctx, bluge.NewTopNSearch(purgeBatchSize, query))
	if err != nil {
		return err
	}
	for {
		match, err := it.Next()
		if err != nil {
			return err
		}
		if match == nil {
			return nil
		}
		var id string
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				id = string(value)
			}
			return true
		})
		if err != nil {
			return err
		}
		if id != "" {
			if err := i.writer.Delete(bluge.Identifier(id)); err != nil {
				return err
			}
		}
	}
}
