//go:generate go run go.uber.org/mock/mockgen -source=comment_repository.go -destination=../mocks/mock_comment_repository.go -package=mocks
package repositories

import (
	"comment-hub/contract"
	"comment-hub/domain"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// CommentRepository persists threads and comments in BadgerDB.
//
// Keys are formatted for lexicographic prefix scans:
//   - "thr:{thread_id}" holds the thread record
//   - "cmt:{thread_id}:{timestamp_padded}:{comment_id}" holds one comment;
//     the 19-digit zero padding keeps comments naturally sorted by creation
//     time, and the UUID disambiguates same-nanosecond arrivals.
//
// A comment's key is stable across updates because CreatedAt is immutable.
type CommentRepository struct {
	db  *badger.DB
	log *slog.Logger
}

var _ contract.Persister = (*CommentRepository)(nil)

func NewCommentRepository(db *badger.DB, log *slog.Logger) *CommentRepository {
	return &CommentRepository{db: db, log: log}
}

func threadKey(threadID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("thr:%s", threadID))
}

func commentKey(c domain.Comment) []byte {
	return []byte(fmt.Sprintf("cmt:%s:%019d:%s", c.ThreadID, c.CreatedAt.UnixNano(), c.ID))
}

func commentPrefix(threadID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("cmt:%s:", threadID))
}

// Persist commits one delta in a single transaction: all of it or none.
func (r *CommentRepository) Persist(threadID uuid.UUID, delta contract.Delta) error {
	return r.db.Update(func(txn *badger.Txn) error {
		if delta.RemoveThread {
			return r.removeThread(txn, threadID)
		}
		if delta.Thread != nil {
			value, err := json.Marshal(delta.Thread)
			if err != nil {
				return err
			}
			if err := txn.Set(threadKey(threadID), value); err != nil {
				return err
			}
		}
		for _, comment := range delta.Comments {
			value, err := json.Marshal(comment)
			if err != nil {
				return err
			}
			if err := txn.Set(commentKey(comment), value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *CommentRepository) removeThread(txn *badger.Txn, threadID uuid.UUID) error {
	if err := txn.Delete(threadKey(threadID)); err != nil {
		return err
	}
	options := badger.DefaultIteratorOptions
	options.PrefetchValues = false
	it := txn.NewIterator(options)
	defer it.Close()

	prefix := commentPrefix(threadID)
	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	for _, key := range keys {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

func (r *CommentRepository) Load(threadID uuid.UUID) (contract.StoredThread, error) {
	var stored contract.StoredThread
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(threadKey(threadID))
		if err != nil {
			return err
		}
		if err := item.Value(func(value []byte) error {
			return json.Unmarshal(value, &stored.Thread)
		}); err != nil {
			return err
		}

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := commentPrefix(threadID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var comment domain.Comment
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &comment)
			})
			if err != nil {
				return err
			}
			stored.Comments = append(stored.Comments, comment)
		}
		return nil
	})
	return stored, err
}

// LoadAll restores every stored thread, typically to seed the store at boot.
func (r *CommentRepository) LoadAll() ([]contract.StoredThread, error) {
	var threadIDs []uuid.UUID
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := []byte("thr:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			raw := strings.TrimPrefix(string(it.Item().Key()), "thr:")
			id, err := uuid.Parse(raw)
			if err != nil {
				r.log.Warn(fmt.Sprintf("Skipping malformed thread key %q", raw))
				continue
			}
			threadIDs = append(threadIDs, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	stored := make([]contract.StoredThread, 0, len(threadIDs))
	for _, id := range threadIDs {
		st, err := r.Load(id)
		if err != nil {
			return nil, err
		}
		stored = append(stored, st)
	}
	return stored, nil
}
