//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"comment-hub/domain"
	"comment-hub/domain/event"
	"context"
	"reflect"

	"github.com/google/uuid"
)

// EventSink consumes change events out of band (search indexing, stats,
// audit). Sinks must tolerate being called from a single fan-out goroutine.
type EventSink interface {
	Consume(ctx context.Context, e event.ChangeEvent) error
}

// Delta is the unit of durable write. A store mutation is acknowledged only
// after its delta has been persisted in full.
type Delta struct {
	Thread       *domain.Thread   // thread record to upsert, nil if untouched
	Comments     []domain.Comment // comment snapshots to upsert
	RemoveThread bool             // drop the whole thread and its comments
}

// StoredThread is one durably stored thread with all of its comments.
type StoredThread struct {
	Thread   domain.Thread
	Comments []domain.Comment
}

// Persister is the storage collaborator. Each Persist call is transactional:
// either the whole delta is committed or none of it.
type Persister interface {
	Persist(threadID uuid.UUID, delta Delta) error
	Load(threadID uuid.UUID) (StoredThread, error)
	LoadAll() ([]StoredThread, error)
}

// ScreenResult is a screening verdict for a newly submitted comment body.
type ScreenResult struct {
	Status  domain.Status // initial moderation status
	Lang    string        // ISO 639-1 code, empty when undetected
	Matched []string      // blocklist terms found, if any
}

// Screener decides the initial status of new comments. Implementations may
// plug in spam or trust scoring; the shipped default is a blocklist matcher.
type Screener interface {
	Screen(body string) ScreenResult
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself; supervision handles panics and restarts.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker,
// avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
