package domain

import (
	"time"

	"github.com/google/uuid"
)

// Author is the identity recorded on a comment. It is supplied, already
// verified, by the caller; the core never authenticates anyone itself.
type Author struct {
	Name  string
	Token string
}

// Comment is a single message node within a thread's forest.
// Parent/child relations are id references only, never direct links,
// so the arena representation owns every record exactly once.
type Comment struct {
	ID        uuid.UUID
	ThreadID  uuid.UUID
	ParentID  *uuid.UUID // nil means root
	Author    Author
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
	Status    Status
	Children  []uuid.UUID // insertion order = reply order
}

// SoftDeleted reports whether the comment body must be redacted from read
// projections. The node itself stays in place to preserve thread shape.
func (c Comment) SoftDeleted() bool {
	return c.Status == StatusDeleted
}
