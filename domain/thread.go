// Package domain contains the core concepts of the comment system.
// No runtime, network, or storage logic should be added here.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Thread is a top-level discussion bound to one external page key.
// Root comment ids are kept in insertion order.
type Thread struct {
	ID        uuid.UUID
	PageKey   string
	Title     string
	CreatedAt time.Time
	Locked    bool
	Roots     []uuid.UUID
}
