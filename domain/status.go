package domain

import "fmt"

// Status governs the visibility of a comment. Deletion is modeled as a
// regular status so that soft-deleting is just another transition and the
// node keeps its place in the thread structure.
type Status int

const (
	StatusPending Status = iota
	StatusApproved
	StatusRejected
	StatusDeleted
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "rejected"
	case StatusDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

func ParseStatus(str string) (Status, error) {
	switch str {
	case "pending":
		return StatusPending, nil
	case "approved":
		return StatusApproved, nil
	case "rejected":
		return StatusRejected, nil
	case "deleted":
		return StatusDeleted, nil
	default:
		return 0, fmt.Errorf("unknown status %q", str)
	}
}
