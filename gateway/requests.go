package gateway

import (
	"comment-hub/domain"
	"comment-hub/errors"
)

type CreateThreadRequest struct {
	PageKey string `json:"page_key" validate:"required,max=300"`
	Title   string `json:"title" validate:"required,max=300"`
}

type SubmitCommentRequest struct {
	ThreadID    string  `json:"thread_id" validate:"required,uuid"`
	ParentID    *string `json:"parent_id" validate:"omitempty,uuid"`
	AuthorName  string  `json:"author_name" validate:"required,max=120"`
	AuthorToken string  `json:"author_token" validate:"required,max=200"`
	Body        string  `json:"body" validate:"required"`
}

type ModerateRequest struct {
	Action string `json:"action" validate:"required,oneof=approve reject delete"`
}

type BulkModerateRequest struct {
	CommentIDs []string `json:"comment_ids" validate:"required,min=1,dive,uuid"`
	Action     string   `json:"action" validate:"required,oneof=approve reject delete"`
}

type SetLockRequest struct {
	Locked bool `json:"locked"`
}

type TokenRequest struct {
	Name     string `json:"name" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func actionStatus(action string) (domain.Status, error) {
	switch action {
	case "approve":
		return domain.StatusApproved, nil
	case "reject":
		return domain.StatusRejected, nil
	case "delete":
		return domain.StatusDeleted, nil
	default:
		return 0, errors.ErrInvalidTransition
	}
}
