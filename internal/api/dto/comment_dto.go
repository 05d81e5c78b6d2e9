package dto

import (
	"time"

	"github.com/aarondl/null/v8"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// CommentRequest is accepted as JSON or as a multipart form with an optional
// "image" file part.
type CommentRequest struct {
	CommentText string `json:"comment_text" form:"comment_text" validate:"max=10000"`
}

// CommentResponse representation.
type CommentResponse struct {
	ID             string      `json:"id"`
	TicketID       string      `json:"ticket_id"`
	UserID         string      `json:"user_id"`
	UserName       string      `json:"user_name"`
	UserDepartment null.String `json:"user_department"`
	CommentText    string      `json:"comment_text"`
	ImageURL       null.String `json:"image_url"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// NewCommentResponse maps a comment.
func NewCommentResponse(c *domain.TicketComment) CommentResponse {
	return CommentResponse{
		ID:             c.ID,
		TicketID:       c.TicketID,
		UserID:         c.UserID,
		UserName:       c.UserName,
		UserDepartment: c.UserDepartment,
		CommentText:    c.Text,
		ImageURL:       c.ImageURL,
		CreatedAt:      c.CreatedAt.UTC(),
		UpdatedAt:      c.UpdatedAt.UTC(),
	}
}
