package service

import (
	"context"
	"errors"
	"strings"

	"github.com/aarondl/null/v8"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// CommentService manages ticket comment threads. Comments carry no state and
// never touch ticket history.
type CommentService struct {
	comments repository.TicketCommentRepository
	tickets  repository.TicketRepository
}

// NewCommentService constructs the service.
func NewCommentService(comments repository.TicketCommentRepository, tickets repository.TicketRepository) *CommentService {
	return &CommentService{comments: comments, tickets: tickets}
}

// List returns a ticket's comments oldest first.
func (s *CommentService) List(ctx context.Context, ticketID string) ([]domain.TicketComment, error) {
	if err := s.ensureTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	return s.comments.ListByTicket(ctx, ticketID)
}

// Create adds a comment by actor. imageURL is the stored upload, if any.
func (s *CommentService) Create(ctx context.Context, actor domain.Actor, ticketID, text string, imageURL null.String) (*domain.TicketComment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewMissingField("comment_text")
	}
	if err := s.ensureTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	comment := &domain.TicketComment{
		TicketID: ticketID,
		UserID:   actor.UserID,
		Text:     text,
		ImageURL: imageURL,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, err
	}
	return s.comments.GetByID(ctx, comment.ID)
}

// Update replaces the text of a comment. Only its author may edit it.
func (s *CommentService) Update(ctx context.Context, actor domain.Actor, commentID, text string) (*domain.TicketComment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewMissingField("comment_text")
	}
	comment, err := s.get(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if comment.UserID != actor.UserID {
		return nil, apperrors.NewForbidden("you can only edit your own comments")
	}
	if err := s.comments.UpdateText(ctx, commentID, text); err != nil {
		return nil, err
	}
	return s.get(ctx, commentID)
}

// Delete removes a comment. The author or an admin may delete it.
func (s *CommentService) Delete(ctx context.Context, actor domain.Actor, commentID string) error {
	comment, err := s.get(ctx, commentID)
	if err != nil {
		return err
	}
	if comment.UserID != actor.UserID && !actor.IsAdmin {
		return apperrors.NewForbidden("you can only delete your own comments")
	}
	return s.comments.Delete(ctx, commentID)
}

func (s *CommentService) get(ctx context.Context, commentID string) (*domain.TicketComment, error) {
	comment, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("comment", map[string]any{"comment_id": commentID})
		}
		return nil, err
	}
	return comment, nil
}

func (s *CommentService) ensureTicket(ctx context.Context, ticketID string) error {
	if _, err := s.tickets.GetByID(ctx, ticketID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return err
	}
	return nil
}
