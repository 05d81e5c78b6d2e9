package handlers

import (
	"github.com/aarondl/null/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/service"
	"github.com/spec-kit/helpdesk-service/internal/storage"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// CommentsHandler serves ticket comment threads.
type CommentsHandler struct {
	service *service.CommentService
	images  *storage.ImageStore
}

// NewCommentsHandler constructs handler. images may be nil to refuse uploads.
func NewCommentsHandler(commentService *service.CommentService, images *storage.ImageStore) *CommentsHandler {
	return &CommentsHandler{service: commentService, images: images}
}

// List GET /api/tickets/:id/comments.
func (h *CommentsHandler) List(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	comments, err := h.service.List(c.UserContext(), id)
	if err != nil {
		return err
	}
	items := make([]dto.CommentResponse, 0, len(comments))
	for i := range comments {
		items = append(items, dto.NewCommentResponse(&comments[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Create POST /api/tickets/:id/comments.
func (h *CommentsHandler) Create(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var req dto.CommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}

	var imageURL null.String
	if fh, err := c.FormFile("image"); err == nil {
		if h.images == nil {
			return apperrors.NewValidationError("image uploads are disabled", nil)
		}
		url, err := h.images.Save(fh)
		if err != nil {
			return err
		}
		imageURL = null.StringFrom(url)
	}

	comment, err := h.service.Create(c.UserContext(), principal.Actor(), id, req.CommentText, imageURL)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewCommentResponse(comment)})
}

// Update PUT /api/comments/:id.
func (h *CommentsHandler) Update(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	id, err := commentID(c)
	if err != nil {
		return err
	}
	var req dto.CommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}
	comment, err := h.service.Update(c.UserContext(), principal.Actor(), id, req.CommentText)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewCommentResponse(comment)})
}

// Delete DELETE /api/comments/:id.
func (h *CommentsHandler) Delete(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	id, err := commentID(c)
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.UserContext(), principal.Actor(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func commentID(c *fiber.Ctx) (string, error) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", apperrors.NewNotFound("comment", map[string]any{"comment_id": id})
	}
	return id, nil
}
