package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/aarondl/null/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
	"github.com/spec-kit/helpdesk-service/internal/storage"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
	images  *storage.ImageStore
	now     func() time.Time
}

// NewTicketsHandler constructs handler. A nil image store disables uploads.
func NewTicketsHandler(ticketService *service.TicketService, images *storage.ImageStore) *TicketsHandler {
	return &TicketsHandler{service: ticketService, images: images, now: time.Now}
}

// CreateTicket POST /api/tickets. Accepts JSON, or a multipart form with an
// optional description_image file.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CreateTicketRequest
	multipartBody := strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm)
	if multipartBody {
		form, err := c.MultipartForm()
		if err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
		if req, err = dto.CreateTicketRequestFromForm(form); err != nil {
			return err
		}
	} else if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}

	if multipartBody {
		if fh, err := c.FormFile("description_image"); err == nil {
			if h.images == nil {
				return apperrors.NewValidationError("image uploads are disabled", nil)
			}
			url, err := h.images.Save(fh)
			if err != nil {
				return err
			}
			req.DescriptionImageURL = null.StringFrom(url)
		}
	}

	result, err := h.service.CreateTicket(c.UserContext(), principal.Actor(), req.Input())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"data":    dto.NewTicketResponse(result.Ticket, h.now()),
		"effects": dto.NewEffectsResponse(result.Effects),
	})
}

// UpdateTicket PUT /api/tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	changes, err := dto.ParseTicketChanges(c.Body())
	if err != nil {
		return err
	}

	result, err := h.service.UpdateTicket(c.UserContext(), id, principal.Actor(), changes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data":    dto.NewTicketResponse(result.Ticket, h.now()),
		"effects": dto.NewEffectsResponse(result.Effects),
	})
}

// GetTicket GET /api/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.GetTicket(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket, h.now())})
}

// ListTickets GET /api/tickets?status=open|closed&department_id=.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter, err := parseTicketQuery(c)
	if err != nil {
		return err
	}
	if dept := c.Query("department_id"); dept != "" {
		if _, err := uuid.Parse(dept); err != nil {
			return apperrors.NewValidationError("invalid department_id", map[string]any{"department_id": dept})
		}
		filter.DepartmentID = &dept
	}
	tickets, err := h.service.ListTickets(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.ticketList(tickets)})
}

// ListMyDepartment GET /api/tickets/my-department.
func (h *TicketsHandler) ListMyDepartment(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	filter, err := parseTicketQuery(c)
	if err != nil {
		return err
	}
	tickets, err := h.service.ListMyDepartment(c.UserContext(), principal.Actor(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.ticketList(tickets)})
}

// History GET /api/tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	entries, err := h.service.History(c.UserContext(), id)
	if err != nil {
		return err
	}
	items := make([]dto.HistoryResponse, 0, len(entries))
	for i := range entries {
		items = append(items, dto.NewHistoryResponse(&entries[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func (h *TicketsHandler) ticketList(tickets []domain.TicketDetails) []dto.TicketResponse {
	now := h.now()
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewTicketResponse(&tickets[i], now))
	}
	return items
}

// ticketID rejects ids that cannot name a ticket, so they read as not found.
func ticketID(c *fiber.Ctx) (string, error) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	return id, nil
}

func parseTicketQuery(c *fiber.Ctx) (service.TicketListFilter, error) {
	filter := service.TicketListFilter{Group: c.Query("status")}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, apperrors.NewValidationError("invalid limit", map[string]any{"limit": raw})
		}
		filter.Limit = limit
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return filter, apperrors.NewValidationError("invalid offset", map[string]any{"offset": raw})
		}
		filter.Offset = offset
	}
	return filter, nil
}
