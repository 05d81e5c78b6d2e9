package handlers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// AnalyticsHandler serves reporting endpoints.
type AnalyticsHandler struct {
	analytics *service.AnalyticsService
}

// NewAnalyticsHandler constructs handler.
func NewAnalyticsHandler(analytics *service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// Departments handles GET /api/analytics.
func (h *AnalyticsHandler) Departments(c *fiber.Ctx) error {
	stats, err := h.analytics.DepartmentStats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}

// EmailStats handles GET /api/analytics/email-stats.
func (h *AnalyticsHandler) EmailStats(c *fiber.Ctx) error {
	stats, err := h.analytics.EmailStats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}

// Export handles GET /api/analytics/export.
func (h *AnalyticsHandler) Export(c *fiber.Ctx) error {
	data, err := h.analytics.ExportDepartmentStats(c.UserContext())
	if err != nil {
		return err
	}
	filename := fmt.Sprintf("department-analytics-%s.xlsx", time.Now().UTC().Format("2006-01-02"))
	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Send(data)
}
