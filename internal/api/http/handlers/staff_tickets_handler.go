package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/servicedesk-realtime/internal/api/dto"
	"github.com/spec-kit/servicedesk-realtime/internal/domain"
	"github.com/spec-kit/servicedesk-realtime/internal/service"
	apperrors "github.com/spec-kit/servicedesk-realtime/pkg/util"
)

// TrackingReader returns a ticket's SLA tracking record.
type TrackingReader interface {
	Tracking(ctx context.Context, ticketID string) (*domain.SLATracking, error)
}

// StaffTicketsHandler handles staff-only ticket mutations.
type StaffTicketsHandler struct {
	tickets  *service.TicketService
	tracking TrackingReader
}

// NewStaffTicketsHandler constructs handler.
func NewStaffTicketsHandler(ticketService *service.TicketService, tracking TrackingReader) *StaffTicketsHandler {
	return &StaffTicketsHandler{tickets: ticketService, tracking: tracking}
}

// UpdateStatus PATCH /tickets/:id/status.
func (h *StaffTicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	staff, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil || req.Status == "" {
		return apperrors.NewValidationError("status required", nil)
	}
	ticket, err := h.tickets.UpdateStatus(c.UserContext(), staff, c.Params("id"), req.Status, req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// UpdatePriority PATCH /tickets/:id/priority.
func (h *StaffTicketsHandler) UpdatePriority(c *fiber.Ctx) error {
	staff, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.UpdatePriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.UpdatePriority(c.UserContext(), staff, c.Params("id"), req.Priority)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// Assign PATCH /tickets/:id/assignee.
func (h *StaffTicketsHandler) Assign(c *fiber.Ctx) error {
	staff, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.AssignTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.Assign(c.UserContext(), staff, c.Params("id"), req.AssigneeID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// History GET /tickets/:id/history.
func (h *StaffTicketsHandler) History(c *fiber.Ctx) error {
	staff, err := currentUser(c)
	if err != nil {
		return err
	}
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	entries, err := h.tickets.ListHistory(c.UserContext(), staff, c.Params("id"), limit, max(c.QueryInt("offset", 0), 0))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketHistoryResponses(entries)})
}

// GetSLA GET /tickets/:id/sla.
func (h *StaffTicketsHandler) GetSLA(c *fiber.Ctx) error {
	record, err := h.tracking.Tracking(c.UserContext(), c.Params("id"))
	if apperrors.IsNotFound(err) {
		return apperrors.NewNotFound("sla_tracking", map[string]any{"ticket_id": c.Params("id")})
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSLATrackingResponse(record)})
}
