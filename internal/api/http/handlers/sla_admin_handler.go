package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/servicedesk-realtime/internal/api/dto"
	"github.com/spec-kit/servicedesk-realtime/internal/domain"
	"github.com/spec-kit/servicedesk-realtime/internal/service"
	apperrors "github.com/spec-kit/servicedesk-realtime/pkg/util"
)

// SLAAdminHandler manages SLA policies and escalation rules.
type SLAAdminHandler struct {
	admin *service.SLAAdminService
}

// NewSLAAdminHandler constructs handler.
func NewSLAAdminHandler(admin *service.SLAAdminService) *SLAAdminHandler {
	return &SLAAdminHandler{admin: admin}
}

// ListPolicies GET /admin/sla/policies.
func (h *SLAAdminHandler) ListPolicies(c *fiber.Ctx) error {
	policies, err := h.admin.ListPolicies(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": policies})
}

// CreatePolicy POST /admin/sla/policies.
func (h *SLAAdminHandler) CreatePolicy(c *fiber.Ctx) error {
	var req dto.CreatePolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	policy := &domain.SLAPolicy{
		Name:                 req.Name,
		Priority:             req.Priority,
		FirstResponseMinutes: req.FirstResponseMinutes,
		ResolutionMinutes:    req.ResolutionMinutes,
		BusinessHours:        req.BusinessHours,
	}
	if err := h.admin.CreatePolicy(c.UserContext(), policy); err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": policy})
}

// UpdatePolicy PATCH /admin/sla/policies/:id.
func (h *SLAAdminHandler) UpdatePolicy(c *fiber.Ctx) error {
	var req dto.UpdatePolicyRequest
	if err := c.BodyParser(&req); err != nil || req.Active == nil {
		return apperrors.NewValidationError("active required", nil)
	}
	policy, err := h.admin.SetPolicyActive(c.UserContext(), c.Params("id"), *req.Active)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": policy})
}

// AddRule POST /admin/sla/policies/:id/rules.
func (h *SLAAdminHandler) AddRule(c *fiber.Ctx) error {
	var req dto.CreateRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	rule := &domain.EscalationRule{
		Name:               req.Name,
		Trigger:            req.TriggerCondition,
		TriggerTimeMinutes: req.TriggerTimeMinutes,
		Action:             req.Action,
		TargetUserID:       req.TargetUserID,
		NewPriority:        req.NewPriority,
		Position:           req.Position,
	}
	if err := h.admin.AddRule(c.UserContext(), c.Params("id"), rule); err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": rule})
}

// Sweep POST /admin/sla/sweep.
func (h *SLAAdminHandler) Sweep(c *fiber.Ctx) error {
	flagged, err := h.admin.Sweep(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"flagged": flagged}})
}
