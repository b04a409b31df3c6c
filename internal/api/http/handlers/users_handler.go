package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/servicedesk-realtime/internal/api/dto"
	"github.com/spec-kit/servicedesk-realtime/internal/domain"
	"github.com/spec-kit/servicedesk-realtime/internal/repository"
	"github.com/spec-kit/servicedesk-realtime/internal/service"
)

// Presence reports whether a user holds a live connection.
type Presence interface {
	IsConnected(userID string) bool
}

// UsersHandler serves endpoints about the calling user.
type UsersHandler struct {
	users         repository.UserRepository
	notifications *service.NotificationService
	presence      Presence
}

// NewUsersHandler creates handler.
func NewUsersHandler(users repository.UserRepository, notifications *service.NotificationService, presence Presence) *UsersHandler {
	return &UsersHandler{users: users, notifications: notifications, presence: presence}
}

// Me GET /me.
func (h *UsersHandler) Me(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.userResponse(user)})
}

// Staff GET /staff lists active staff with their live presence.
func (h *UsersHandler) Staff(c *fiber.Ctx) error {
	staff, err := h.users.ListByRoles(c.UserContext(), domain.StaffRoles)
	if err != nil {
		return err
	}
	items := make([]dto.UserResponse, 0, len(staff))
	for i := range staff {
		items = append(items, h.userResponse(&staff[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func (h *UsersHandler) userResponse(user *domain.User) dto.UserResponse {
	return dto.UserResponse{
		ID:     user.ID,
		Name:   user.Name,
		Email:  user.Email,
		Roles:  user.Roles,
		Online: h.presence != nil && h.presence.IsConnected(user.ID),
	}
}

// Notifications GET /notifications.
func (h *UsersHandler) Notifications(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	items, err := h.notifications.ListForUser(c.UserContext(), user.ID, limit, max(c.QueryInt("offset", 0), 0))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewNotificationResponses(items)})
}
