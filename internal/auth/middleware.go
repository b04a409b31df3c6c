package auth

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/servicedesk-realtime/internal/domain"
	apperrors "github.com/spec-kit/servicedesk-realtime/pkg/util"
)

const principalKey = "auth_principal"

// AuthMiddleware validates bearer tokens and loads the calling user.
type AuthMiddleware struct {
	authenticator *Authenticator
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(authenticator *Authenticator) *AuthMiddleware {
	return &AuthMiddleware{authenticator: authenticator}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	token := BearerToken(c.Get(fiber.HeaderAuthorization), "")
	user, err := m.authenticator.Authenticate(c.UserContext(), token)
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingCredential):
			return apperrors.NewUnauthorized("missing authorization header")
		case errors.Is(err, ErrInvalidCredential):
			return apperrors.NewUnauthorized("invalid token")
		case errors.Is(err, ErrUnknownUser):
			return apperrors.NewUnauthorized("user not found or inactive")
		}
		return apperrors.MapError(err)
	}
	c.Locals(principalKey, user)
	return c.Next()
}

// UserFromContext retrieves the authenticated user.
func UserFromContext(c *fiber.Ctx) (*domain.User, bool) {
	user, ok := c.Locals(principalKey).(*domain.User)
	return user, ok && user != nil
}
