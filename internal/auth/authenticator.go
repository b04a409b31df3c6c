package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/spec-kit/servicedesk-realtime/internal/domain"
	apperrors "github.com/spec-kit/servicedesk-realtime/pkg/util"
)

// Handshake failures. Each carries the reason sent to the client.
var (
	ErrMissingCredential = errors.New("authentication required")
	ErrInvalidCredential = errors.New("invalid or expired token")
	ErrUnknownUser       = errors.New("user not found or inactive")
)

// UserLookup resolves a user record by id.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// Authenticator verifies a bearer credential and resolves the active user behind it.
type Authenticator struct {
	tokens *TokenManager
	users  UserLookup
}

// NewAuthenticator constructs an authenticator.
func NewAuthenticator(tokens *TokenManager, users UserLookup) *Authenticator {
	return &Authenticator{tokens: tokens, users: users}
}

// Authenticate returns the user for token or one of the handshake errors.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingCredential
	}
	claims, err := a.tokens.ParseToken(token)
	if err != nil {
		return nil, ErrInvalidCredential
	}
	user, err := a.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, ErrUnknownUser
		}
		return nil, err
	}
	if !user.IsActive() {
		return nil, ErrUnknownUser
	}
	return user, nil
}

// BearerToken extracts the credential from an Authorization header, falling
// back to a query parameter value.
func BearerToken(header, query string) string {
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return strings.TrimSpace(query)
}
