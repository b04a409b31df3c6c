package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk-realtime/internal/auth"
	"github.com/spec-kit/servicedesk-realtime/internal/domain"
	"github.com/spec-kit/servicedesk-realtime/internal/observability"
	"github.com/spec-kit/servicedesk-realtime/internal/realtime"
)

const tokenLocal = "realtime_token"

// UserAuthenticator resolves a bearer credential to an active user.
type UserAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

// RealtimeHandler upgrades live connections and admits them to the hub.
type RealtimeHandler struct {
	hub         *realtime.Hub
	auth        UserAuthenticator
	authTimeout time.Duration
	logger      *zap.Logger
}

// NewRealtimeHandler creates handler.
func NewRealtimeHandler(hub *realtime.Hub, authenticator UserAuthenticator, logger *zap.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		hub:         hub,
		auth:        authenticator,
		authTimeout: 5 * time.Second,
		logger:      observability.OrNop(logger).Named("realtime"),
	}
}

// Upgrade rejects plain HTTP requests and captures the credential before the upgrade.
func (h *RealtimeHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	c.Locals(tokenLocal, auth.BearerToken(c.Get(fiber.HeaderAuthorization), c.Query("token")))
	return c.Next()
}

// Serve returns the websocket endpoint.
func (h *RealtimeHandler) Serve() fiber.Handler {
	return websocket.New(h.serve)
}

func (h *RealtimeHandler) serve(ws *websocket.Conn) {
	token, _ := ws.Locals(tokenLocal).(string)
	ctx, cancel := context.WithTimeout(context.Background(), h.authTimeout)
	user, err := h.auth.Authenticate(ctx, token)
	cancel()
	if err != nil {
		h.reject(ws, err)
		return
	}

	conn := h.hub.Connect(user, ws)
	defer h.hub.Disconnect(conn)

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("read failed", zap.String("connection_id", conn.ID), zap.Error(err))
			}
			return
		}
		h.hub.HandleMessage(conn, raw)
	}
}

// reject closes an unauthenticated socket with a policy-violation status.
func (h *RealtimeHandler) reject(ws *websocket.Conn, err error) {
	reason := "authentication failed"
	switch {
	case errors.Is(err, auth.ErrMissingCredential),
		errors.Is(err, auth.ErrInvalidCredential),
		errors.Is(err, auth.ErrUnknownUser):
		reason = err.Error()
	default:
		h.logger.Error("authentication lookup failed", zap.Error(err))
	}
	h.logger.Info("connection rejected", zap.String("reason", reason))

	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = ws.Close()
}

// Stats GET /realtime/stats.
func (h *RealtimeHandler) Stats(c *fiber.Ctx) error {
	stats := fiber.Map{
		"connected": h.hub.ConnectedCount(),
		"users":     h.hub.Registry().UserCount(),
	}
	if resource := strings.TrimSpace(c.Query("resource")); resource != "" {
		stats["resource"] = resource
		stats["subscribers"] = h.hub.SubscriberCount(resource)
	}
	return c.JSON(fiber.Map{"data": stats})
}
