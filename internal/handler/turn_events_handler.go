package handler

import (
	"qa-guru-be/internal/pkg/logger"
	internalWS "qa-guru-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v5"
)

// TurnEventsHandler upgrades session subscribers to a websocket carrying live
// turn events (chunks, applied edits, retries, completion).
type TurnEventsHandler struct {
	hub       *internalWS.Hub
	logger    logger.ILogger
	jwtSecret string
}

func NewTurnEventsHandler(hub *internalWS.Hub, log logger.ILogger, jwtSecret string) *TurnEventsHandler {
	return &TurnEventsHandler{
		hub:       hub,
		logger:    log,
		jwtSecret: jwtSecret,
	}
}

func (h *TurnEventsHandler) RegisterRoutes(r fiber.Router) {
	r.Get("/chat/v1/session/:id/events", h.ServeWs)
}

// ServeWs handles websocket requests from the peer.
func (h *TurnEventsHandler) ServeWs(c *fiber.Ctx) error {
	// 1. Get Token source
	// Priority 1: Query Param (Browser standard)
	tokenStr := c.Query("token")

	// Priority 2: Authorization Header (Tooling/Non-browser standard)
	if tokenStr == "" {
		authHeader := c.Get("Authorization")
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			tokenStr = authHeader[7:]
		}
	}

	if tokenStr == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing token (Query 'token' or Header 'Authorization')"})
	}

	// 2. Parse JWT with the same secret the HTTP middleware uses
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.ErrUnauthorized
		}
		return []byte(h.jwtSecret), nil
	})

	if err != nil || !token.Valid {
		h.logger.Warn("TurnEventsHandler", "Invalid Token in WS Handshake", map[string]interface{}{"error": err})
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token claims"})
	}

	userID, ok := claims["user_id"].(string)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Token missing user_id"})
	}

	sessionID := c.Params("id")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing session id"})
	}

	// Upgrade via Fiber WebSocket Middleware
	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(func(conn *websocket.Conn) {
			h.logger.Info("TurnEventsHandler", "Starting WebSocket session", map[string]interface{}{"session_id": sessionID, "user_id": userID})
			internalWS.ServeWs(h.hub, conn, sessionID, userID)
			h.logger.Info("TurnEventsHandler", "WebSocket session ended", map[string]interface{}{"session_id": sessionID})
		})(c)
	}
	return fiber.ErrUpgradeRequired
}
