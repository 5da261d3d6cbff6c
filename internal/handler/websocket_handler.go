package handler

import (
	"context"
	"errors"
	"net/http"

	ws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/lendbook/lendbook-backend/internal/websocket"
	"github.com/rs/zerolog/log"
)

// SocketAuthenticator resolves the token on an upgrade request to a connection identity
type SocketAuthenticator interface {
	Authenticate(ctx context.Context, token string) (websocket.Identity, error)
}

// WebSocketHandler upgrades authenticated requests to live event streams
type WebSocketHandler struct {
	hub      *websocket.Hub
	auth     SocketAuthenticator
	origins  map[string]struct{}
	upgrader ws.Upgrader
}

// NewWebSocketHandler accepts browser upgrades only from the configured CORS origins
func NewWebSocketHandler(hub *websocket.Hub, auth SocketAuthenticator, allowedOrigins []string) *WebSocketHandler {
	h := &WebSocketHandler{
		hub:     hub,
		auth:    auth,
		origins: make(map[string]struct{}, len(allowedOrigins)),
	}
	for _, origin := range allowedOrigins {
		h.origins[origin] = struct{}{}
	}
	h.upgrader = ws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if _, ok := h.origins[origin]; ok {
		return true
	}
	log.Warn().Str("origin", origin).Msg("WebSocket origin rejected")
	return false
}

// HandleWS handles GET /ws?token=<jwt>. Browsers cannot set headers on an upgrade, so
// the access token travels in the query string.
func (h *WebSocketHandler) HandleWS(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return NewUnauthorizedError(c, "Missing token")
	}

	identity, err := h.auth.Authenticate(c.Request().Context(), token)
	switch {
	case err == nil:
	case errors.Is(err, websocket.ErrInvalidToken), errors.Is(err, websocket.ErrUnknownUser):
		log.Debug().Err(err).Msg("WebSocket authentication failed")
		return NewUnauthorizedError(c, "Invalid token")
	default:
		return handleServiceError(c, err, "open event stream")
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		log.Debug().Err(err).Str("user_id", identity.UserID.String()).Msg("WebSocket upgrade failed")
		return nil
	}

	stream := websocket.NewConnection(conn, identity)
	log.Info().
		Str("user_id", identity.UserID.String()).
		Str("role", string(identity.Role)).
		Str("client_id", stream.ID()).
		Msg("WebSocket client connected")

	go stream.Serve(h.hub)
	return nil
}
