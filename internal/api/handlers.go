/**
 * @description
 * This file contains the HTTP handlers for the clearing-service. The only
 * real surface is the websocket endpoint participant banks connect to: the
 * handshake authenticates the shared bearer token and the self-declared bank
 * code before the upgrade, so unauthenticated peers never get an event
 * processed. After the upgrade the connection is registered in the hub and
 * its read loop feeds the event dispatcher until the peer disconnects.
 *
 * @dependencies
 * - log/slog, net/http, strings: Standard Go libraries.
 * - github.com/gorilla/websocket: connection upgrade.
 * - internal/app, internal/hub: dispatcher and presence registry.
 */

package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/bancentral/clearing-service/internal/app"
	"github.com/bancentral/clearing-service/internal/hub"
)

// Handlers holds the collaborators the websocket endpoint needs.
type Handlers struct {
	logger     *slog.Logger
	hub        *hub.Hub
	dispatcher *app.Dispatcher
	apiToken   string
	upgrader   websocket.Upgrader
}

// NewHandlers creates the handler set. apiToken is the shared bearer
// credential every participant must present.
func NewHandlers(logger *slog.Logger, h *hub.Hub, dispatcher *app.Dispatcher, apiToken string) *Handlers {
	return &Handlers{
		logger:     logger,
		hub:        h,
		dispatcher: dispatcher,
		apiToken:   apiToken,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Participants are backend services, not browsers.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// credential pulls the bearer token from the Authorization header, falling
// back to the "token" query parameter for clients that cannot set headers.
func credential(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// bankIdentity reads the self-declared bank code and display name from
// headers, with query parameters as fallback.
func bankIdentity(r *http.Request) (code, name string) {
	code = r.Header.Get("X-Bank-Id")
	if code == "" {
		code = r.URL.Query().Get("bankId")
	}
	name = r.Header.Get("X-Bank-Name")
	if name == "" {
		name = r.URL.Query().Get("bankName")
	}
	return code, name
}

// BanksHandler lists the currently connected bank endpoints.
func (h *Handlers) BanksHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.hub.Endpoints()); err != nil {
		h.logger.Error("banks list encode failed", "err", err)
	}
}

// ConnectHandler authenticates and upgrades a participant connection.
func (h *Handlers) ConnectHandler(w http.ResponseWriter, r *http.Request) {
	bankCode, bankName := bankIdentity(r)
	if bankCode == "" {
		http.Error(w, "missing bank id", http.StatusBadRequest)
		return
	}
	if credential(r) != h.apiToken {
		h.logger.Warn("connection rejected", "bank", bankCode, "reason", "invalid token")
		http.Error(w, "missing or invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "bank", bankCode, "err", err)
		return
	}

	session := hub.NewSession(conn, bankCode, bankName)
	h.hub.Join(session)

	go session.WritePump(h.logger)
	go h.readLoop(session)
}

// readLoop pumps inbound messages into the dispatcher until the connection
// drops, then deregisters the session.
func (h *Handlers) readLoop(session *hub.Session) {
	defer h.hub.Leave(session)

	ctx := context.Background()
	for {
		msg, err := session.ReadMessage()
		if err != nil {
			return
		}
		h.dispatcher.Dispatch(ctx, session.BankCode, msg)
	}
}
