/**
 * @description
 * The Hub is the coordinator's presence registry and outbound event channel.
 * It tracks which bank endpoints are currently connected, answers
 * reachability queries from live membership (never from a cache), and
 * delivers typed event envelopes to every session a bank has open.
 *
 * Delivery semantics are at-most-once and best-effort: emitting to a bank
 * with no sessions is a no-op, and nothing is queued for later.
 *
 * @dependencies
 * - encoding/json, log/slog, sync, time: Standard Go libraries.
 * - github.com/google/uuid: session identity keys.
 * - internal/domain: the event envelope.
 */

package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bancentral/clearing-service/internal/domain"
)

// Hub owns endpoint liveness. Membership changes and queries may arrive from
// any connection goroutine concurrently.
type Hub struct {
	logger   *slog.Logger
	mockBank string

	mu       sync.RWMutex
	sessions map[string]map[uuid.UUID]*Session
}

// NewHub creates an empty registry. mockBank is reported online regardless
// of actual connections.
func NewHub(logger *slog.Logger, mockBank string) *Hub {
	return &Hub{
		logger:   logger,
		mockBank: mockBank,
		sessions: make(map[string]map[uuid.UUID]*Session),
	}
}

// Join registers a session under its declared bank code.
func (h *Hub) Join(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	byID, ok := h.sessions[s.BankCode]
	if !ok {
		byID = make(map[uuid.UUID]*Session)
		h.sessions[s.BankCode] = byID
	}
	byID[s.ID] = s
	h.logger.Info("bank connected", "bank", s.BankCode, "name", s.BankName, "session", s.ID)
}

// Leave removes a session and closes it. Unknown sessions are a no-op.
func (h *Hub) Leave(s *Session) {
	h.mu.Lock()
	if byID, ok := h.sessions[s.BankCode]; ok {
		delete(byID, s.ID)
		if len(byID) == 0 {
			delete(h.sessions, s.BankCode)
		}
	}
	h.mu.Unlock()

	s.Close()
	h.logger.Info("bank disconnected", "bank", s.BankCode, "name", s.BankName, "session", s.ID)
}

// IsOnline reports whether a bank has at least one live session right now.
// The mock bank is always online.
func (h *Hub) IsOnline(bankCode string) bool {
	if bankCode == h.mockBank {
		return true
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[bankCode]) > 0
}

// Endpoints lists the currently connected banks, one entry per bank code.
func (h *Hub) Endpoints() []domain.Endpoint {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]domain.Endpoint, 0, len(h.sessions))
	for code, byID := range h.sessions {
		ep := domain.Endpoint{BankCode: code}
		for _, s := range byID {
			ep.BankName = s.BankName
			break
		}
		out = append(out, ep)
	}
	return out
}

// Emit sends one typed event to every session of the given bank. The
// envelope is stamped with the send timestamp. Delivery to an offline bank,
// or to a session whose buffer is full, is silently dropped.
func (h *Hub) Emit(bankCode, eventType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("event payload marshal failed", "type", eventType, "bank", bankCode, "err", err)
		return
	}
	msg, err := json.Marshal(domain.Envelope{
		Type: eventType,
		Data: raw,
		TS:   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		h.logger.Error("envelope marshal failed", "type", eventType, "bank", bankCode, "err", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions[bankCode]))
	for _, s := range h.sessions[bankCode] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if !s.enqueue(msg) {
			h.logger.Warn("event dropped", "type", eventType, "bank", bankCode, "session", s.ID)
		}
	}
}
