/**
 * @description
 * A Session is one live websocket connection from a participant bank. Each
 * session owns a buffered send channel drained by a single write pump, so
 * concurrent emitters never write to the websocket directly and slow peers
 * only cost themselves dropped events, never a blocked coordinator.
 *
 * @dependencies
 * - github.com/google/uuid: session identity.
 * - github.com/gorilla/websocket: the underlying connection.
 */

package hub

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// sendBuffer bounds per-session outbound queueing. Delivery is
	// at-most-once; a full buffer drops the event.
	sendBuffer = 64

	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// Session is a single connected bank endpoint.
type Session struct {
	ID       uuid.UUID
	BankCode string
	BankName string

	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	closeOnce sync.Once
}

// NewSession wraps an upgraded websocket connection for a declared bank.
func NewSession(conn *websocket.Conn, bankCode, bankName string) *Session {
	return &Session{
		ID:       uuid.New(),
		BankCode: bankCode,
		BankName: bankName,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
	}
}

// enqueue hands a marshaled envelope to the write pump without blocking.
// It reports false when the session is closing or its buffer is full.
func (s *Session) enqueue(msg []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- msg:
		return true
	default:
		return false
	}
}

// ReadMessage blocks for the next inbound message from the peer.
func (s *Session) ReadMessage() ([]byte, error) {
	_, msg, err := s.conn.ReadMessage()
	return msg, err
}

// Close tears the session down. Safe to call from any goroutine, repeatedly.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn != nil {
			s.conn.Close()
		}
	})
}

// WritePump drains the send channel onto the websocket and keeps the
// connection alive with periodic pings. It runs until the session closes.
func (s *Session) WritePump(logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case msg := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug("session write failed", "bank", s.BankCode, "session", s.ID, "err", err)
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}
