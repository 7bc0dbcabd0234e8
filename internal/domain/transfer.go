/**
 * @description
 * This file defines the core domain model for the clearing-service: the
 * interbank Transfer and its saga state. A Transfer is created by the saga
 * engine once an intent passes every pre-check, and its state field is
 * mutated exclusively by the saga engine in response to phase-result events
 * from the participating banks.
 *
 * @notes
 * - Amounts use shopspring/decimal to avoid floating-point drift on money
 *   values while still accepting plain JSON numbers on the wire.
 * - Transfers live in memory for the lifetime of the process; there is no
 *   durable transaction log in this design.
 */

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferState is the saga state of a transfer.
type TransferState string

const (
	StateNew        TransferState = "NEW"
	StateReserved   TransferState = "RESERVED"
	StateCredited   TransferState = "CREDITED"
	StateDebited    TransferState = "DEBITED"
	StateCommitted  TransferState = "COMMITTED"
	StateRejected   TransferState = "REJECTED"
	StateRolledBack TransferState = "ROLLED_BACK"
)

// Terminal reports whether no further phase-result event may change the state.
func (s TransferState) Terminal() bool {
	switch s {
	case StateCommitted, StateRejected, StateRolledBack:
		return true
	}
	return false
}

// Transfer is the unit of work coordinated by the saga engine. It maps one
// caller-supplied id to the two participating banks and the current phase.
type Transfer struct {
	ID        string          `json:"id"`
	FromBank  string          `json:"fromBank"`
	From      string          `json:"from"`
	ToBank    string          `json:"toBank"`
	To        string          `json:"to"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	State     TransferState   `json:"state"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Endpoint describes a connected bank participant. Liveness is derived from
// hub membership at query time and is deliberately not stored here.
type Endpoint struct {
	BankCode string `json:"bankCode"`
	BankName string `json:"bankName"`
}
