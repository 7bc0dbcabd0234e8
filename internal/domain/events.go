/**
 * @description
 * Wire-level event model for the clearing protocol. Every message between
 * the coordinator and a participant bank travels inside an Envelope tagged
 * with an event type; each event type has its own payload struct so that
 * required fields are checked at the router boundary instead of being pulled
 * out of untyped maps deep inside the saga engine.
 *
 * @notes
 * - Outbound envelopes are stamped with an RFC3339 timestamp by the hub at
 *   send time; inbound envelopes may omit it.
 * - Rejection reason codes are part of the wire contract with the bank
 *   simulators and must not be renamed.
 */

package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Event types received from participant banks.
const (
	EventTransferIntent        = "transfer.intent"
	EventTransferReserveResult = "transfer.reserve.result"
	EventTransferCreditResult  = "transfer.credit.result"
	EventTransferDebitResult   = "transfer.debit.result"
)

// Event types emitted to participant banks.
const (
	EventTransferReserve  = "transfer.reserve"
	EventTransferInit     = "transfer.init"
	EventTransferCredit   = "transfer.credit"
	EventTransferDebit    = "transfer.debit"
	EventTransferCommit   = "transfer.commit"
	EventTransferReject   = "transfer.reject"
	EventTransferRollback = "transfer.rollback"
)

// Rejection and failure reason codes.
const (
	ReasonInvalidPayload       = "INVALID_PAYLOAD"
	ReasonCheckBankID          = "CHECK_BANK_ID"
	ReasonUnknownBank          = "UNKNOWN_BANK"
	ReasonSameBankNotAllowed   = "SAME_BANK_NOT_ALLOWED"
	ReasonDestBankOffline      = "DEST_BANK_OFFLINE"
	ReasonAccountNotFound      = "ACCOUNT_NOT_FOUND"
	ReasonAccountNoCredit      = "ACCOUNT_NO_CREDIT"
	ReasonCurrencyNotSupported = "CURRENCY_NOT_SUPPORTED"
	ReasonDuplicateTransferID  = "DUPLICATE_TRANSFER_ID"
	ReasonBankNotRegistered    = "BANK_NOT_REGISTERED"
	ReasonNetworkError         = "NETWORK_ERROR"
	ReasonReserveFailed        = "RESERVE_FAILED"
	ReasonCreditFailed         = "CREDIT_FAILED"
	ReasonDebitFailed          = "DEBIT_FAILED"
)

// Envelope is the tagged event container used in both directions. Data stays
// raw until the dispatcher knows which payload struct the type calls for.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
	TS   string          `json:"ts,omitempty"`
}

// TransferIntent is the originating bank's request to start a transfer.
type TransferIntent struct {
	ID       string          `json:"id"`
	From     string          `json:"from"`
	To       string          `json:"to"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// MissingFields lists the required intent fields that are absent or, for the
// amount, not a positive value. An empty slice means the payload is complete.
func (i TransferIntent) MissingFields() []string {
	var missing []string
	if i.ID == "" {
		missing = append(missing, "id")
	}
	if i.From == "" {
		missing = append(missing, "from")
	}
	if i.To == "" {
		missing = append(missing, "to")
	}
	if !i.Amount.IsPositive() {
		missing = append(missing, "amount")
	}
	if i.Currency == "" {
		missing = append(missing, "currency")
	}
	return missing
}

// PhaseResult is a participant's answer to a reserve, credit or debit
// request. Reason is only meaningful when OK is false.
type PhaseResult struct {
	ID     string `json:"id"`
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// PhaseRequest asks a bank to begin a phase for the given transfer id. Used
// for transfer.reserve and transfer.init.
type PhaseRequest struct {
	ID string `json:"id"`
}

// Rejection tells the originating bank why an intent or a phase was refused.
type Rejection struct {
	ID            string   `json:"id"`
	Reason        string   `json:"reason"`
	From          string   `json:"from,omitempty"`
	To            string   `json:"to,omitempty"`
	MissingFields []string `json:"missing_fields,omitempty"`
}

// Rollback instructs the destination bank to compensate a credit that was
// applied before a later phase failed.
type Rollback struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}
