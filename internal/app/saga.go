/**
 * @description
 * This file contains the transfer saga engine, the core of the
 * clearing-service. The `Service` struct owns the in-memory transfer table
 * and is its only writer. It validates incoming transfer intents against the
 * bank catalog, the presence registry and the destination bank's account
 * verification API, then drives each accepted transfer through the
 * reserve → credit → debit protocol, deciding commit, reject or rollback
 * from the phase results the two participating banks report back.
 *
 * Key invariants:
 * - Intent validation short-circuits on first failure and never creates
 *   transfer state on rejection; rejections go only to the originating bank.
 * - A transfer's state moves strictly along the protocol: NEW → RESERVED →
 *   CREDITED → COMMITTED, with REJECTED and ROLLED_BACK as failure exits.
 * - Result events for unknown, terminal or wrong-phase transfers are silent
 *   no-ops, so duplicate or stray messages cannot corrupt an outcome.
 * - The rollback after a failed debit is the protocol's only compensating
 *   action: it undoes the credit already applied at the destination.
 *
 * @dependencies
 * - context, errors, log/slog, sync, time: Standard Go libraries.
 * - internal/bank, internal/domain: catalog, validator and wire model.
 * - pkg/bankclient: the account verification collaborator types.
 */

package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bancentral/clearing-service/internal/bank"
	"github.com/bancentral/clearing-service/internal/domain"
	"github.com/bancentral/clearing-service/pkg/bankclient"
)

// Emitter delivers outbound events to bank endpoints and answers liveness
// queries. Implemented by hub.Hub.
type Emitter interface {
	Emit(bankCode, eventType string, data any)
	IsOnline(bankCode string) bool
}

// AccountVerifier asks the owning bank whether a destination account exists
// and can receive funds. Implemented by bankclient.Client.
type AccountVerifier interface {
	VerifyAccount(ctx context.Context, identifier, bankCode string) (*bankclient.AccountVerification, error)
}

// Service is the transfer saga engine.
type Service struct {
	logger   *slog.Logger
	emitter  Emitter
	verifier AccountVerifier

	mu        sync.Mutex
	transfers map[string]*domain.Transfer
}

// NewService creates the saga engine. The transfer table starts empty and
// lives only as long as the process; there is no persistence by design.
func NewService(logger *slog.Logger, emitter Emitter, verifier AccountVerifier) *Service {
	return &Service{
		logger:    logger,
		emitter:   emitter,
		verifier:  verifier,
		transfers: make(map[string]*domain.Transfer),
	}
}

// HandleIntent validates a transfer intent from the originating bank and, if
// every pre-check passes, creates the transfer and kicks off the reserve
// phase. Validation order is significant: each check assumes the previous
// ones passed, and the first failure rejects the intent straight back to the
// originating endpoint without creating any state.
func (s *Service) HandleIntent(ctx context.Context, originBank string, intent domain.TransferIntent) {
	if missing := intent.MissingFields(); len(missing) > 0 {
		s.emitter.Emit(originBank, domain.EventTransferReject, domain.Rejection{
			ID:            intent.ID,
			Reason:        domain.ReasonInvalidPayload,
			MissingFields: missing,
		})
		return
	}

	s.logger.Info("transfer intent",
		"origin", originBank, "id", intent.ID,
		"from", intent.From, "to", intent.To,
		"amount", intent.Amount, "currency", intent.Currency)

	from, err := bank.ExtractBank(intent.From)
	if err != nil {
		s.emitter.Emit(originBank, domain.EventTransferReject, domain.Rejection{
			ID:     intent.ID,
			Reason: domain.ReasonCheckBankID,
			From:   intent.From,
		})
		return
	}

	to, err := bank.ExtractBank(intent.To)
	if err != nil {
		s.emitter.Emit(originBank, domain.EventTransferReject, domain.Rejection{
			ID:     intent.ID,
			Reason: domain.ReasonUnknownBank,
			To:     intent.To,
		})
		return
	}

	if from.BankCode == to.BankCode {
		s.emitter.Emit(originBank, domain.EventTransferReject, domain.Rejection{
			ID:     intent.ID,
			Reason: domain.ReasonSameBankNotAllowed,
			From:   intent.From,
			To:     intent.To,
		})
		return
	}

	if !s.emitter.IsOnline(to.BankCode) {
		s.emitter.Emit(originBank, domain.EventTransferReject, domain.Rejection{
			ID:     intent.ID,
			Reason: domain.ReasonDestBankOffline,
			From:   intent.From,
			To:     intent.To,
		})
		return
	}

	// Refuse duplicate ids before spending a verification call on them.
	s.mu.Lock()
	_, exists := s.transfers[intent.ID]
	s.mu.Unlock()
	if exists {
		s.emitter.Emit(originBank, domain.EventTransferReject, domain.Rejection{
			ID:     intent.ID,
			Reason: domain.ReasonDuplicateTransferID,
		})
		return
	}

	// The single outbound call of the intent flow. Runs outside the table
	// lock; any failure is a hard rejection, never "account absent".
	verification, err := s.verifier.VerifyAccount(ctx, intent.To, to.BankCode)
	if err != nil {
		reason := domain.ReasonNetworkError
		var verr *bankclient.VerificationError
		if errors.As(err, &verr) {
			reason = verr.Reason
		}
		s.logger.Warn("account verification failed", "id", intent.ID, "bank", to.BankCode, "err", err)
		s.emitter.Emit(originBank, domain.EventTransferReject, domain.Rejection{
			ID:     intent.ID,
			Reason: reason,
		})
		return
	}

	if !verification.Exists {
		s.emitter.Emit(originBank, domain.EventTransferReject, domain.Rejection{
			ID:     intent.ID,
			Reason: domain.ReasonAccountNotFound,
		})
		return
	}

	if !verification.Valid {
		s.emitter.Emit(originBank, domain.EventTransferReject, domain.Rejection{
			ID:     intent.ID,
			Reason: domain.ReasonAccountNoCredit,
		})
		return
	}

	if verification.Info.Currency != intent.Currency {
		s.emitter.Emit(originBank, domain.EventTransferReject, domain.Rejection{
			ID:     intent.ID,
			Reason: domain.ReasonCurrencyNotSupported,
		})
		return
	}

	now := time.Now().UTC()
	transfer := &domain.Transfer{
		ID:        intent.ID,
		FromBank:  from.BankCode,
		From:      intent.From,
		ToBank:    to.BankCode,
		To:        intent.To,
		Amount:    intent.Amount,
		Currency:  intent.Currency,
		State:     domain.StateNew,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	// Re-check: a concurrent intent with the same id may have won the race
	// while the verification call was in flight.
	if _, exists := s.transfers[intent.ID]; exists {
		s.mu.Unlock()
		s.emitter.Emit(originBank, domain.EventTransferReject, domain.Rejection{
			ID:     intent.ID,
			Reason: domain.ReasonDuplicateTransferID,
		})
		return
	}
	s.transfers[intent.ID] = transfer
	s.mu.Unlock()

	s.logger.Info("transfer created", "id", transfer.ID, "from_bank", transfer.FromBank, "to_bank", transfer.ToBank)
	s.emitter.Emit(transfer.FromBank, domain.EventTransferReserve, domain.PhaseRequest{ID: transfer.ID})
	s.emitter.Emit(transfer.ToBank, domain.EventTransferInit, domain.PhaseRequest{ID: transfer.ID})
}

// HandleReserveResult applies the source bank's answer to the reserve phase.
// Success moves the transfer to RESERVED and asks the destination to credit;
// failure rejects the transfer on both sides.
func (s *Service) HandleReserveResult(ctx context.Context, originBank string, res domain.PhaseResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.phaseTransfer(originBank, res, domain.StateNew, func(t *domain.Transfer) string { return t.FromBank })
	if t == nil {
		return
	}

	if !res.OK {
		reason := res.Reason
		if reason == "" {
			reason = domain.ReasonReserveFailed
		}
		s.finish(t, domain.StateRejected)
		s.logger.Info("reserve failed", "id", t.ID, "reason", reason)
		s.emitter.Emit(t.FromBank, domain.EventTransferReject, domain.Rejection{ID: t.ID, Reason: reason})
		s.emitter.Emit(t.ToBank, domain.EventTransferReject, domain.Rejection{ID: t.ID, Reason: reason})
		return
	}

	t.State = domain.StateReserved
	t.UpdatedAt = time.Now().UTC()
	s.logger.Info("funds reserved", "id", t.ID)
	s.emitter.Emit(t.ToBank, domain.EventTransferCredit, t)
}

// HandleCreditResult applies the destination bank's answer to the credit
// phase. Success moves to CREDITED and asks the source to debit; failure
// rejects on both sides. No compensation is needed here: the reserve holds
// no side effect on the destination.
func (s *Service) HandleCreditResult(ctx context.Context, originBank string, res domain.PhaseResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.phaseTransfer(originBank, res, domain.StateReserved, func(t *domain.Transfer) string { return t.ToBank })
	if t == nil {
		return
	}

	if !res.OK {
		reason := res.Reason
		if reason == "" {
			reason = domain.ReasonCreditFailed
		}
		s.finish(t, domain.StateRejected)
		s.logger.Info("credit failed", "id", t.ID, "reason", reason)
		s.emitter.Emit(t.FromBank, domain.EventTransferReject, domain.Rejection{ID: t.ID, Reason: reason})
		s.emitter.Emit(t.ToBank, domain.EventTransferReject, domain.Rejection{ID: t.ID, Reason: reason})
		return
	}

	t.State = domain.StateCredited
	t.UpdatedAt = time.Now().UTC()
	s.logger.Info("destination credited", "id", t.ID)
	s.emitter.Emit(t.FromBank, domain.EventTransferDebit, t)
}

// HandleDebitResult applies the source bank's answer to the debit phase, the
// last step of the saga. Success commits on both sides. Failure is the one
// case needing compensation: the destination was already credited, so it
// receives a rollback while the source receives a reject.
func (s *Service) HandleDebitResult(ctx context.Context, originBank string, res domain.PhaseResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.phaseTransfer(originBank, res, domain.StateCredited, func(t *domain.Transfer) string { return t.FromBank })
	if t == nil {
		return
	}

	if !res.OK {
		reason := res.Reason
		if reason == "" {
			reason = domain.ReasonDebitFailed
		}
		s.finish(t, domain.StateRolledBack)
		s.logger.Info("debit failed, compensating credit", "id", t.ID, "reason", reason)
		s.emitter.Emit(t.ToBank, domain.EventTransferRollback, domain.Rollback{ID: t.ID, Reason: reason})
		s.emitter.Emit(t.FromBank, domain.EventTransferReject, domain.Rejection{ID: t.ID, Reason: reason})
		return
	}

	s.finish(t, domain.StateCommitted)
	s.logger.Info("transfer committed", "id", t.ID)
	s.emitter.Emit(t.ToBank, domain.EventTransferCommit, t)
	s.emitter.Emit(t.FromBank, domain.EventTransferCommit, t)
}

// phaseTransfer looks up the transfer a phase result refers to and applies
// the no-op guards: unknown id, terminal state, wrong phase, or a result
// reported by a bank that is not the expected party. Callers must hold mu.
func (s *Service) phaseTransfer(originBank string, res domain.PhaseResult, want domain.TransferState, party func(*domain.Transfer) string) *domain.Transfer {
	if res.ID == "" {
		return nil
	}
	t, ok := s.transfers[res.ID]
	if !ok {
		return nil
	}
	if t.State.Terminal() || t.State != want {
		s.logger.Debug("phase result ignored", "id", res.ID, "state", t.State, "origin", originBank)
		return nil
	}
	if expected := party(t); originBank != expected {
		s.logger.Warn("phase result from unexpected bank", "id", res.ID, "origin", originBank, "expected", expected)
		return nil
	}
	return t
}

// finish moves a transfer into a terminal state. Callers must hold mu.
func (s *Service) finish(t *domain.Transfer, state domain.TransferState) {
	t.State = state
	t.UpdatedAt = time.Now().UTC()
}

// Snapshot returns a copy of a transfer for inspection, or false if the id
// is unknown.
func (s *Service) Snapshot(id string) (domain.Transfer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transfers[id]
	if !ok {
		return domain.Transfer{}, false
	}
	return *t, true
}

// SweepStale drops every transfer that has not progressed within the
// retention window, terminal or not. A late result for an evicted id lands
// on the unknown-id no-op path, which is safe. Returns the eviction count.
func (s *Service) SweepStale(retention time.Duration) int {
	cutoff := time.Now().UTC().Add(-retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, t := range s.transfers {
		if t.UpdatedAt.Before(cutoff) {
			delete(s.transfers, id)
			evicted++
			s.logger.Info("transfer evicted", "id", id, "state", t.State, "updated_at", t.UpdatedAt)
		}
	}
	return evicted
}
