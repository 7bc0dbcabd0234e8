package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bancentral/clearing-service/internal/domain"
	"github.com/bancentral/clearing-service/pkg/bankclient"
)

type emittedEvent struct {
	Bank string
	Type string
	Data any
}

// fakeEmitter records outbound events and serves reachability from a fixed
// set. The mock bank B00 is always online, matching hub semantics.
type fakeEmitter struct {
	online map[string]bool
	events []emittedEvent
}

func (f *fakeEmitter) Emit(bankCode, eventType string, data any) {
	// Snapshot transfers so later state transitions don't rewrite history.
	if t, ok := data.(*domain.Transfer); ok {
		data = *t
	}
	f.events = append(f.events, emittedEvent{Bank: bankCode, Type: eventType, Data: data})
}

func (f *fakeEmitter) IsOnline(bankCode string) bool {
	return bankCode == "B00" || f.online[bankCode]
}

func (f *fakeEmitter) rejections() []domain.Rejection {
	var out []domain.Rejection
	for _, e := range f.events {
		if e.Type == domain.EventTransferReject {
			out = append(out, e.Data.(domain.Rejection))
		}
	}
	return out
}

type fakeVerifier struct {
	result *bankclient.AccountVerification
	err    error

	calls          int
	lastIdentifier string
	lastBank       string
}

func (f *fakeVerifier) VerifyAccount(ctx context.Context, identifier, bankCode string) (*bankclient.AccountVerification, error) {
	f.calls++
	f.lastIdentifier = identifier
	f.lastBank = bankCode
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func verificationOK(currency string) *bankclient.AccountVerification {
	return &bankclient.AccountVerification{
		Exists: true,
		Valid:  true,
		Info:   bankclient.AccountInfo{Name: "Ana Mora", Currency: currency, Debit: true, Credit: true},
	}
}

func newTestSaga(online map[string]bool, verifier *fakeVerifier) (*Service, *fakeEmitter) {
	emitter := &fakeEmitter{online: online}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(logger, emitter, verifier), emitter
}

func validIntent() domain.TransferIntent {
	return domain.TransferIntent{
		ID:       "T1",
		From:     "CR01B05CC0000",
		To:       "CR01B01111111111112",
		Amount:   decimal.NewFromInt(25000),
		Currency: "CRC",
	}
}

func TestHandleIntent_MissingFields(t *testing.T) {
	verifier := &fakeVerifier{result: verificationOK("CRC")}
	saga, emitter := newTestSaga(map[string]bool{"B01": true}, verifier)

	saga.HandleIntent(context.Background(), "B05", domain.TransferIntent{})

	rejs := emitter.rejections()
	if len(rejs) != 1 {
		t.Fatalf("rejections = %d, want 1", len(rejs))
	}
	rej := rejs[0]
	if rej.Reason != domain.ReasonInvalidPayload {
		t.Errorf("reason = %q, want INVALID_PAYLOAD", rej.Reason)
	}
	want := []string{"id", "from", "to", "amount", "currency"}
	if len(rej.MissingFields) != len(want) {
		t.Fatalf("missing_fields = %v, want %v", rej.MissingFields, want)
	}
	for i, f := range want {
		if rej.MissingFields[i] != f {
			t.Errorf("missing_fields[%d] = %q, want %q", i, rej.MissingFields[i], f)
		}
	}
	if verifier.calls != 0 {
		t.Error("verification must not run for incomplete payloads")
	}
}

func TestHandleIntent_NonPositiveAmount(t *testing.T) {
	verifier := &fakeVerifier{result: verificationOK("CRC")}
	saga, emitter := newTestSaga(map[string]bool{"B01": true}, verifier)

	intent := validIntent()
	intent.Amount = decimal.NewFromInt(-5)
	saga.HandleIntent(context.Background(), "B05", intent)

	rejs := emitter.rejections()
	if len(rejs) != 1 || rejs[0].Reason != domain.ReasonInvalidPayload {
		t.Fatalf("rejections = %+v, want single INVALID_PAYLOAD", rejs)
	}
	if len(rejs[0].MissingFields) != 1 || rejs[0].MissingFields[0] != "amount" {
		t.Errorf("missing_fields = %v, want [amount]", rejs[0].MissingFields)
	}
}

func TestHandleIntent_BadSourceIdentifier(t *testing.T) {
	verifier := &fakeVerifier{result: verificationOK("CRC")}
	saga, emitter := newTestSaga(map[string]bool{"B01": true}, verifier)

	intent := validIntent()
	intent.From = "XX01B05CC0000"
	saga.HandleIntent(context.Background(), "B05", intent)

	rejs := emitter.rejections()
	if len(rejs) != 1 || rejs[0].Reason != domain.ReasonCheckBankID {
		t.Fatalf("rejections = %+v, want single CHECK_BANK_ID", rejs)
	}
	if _, ok := saga.Snapshot("T1"); ok {
		t.Error("rejected intent must not create transfer state")
	}
}

func TestHandleIntent_BadDestinationIdentifier(t *testing.T) {
	verifier := &fakeVerifier{result: verificationOK("CRC")}
	saga, emitter := newTestSaga(map[string]bool{"B01": true}, verifier)

	intent := validIntent()
	intent.To = "CR01B99111111111112"
	saga.HandleIntent(context.Background(), "B05", intent)

	rejs := emitter.rejections()
	if len(rejs) != 1 || rejs[0].Reason != domain.ReasonUnknownBank {
		t.Fatalf("rejections = %+v, want single UNKNOWN_BANK", rejs)
	}
}

func TestHandleIntent_SameBank(t *testing.T) {
	verifier := &fakeVerifier{result: verificationOK("CRC")}
	saga, emitter := newTestSaga(map[string]bool{"B05": true}, verifier)

	intent := validIntent()
	intent.To = "CR01B05999999999999"
	saga.HandleIntent(context.Background(), "B05", intent)

	rejs := emitter.rejections()
	if len(rejs) != 1 || rejs[0].Reason != domain.ReasonSameBankNotAllowed {
		t.Fatalf("rejections = %+v, want single SAME_BANK_NOT_ALLOWED", rejs)
	}
	if verifier.calls != 0 {
		t.Error("same-bank intents must fail before verification")
	}
}

func TestHandleIntent_DestinationOffline(t *testing.T) {
	verifier := &fakeVerifier{result: verificationOK("CRC")}
	saga, emitter := newTestSaga(map[string]bool{}, verifier)

	saga.HandleIntent(context.Background(), "B05", validIntent())

	rejs := emitter.rejections()
	if len(rejs) != 1 || rejs[0].Reason != domain.ReasonDestBankOffline {
		t.Fatalf("rejections = %+v, want single DEST_BANK_OFFLINE", rejs)
	}
	if verifier.calls != 0 {
		t.Error("offline destination must be caught before any verification call")
	}
}

func TestHandleIntent_MockDestinationAlwaysReachable(t *testing.T) {
	verifier := &fakeVerifier{result: verificationOK("CRC")}
	saga, _ := newTestSaga(map[string]bool{}, verifier)

	intent := validIntent()
	intent.To = "CR01B00111111111112"
	saga.HandleIntent(context.Background(), "B05", intent)

	snap, ok := saga.Snapshot("T1")
	if !ok {
		t.Fatal("transfer to the mock bank should be created")
	}
	if snap.ToBank != "B00" || snap.State != domain.StateNew {
		t.Errorf("transfer = %+v, want NEW toward B00", snap)
	}
}

func TestHandleIntent_AccountNotFound(t *testing.T) {
	verifier := &fakeVerifier{result: &bankclient.AccountVerification{Exists: false}}
	saga, emitter := newTestSaga(map[string]bool{"B01": true}, verifier)

	saga.HandleIntent(context.Background(), "B05", validIntent())

	rejs := emitter.rejections()
	if len(rejs) != 1 || rejs[0].Reason != domain.ReasonAccountNotFound {
		t.Fatalf("rejections = %+v, want single ACCOUNT_NOT_FOUND", rejs)
	}
	if _, ok := saga.Snapshot("T1"); ok {
		t.Error("no transfer record may exist after ACCOUNT_NOT_FOUND")
	}
}

func TestHandleIntent_AccountMissingCapability(t *testing.T) {
	verifier := &fakeVerifier{result: &bankclient.AccountVerification{
		Exists: true,
		Valid:  false,
		Info:   bankclient.AccountInfo{Currency: "CRC", Debit: true, Credit: false},
	}}
	saga, emitter := newTestSaga(map[string]bool{"B01": true}, verifier)

	saga.HandleIntent(context.Background(), "B05", validIntent())

	rejs := emitter.rejections()
	if len(rejs) != 1 || rejs[0].Reason != domain.ReasonAccountNoCredit {
		t.Fatalf("rejections = %+v, want single ACCOUNT_NO_CREDIT", rejs)
	}
}

func TestHandleIntent_CurrencyMismatch(t *testing.T) {
	verifier := &fakeVerifier{result: verificationOK("CRC")}
	saga, emitter := newTestSaga(map[string]bool{"B01": true}, verifier)

	intent := validIntent()
	intent.Currency = "USD"
	saga.HandleIntent(context.Background(), "B05", intent)

	rejs := emitter.rejections()
	if len(rejs) != 1 || rejs[0].Reason != domain.ReasonCurrencyNotSupported {
		t.Fatalf("rejections = %+v, want single CURRENCY_NOT_SUPPORTED", rejs)
	}
}

func TestHandleIntent_VerifierHardFailure(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantReason string
	}{
		{"typed network error", &bankclient.VerificationError{Reason: "NETWORK_ERROR", BankCode: "B01"}, "NETWORK_ERROR"},
		{"typed status error", &bankclient.VerificationError{Reason: "HTTP_BANK_VALIDATE_503", BankCode: "B01"}, "HTTP_BANK_VALIDATE_503"},
		{"unregistered bank", &bankclient.VerificationError{Reason: "BANK_NOT_REGISTERED", BankCode: "B01"}, "BANK_NOT_REGISTERED"},
		{"untyped error", errors.New("dial tcp: refused"), domain.ReasonNetworkError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			verifier := &fakeVerifier{err: tc.err}
			saga, emitter := newTestSaga(map[string]bool{"B01": true}, verifier)

			saga.HandleIntent(context.Background(), "B05", validIntent())

			rejs := emitter.rejections()
			if len(rejs) != 1 || rejs[0].Reason != tc.wantReason {
				t.Fatalf("rejections = %+v, want single %s", rejs, tc.wantReason)
			}
			if _, ok := saga.Snapshot("T1"); ok {
				t.Error("verification failure must never create transfer state")
			}
		})
	}
}

func TestHandleIntent_Success(t *testing.T) {
	verifier := &fakeVerifier{result: verificationOK("CRC")}
	saga, emitter := newTestSaga(map[string]bool{"B01": true, "B05": true}, verifier)

	saga.HandleIntent(context.Background(), "B05", validIntent())

	if verifier.lastIdentifier != "CR01B01111111111112" || verifier.lastBank != "B01" {
		t.Errorf("verified (%q, %q), want destination identifier at B01", verifier.lastIdentifier, verifier.lastBank)
	}

	if len(emitter.events) != 2 {
		t.Fatalf("events = %+v, want reserve and init", emitter.events)
	}
	if emitter.events[0].Bank != "B05" || emitter.events[0].Type != domain.EventTransferReserve {
		t.Errorf("first event = %+v, want reserve to source B05", emitter.events[0])
	}
	if emitter.events[1].Bank != "B01" || emitter.events[1].Type != domain.EventTransferInit {
		t.Errorf("second event = %+v, want init to destination B01", emitter.events[1])
	}

	snap, ok := saga.Snapshot("T1")
	if !ok {
		t.Fatal("transfer must exist after accepted intent")
	}
	if snap.State != domain.StateNew || snap.FromBank != "B05" || snap.ToBank != "B01" {
		t.Errorf("transfer = %+v, want NEW from B05 to B01", snap)
	}
}

func TestHandleIntent_DuplicateID(t *testing.T) {
	verifier := &fakeVerifier{result: verificationOK("CRC")}
	saga, emitter := newTestSaga(map[string]bool{"B01": true}, verifier)

	saga.HandleIntent(context.Background(), "B05", validIntent())
	saga.HandleIntent(context.Background(), "B05", validIntent())

	rejs := emitter.rejections()
	if len(rejs) != 1 || rejs[0].Reason != domain.ReasonDuplicateTransferID {
		t.Fatalf("rejections = %+v, want single DUPLICATE_TRANSFER_ID", rejs)
	}
	if verifier.calls != 1 {
		t.Errorf("verifier calls = %d, duplicate must not trigger a second verification", verifier.calls)
	}
	snap, _ := saga.Snapshot("T1")
	if snap.State != domain.StateNew {
		t.Errorf("original transfer state = %s, duplicate must not overwrite it", snap.State)
	}
}

func eventTypesByBank(events []emittedEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type+"->"+e.Bank)
	}
	return out
}

func TestSaga_HappyPath(t *testing.T) {
	verifier := &fakeVerifier{result: verificationOK("CRC")}
	saga, emitter := newTestSaga(map[string]bool{"B01": true, "B05": true}, verifier)
	ctx := context.Background()

	saga.HandleIntent(ctx, "B05", validIntent())
	saga.HandleReserveResult(ctx, "B05", domain.PhaseResult{ID: "T1", OK: true})
	saga.HandleCreditResult(ctx, "B01", domain.PhaseResult{ID: "T1", OK: true})
	saga.HandleDebitResult(ctx, "B05", domain.PhaseResult{ID: "T1", OK: true})

	want := []string{
		"transfer.reserve->B05",
		"transfer.init->B01",
		"transfer.credit->B01",
		"transfer.debit->B05",
		"transfer.commit->B01",
		"transfer.commit->B05",
	}
	got := eventTypesByBank(emitter.events)
	if len(got) != len(want) {
		t.Fatalf("event sequence = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	snap, _ := saga.Snapshot("T1")
	if snap.State != domain.StateCommitted {
		t.Errorf("final state = %s, want COMMITTED", snap.State)
	}

	// Credit and debit requests carry the full transfer body.
	credit := emitter.events[2].Data.(domain.Transfer)
	if credit.ID != "T1" || !credit.Amount.Equal(decimal.NewFromInt(25000)) || credit.Currency != "CRC" {
		t.Errorf("credit payload = %+v, want full transfer", credit)
	}
}

func TestSaga_ReserveFails(t *testing.T) {
	verifier := &fakeVerifier{result: verificationOK("CRC")}
	saga, emitter := newTestSaga(map[string]bool{"B01": true, "B05": true}, verifier)
	ctx := context.Background()

	saga.HandleIntent(ctx, "B05", validIntent())
	saga.HandleReserveResult(ctx, "B05", domain.PhaseResult{ID: "T1", OK: false, Reason: "NO_FUNDS"})

	rejs := emitter.rejections()
	if len(rejs) != 2 {
		t.Fatalf("rejections = %+v, want both banks notified", rejs)
	}
	for _, rej := range rejs {
		if rej.Reason != "NO_FUNDS" {
			t.Errorf("reason = %q, want participant-supplied NO_FUNDS", rej.Reason)
		}
	}

	snap, _ := saga.Snapshot("T1")
	if snap.State != domain.StateRejected {
		t.Errorf("state = %s, want REJECTED", snap.State)
	}

	// Terminal: a late credit result must not change anything.
	before := len(emitter.events)
	saga.HandleCreditResult(ctx, "B01", domain.PhaseResult{ID: "T1", OK: true})
	if len(emitter.events) != before {
		t.Error("terminal transfer must ignore further results")
	}
}

func TestSaga_ReserveFailsDefaultReason(t *testing.T) {
	verifier := &fakeVerifier{result: verificationOK("CRC")}
	saga, emitter := newTestSaga(map[string]bool{"B01": true, "B05": true}, verifier)
	ctx := context.Background()

	saga.HandleIntent(ctx, "B05", validIntent())
	saga.HandleReserveResult(ctx, "B05", domain.PhaseResult{ID: "T1", OK: false})

	for _, rej := range emitter.rejections() {
		if rej.Reason != domain.ReasonReserveFailed {
			t.Errorf("reason = %q, want default RESERVE_FAILED", rej.Reason)
		}
	}
}

func TestSaga_CreditFails(t *testing.T) {
	verifier := &fakeVerifier{result: verificationOK("CRC")}
	saga, emitter := newTestSaga(map[string]bool{"B01": true, "B05": true}, verifier)
	ctx := context.Background()

	saga.HandleIntent(ctx, "B05", validIntent())
	saga.HandleReserveResult(ctx, "B05", domain.PhaseResult{ID: "T1", OK: true})
	saga.HandleCreditResult(ctx, "B01", domain.PhaseResult{ID: "T1", OK: false})

	rejs := emitter.rejections()
	if len(rejs) != 2 {
		t.Fatalf("rejections = %+v, want both banks notified", rejs)
	}
	for _, rej := range rejs {
		if rej.Reason != domain.ReasonCreditFailed {
			t.Errorf("reason = %q, want default CREDIT_FAILED", rej.Reason)
		}
	}
	snap, _ := saga.Snapshot("T1")
	if snap.State != domain.StateRejected {
		t.Errorf("state = %s, want REJECTED", snap.State)
	}
}

func TestSaga_DebitFailureRollsBack(t *testing.T) {
	verifier := &fakeVerifier{result: verificationOK("CRC")}
	saga, emitter := newTestSaga(map[string]bool{"B01": true, "B05": true}, verifier)
	ctx := context.Background()

	saga.HandleIntent(ctx, "B05", validIntent())
	saga.HandleReserveResult(ctx, "B05", domain.PhaseResult{ID: "T1", OK: true})
	saga.HandleCreditResult(ctx, "B01", domain.PhaseResult{ID: "T1", OK: true})
	saga.HandleDebitResult(ctx, "B05", domain.PhaseResult{ID: "T1", OK: false, Reason: "INSUFFICIENT_FUNDS"})

	var rollback *emittedEvent
	for i := range emitter.events {
		if emitter.events[i].Type == domain.EventTransferRollback {
			rollback = &emitter.events[i]
		}
	}
	if rollback == nil {
		t.Fatal("debit failure must send a compensating rollback")
	}
	if rollback.Bank != "B01" {
		t.Errorf("rollback went to %s, want destination B01", rollback.Bank)
	}
	rb := rollback.Data.(domain.Rollback)
	if rb.ID != "T1" || rb.Reason != "INSUFFICIENT_FUNDS" {
		t.Errorf("rollback payload = %+v", rb)
	}

	rejs := emitter.rejections()
	if len(rejs) != 1 || rejs[0].Reason != "INSUFFICIENT_FUNDS" {
		t.Fatalf("rejections = %+v, want single reject to the source", rejs)
	}

	snap, _ := saga.Snapshot("T1")
	if snap.State != domain.StateRolledBack {
		t.Errorf("state = %s, want ROLLED_BACK", snap.State)
	}

	// Idempotent terminal: replaying the debit result changes nothing.
	before := len(emitter.events)
	saga.HandleDebitResult(ctx, "B05", domain.PhaseResult{ID: "T1", OK: true})
	if len(emitter.events) != before {
		t.Error("terminal transfer must ignore replayed results")
	}
	if snap, _ := saga.Snapshot("T1"); snap.State != domain.StateRolledBack {
		t.Errorf("state = %s, replay must not move a terminal transfer", snap.State)
	}
}

func TestResults_UnknownIDIgnored(t *testing.T) {
	verifier := &fakeVerifier{result: verificationOK("CRC")}
	saga, emitter := newTestSaga(map[string]bool{"B01": true}, verifier)
	ctx := context.Background()

	saga.HandleReserveResult(ctx, "B05", domain.PhaseResult{ID: "NOPE", OK: true})
	saga.HandleCreditResult(ctx, "B01", domain.PhaseResult{ID: "NOPE", OK: true})
	saga.HandleDebitResult(ctx, "B05", domain.PhaseResult{ID: "NOPE", OK: false})
	saga.HandleReserveResult(ctx, "B05", domain.PhaseResult{OK: true})

	if len(emitter.events) != 0 {
		t.Fatalf("events = %+v, unknown ids must produce nothing", emitter.events)
	}
}

func TestResults_WrongPhaseIgnored(t *testing.T) {
	verifier := &fakeVerifier{result: verificationOK("CRC")}
	saga, emitter := newTestSaga(map[string]bool{"B01": true, "B05": true}, verifier)
	ctx := context.Background()

	saga.HandleIntent(ctx, "B05", validIntent())
	before := len(emitter.events)

	// Still NEW: a credit result is out of order.
	saga.HandleCreditResult(ctx, "B01", domain.PhaseResult{ID: "T1", OK: true})
	if len(emitter.events) != before {
		t.Error("out-of-order credit result must be ignored")
	}

	saga.HandleReserveResult(ctx, "B05", domain.PhaseResult{ID: "T1", OK: true})
	before = len(emitter.events)

	// Duplicate reserve result racing the credit phase.
	saga.HandleReserveResult(ctx, "B05", domain.PhaseResult{ID: "T1", OK: true})
	if len(emitter.events) != before {
		t.Error("duplicate reserve result must be ignored")
	}
	if snap, _ := saga.Snapshot("T1"); snap.State != domain.StateReserved {
		t.Errorf("state = %s, want RESERVED untouched", snap.State)
	}
}

func TestResults_WrongPartyIgnored(t *testing.T) {
	verifier := &fakeVerifier{result: verificationOK("CRC")}
	saga, emitter := newTestSaga(map[string]bool{"B01": true, "B05": true}, verifier)
	ctx := context.Background()

	saga.HandleIntent(ctx, "B05", validIntent())
	before := len(emitter.events)

	// The destination bank cannot answer the reserve phase.
	saga.HandleReserveResult(ctx, "B01", domain.PhaseResult{ID: "T1", OK: true})
	if len(emitter.events) != before {
		t.Error("reserve result from the destination bank must be ignored")
	}
	if snap, _ := saga.Snapshot("T1"); snap.State != domain.StateNew {
		t.Errorf("state = %s, want NEW untouched", snap.State)
	}
}

func TestSweepStale(t *testing.T) {
	verifier := &fakeVerifier{result: verificationOK("CRC")}
	saga, _ := newTestSaga(map[string]bool{"B01": true, "B05": true}, verifier)
	ctx := context.Background()

	saga.HandleIntent(ctx, "B05", validIntent())

	fresh := validIntent()
	fresh.ID = "T2"
	saga.HandleIntent(ctx, "B05", fresh)

	// Backdate T1 past the retention window.
	saga.mu.Lock()
	saga.transfers["T1"].UpdatedAt = time.Now().UTC().Add(-2 * time.Hour)
	saga.mu.Unlock()

	if n := saga.SweepStale(time.Hour); n != 1 {
		t.Fatalf("evicted = %d, want 1", n)
	}
	if _, ok := saga.Snapshot("T1"); ok {
		t.Error("stale transfer must be evicted")
	}
	if _, ok := saga.Snapshot("T2"); !ok {
		t.Error("fresh transfer must survive the sweep")
	}

	// A late result for the evicted id is a safe no-op.
	saga.HandleReserveResult(ctx, "B05", domain.PhaseResult{ID: "T1", OK: true})
	if _, ok := saga.Snapshot("T1"); ok {
		t.Error("late result must not resurrect an evicted transfer")
	}
}
