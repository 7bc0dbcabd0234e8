/**
 * @description
 * The Dispatcher is the inbound edge of the event protocol: it decodes the
 * tagged envelope a connected bank sent, picks the typed payload struct the
 * event type calls for, and hands it to the matching saga handler. Unknown
 * event types are ignored for forward compatibility, and malformed payloads
 * never reach the saga engine.
 *
 * @dependencies
 * - context, encoding/json, log/slog: Standard Go libraries.
 * - internal/domain: envelope and payload types.
 */

package app

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/bancentral/clearing-service/internal/domain"
)

// Dispatcher routes inbound envelopes to the saga engine.
type Dispatcher struct {
	logger  *slog.Logger
	saga    *Service
	emitter Emitter
}

// NewDispatcher wires the router to the saga engine and the outbound
// emitter used for boundary-level rejections.
func NewDispatcher(logger *slog.Logger, saga *Service, emitter Emitter) *Dispatcher {
	return &Dispatcher{logger: logger, saga: saga, emitter: emitter}
}

// Dispatch decodes one raw message from originBank and routes it. Envelopes
// that do not parse, carry no type, or carry an unknown type are dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, originBank string, raw []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		d.logger.Debug("unparseable envelope dropped", "origin", originBank, "err", err)
		return
	}
	if env.Type == "" {
		return
	}

	switch env.Type {
	case domain.EventTransferIntent:
		var intent domain.TransferIntent
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &intent); err != nil {
				// The payload is not even shaped like an intent. Reject at
				// the boundary; salvage the id if one is readable.
				d.logger.Debug("malformed intent payload", "origin", originBank, "err", err)
				d.emitter.Emit(originBank, domain.EventTransferReject, domain.Rejection{
					ID:     salvageID(env.Data),
					Reason: domain.ReasonInvalidPayload,
				})
				return
			}
		}
		d.saga.HandleIntent(ctx, originBank, intent)

	case domain.EventTransferReserveResult:
		if res, ok := decodeResult(env.Data); ok {
			d.saga.HandleReserveResult(ctx, originBank, res)
		}

	case domain.EventTransferCreditResult:
		if res, ok := decodeResult(env.Data); ok {
			d.saga.HandleCreditResult(ctx, originBank, res)
		}

	case domain.EventTransferDebitResult:
		if res, ok := decodeResult(env.Data); ok {
			d.saga.HandleDebitResult(ctx, originBank, res)
		}

	default:
		d.logger.Debug("unknown event type ignored", "origin", originBank, "type", env.Type)
	}
}

// decodeResult parses a phase-result payload. Malformed results count as
// stray messages and are dropped rather than rejected.
func decodeResult(data json.RawMessage) (domain.PhaseResult, bool) {
	var res domain.PhaseResult
	if len(data) == 0 {
		return res, true
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return res, false
	}
	return res, true
}

// salvageID pulls the transfer id out of an otherwise malformed payload so
// the rejection can still name it.
func salvageID(data json.RawMessage) string {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return ""
	}
	return probe.ID
}
