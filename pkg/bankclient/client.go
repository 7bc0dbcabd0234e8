/**
 * @description
 * This package provides the outbound client for the account-verification API
 * that every participating bank exposes. Given an account identifier and the
 * owning bank's code, it asks that bank whether the account exists and is
 * enabled for both debit and credit, and in which currency it operates.
 *
 * The call is a single best-effort request with a bounded timeout: no
 * retries, no backoff. Retry policy belongs to the caller, and the saga
 * engine deliberately does not retry — any failure is a hard rejection of
 * the transfer, never "account absent".
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package bankclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// validateAccountPath is the verification endpoint shared by all banks.
const validateAccountPath = "/api/v1/bank/validate-account"

// Client calls the per-bank account verification endpoints.
type Client struct {
	baseURLs   map[string]string
	mockBank   string
	HTTPClient *http.Client
}

// NewClient creates a verification client over a bank-code → base URL
// catalog. Calls for mockBank short-circuit to a deterministic success.
func NewClient(baseURLs map[string]string, mockBank string, timeout time.Duration) *Client {
	return &Client{
		baseURLs: baseURLs,
		mockBank: mockBank,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// validateAccountRequest is the payload sent to a bank's verification API.
type validateAccountRequest struct {
	IBAN string `json:"iban"`
}

// validateAccountResponse is the expected response shape. The remote field
// is named "exist" in the interbank contract.
type validateAccountResponse struct {
	Exist bool        `json:"exist"`
	Data  AccountInfo `json:"data"`
}

// AccountInfo is the account detail block a bank returns for a known account.
type AccountInfo struct {
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Debit    bool   `json:"debit"`
	Credit   bool   `json:"credit"`
}

// AccountVerification is the distilled verification outcome. Valid requires
// the account to exist with both debit and credit capability enabled.
type AccountVerification struct {
	BankCode string
	Exists   bool
	Valid    bool
	Info     AccountInfo
}

// VerificationError is returned when the verification call itself failed:
// the bank is not registered, the transport broke, or the bank answered with
// a non-success status. Reason is a wire-safe code the saga forwards as-is.
type VerificationError struct {
	Reason   string
	BankCode string
	Err      error
}

func (e *VerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("verify account at %s: %s: %v", e.BankCode, e.Reason, e.Err)
	}
	return fmt.Sprintf("verify account at %s: %s", e.BankCode, e.Reason)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// VerifyAccount asks the owning bank about an account. For the mock bank it
// returns a deterministic success without touching the network.
func (c *Client) VerifyAccount(ctx context.Context, identifier, bankCode string) (*AccountVerification, error) {
	if bankCode == c.mockBank {
		return &AccountVerification{
			BankCode: bankCode,
			Exists:   true,
			Valid:    true,
			Info: AccountInfo{
				Name:     "Carlos Ramírez",
				Currency: "CRC",
				Debit:    true,
				Credit:   true,
			},
		}, nil
	}

	baseURL, ok := c.baseURLs[bankCode]
	if !ok {
		return nil, &VerificationError{Reason: "BANK_NOT_REGISTERED", BankCode: bankCode}
	}

	body, err := json.Marshal(validateAccountRequest{IBAN: identifier})
	if err != nil {
		return nil, &VerificationError{Reason: "NETWORK_ERROR", BankCode: bankCode, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+validateAccountPath, bytes.NewReader(body))
	if err != nil {
		return nil, &VerificationError{Reason: "NETWORK_ERROR", BankCode: bankCode, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &VerificationError{Reason: "NETWORK_ERROR", BankCode: bankCode, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &VerificationError{
			Reason:   fmt.Sprintf("HTTP_BANK_VALIDATE_%d", resp.StatusCode),
			BankCode: bankCode,
		}
	}

	var payload validateAccountResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &VerificationError{Reason: "NETWORK_ERROR", BankCode: bankCode, Err: err}
	}

	return &AccountVerification{
		BankCode: bankCode,
		Exists:   payload.Exist,
		Valid:    payload.Exist && payload.Data.Debit && payload.Data.Credit,
		Info:     payload.Data,
	}, nil
}
