/**
 * @description
 * Account identifier validation. Participant accounts are addressed with an
 * IBAN-style string ("CR01B05CC0000...") that embeds the owning bank's code
 * at a fixed position. ExtractBank parses and validates that code against
 * the catalog range before anything touches the network or transfer state.
 *
 * @notes
 * - ExtractBank is a pure function: identical input always yields identical
 *   output. It gates every subsequent side effect in the intent flow.
 */

package bank

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Error kinds returned by ExtractBank.
const (
	ErrInvalidFormat = "INVALID_FORMAT"
	ErrUnknownBank   = "UNKNOWN_BANK"
)

// Bank codes run B00 (mock) through B08.
const maxBankNum = 8

// identifierPattern matches the mandatory prefix: country code "CR", a
// two-digit check field, then "B" and a two-digit bank code. The account
// suffix after the prefix is opaque to the coordinator.
var identifierPattern = regexp.MustCompile(`^CR(\d{2})B(\d{2})`)

// ExtractResult carries the bank code embedded in a valid identifier.
type ExtractResult struct {
	BankCode string
	BankNum  int
}

// ExtractBank parses the bank code out of an account identifier. Input is
// uppercased before matching. It returns ErrInvalidFormat when the prefix
// pattern does not match and ErrUnknownBank when the code parses but falls
// outside the catalog range.
func ExtractBank(identifier string) (ExtractResult, error) {
	m := identifierPattern.FindStringSubmatch(strings.ToUpper(identifier))
	if m == nil {
		return ExtractResult{BankNum: -1}, &ValidationError{Kind: ErrInvalidFormat, Identifier: identifier}
	}

	num, err := strconv.Atoi(m[2])
	if err != nil || num < 0 || num > maxBankNum {
		return ExtractResult{BankNum: -1}, &ValidationError{Kind: ErrUnknownBank, Identifier: identifier}
	}

	return ExtractResult{BankCode: "B" + m[2], BankNum: num}, nil
}

// ValidationError reports why an identifier was refused. Kind is one of the
// error-kind constants and doubles as the wire-level rejection reason.
type ValidationError struct {
	Kind       string
	Identifier string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("identifier %q: %s", e.Identifier, e.Kind)
}
