// ==============================================
// File: internal/program/errors.go
// ==============================================
package program

import (
	"context"
	"errors"
	"fmt"

	"github.com/fossr-labs/fossr/internal/ledger"
	"github.com/fossr-labs/fossr/internal/program/schema"
)

// Kind classifies failures by how a caller should react to them.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation: malformed or out-of-range arguments. Surface to the user.
	KindValidation
	// KindState: benign races between competing callers. Do not retry.
	KindState
	// KindAuthorization: wrong signer for a privileged call.
	KindAuthorization
	// KindResource: not enough unlocked tokens or vault funds.
	KindResource
	// KindTransient: the ledger could not be reached. Retry with backoff.
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	case KindAuthorization:
		return "authorization"
	case KindResource:
		return "resource"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// ErrorCodeOffset is where custom program error numbers start.
const ErrorCodeOffset = 6000

// Error is a program failure with a stable error number.
type Error struct {
	Code uint32
	Name string
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Msg)
}

var registry []*Error

func newError(name string, kind Kind, msg string) *Error {
	e := &Error{
		Code: uint32(ErrorCodeOffset + len(registry)),
		Name: name,
		Kind: kind,
		Msg:  msg,
	}
	registry = append(registry, e)
	return e
}

// Declaration order fixes the error numbers. Append only.
var (
	ErrTokensStillLocked        = newError("TokensStillLocked", KindResource, "Tokens are still locked")
	ErrInsufficientBalance      = newError("InsufficientBalance", KindResource, "Insufficient token balance")
	ErrUnauthorized             = newError("Unauthorized", KindAuthorization, "Unauthorized")
	ErrArithmeticOverflow       = newError("ArithmeticOverflow", KindValidation, "Arithmetic overflow")
	ErrInsufficientVaultBalance = newError("InsufficientVaultBalance", KindResource, "Insufficient vault balance")
	ErrInvalidPrice             = newError("InvalidPrice", KindValidation, "Invalid price")
	ErrBuyAmountTooSmall        = newError("BuyAmountTooSmall", KindValidation, "Buy amount too small")
	ErrBuyAmountTooLarge        = newError("BuyAmountTooLarge", KindValidation, "Buy amount too large")
	ErrSellAmountTooSmall       = newError("SellAmountTooSmall", KindValidation, "Sell amount too small")
	ErrNotEligibleForAirdrop    = newError("NotEligibleForAirdrop", KindValidation, "Recipient not eligible for airdrop")
	ErrAirdropNotReady          = newError("AirdropNotReady", KindState, "Airdrop not ready yet")
	ErrAirdropAlreadyExecuted   = newError("AirdropAlreadyExecuted", KindState, "Airdrop already executed for this cycle")
	ErrInvalidAmount            = newError("InvalidAmount", KindValidation, "Amount must be positive")
	ErrInsufficientFunds        = newError("InsufficientFunds", KindResource, "Payer cannot cover the payment")
	ErrPotFundingMode           = newError("PotFundingMode", KindValidation, "Instruction not allowed in this pot funding mode")
	ErrInvalidAccount           = newError("InvalidAccount", KindValidation, "Account does not match the expected layout or address")
	ErrAccountAlreadyInUse      = newError("AccountAlreadyInUse", KindValidation, "Account already in use")
	ErrEmptyPot                 = newError("EmptyPot", KindState, "Airdrop pot is empty")
	ErrInvalidMint              = newError("InvalidMint", KindValidation, "Mint authority must be the program state")
	ErrUnknownInstruction       = newError("UnknownInstruction", KindValidation, "Unknown instruction")
)

// ErrTransient marks failures to reach the ledger.
var ErrTransient = errors.New("ledger unavailable")

// ErrorByCode returns the declared error for a custom error number.
func ErrorByCode(code uint32) (*Error, bool) {
	if code < ErrorCodeOffset || int(code-ErrorCodeOffset) >= len(registry) {
		return nil, false
	}
	return registry[code-ErrorCodeOffset], true
}

// ErrorByName returns the declared error with name.
func ErrorByName(name string) (*Error, bool) {
	for _, e := range registry {
		if e.Name == name {
			return e, true
		}
	}
	return nil, false
}

// KindOf classifies any error returned while talking to the program.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	switch {
	case errors.Is(err, ErrTransient),
		errors.Is(err, ledger.ErrStoreUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	case errors.Is(err, ledger.ErrMissingSignature):
		return KindAuthorization
	case errors.Is(err, ledger.ErrInsufficientLamports),
		errors.Is(err, ledger.ErrInsufficientTokens):
		return KindResource
	case errors.Is(err, schema.ErrDiscriminatorMismatch),
		errors.Is(err, schema.ErrLayoutSize),
		errors.Is(err, schema.ErrUnknownLayout),
		errors.Is(err, ledger.ErrAccountNotFound):
		return KindValidation
	}
	return KindUnknown
}

// IsRace reports whether err is an expected outcome of competing callers.
func IsRace(err error) bool {
	return errors.Is(err, ErrAirdropAlreadyExecuted) || errors.Is(err, ErrAirdropNotReady)
}
