package ledgererrors

import (
	"errors"
	"strings"
)

// Note ledger (N) Errors
var (
	ErrNDoubleSpend        = errors.New("N1|DoubleSpend: Nullifier has already been recorded. The whole transaction must be rejected.")
	ErrNTreeFull           = errors.New("N2|TreeFull: The notes tree has no free position left at the configured depth.")
	ErrNPositionOutOfRange = errors.New("N3|PositionOutOfRange: Requested opening for a position past the number of notes.")
	ErrNStaleRoot          = errors.New("N4|StaleRoot: Root read before UpdateRoot was invoked for the current batch.")
	ErrNLeafFolded         = errors.New("N5|LeafFolded: Cannot discard leaves already folded into the root.")
)

// Balance (B) Errors
var (
	ErrBInsufficientFunds = errors.New("B1|InsufficientFunds: Debit exceeds the available balance.")
	ErrBBalanceOverflow   = errors.New("B2|BalanceOverflow: Credit would overflow a u64 balance.")
	ErrBNonceMismatch     = errors.New("B3|NonceMismatch: Transaction nonce is not current+1 for the authoring account.")
)

// Bridge (V) Errors
var (
	ErrVCallerMismatch    = errors.New("V1|CallerMismatch: Calling contract is not the one named by the request.")
	ErrVDepositMismatch   = errors.New("V2|DepositMismatch: Deposit value differs from the amount the transaction earmarked.")
	ErrVNoDeposit         = errors.New("V3|NoDeposit: Transaction carries no earmarked deposit for the caller.")
	ErrVDepositTaken      = errors.New("V4|DepositTaken: Earmarked deposit has already been consumed in this transaction.")
	ErrVNotTransactor     = errors.New("V5|NotTransactor: Convert may only be invoked directly by the transactor, never via an inter-contract call.")
	ErrVNotStakeContract  = errors.New("V6|NotStakeContract: Operation is restricted to the privileged staking contract.")
	ErrVBadDestination    = errors.New("V7|BadDestination: Withdrawal destination is neither a note nor an account.")
)

// Transaction (T) Errors
var (
	ErrTProofInvalid      = errors.New("T1|ProofInvalid: Proof verification failed for a Phoenix transaction.")
	ErrTSignatureInvalid  = errors.New("T2|SignatureInvalid: Signature check failed for a Moonlight transaction.")
	ErrTMalformedEnvelope = errors.New("T3|MalformedEnvelope: Transaction envelope is neither Phoenix nor Moonlight or misses required fields.")
	ErrTGasLimitTooLow    = errors.New("T4|GasLimitTooLow: Fee gas limit cannot cover the declared spend.")
	ErrTGasExhausted      = errors.New("T5|GasExhausted: Contract call exceeded its gas budget.")
	ErrTRefundPending     = errors.New("T6|RefundPending: SpendAndExecute called while a previous transaction awaits its refund.")
)

// ErrorCode extracts the short code before the '|' separator, used by event
// consumers that key off codes rather than message text.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if idx := strings.Index(msg, "|"); idx > 0 && idx < 4 {
		return msg[:idx]
	}
	return ""
}
