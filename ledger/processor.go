package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nocturnelabs/nocturne/common"
	"github.com/nocturnelabs/nocturne/ledgererrors"
	"github.com/nocturnelabs/nocturne/log"
	"github.com/nocturnelabs/nocturne/types"
)

// Phase is the per-transaction state machine. A transaction either walks
// Received -> Verified -> Spent -> Executed -> Refunded, or drops to Rejected
// with no state mutation at all.
type Phase uint8

const (
	PhaseReceived Phase = iota
	PhaseVerified
	PhaseSpent
	PhaseExecuted
	PhaseRefunded
	PhaseRejected
)

func (p Phase) String() string {
	switch p {
	case PhaseReceived:
		return "received"
	case PhaseVerified:
		return "verified"
	case PhaseSpent:
		return "spent"
	case PhaseExecuted:
		return "executed"
	case PhaseRefunded:
		return "refunded"
	case PhaseRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// ProofVerifier is the external zero-knowledge verifier, injected by the
// host. The ledger consumes only its verdict.
type ProofVerifier interface {
	Verify(proof []byte, publicInputs [][]byte) bool
}

// SignatureVerifier checks Moonlight signatures, injected by the host.
type SignatureVerifier interface {
	Verify(key types.AccountKey, msg []byte, sig []byte) bool
}

// InvocationResult is what the external VM reports back for one contract
// call. GasSpent is priced by the VM's own cost model; the ledger never
// prices opcodes.
type InvocationResult struct {
	Output   []byte
	GasSpent uint64
	Err      error
}

// ContractInvoker is the external contract VM. The bridge is handed in so
// the invoked contract can call back into deposit/withdraw/mint. Exceeding
// gasBudget aborts the call and is reported through Err; prior ledger debits
// stay committed.
type ContractInvoker interface {
	Invoke(ctx context.Context, bridge *ValueBridge, caller types.CallerContext, call types.ContractCall, gasBudget uint64) InvocationResult
}

type pendingRefund struct {
	txHash         common.Hash
	fee            types.Fee
	untakenDeposit uint64
	callFailed     bool
	failureReason  string
}

// TransactionProcessor orchestrates the two-phase spend-then-refund
// lifecycle. Transactions are applied strictly sequentially in block order;
// the processor holds the single writer reference to the ledger state.
type TransactionProcessor struct {
	state    *LedgerState
	bridge   *ValueBridge
	verifier ProofVerifier
	sigs     SignatureVerifier
	invoker  ContractInvoker
	tracer   trace.Tracer

	pending *pendingRefund
}

func NewTransactionProcessor(state *LedgerState, verifier ProofVerifier, sigs SignatureVerifier, invoker ContractInvoker) *TransactionProcessor {
	return &TransactionProcessor{
		state:    state,
		bridge:   NewValueBridge(state),
		verifier: verifier,
		sigs:     sigs,
		invoker:  invoker,
		tracer:   otel.Tracer("github.com/nocturnelabs/nocturne/ledger"),
	}
}

// Bridge exposes the bridge bound to this processor's state, for host
// functions and tests.
func (tp *TransactionProcessor) Bridge() *ValueBridge {
	return tp.bridge
}

// publicInputs lays out the proof statement the way the external circuit
// expects it: anchor root, nullifiers, output commitments, deposit, gas
// terms. Order is protocol-sensitive.
func publicInputs(p *types.PhoenixPayload) [][]byte {
	inputs := make([][]byte, 0, 2+len(p.Nullifiers)+len(p.Outputs)+2)
	inputs = append(inputs, p.Root.Bytes())
	for _, n := range p.Nullifiers {
		inputs = append(inputs, n.Bytes())
	}
	for i := range p.Outputs {
		inputs = append(inputs, p.Outputs[i].Commitment.Bytes())
	}
	inputs = append(inputs, common.Uint64ToBytes(p.Deposit))
	inputs = append(inputs, common.Uint64ToBytes(p.Fee.GasPrice))
	inputs = append(inputs, common.Uint64ToBytes(p.Fee.GasLimit))
	return inputs
}

// SpendAndExecute runs a transaction up to the Executed phase. A returned
// error means Rejected: the transaction never entered the ledger and must be
// dropped from the candidate block. A receipt with CallFailed set means the
// spend committed but the attached call did not succeed; the transaction is
// still included and still charges gas. Host-only.
func (tp *TransactionProcessor) SpendAndExecute(ctx context.Context, caller types.CallerContext, env *types.TransactionEnvelope) (*types.ExecutionReceipt, error) {
	tp.state.requireHost(caller, "SpendAndExecute")
	if tp.pending != nil {
		return nil, ledgererrors.ErrTRefundPending
	}

	txHash := env.Hash()
	ctx, span := tp.tracer.Start(ctx, "ledger.spend_and_execute",
		trace.WithAttributes(attribute.String("tx.hash", txHash.Hex())))
	defer span.End()

	// Received -> Verified
	if err := env.Validate(); err != nil {
		return nil, tp.reject(txHash, err)
	}
	fee := env.GetFee()
	maxFee, err := fee.MaxFee()
	if err != nil {
		return nil, tp.reject(txHash, err)
	}
	switch {
	case env.IsPhoenix():
		if !tp.verifier.Verify(env.Phoenix.Proof, publicInputs(env.Phoenix)) {
			return nil, tp.reject(txHash, ledgererrors.ErrTProofInvalid)
		}
	case env.IsMoonlight():
		m := env.Moonlight
		if !tp.sigs.Verify(m.Sender, m.SigningBytes(), m.Signature) {
			return nil, tp.reject(txHash, ledgererrors.ErrTSignatureInvalid)
		}
	}
	log.Trace(log.TxMonitoring, "tx verified", "tx", txHash.String_short(), "phase", PhaseVerified.String())

	// Verified -> Spent. Every check runs before any mutation so a rejection
	// here leaves no partial state.
	if env.IsPhoenix() {
		p := env.Phoenix
		if tp.state.Notes.NumNotes()+uint64(len(p.Outputs)) > tp.state.Notes.Capacity() {
			return nil, tp.reject(txHash, ledgererrors.ErrNTreeFull)
		}
		for _, n := range p.Nullifiers {
			if tp.state.Notes.ContainsNullifier(n) {
				return nil, tp.reject(txHash, ledgererrors.ErrNDoubleSpend)
			}
		}
		for _, n := range p.Nullifiers {
			if err := tp.state.Notes.InsertNullifier(n); err != nil {
				// Unreachable after the membership pass; a hit here is a bug.
				panic(fmt.Sprintf("nullifier insert after membership check: %v", err))
			}
		}
		for i := range p.Outputs {
			if _, err := tp.state.Notes.InsertNote(&p.Outputs[i], tp.state.height); err != nil {
				panic(fmt.Sprintf("note insert after capacity check: %v", err))
			}
		}
	} else {
		m := env.Moonlight
		total, overflow := addChecked(m.Value, m.Deposit)
		if !overflow {
			total, overflow = addChecked(total, maxFee)
		}
		if overflow {
			return nil, tp.reject(txHash, ledgererrors.ErrBBalanceOverflow)
		}
		if m.Nonce != tp.state.Accounts.NextNonce(m.Sender) {
			return nil, tp.reject(txHash, ledgererrors.ErrBNonceMismatch)
		}
		if tp.state.Accounts.BalanceOf(m.Sender) < total {
			return nil, tp.reject(txHash, ledgererrors.ErrBInsufficientFunds)
		}
		if m.Receiver != nil && m.Value > 0 {
			if tp.state.Accounts.BalanceOf(*m.Receiver) > ^uint64(0)-m.Value {
				return nil, tp.reject(txHash, ledgererrors.ErrBBalanceOverflow)
			}
		}
		if err := tp.state.Accounts.AdvanceNonce(m.Sender, m.Nonce); err != nil {
			return nil, tp.reject(txHash, err)
		}
		if err := tp.state.Accounts.Debit(m.Sender, total); err != nil {
			return nil, tp.reject(txHash, err)
		}
		if m.Receiver != nil && m.Value > 0 {
			if err := tp.state.Accounts.Credit(*m.Receiver, m.Value); err != nil {
				panic(fmt.Sprintf("receiver credit after headroom check: %v", err))
			}
		}
	}
	log.Trace(log.TxMonitoring, "tx spent", "tx", txHash.String_short(), "phase", PhaseSpent.String())

	// Spent -> Executed. A deposit with no call is earmarked for the transfer
	// contract itself, claimable only through Convert.
	depositTarget := tp.state.spec.TransferContract
	if call := env.GetCall(); call != nil {
		depositTarget = call.ContractID
	}
	tp.bridge.beginTx(txHash, depositTarget, env.GetDeposit())

	receipt := &types.ExecutionReceipt{TxHash: txHash}
	if call := env.GetCall(); call != nil {
		var res InvocationResult
		if call.ContractID == tp.state.spec.TransferContract {
			res = tp.executeBuiltin(call)
		} else {
			res = tp.invoker.Invoke(ctx, tp.bridge, types.ContractCaller(call.ContractID), *call, fee.GasLimit)
		}
		receipt.GasSpent = res.GasSpent
		if receipt.GasSpent > fee.GasLimit {
			receipt.GasSpent = fee.GasLimit
		}
		if res.Err != nil {
			// Failed-but-valid: the spend stays committed, the call's own
			// effects are unwound and its deposit is up for refund again.
			// Distinct from Rejected.
			tp.bridge.revert()
			receipt.CallFailed = true
			receipt.FailureReason = res.Err.Error()
			log.Warn(log.TxMonitoring, "contract call failed", "tx", txHash.String_short(), "err", res.Err)
		} else {
			receipt.Output = res.Output
		}
	}

	untaken := tp.bridge.endTx()
	tp.pending = &pendingRefund{
		txHash:         txHash,
		fee:            fee,
		untakenDeposit: untaken,
		callFailed:     receipt.CallFailed,
		failureReason:  receipt.FailureReason,
	}
	span.SetAttributes(
		attribute.Bool("tx.call_failed", receipt.CallFailed),
		attribute.Int64("tx.gas_spent", int64(receipt.GasSpent)),
	)
	log.Debug(log.TxMonitoring, "tx executed", "tx", txHash.String_short(), "phase", PhaseExecuted.String(), "call_failed", receipt.CallFailed)
	return receipt, nil
}

// executeBuiltin dispatches calls addressed to the transfer contract itself.
// These run in the transactor's context, not a contract context.
func (tp *TransactionProcessor) executeBuiltin(call *types.ContractCall) InvocationResult {
	switch call.FnName {
	case "convert":
		var req types.ConvertRequest
		if err := json.Unmarshal(call.Args, &req); err != nil {
			return InvocationResult{Err: fmt.Errorf("convert args: %w", err)}
		}
		if err := tp.bridge.Convert(types.TransactorCaller(), req); err != nil {
			return InvocationResult{Err: err}
		}
		return InvocationResult{}
	default:
		return InvocationResult{Err: fmt.Errorf("unknown transfer entrypoint %q", call.FnName)}
	}
}

// Refund settles the gas difference: unspent = (limit - gasSpent) * price,
// plus any earmarked deposit no contract claimed, credited back to the
// payer's chosen model. Must be called exactly once after SpendAndExecute;
// the host's call discipline guarantees the ordering and this panics when it
// is violated. Host-only.
func (tp *TransactionProcessor) Refund(caller types.CallerContext, gasSpent uint64) error {
	tp.state.requireHost(caller, "Refund")
	if tp.pending == nil {
		panic("Refund: no transaction awaiting refund")
	}
	p := tp.pending
	tp.pending = nil

	fee := p.fee
	if gasSpent > fee.GasLimit {
		log.Warn(log.TxMonitoring, "gas spent exceeds limit, clamping", "tx", p.txHash.String_short(), "gas_spent", gasSpent, "limit", fee.GasLimit)
		gasSpent = fee.GasLimit
	}
	unspent := (fee.GasLimit - gasSpent) * fee.GasPrice
	refund, overflow := addChecked(unspent, p.untakenDeposit)
	if overflow {
		return ledgererrors.ErrBBalanceOverflow
	}
	if refund > 0 {
		if err := tp.state.creditDestination(refund, fee.Refund); err != nil {
			return err
		}
	}
	tp.state.emit(types.TransactionExecutedEvent{
		TxHash:        p.txHash,
		Height:        tp.state.height,
		GasSpent:      gasSpent,
		CallFailed:    p.callFailed,
		FailureReason: p.failureReason,
	})
	log.Debug(log.TxMonitoring, "tx refunded", "tx", p.txHash.String_short(), "phase", PhaseRefunded.String(), "refund", refund)
	return nil
}

func (tp *TransactionProcessor) reject(txHash common.Hash, err error) error {
	log.Debug(log.TxMonitoring, "tx rejected", "tx", txHash.String_short(), "phase", PhaseRejected.String(), "err", err)
	return err
}

func addChecked(a, b uint64) (uint64, bool) {
	if a > ^uint64(0)-b {
		return 0, true
	}
	return a + b, false
}
