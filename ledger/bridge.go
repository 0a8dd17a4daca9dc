package ledger

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/nocturnelabs/nocturne/common"
	"github.com/nocturnelabs/nocturne/ledgererrors"
	"github.com/nocturnelabs/nocturne/log"
	"github.com/nocturnelabs/nocturne/types"
)

// txContext is the scratch state of the transaction currently being applied:
// the deposit it earmarked, whether a contract picked it up yet, and the undo
// journal for the contract call in flight.
type txContext struct {
	txHash        common.Hash
	depositTarget types.ContractID
	depositValue  uint64
	depositTaken  bool

	journal []func()      // undo ops, applied newest-first on revert
	events  []types.Event // held back until the call settles
}

// ValueBridge moves value between the two accounting models and between
// contracts. All entrypoints check the caller identity at the top of the
// function body; the split is enforced per call, not by the type system.
type ValueBridge struct {
	state *LedgerState
	tx    *txContext // nil outside transaction processing
}

func NewValueBridge(state *LedgerState) *ValueBridge {
	return &ValueBridge{state: state}
}

// beginTx installs the per-transaction scratch state.
func (vb *ValueBridge) beginTx(txHash common.Hash, depositTarget types.ContractID, depositValue uint64) {
	vb.tx = &txContext{
		txHash:        txHash,
		depositTarget: depositTarget,
		depositValue:  depositValue,
	}
}

// endTx releases the events the transaction produced, clears the scratch
// state and reports how much of the earmarked deposit no contract claimed;
// that remainder goes back to the payer.
func (vb *ValueBridge) endTx() (untaken uint64) {
	if vb.tx == nil {
		return 0
	}
	for _, e := range vb.tx.events {
		vb.state.emit(e)
	}
	if !vb.tx.depositTaken {
		untaken = vb.tx.depositValue
	}
	vb.tx = nil
	return untaken
}

// record registers the inverse of a mutation just applied. Outside a
// transaction there is no call to unwind, so nothing is kept.
func (vb *ValueBridge) record(undo func()) {
	if vb.tx != nil {
		vb.tx.journal = append(vb.tx.journal, undo)
	}
}

// emit holds events back while a transaction is in flight so a reverted call
// leaves no trace in the feed. Outside a transaction they go straight out.
func (vb *ValueBridge) emit(e types.Event) {
	if vb.tx != nil {
		vb.tx.events = append(vb.tx.events, e)
		return
	}
	vb.state.emit(e)
}

// revert unwinds every bridge mutation of the transaction in flight, newest
// first, drops its events and puts the earmarked deposit back up for refund.
// Ledger balances change only through journaled entrypoints during a call, so
// replaying the inverses in reverse order restores the pre-call state exactly.
func (vb *ValueBridge) revert() {
	if vb.tx == nil {
		return
	}
	for i := len(vb.tx.journal) - 1; i >= 0; i-- {
		vb.tx.journal[i]()
	}
	vb.tx.journal = nil
	vb.tx.events = nil
	vb.tx.depositTaken = false
}

// mustUndo panics on a failing inverse op; reverse-order replay makes that
// unreachable, so a hit is a journaling bug.
func mustUndo(err error) {
	if err != nil {
		panic(fmt.Sprintf("call unwind: %v", err))
	}
}

// creditTo lands value at dest and journals the inverse, so a failed call can
// take back an account credit or a freshly inserted note.
func (vb *ValueBridge) creditTo(value uint64, dest types.Destination) error {
	mark := vb.state.Notes.NumNotes()
	if err := vb.state.creditDestination(value, dest); err != nil {
		return err
	}
	switch dest.Kind {
	case types.DestinationShielded:
		vb.record(func() { mustUndo(vb.state.Notes.dropNotesFrom(mark)) })
	case types.DestinationTransparent:
		vb.record(func() { mustUndo(vb.state.Accounts.Debit(dest.Account, value)) })
	}
	return nil
}

// Deposit credits the calling contract with the value the transaction
// earmarked for it. The caller must be the earmarked recipient and the value
// must match exactly.
func (vb *ValueBridge) Deposit(caller types.CallerContext, value uint64) error {
	if !caller.IsContract() {
		return ledgererrors.ErrVCallerMismatch
	}
	if vb.tx == nil || vb.tx.depositValue == 0 {
		return ledgererrors.ErrVNoDeposit
	}
	if caller.Contract != vb.tx.depositTarget {
		return ledgererrors.ErrVCallerMismatch
	}
	if vb.tx.depositTaken {
		return ledgererrors.ErrVDepositTaken
	}
	if value != vb.tx.depositValue {
		return ledgererrors.ErrVDepositMismatch
	}
	contract := caller.Contract
	if err := vb.state.Contracts.Credit(contract, value); err != nil {
		return err
	}
	vb.record(func() { mustUndo(vb.state.Contracts.Debit(contract, value)) })
	vb.tx.depositTaken = true
	vb.emit(types.DepositEvent{Contract: contract, Value: value})
	log.Debug(log.BridgeMonitoring, "deposit", "contract", contract.Hex(), "value", value)
	return nil
}

// Withdraw debits the calling contract and credits the destination model.
// The request must name the caller itself. The destination is validated
// before the debit so a failing credit cannot strand the value.
func (vb *ValueBridge) Withdraw(caller types.CallerContext, req types.WithdrawRequest) error {
	if !caller.IsContract() || caller.Contract != req.ContractID {
		return ledgererrors.ErrVCallerMismatch
	}
	if req.Destination.Kind != types.DestinationShielded && req.Destination.Kind != types.DestinationTransparent {
		return ledgererrors.ErrVBadDestination
	}
	if err := vb.state.checkDestination(req.Value, req.Destination); err != nil {
		return err
	}
	if err := vb.state.Contracts.Debit(req.ContractID, req.Value); err != nil {
		return err
	}
	vb.record(func() { mustUndo(vb.state.Contracts.Credit(req.ContractID, req.Value)) })
	if err := vb.creditTo(req.Value, req.Destination); err != nil {
		panic(fmt.Sprintf("withdraw credit after destination check: %v", err))
	}
	vb.emit(types.WithdrawalEvent{
		Contract:   req.ContractID,
		Value:      req.Value,
		ToShielded: req.Destination.Kind == types.DestinationShielded,
	})
	log.Debug(log.BridgeMonitoring, "withdraw", "contract", req.ContractID.Hex(), "value", req.Value)
	return nil
}

// Convert swaps the transactor's own value between models. It consumes the
// deposit the transaction earmarked for the transfer contract itself, so the
// debit side already happened in the Spent phase and contract balances stay
// untouched. Only the transactor may call it; an inter-contract call is
// rejected.
func (vb *ValueBridge) Convert(caller types.CallerContext, req types.ConvertRequest) error {
	if !caller.IsTransactor() {
		return ledgererrors.ErrVNotTransactor
	}
	if req.Destination.Kind != types.DestinationShielded && req.Destination.Kind != types.DestinationTransparent {
		return ledgererrors.ErrVBadDestination
	}
	if vb.tx == nil || vb.tx.depositValue == 0 {
		return ledgererrors.ErrVNoDeposit
	}
	if vb.tx.depositTarget != vb.state.spec.TransferContract {
		return ledgererrors.ErrVCallerMismatch
	}
	if vb.tx.depositTaken {
		return ledgererrors.ErrVDepositTaken
	}
	if req.Value != vb.tx.depositValue {
		return ledgererrors.ErrVDepositMismatch
	}
	if err := vb.creditTo(req.Value, req.Destination); err != nil {
		return err
	}
	vb.tx.depositTaken = true
	vb.emit(types.ConvertEvent{
		Value:      req.Value,
		ToShielded: req.Destination.Kind == types.DestinationShielded,
	})
	log.Debug(log.BridgeMonitoring, "convert", "value", req.Value, "to_shielded", req.Destination.Kind == types.DestinationShielded)
	return nil
}

// Mint credits the destination with freshly issued value. Restricted to the
// privileged staking contract; this is the sanctioned conservation exception
// for consensus rewards.
func (vb *ValueBridge) Mint(caller types.CallerContext, req types.MintRequest) error {
	if !caller.IsContract() || caller.Contract != vb.state.spec.StakingContract {
		return ledgererrors.ErrVNotStakeContract
	}
	if req.Destination.Kind != types.DestinationShielded && req.Destination.Kind != types.DestinationTransparent {
		return ledgererrors.ErrVBadDestination
	}
	if err := vb.creditTo(req.Value, req.Destination); err != nil {
		return err
	}
	vb.state.supply.Add(vb.state.supply, uint256.NewInt(req.Value))
	vb.record(func() { vb.state.supply.Sub(vb.state.supply, uint256.NewInt(req.Value)) })
	vb.emit(types.MintEvent{
		Value:      req.Value,
		ToShielded: req.Destination.Kind == types.DestinationShielded,
	})
	log.Info(log.BridgeMonitoring, "mint", "value", req.Value)
	return nil
}

// SubContractBalance burns part of a contract balance, used by the staking
// contract for slashing. It returns an error rather than panicking so the
// caller can recover gracefully.
func (vb *ValueBridge) SubContractBalance(caller types.CallerContext, id types.ContractID, value uint64) error {
	if !caller.IsContract() || caller.Contract != vb.state.spec.StakingContract {
		return ledgererrors.ErrVNotStakeContract
	}
	if err := vb.state.Contracts.Debit(id, value); err != nil {
		return err
	}
	vb.state.supply.Sub(vb.state.supply, uint256.NewInt(value))
	vb.record(func() {
		mustUndo(vb.state.Contracts.Credit(id, value))
		vb.state.supply.Add(vb.state.supply, uint256.NewInt(value))
	})
	log.Info(log.BridgeMonitoring, "sub_contract_balance", "id", id.Hex(), "value", value)
	return nil
}

// ContractToContract moves value from the calling contract's own balance to
// another contract. The receiving side is checked for headroom before the
// debit so a failing credit cannot strand the value.
func (vb *ValueBridge) ContractToContract(caller types.CallerContext, req types.ContractTransferRequest) error {
	if !caller.IsContract() {
		return ledgererrors.ErrVCallerMismatch
	}
	from := caller.Contract
	if vb.state.Contracts.BalanceOf(req.To) > ^uint64(0)-req.Value {
		return ledgererrors.ErrBBalanceOverflow
	}
	if err := vb.state.Contracts.Debit(from, req.Value); err != nil {
		return err
	}
	if err := vb.state.Contracts.Credit(req.To, req.Value); err != nil {
		panic(fmt.Sprintf("contract credit after headroom check: %v", err))
	}
	vb.record(func() {
		mustUndo(vb.state.Contracts.Debit(req.To, req.Value))
		mustUndo(vb.state.Contracts.Credit(from, req.Value))
	})
	vb.emit(types.ContractTransferEvent{From: from, To: req.To, Value: req.Value})
	log.Debug(log.BridgeMonitoring, "contract_to_contract", "from", from.Hex(), "to", req.To.Hex(), "value", req.Value)
	return nil
}
