package ledger

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/nocturnelabs/nocturne/common"
	"github.com/nocturnelabs/nocturne/ledgererrors"
	"github.com/nocturnelabs/nocturne/log"
	"github.com/nocturnelabs/nocturne/storage"
	"github.com/nocturnelabs/nocturne/types"
)

// LedgerState owns the three ledgers and is the single writer during block
// application. Cross-ledger invariants (conservation above all) are checked
// holistically here, so there is one exclusively-owned state rather than
// per-ledger locking.
type LedgerState struct {
	spec  *types.ChainSpec
	store *storage.LedgerStore
	sink  types.EventSink

	Notes     *NoteLedger
	Accounts  *AccountLedger
	Contracts *ContractBalanceLedger

	// supply is the sum of all value ever issued via genesis seeding and
	// mint, minus slashing burns. Tracked in 256 bits so the global sum can
	// never wrap even when individual u64 balances sit near their limit.
	supply *uint256.Int

	height  uint64
	inBlock bool
}

func newLedgerState(spec *types.ChainSpec, store *storage.LedgerStore, sink types.EventSink) *LedgerState {
	if sink == nil {
		sink = types.DiscardSink{}
	}
	return &LedgerState{
		spec:      spec,
		store:     store,
		sink:      sink,
		Notes:     NewNoteLedger(spec.NotesTreeDepth),
		Accounts:  NewAccountLedger(),
		Contracts: NewContractBalanceLedger(),
		supply:    uint256.NewInt(0),
	}
}

// Spec returns the chain configuration the ledger was opened with.
func (s *LedgerState) Spec() *types.ChainSpec {
	return s.spec
}

// Height returns the height of the block currently or last applied.
func (s *LedgerState) Height() uint64 {
	return s.height
}

// TotalSupply returns a copy of the issued-value counter.
func (s *LedgerState) TotalSupply() *uint256.Int {
	return new(uint256.Int).Set(s.supply)
}

func (s *LedgerState) emit(e types.Event) {
	s.sink.Emit(e)
}

// requireHost panics when a host-only entrypoint is reached from any other
// caller context. A contract must never be able to invoke these at all.
func (s *LedgerState) requireHost(caller types.CallerContext, op string) {
	if !caller.IsHost() {
		panic(fmt.Sprintf("%s: host-only entrypoint invoked by %s", op, caller.String()))
	}
}

// BeginBlock opens a block for sequential transaction application. Host-only.
func (s *LedgerState) BeginBlock(caller types.CallerContext, height uint64) error {
	s.requireHost(caller, "BeginBlock")
	if s.inBlock {
		return fmt.Errorf("BeginBlock: block %d still open", s.height)
	}
	if height < s.height {
		return fmt.Errorf("BeginBlock: height %d below current %d", height, s.height)
	}
	s.height = height
	s.inBlock = true
	log.Debug(log.LedgerMonitoring, "BeginBlock", "height", height)
	return nil
}

// EndBlock recomputes the root over the block's insertions and commits every
// mutation of the block atomically to storage. Host-only.
func (s *LedgerState) EndBlock(caller types.CallerContext) (common.Hash, error) {
	s.requireHost(caller, "EndBlock")
	if !s.inBlock {
		return common.Hash{}, fmt.Errorf("EndBlock: no open block")
	}
	root := s.Notes.UpdateRoot()

	batch := s.store.NewBatch()
	notes, nullifiers := s.Notes.takePending()
	for _, n := range notes {
		if err := s.store.BatchPutNote(batch, n); err != nil {
			return common.Hash{}, err
		}
	}
	for _, nf := range nullifiers {
		s.store.BatchPutNullifier(batch, nf)
	}
	for key, data := range s.Accounts.takeDirty() {
		s.store.BatchPutAccount(batch, key, data)
	}
	for id, bal := range s.Contracts.takeDirty() {
		s.store.BatchPutContractBalance(batch, id, bal)
	}
	s.store.BatchPutNumNotes(batch, s.Notes.NumNotes())
	s.store.BatchPutRoot(batch, root)
	s.store.BatchPutHeight(batch, s.height)
	supply := s.supply.Bytes32()
	s.store.BatchPutSupply(batch, supply[:])

	if err := s.store.Commit(batch); err != nil {
		return common.Hash{}, fmt.Errorf("EndBlock commit at height %d: %w", s.height, err)
	}
	s.inBlock = false
	log.Info(log.LedgerMonitoring, "EndBlock", "height", s.height, "root", root.String_short(), "num_notes", s.Notes.NumNotes())
	return root, nil
}

// PushNote seeds a note outside transaction processing, used at genesis.
// Host-only.
func (s *LedgerState) PushNote(caller types.CallerContext, height uint64, n *types.Note) (uint64, error) {
	s.requireHost(caller, "PushNote")
	pos, err := s.Notes.InsertNote(n, height)
	if err != nil {
		return 0, err
	}
	if n.Kind == types.NoteTransparent {
		s.supply.Add(s.supply, uint256.NewInt(n.Value))
	}
	return pos, nil
}

// UpdateRoot folds pending note insertions into the root. Host-only.
func (s *LedgerState) UpdateRoot(caller types.CallerContext) common.Hash {
	s.requireHost(caller, "UpdateRoot")
	return s.Notes.UpdateRoot()
}

// AddAccountBalance credits an account outside transaction processing, used
// at genesis seeding. Host-only.
func (s *LedgerState) AddAccountBalance(caller types.CallerContext, key types.AccountKey, amount uint64) error {
	s.requireHost(caller, "AddAccountBalance")
	if err := s.Accounts.Credit(key, amount); err != nil {
		return err
	}
	s.supply.Add(s.supply, uint256.NewInt(amount))
	return nil
}

// SubAccountBalance debits an account outside transaction processing.
// Host-only.
func (s *LedgerState) SubAccountBalance(caller types.CallerContext, key types.AccountKey, amount uint64) error {
	s.requireHost(caller, "SubAccountBalance")
	if err := s.Accounts.Debit(key, amount); err != nil {
		return err
	}
	s.supply.Sub(s.supply, uint256.NewInt(amount))
	return nil
}

// AddContractBalance credits a contract outside transaction processing.
// Host-only.
func (s *LedgerState) AddContractBalance(caller types.CallerContext, id types.ContractID, amount uint64) error {
	s.requireHost(caller, "AddContractBalance")
	if err := s.Contracts.Credit(id, amount); err != nil {
		return err
	}
	s.supply.Add(s.supply, uint256.NewInt(amount))
	return nil
}

// checkDestination verifies that a credit of value can land at dest, so a
// caller pairing it with a debit can run every check before the first
// mutation.
func (s *LedgerState) checkDestination(value uint64, dest types.Destination) error {
	switch dest.Kind {
	case types.DestinationShielded:
		if s.Notes.NumNotes() >= s.Notes.Capacity() {
			return ledgererrors.ErrNTreeFull
		}
		return nil
	case types.DestinationTransparent:
		if s.Accounts.BalanceOf(dest.Account) > ^uint64(0)-value {
			return ledgererrors.ErrBBalanceOverflow
		}
		return nil
	default:
		return fmt.Errorf("checkDestination: unknown kind %d", dest.Kind)
	}
}

// creditDestination lands value in the model the destination names: a fresh
// transparent note or an account credit.
func (s *LedgerState) creditDestination(value uint64, dest types.Destination) error {
	switch dest.Kind {
	case types.DestinationShielded:
		n := types.NewTransparentNote(dest.Stealth, value)
		if _, err := s.Notes.InsertNote(n, s.height); err != nil {
			return err
		}
		return nil
	case types.DestinationTransparent:
		return s.Accounts.Credit(dest.Account, value)
	default:
		return fmt.Errorf("creditDestination: unknown kind %d", dest.Kind)
	}
}
