package ledger

import (
	"github.com/holiman/uint256"

	"github.com/nocturnelabs/nocturne/common"
	"github.com/nocturnelabs/nocturne/log"
	"github.com/nocturnelabs/nocturne/merkle"
	"github.com/nocturnelabs/nocturne/storage"
	"github.com/nocturnelabs/nocturne/types"
)

// QueryService is the public, read-only projection over the three ledgers.
// Every method is callable by anyone, host or contract.
type QueryService struct {
	state *LedgerState
	store *storage.LedgerStore
}

func NewQueryService(state *LedgerState, store *storage.LedgerStore) *QueryService {
	return &QueryService{state: state, store: store}
}

// Root returns the last computed notes-tree root.
func (q *QueryService) Root() common.Hash {
	return q.state.Notes.Root()
}

// Account returns the public projection of a transparent account; missing
// accounts read as zero.
func (q *QueryService) Account(key types.AccountKey) types.AccountData {
	return q.state.Accounts.Account(key)
}

// ContractBalance returns a contract's held funds; missing contracts read as
// zero.
func (q *QueryService) ContractBalance(id types.ContractID) uint64 {
	return q.state.Contracts.BalanceOf(id)
}

// Opening returns the Merkle proof for the note at pos against Root.
func (q *QueryService) Opening(pos uint64) (*merkle.Proof, error) {
	return q.state.Notes.Opening(pos)
}

// NumNotes returns the number of notes ever inserted.
func (q *QueryService) NumNotes() uint64 {
	return q.state.Notes.NumNotes()
}

// NullifierExists reports whether a nullifier has been recorded.
func (q *QueryService) NullifierExists(n common.Hash) bool {
	return q.state.Notes.ContainsNullifier(n)
}

// TotalSupply returns the issued-value counter.
func (q *QueryService) TotalSupply() *uint256.Int {
	return q.state.TotalSupply()
}

// LeavesFromPos streams committed notes at positions >= pos. The stream
// reads a storage snapshot, so it reflects the ledger as of the call even
// while later blocks commit; restart by opening a new stream at the last
// position seen. The caller must Release it.
func (q *QueryService) LeavesFromPos(pos uint64) (*storage.NoteStream, error) {
	log.Trace(log.QueryMonitoring, "LeavesFromPos", "pos", pos)
	return q.store.StreamNotesFromPos(pos)
}

// LeavesFromHeight streams committed notes inserted at the given block
// height or later, with the same snapshot semantics as LeavesFromPos.
func (q *QueryService) LeavesFromHeight(height uint64) (*storage.NoteStream, error) {
	pos, found, err := q.store.FirstPosAtOrAfterHeight(height)
	if err != nil {
		return nil, err
	}
	if !found {
		// Past the tip: an immediately exhausted stream.
		pos = q.state.Notes.NumNotes()
	}
	log.Trace(log.QueryMonitoring, "LeavesFromHeight", "height", height, "pos", pos)
	return q.store.StreamNotesFromPos(pos)
}
