package ledger

import (
	"github.com/nocturnelabs/nocturne/common"
	"github.com/nocturnelabs/nocturne/ledgererrors"
	"github.com/nocturnelabs/nocturne/log"
	"github.com/nocturnelabs/nocturne/merkle"
	"github.com/nocturnelabs/nocturne/types"
)

// NoteLedger owns the shielded side: the append-only notes tree and the
// nullifier set. Notes are never deleted, only marked spent by recording
// their nullifier.
type NoteLedger struct {
	tree       *merkle.AppendOnlyTree
	notes      []*types.Note // arena, index == position
	nullifiers map[common.Hash]bool

	// accumulated since the last flush to storage
	pendingNotes      []*types.Note
	pendingNullifiers []common.Hash
}

func NewNoteLedger(depth int) *NoteLedger {
	return &NoteLedger{
		tree:       merkle.NewAppendOnlyTree(depth),
		nullifiers: make(map[common.Hash]bool),
	}
}

// InsertNote appends a note at the next free position, assigning Pos and
// Height on the stored copy. The root is not recomputed; call UpdateRoot once
// per batch.
func (nl *NoteLedger) InsertNote(n *types.Note, height uint64) (uint64, error) {
	stored := n.Clone()
	stored.Pos = nl.tree.NumLeaves()
	stored.Height = height
	pos, err := nl.tree.Append(stored.LeafHash())
	if err != nil {
		return 0, err
	}
	nl.notes = append(nl.notes, stored)
	nl.pendingNotes = append(nl.pendingNotes, stored)
	log.Trace(log.LedgerMonitoring, "InsertNote", "pos", pos, "height", height, "commitment", stored.Commitment.String_short())
	return pos, nil
}

// dropNotesFrom discards the notes at positions pos and above. Only notes not
// yet flushed to storage can be dropped; used to unwind the insertions of a
// failed contract call.
func (nl *NoteLedger) dropNotesFrom(pos uint64) error {
	if err := nl.tree.Truncate(pos); err != nil {
		return err
	}
	nl.notes = nl.notes[:pos]
	cut := len(nl.pendingNotes)
	for cut > 0 && nl.pendingNotes[cut-1].Pos >= pos {
		cut--
	}
	nl.pendingNotes = nl.pendingNotes[:cut]
	return nil
}

// ContainsNullifier reports whether the nullifier was ever recorded.
func (nl *NoteLedger) ContainsNullifier(n common.Hash) bool {
	return nl.nullifiers[n]
}

// InsertNullifier records a spend. A second insert of the same nullifier
// fails with DoubleSpend; callers must treat that as a hard rejection of the
// whole transaction.
func (nl *NoteLedger) InsertNullifier(n common.Hash) error {
	if nl.nullifiers[n] {
		return ledgererrors.ErrNDoubleSpend
	}
	nl.nullifiers[n] = true
	nl.pendingNullifiers = append(nl.pendingNullifiers, n)
	return nil
}

// Root returns the last computed root, stale during a batch of insertions.
func (nl *NoteLedger) Root() common.Hash {
	return nl.tree.Root()
}

// UpdateRoot folds pending insertions into the root. Must run once per batch
// before any Root read is trusted for new proofs.
func (nl *NoteLedger) UpdateRoot() common.Hash {
	return nl.tree.UpdateRoot()
}

// Opening returns the Merkle proof for the note at pos.
func (nl *NoteLedger) Opening(pos uint64) (*merkle.Proof, error) {
	return nl.tree.Opening(pos)
}

// NumNotes returns the number of notes ever inserted.
func (nl *NoteLedger) NumNotes() uint64 {
	return nl.tree.NumLeaves()
}

// Capacity returns the number of positions the tree can hold.
func (nl *NoteLedger) Capacity() uint64 {
	return nl.tree.Capacity()
}

// NoteAt returns the note at the given position.
func (nl *NoteLedger) NoteAt(pos uint64) (*types.Note, error) {
	if pos >= uint64(len(nl.notes)) {
		return nil, ledgererrors.ErrNPositionOutOfRange
	}
	return nl.notes[pos], nil
}

// takePending hands the un-flushed notes and nullifiers to the caller and
// resets the accumulators.
func (nl *NoteLedger) takePending() ([]*types.Note, []common.Hash) {
	notes, nfs := nl.pendingNotes, nl.pendingNullifiers
	nl.pendingNotes, nl.pendingNullifiers = nil, nil
	return notes, nfs
}
