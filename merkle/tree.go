package merkle

import (
	"github.com/nocturnelabs/nocturne/common"
	"github.com/nocturnelabs/nocturne/ledgererrors"
)

// AppendOnlyTree is a fixed-depth Merkle tree over note leaves. Leaves occupy
// strictly increasing positions and are never removed. Nodes live in flat
// per-level arenas rather than a pointer-linked tree.
//
// Root recomputation is lazy: multiple appends may happen before UpdateRoot
// folds them in. Readers observe the last computed root, which is stale but
// self-consistent during a batch.
type AppendOnlyTree struct {
	depth  int
	leaves []common.Hash   // arena of leaf hashes, index == position
	levels [][]common.Hash // levels[0] aliases leaves, levels[depth] holds the root
	empty  []common.Hash   // root of an all-empty subtree, per level
	root   common.Hash
	clean  uint64 // number of leaves folded into root
}

// Proof is the authentication path for one leaf. Siblings are ordered from
// the leaf level upward.
type Proof struct {
	Pos      uint64        `json:"pos"`
	Leaf     common.Hash   `json:"leaf"`
	Siblings []common.Hash `json:"siblings"`
}

// NewAppendOnlyTree creates an empty tree of the given depth, holding up to
// 2^depth leaves.
func NewAppendOnlyTree(depth int) *AppendOnlyTree {
	empty := make([]common.Hash, depth+1)
	for l := 0; l < depth; l++ {
		empty[l+1] = common.Blake2HashPair(empty[l], empty[l])
	}
	t := &AppendOnlyTree{
		depth:  depth,
		levels: make([][]common.Hash, depth+1),
		empty:  empty,
		root:   empty[depth],
	}
	return t
}

// Capacity returns the number of leaf positions the tree can hold.
func (t *AppendOnlyTree) Capacity() uint64 {
	return uint64(1) << uint(t.depth)
}

// NumLeaves returns the number of appended leaves, which is also the next
// free position.
func (t *AppendOnlyTree) NumLeaves() uint64 {
	return uint64(len(t.leaves))
}

// Depth returns the fixed depth of the tree.
func (t *AppendOnlyTree) Depth() int {
	return t.depth
}

// Dirty reports whether appends have happened since the last UpdateRoot.
func (t *AppendOnlyTree) Dirty() bool {
	return t.clean != uint64(len(t.leaves))
}

// Append inserts a leaf at the next free position and returns that position.
// The root is not recomputed.
func (t *AppendOnlyTree) Append(leaf common.Hash) (uint64, error) {
	pos := uint64(len(t.leaves))
	if pos >= t.Capacity() {
		return 0, ledgererrors.ErrNTreeFull
	}
	t.leaves = append(t.leaves, leaf)
	return pos, nil
}

// Truncate discards the leaves at positions n and above. Only leaves not yet
// folded into the root can be discarded; the last computed root stays valid
// for the leaves that remain.
func (t *AppendOnlyTree) Truncate(n uint64) error {
	if n > uint64(len(t.leaves)) {
		return ledgererrors.ErrNPositionOutOfRange
	}
	if n < t.clean {
		return ledgererrors.ErrNLeafFolded
	}
	t.leaves = t.leaves[:n]
	return nil
}

// Leaf returns the leaf hash at the given position.
func (t *AppendOnlyTree) Leaf(pos uint64) (common.Hash, error) {
	if pos >= uint64(len(t.leaves)) {
		return common.Hash{}, ledgererrors.ErrNPositionOutOfRange
	}
	return t.leaves[pos], nil
}

// Root returns the last computed root. It does not fold in pending appends;
// call UpdateRoot once per batch first.
func (t *AppendOnlyTree) Root() common.Hash {
	return t.root
}

// UpdateRoot folds every pending append into the root and returns it. It
// recomputes only the node paths touched since the last call.
func (t *AppendOnlyTree) UpdateRoot() common.Hash {
	n := uint64(len(t.leaves))
	if t.clean == n {
		return t.root
	}
	t.levels[0] = t.leaves
	lo := t.clean
	for l := 0; l < t.depth; l++ {
		cur := t.levels[l]
		next := t.levels[l+1]
		if len(cur) == 0 {
			break
		}
		loParent := lo >> 1
		hiParent := uint64(len(cur)-1) >> 1
		for uint64(len(next)) <= hiParent {
			next = append(next, common.Hash{})
		}
		for i := loParent; i <= hiParent; i++ {
			left := cur[2*i]
			right := t.empty[l]
			if 2*i+1 < uint64(len(cur)) {
				right = cur[2*i+1]
			}
			next[i] = common.Blake2HashPair(left, right)
		}
		t.levels[l+1] = next
		lo = loParent
	}
	if len(t.levels[t.depth]) > 0 {
		t.root = t.levels[t.depth][0]
	} else {
		t.root = t.empty[t.depth]
	}
	t.clean = n
	return t.root
}

// Opening returns the authentication path for the leaf at pos against the
// current root. The root must be up to date.
func (t *AppendOnlyTree) Opening(pos uint64) (*Proof, error) {
	if pos >= uint64(len(t.leaves)) {
		return nil, ledgererrors.ErrNPositionOutOfRange
	}
	if t.Dirty() {
		return nil, ledgererrors.ErrNStaleRoot
	}
	siblings := make([]common.Hash, t.depth)
	idx := pos
	for l := 0; l < t.depth; l++ {
		sibIdx := idx ^ 1
		if sibIdx < uint64(len(t.levels[l])) {
			siblings[l] = t.levels[l][sibIdx]
		} else {
			siblings[l] = t.empty[l]
		}
		idx >>= 1
	}
	return &Proof{
		Pos:      pos,
		Leaf:     t.leaves[pos],
		Siblings: siblings,
	}, nil
}

// VerifyProof folds the authentication path and compares against root.
func VerifyProof(root common.Hash, proof *Proof) bool {
	if proof == nil {
		return false
	}
	node := proof.Leaf
	idx := proof.Pos
	for _, sib := range proof.Siblings {
		if idx&1 == 0 {
			node = common.Blake2HashPair(node, sib)
		} else {
			node = common.Blake2HashPair(sib, node)
		}
		idx >>= 1
	}
	return node == root
}
