package merkle

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nocturnelabs/nocturne/common"
	"github.com/nocturnelabs/nocturne/ledgererrors"
)

func leafHash(i int) common.Hash {
	return common.Blake2HashLeaf([]byte(fmt.Sprintf("leaf-%d", i)))
}

func TestEmptyTreeRoot(t *testing.T) {
	a := NewAppendOnlyTree(17)
	b := NewAppendOnlyTree(17)
	assert.Equal(t, a.Root(), b.Root())
	assert.Equal(t, uint64(0), a.NumLeaves())
	assert.Equal(t, uint64(1)<<17, a.Capacity())
}

func TestRootDeterminism(t *testing.T) {
	a := NewAppendOnlyTree(8)
	b := NewAppendOnlyTree(8)
	for i := 0; i < 37; i++ {
		_, err := a.Append(leafHash(i))
		require.NoError(t, err)
		_, err = b.Append(leafHash(i))
		require.NoError(t, err)
	}
	// a folds once at the end, b folds after every append
	a.UpdateRoot()
	assert.Equal(t, a.Root(), b.UpdateRoot())
}

func TestIncrementalUpdateMatchesBatch(t *testing.T) {
	a := NewAppendOnlyTree(8)
	b := NewAppendOnlyTree(8)
	for i := 0; i < 20; i++ {
		a.Append(leafHash(i))
		b.Append(leafHash(i))
		b.UpdateRoot()
	}
	assert.Equal(t, b.Root(), a.UpdateRoot())
}

func TestTruncateDiscardsPendingLeaves(t *testing.T) {
	a := NewAppendOnlyTree(4)
	b := NewAppendOnlyTree(4)
	for i := 0; i < 2; i++ {
		a.Append(leafHash(i))
		b.Append(leafHash(i))
	}
	a.UpdateRoot()

	a.Append(leafHash(7))
	a.Append(leafHash(8))
	require.NoError(t, a.Truncate(2))
	assert.Equal(t, uint64(2), a.NumLeaves())

	// appends after the truncation fold as if the discarded leaves never were
	a.Append(leafHash(2))
	b.Append(leafHash(2))
	assert.Equal(t, b.UpdateRoot(), a.UpdateRoot())

	assert.ErrorIs(t, a.Truncate(1), ledgererrors.ErrNLeafFolded)
	assert.ErrorIs(t, a.Truncate(5), ledgererrors.ErrNPositionOutOfRange)
}

func TestAppendPositionsMonotonic(t *testing.T) {
	tree := NewAppendOnlyTree(4)
	for i := 0; i < 16; i++ {
		pos, err := tree.Append(leafHash(i))
		require.NoError(t, err)
		assert.Equal(t, uint64(i), pos)
	}
	_, err := tree.Append(leafHash(16))
	assert.ErrorIs(t, err, ledgererrors.ErrNTreeFull)
}

func TestRootIsStaleUntilUpdate(t *testing.T) {
	tree := NewAppendOnlyTree(8)
	empty := tree.Root()
	tree.Append(leafHash(0))
	assert.True(t, tree.Dirty())
	assert.Equal(t, empty, tree.Root())
	tree.UpdateRoot()
	assert.False(t, tree.Dirty())
	assert.NotEqual(t, empty, tree.Root())
}

func TestOpeningVerifies(t *testing.T) {
	tree := NewAppendOnlyTree(10)
	for i := 0; i < 100; i++ {
		tree.Append(leafHash(i))
	}
	root := tree.UpdateRoot()
	for _, pos := range []uint64{0, 1, 2, 50, 63, 64, 99} {
		proof, err := tree.Opening(pos)
		require.NoError(t, err)
		assert.True(t, VerifyProof(root, proof), "opening at pos %d", pos)
	}
}

func TestOpeningRejectsTamperedProof(t *testing.T) {
	tree := NewAppendOnlyTree(10)
	for i := 0; i < 10; i++ {
		tree.Append(leafHash(i))
	}
	root := tree.UpdateRoot()

	proof, err := tree.Opening(3)
	require.NoError(t, err)
	proof.Leaf = leafHash(4)
	assert.False(t, VerifyProof(root, proof))

	proof, err = tree.Opening(3)
	require.NoError(t, err)
	proof.Siblings[2] = common.Blake2Hash([]byte("bogus"))
	assert.False(t, VerifyProof(root, proof))

	assert.False(t, VerifyProof(root, nil))
}

func TestOpeningErrors(t *testing.T) {
	tree := NewAppendOnlyTree(8)
	tree.Append(leafHash(0))
	_, err := tree.Opening(0)
	assert.ErrorIs(t, err, ledgererrors.ErrNStaleRoot)

	tree.UpdateRoot()
	_, err = tree.Opening(1)
	assert.ErrorIs(t, err, ledgererrors.ErrNPositionOutOfRange)
}

func TestOldProofFailsAgainstNewRoot(t *testing.T) {
	tree := NewAppendOnlyTree(8)
	for i := 0; i < 5; i++ {
		tree.Append(leafHash(i))
	}
	oldRoot := tree.UpdateRoot()
	proof, err := tree.Opening(2)
	require.NoError(t, err)

	tree.Append(leafHash(5))
	newRoot := tree.UpdateRoot()
	require.NotEqual(t, oldRoot, newRoot)

	// the leaf is still a member, but the stale path no longer folds to the new root
	assert.True(t, VerifyProof(oldRoot, proof))
	assert.False(t, VerifyProof(newRoot, proof))

	fresh, err := tree.Opening(2)
	require.NoError(t, err)
	assert.True(t, VerifyProof(newRoot, fresh))
}
