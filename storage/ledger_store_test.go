package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nocturnelabs/nocturne/common"
	"github.com/nocturnelabs/nocturne/types"
)

func newTestStore(t *testing.T) *LedgerStore {
	t.Helper()
	ls, err := NewMemoryLedgerStore()
	require.NoError(t, err)
	t.Cleanup(func() { ls.Close() })
	return ls
}

func testNote(t *testing.T, pos uint64, height uint64, value uint64) *types.Note {
	t.Helper()
	n := types.NewTransparentNote(common.Blake2Hash(common.Uint64ToBytes(pos)), value)
	n.Pos = pos
	n.Height = height
	return n
}

func TestNoteRoundTrip(t *testing.T) {
	ls := newTestStore(t)

	n := testNote(t, 7, 2, 500)
	batch := ls.NewBatch()
	require.NoError(t, ls.BatchPutNote(batch, n))
	require.NoError(t, ls.Commit(batch))

	got, found, err := ls.NoteByPos(7)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, n, got)

	_, found, err = ls.NoteByPos(8)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNullifierSet(t *testing.T) {
	ls := newTestStore(t)

	nf := common.Blake2Hash([]byte("nf-1"))
	has, err := ls.HasNullifier(nf)
	require.NoError(t, err)
	assert.False(t, has)

	batch := ls.NewBatch()
	ls.BatchPutNullifier(batch, nf)
	require.NoError(t, ls.Commit(batch))

	has, err = ls.HasNullifier(nf)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestAccountRoundTrip(t *testing.T) {
	ls := newTestStore(t)

	key := types.BytesToAccountKey(common.Blake2Hash([]byte("alice")).Bytes())
	_, found, err := ls.Account(key)
	require.NoError(t, err)
	assert.False(t, found)

	batch := ls.NewBatch()
	ls.BatchPutAccount(batch, key, types.AccountData{Balance: 1000, Nonce: 3})
	require.NoError(t, ls.Commit(batch))

	data, found, err := ls.Account(key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, types.AccountData{Balance: 1000, Nonce: 3}, data)
}

func TestMetaRoundTrip(t *testing.T) {
	ls := newTestStore(t)

	batch := ls.NewBatch()
	ls.BatchPutNumNotes(batch, 42)
	ls.BatchPutHeight(batch, 9)
	root := common.Blake2Hash([]byte("root"))
	ls.BatchPutRoot(batch, root)
	require.NoError(t, ls.Commit(batch))

	n, err := ls.NumNotes()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), n)

	h, err := ls.Height()
	require.NoError(t, err)
	assert.Equal(t, uint64(9), h)

	got, found, err := ls.Root()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, root, got)
}

func TestHeightIndex(t *testing.T) {
	ls := newTestStore(t)

	// block 0: positions 0..2, block 2: positions 3..4, nothing at block 1
	batch := ls.NewBatch()
	for pos := uint64(0); pos < 3; pos++ {
		require.NoError(t, ls.BatchPutNote(batch, testNote(t, pos, 0, 10)))
	}
	for pos := uint64(3); pos < 5; pos++ {
		require.NoError(t, ls.BatchPutNote(batch, testNote(t, pos, 2, 10)))
	}
	require.NoError(t, ls.Commit(batch))

	pos, found, err := ls.FirstPosAtOrAfterHeight(0)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint64(0), pos)

	pos, found, err = ls.FirstPosAtOrAfterHeight(1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint64(3), pos)

	pos, found, err = ls.FirstPosAtOrAfterHeight(2)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint64(3), pos)

	_, found, err = ls.FirstPosAtOrAfterHeight(3)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStreamNotesFromPos(t *testing.T) {
	ls := newTestStore(t)

	batch := ls.NewBatch()
	for pos := uint64(0); pos < 10; pos++ {
		require.NoError(t, ls.BatchPutNote(batch, testNote(t, pos, 0, pos*100)))
	}
	require.NoError(t, ls.Commit(batch))

	stream, err := ls.StreamNotesFromPos(4)
	require.NoError(t, err)
	defer stream.Release()

	want := uint64(4)
	for {
		n, ok := stream.Next()
		if !ok {
			break
		}
		assert.Equal(t, want, n.Pos)
		want++
	}
	require.NoError(t, stream.Err())
	assert.Equal(t, uint64(10), want)
}

func TestStreamSnapshotIsolation(t *testing.T) {
	ls := newTestStore(t)

	batch := ls.NewBatch()
	for pos := uint64(0); pos < 3; pos++ {
		require.NoError(t, ls.BatchPutNote(batch, testNote(t, pos, 0, 10)))
	}
	require.NoError(t, ls.Commit(batch))

	stream, err := ls.StreamNotesFromPos(0)
	require.NoError(t, err)
	defer stream.Release()

	// writes after the stream opened must not leak into it
	batch = ls.NewBatch()
	require.NoError(t, ls.BatchPutNote(batch, testNote(t, 3, 1, 10)))
	require.NoError(t, ls.Commit(batch))

	count := 0
	for {
		if _, ok := stream.Next(); !ok {
			break
		}
		count++
	}
	require.NoError(t, stream.Err())
	assert.Equal(t, 3, count)

	// a fresh stream sees the new note
	stream2, err := ls.StreamNotesFromPos(0)
	require.NoError(t, err)
	defer stream2.Release()
	count = 0
	for {
		if _, ok := stream2.Next(); !ok {
			break
		}
		count++
	}
	assert.Equal(t, 4, count)
}

func TestForEachWalks(t *testing.T) {
	ls := newTestStore(t)

	cid := types.BytesToContractID([]byte{0x09})
	batch := ls.NewBatch()
	require.NoError(t, ls.BatchPutNote(batch, testNote(t, 0, 0, 10)))
	require.NoError(t, ls.BatchPutNote(batch, testNote(t, 1, 0, 20)))
	ls.BatchPutNullifier(batch, common.Blake2Hash([]byte("nf")))
	ls.BatchPutAccount(batch, types.BytesToAccountKey(common.Blake2Hash([]byte("a")).Bytes()), types.AccountData{Balance: 5})
	ls.BatchPutContractBalance(batch, cid, 77)
	require.NoError(t, ls.Commit(batch))

	var notes, accounts, contracts, nullifiers int
	require.NoError(t, ls.ForEachNote(func(n *types.Note) error {
		notes++
		return nil
	}))
	require.NoError(t, ls.ForEachAccount(func(k types.AccountKey, data types.AccountData) error {
		accounts++
		return nil
	}))
	require.NoError(t, ls.ForEachContractBalance(func(id types.ContractID, balance uint64) error {
		assert.Equal(t, cid, id)
		assert.Equal(t, uint64(77), balance)
		contracts++
		return nil
	}))
	require.NoError(t, ls.ForEachNullifier(func(n common.Hash) error {
		nullifiers++
		return nil
	}))
	assert.Equal(t, 2, notes)
	assert.Equal(t, 1, accounts)
	assert.Equal(t, 1, contracts)
	assert.Equal(t, 1, nullifiers)
}
