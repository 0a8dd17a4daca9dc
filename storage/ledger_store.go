package storage

import (
	"bytes"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/nocturnelabs/nocturne/common"
	"github.com/nocturnelabs/nocturne/log"
	"github.com/nocturnelabs/nocturne/types"
)

// Key space of the ledger store. Positions and heights are big-endian so
// lexicographic iteration order matches numeric order.
var (
	prefixNote        = []byte("n") // n + pos(8,BE) -> note bytes
	prefixHeightIndex = []byte("h") // h + height(8,BE) -> first pos at that height (8,BE)
	prefixNullifier   = []byte("f") // f + nullifier(32) -> nil
	prefixAccount     = []byte("a") // a + key(32) -> balance(8,LE) + nonce(8,LE)
	prefixContract    = []byte("c") // c + id(32) -> balance(8,LE)
	prefixMeta        = []byte("m") // m + name -> value
)

var (
	metaNumNotes = []byte("num_notes")
	metaRoot     = []byte("root")
	metaHeight   = []byte("height")
	metaSupply   = []byte("supply")
)

// LedgerStore persists the three ledgers beneath their in-memory state. All
// block mutations go through a Batch so a block commits atomically.
type LedgerStore struct {
	ps *PersistenceStore

	// heights anchored by the batch in flight, so only the first note of a
	// height within one batch writes the height index
	batchHeights map[uint64]bool
}

func NewLedgerStore(ps *PersistenceStore) *LedgerStore {
	return &LedgerStore{ps: ps, batchHeights: make(map[uint64]bool)}
}

func NewMemoryLedgerStore() (*LedgerStore, error) {
	ps, err := NewMemoryPersistenceStore()
	if err != nil {
		return nil, err
	}
	return NewLedgerStore(ps), nil
}

func (ls *LedgerStore) Close() error {
	return ls.ps.Close()
}

func noteKey(pos uint64) []byte {
	return append(append([]byte{}, prefixNote...), common.Uint64ToBytesBE(pos)...)
}

func heightKey(height uint64) []byte {
	return append(append([]byte{}, prefixHeightIndex...), common.Uint64ToBytesBE(height)...)
}

func nullifierKey(n common.Hash) []byte {
	return append(append([]byte{}, prefixNullifier...), n.Bytes()...)
}

func accountKey(k types.AccountKey) []byte {
	return append(append([]byte{}, prefixAccount...), k.Bytes()...)
}

func contractKey(id types.ContractID) []byte {
	return append(append([]byte{}, prefixContract...), id.Bytes()...)
}

func metaKey(name []byte) []byte {
	return append(append([]byte{}, prefixMeta...), name...)
}

// NewBatch starts an atomic mutation set. Only one batch is in flight at a
// time.
func (ls *LedgerStore) NewBatch() *leveldb.Batch {
	ls.batchHeights = make(map[uint64]bool)
	return new(leveldb.Batch)
}

// Commit writes a batch.
func (ls *LedgerStore) Commit(batch *leveldb.Batch) error {
	return ls.ps.Write(batch)
}

// BatchPutNote records a note at its position and maintains the height index.
func (ls *LedgerStore) BatchPutNote(batch *leveldb.Batch, n *types.Note) error {
	data, err := n.Bytes()
	if err != nil {
		return err
	}
	batch.Put(noteKey(n.Pos), data)

	// First note of a height anchors the height index. Notes arrive in
	// position order, so the first put per height holds the lowest pos.
	if ls.batchHeights[n.Height] {
		return nil
	}
	_, found, err := ls.ps.Get(heightKey(n.Height))
	if err != nil {
		return err
	}
	if !found {
		batch.Put(heightKey(n.Height), common.Uint64ToBytesBE(n.Pos))
	}
	ls.batchHeights[n.Height] = true
	return nil
}

func (ls *LedgerStore) BatchPutNullifier(batch *leveldb.Batch, n common.Hash) {
	batch.Put(nullifierKey(n), []byte{})
}

func (ls *LedgerStore) BatchPutAccount(batch *leveldb.Batch, k types.AccountKey, data types.AccountData) {
	v := make([]byte, 16)
	copy(v[0:8], common.Uint64ToBytes(data.Balance))
	copy(v[8:16], common.Uint64ToBytes(data.Nonce))
	batch.Put(accountKey(k), v)
}

func (ls *LedgerStore) BatchPutContractBalance(batch *leveldb.Batch, id types.ContractID, balance uint64) {
	batch.Put(contractKey(id), common.Uint64ToBytes(balance))
}

func (ls *LedgerStore) BatchPutMeta(batch *leveldb.Batch, name []byte, value []byte) {
	batch.Put(metaKey(name), value)
}

func (ls *LedgerStore) BatchPutNumNotes(batch *leveldb.Batch, n uint64) {
	ls.BatchPutMeta(batch, metaNumNotes, common.Uint64ToBytes(n))
}

func (ls *LedgerStore) BatchPutRoot(batch *leveldb.Batch, root common.Hash) {
	ls.BatchPutMeta(batch, metaRoot, root.Bytes())
}

func (ls *LedgerStore) BatchPutHeight(batch *leveldb.Batch, height uint64) {
	ls.BatchPutMeta(batch, metaHeight, common.Uint64ToBytes(height))
}

func (ls *LedgerStore) BatchPutSupply(batch *leveldb.Batch, supply []byte) {
	ls.BatchPutMeta(batch, metaSupply, supply)
}

// NoteByPos reads one note.
func (ls *LedgerStore) NoteByPos(pos uint64) (*types.Note, bool, error) {
	data, found, err := ls.ps.Get(noteKey(pos))
	if err != nil || !found {
		return nil, found, err
	}
	n, err := types.NoteFromBytes(data)
	if err != nil {
		return nil, false, fmt.Errorf("note at pos %d: %w", pos, err)
	}
	return n, true, nil
}

// HasNullifier reports membership in the persisted nullifier set.
func (ls *LedgerStore) HasNullifier(n common.Hash) (bool, error) {
	return ls.ps.Has(nullifierKey(n))
}

// Account reads a persisted account; a missing account is zero-valued.
func (ls *LedgerStore) Account(k types.AccountKey) (types.AccountData, bool, error) {
	data, found, err := ls.ps.Get(accountKey(k))
	if err != nil || !found {
		return types.AccountData{}, found, err
	}
	if len(data) != 16 {
		return types.AccountData{}, false, fmt.Errorf("account %s: invalid record length %d", k.Hex(), len(data))
	}
	return types.AccountData{
		Balance: common.BytesToUint64(data[0:8]),
		Nonce:   common.BytesToUint64(data[8:16]),
	}, true, nil
}

// ContractBalance reads a persisted contract balance; missing means zero.
func (ls *LedgerStore) ContractBalance(id types.ContractID) (uint64, bool, error) {
	data, found, err := ls.ps.Get(contractKey(id))
	if err != nil || !found {
		return 0, found, err
	}
	return common.BytesToUint64(data), true, nil
}

func (ls *LedgerStore) Meta(name []byte) ([]byte, bool, error) {
	return ls.ps.Get(metaKey(name))
}

func (ls *LedgerStore) NumNotes() (uint64, error) {
	data, found, err := ls.Meta(metaNumNotes)
	if err != nil || !found {
		return 0, err
	}
	return common.BytesToUint64(data), nil
}

func (ls *LedgerStore) Root() (common.Hash, bool, error) {
	data, found, err := ls.Meta(metaRoot)
	if err != nil || !found {
		return common.Hash{}, found, err
	}
	return common.BytesToHash(data), true, nil
}

func (ls *LedgerStore) Height() (uint64, error) {
	data, found, err := ls.Meta(metaHeight)
	if err != nil || !found {
		return 0, err
	}
	return common.BytesToUint64(data), nil
}

func (ls *LedgerStore) Supply() ([]byte, bool, error) {
	return ls.Meta(metaSupply)
}

// FirstPosAtOrAfterHeight resolves a block height to the lowest note position
// inserted at that height or later. Returns found=false when no note exists
// at or after the height.
func (ls *LedgerStore) FirstPosAtOrAfterHeight(height uint64) (uint64, bool, error) {
	iter := ls.ps.NewPrefixIterator(prefixHeightIndex)
	defer iter.Release()

	target := heightKey(height)
	for ok := iter.Seek(target); ok; ok = iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefixHeightIndex) {
			break
		}
		return common.BytesToUint64BE(iter.Value()), true, nil
	}
	if err := iter.Error(); err != nil {
		return 0, false, err
	}
	return 0, false, nil
}

// ForEachNote walks all persisted notes in position order. Used to rebuild
// the in-memory tree on open.
func (ls *LedgerStore) ForEachNote(fn func(n *types.Note) error) error {
	iter := ls.ps.NewPrefixIterator(prefixNote)
	defer iter.Release()
	for iter.Next() {
		n, err := types.NoteFromBytes(iter.Value())
		if err != nil {
			return err
		}
		if err := fn(n); err != nil {
			return err
		}
	}
	return iter.Error()
}

// ForEachAccount walks all persisted accounts.
func (ls *LedgerStore) ForEachAccount(fn func(k types.AccountKey, data types.AccountData) error) error {
	iter := ls.ps.NewPrefixIterator(prefixAccount)
	defer iter.Release()
	for iter.Next() {
		key := types.BytesToAccountKey(iter.Key()[len(prefixAccount):])
		v := iter.Value()
		if len(v) != 16 {
			return fmt.Errorf("account %s: invalid record length %d", key.Hex(), len(v))
		}
		data := types.AccountData{
			Balance: common.BytesToUint64(v[0:8]),
			Nonce:   common.BytesToUint64(v[8:16]),
		}
		if err := fn(key, data); err != nil {
			return err
		}
	}
	return iter.Error()
}

// ForEachContractBalance walks all persisted contract balances.
func (ls *LedgerStore) ForEachContractBalance(fn func(id types.ContractID, balance uint64) error) error {
	iter := ls.ps.NewPrefixIterator(prefixContract)
	defer iter.Release()
	for iter.Next() {
		id := types.BytesToContractID(iter.Key()[len(prefixContract):])
		if err := fn(id, common.BytesToUint64(iter.Value())); err != nil {
			return err
		}
	}
	return iter.Error()
}

// ForEachNullifier walks the persisted nullifier set.
func (ls *LedgerStore) ForEachNullifier(fn func(n common.Hash) error) error {
	iter := ls.ps.NewPrefixIterator(prefixNullifier)
	defer iter.Release()
	for iter.Next() {
		if err := fn(common.BytesToHash(iter.Key()[len(prefixNullifier):])); err != nil {
			return err
		}
	}
	return iter.Error()
}

// NoteStream is a lazy, finite walk over persisted notes from a starting
// position. It reads from a LevelDB snapshot, so it reflects the store as of
// stream creation even while new blocks commit. Restart by opening a new
// stream at the last position seen.
type NoteStream struct {
	snap *leveldb.Snapshot
	iter iterator.Iterator
	err  error
	done bool
}

// StreamNotesFromPos opens a snapshot-backed stream of notes at positions
// >= pos.
func (ls *LedgerStore) StreamNotesFromPos(pos uint64) (*NoteStream, error) {
	snap, err := ls.ps.GetSnapshot()
	if err != nil {
		return nil, err
	}
	start := noteKey(pos)
	limit := util.BytesPrefix(prefixNote).Limit
	iter := snap.NewIterator(&util.Range{Start: start, Limit: limit}, nil)
	log.Trace(log.StoreMonitoring, "StreamNotesFromPos", "pos", pos)
	return &NoteStream{snap: snap, iter: iter}, nil
}

// Next returns the next note, or (nil, false) when the stream is exhausted or
// failed. Check Err after a false return.
func (s *NoteStream) Next() (*types.Note, bool) {
	if s.done || s.err != nil {
		return nil, false
	}
	if !s.iter.Next() {
		s.err = s.iter.Error()
		s.done = true
		return nil, false
	}
	n, err := types.NoteFromBytes(s.iter.Value())
	if err != nil {
		s.err = err
		s.done = true
		return nil, false
	}
	return n, true
}

func (s *NoteStream) Err() error {
	return s.err
}

// Release frees the iterator and snapshot. Always call it.
func (s *NoteStream) Release() {
	s.iter.Release()
	s.snap.Release()
}
