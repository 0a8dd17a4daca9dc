package ledger

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/nocturnelabs/nocturne/common"
	"github.com/nocturnelabs/nocturne/log"
	"github.com/nocturnelabs/nocturne/storage"
	"github.com/nocturnelabs/nocturne/types"
)

// NewGenesisLedgerState seeds a fresh ledger from the chainspec and commits
// block zero.
func NewGenesisLedgerState(spec *types.ChainSpec, store *storage.LedgerStore, sink types.EventSink) (*LedgerState, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	s := newLedgerState(spec, store, sink)
	host := types.HostCaller()

	if err := s.BeginBlock(host, 0); err != nil {
		return nil, err
	}
	for _, ga := range spec.GenesisAccounts {
		if err := s.AddAccountBalance(host, ga.Key, ga.Balance); err != nil {
			return nil, fmt.Errorf("genesis account %s: %w", ga.Key.Hex(), err)
		}
	}
	for _, gn := range spec.GenesisNotes {
		note := types.NewTransparentNote(gn.Stealth, gn.Value)
		if _, err := s.PushNote(host, 0, note); err != nil {
			return nil, fmt.Errorf("genesis note %s: %w", gn.Stealth.String_short(), err)
		}
	}
	root, err := s.EndBlock(host)
	if err != nil {
		return nil, err
	}
	log.Info(log.LedgerMonitoring, "genesis ledger seeded",
		"accounts", len(spec.GenesisAccounts), "notes", len(spec.GenesisNotes), "root", root.String_short())
	return s, nil
}

// OpenLedgerState rebuilds a ledger from a previously committed store. When
// the store is empty it falls back to genesis seeding.
func OpenLedgerState(spec *types.ChainSpec, store *storage.LedgerStore, sink types.EventSink) (*LedgerState, error) {
	storedRoot, found, err := store.Root()
	if err != nil {
		return nil, err
	}
	if !found {
		return NewGenesisLedgerState(spec, store, sink)
	}

	s := newLedgerState(spec, store, sink)
	err = store.ForEachNote(func(n *types.Note) error {
		if _, err := s.Notes.InsertNote(n, n.Height); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Reloaded notes are already persisted; drop the pending accumulators.
	s.Notes.takePending()

	if err := store.ForEachNullifier(func(n common.Hash) error {
		s.Notes.nullifiers[n] = true
		return nil
	}); err != nil {
		return nil, err
	}
	if err := store.ForEachAccount(func(k types.AccountKey, data types.AccountData) error {
		s.Accounts.load(k, data)
		return nil
	}); err != nil {
		return nil, err
	}
	if err := store.ForEachContractBalance(func(id types.ContractID, bal uint64) error {
		s.Contracts.load(id, bal)
		return nil
	}); err != nil {
		return nil, err
	}

	if supplyBytes, ok, err := store.Supply(); err != nil {
		return nil, err
	} else if ok {
		s.supply = new(uint256.Int).SetBytes(supplyBytes)
	}
	if s.height, err = store.Height(); err != nil {
		return nil, err
	}

	root := s.Notes.UpdateRoot()
	if root != storedRoot {
		return nil, fmt.Errorf("reopen: recomputed root %s differs from stored %s", root.Hex(), storedRoot.Hex())
	}
	log.Info(log.LedgerMonitoring, "ledger reopened",
		"height", s.height, "num_notes", s.Notes.NumNotes(), "root", root.String_short())
	return s, nil
}
