package types

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nocturnelabs/nocturne/common"
)

// ChainSpec is the genesis configuration of the transfer ledger.
type ChainSpec struct {
	NotesTreeDepth   int              `json:"notes_tree_depth"`
	TransferContract ContractID       `json:"transfer_contract"`
	StakingContract  ContractID       `json:"staking_contract"`
	GenesisAccounts  []GenesisAccount `json:"genesis_accounts"`
	GenesisNotes     []GenesisNote    `json:"genesis_notes"`
}

// GenesisAccount seeds a transparent account balance at height zero.
type GenesisAccount struct {
	Key     AccountKey `json:"key"`
	Balance uint64     `json:"balance"`
}

// GenesisNote seeds a transparent note at height zero.
type GenesisNote struct {
	Stealth common.Hash `json:"stealth"`
	Value   uint64      `json:"value"`
}

// DefaultChainSpec returns the spec used by tests and local nets.
func DefaultChainSpec() *ChainSpec {
	return &ChainSpec{
		NotesTreeDepth:   NotesTreeDepth,
		TransferContract: HexToContractID("0x0100000000000000000000000000000000000000000000000000000000000000"),
		StakingContract:  HexToContractID("0x0200000000000000000000000000000000000000000000000000000000000000"),
	}
}

// ReadChainSpec loads a chainspec from a JSON file.
func ReadChainSpec(path string) (*ChainSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	spec := ChainSpec{}
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("chainspec %s: %w", path, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("chainspec %s: %w", path, err)
	}
	return &spec, nil
}

// Validate checks the structural requirements of a chainspec.
func (c *ChainSpec) Validate() error {
	if c.NotesTreeDepth <= 0 || c.NotesTreeDepth > 32 {
		return fmt.Errorf("notes_tree_depth %d out of range", c.NotesTreeDepth)
	}
	if c.TransferContract == (ContractID{}) {
		return fmt.Errorf("transfer_contract is unset")
	}
	if c.StakingContract == (ContractID{}) {
		return fmt.Errorf("staking_contract is unset")
	}
	if c.TransferContract == c.StakingContract {
		return fmt.Errorf("transfer_contract and staking_contract collide")
	}
	return nil
}
