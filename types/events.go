package types

import (
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/nocturnelabs/nocturne/common"
)

// Side-channel events consumed by indexers and sync clients. Each event is
// RLP-encoded; field order within a struct is protocol-sensitive and must
// never be silently reordered, since downstream consumers depend on
// byte-exact layout.

type Event interface {
	Topic() string
}

// EncodeEvent produces the wire bytes for an event.
func EncodeEvent(e Event) ([]byte, error) {
	return rlp.EncodeToBytes(e)
}

type DepositEvent struct {
	Contract ContractID
	Value    uint64
}

func (e DepositEvent) Topic() string { return "deposit" }

type WithdrawalEvent struct {
	Contract   ContractID
	Value      uint64
	ToShielded bool
}

func (e WithdrawalEvent) Topic() string { return "withdraw" }

type ConvertEvent struct {
	Value      uint64
	ToShielded bool
}

func (e ConvertEvent) Topic() string { return "convert" }

type MintEvent struct {
	Value      uint64
	ToShielded bool
}

func (e MintEvent) Topic() string { return "mint" }

type ContractTransferEvent struct {
	From  ContractID
	To    ContractID
	Value uint64
}

func (e ContractTransferEvent) Topic() string { return "contract_to_contract" }

type TransactionExecutedEvent struct {
	TxHash        common.Hash
	Height        uint64
	GasSpent      uint64
	CallFailed    bool
	FailureReason string
}

func (e TransactionExecutedEvent) Topic() string { return "tx_executed" }

// EventSink receives events as the ledger commits them, in commit order.
type EventSink interface {
	Emit(e Event)
}

// DiscardSink drops every event.
type DiscardSink struct{}

func (DiscardSink) Emit(Event) {}
