package ledger

import (
	"github.com/nocturnelabs/nocturne/ledgererrors"
	"github.com/nocturnelabs/nocturne/log"
	"github.com/nocturnelabs/nocturne/types"
)

// ContractBalanceLedger owns contract-held funds. Balances come into
// existence on first credit.
type ContractBalanceLedger struct {
	balances map[types.ContractID]uint64
	dirty    map[types.ContractID]bool
}

func NewContractBalanceLedger() *ContractBalanceLedger {
	return &ContractBalanceLedger{
		balances: make(map[types.ContractID]uint64),
		dirty:    make(map[types.ContractID]bool),
	}
}

// BalanceOf returns the balance; missing contracts read as zero.
func (cl *ContractBalanceLedger) BalanceOf(id types.ContractID) uint64 {
	return cl.balances[id]
}

// Credit adds to a contract balance with an overflow check.
func (cl *ContractBalanceLedger) Credit(id types.ContractID, amount uint64) error {
	bal := cl.balances[id]
	if bal > ^uint64(0)-amount {
		return ledgererrors.ErrBBalanceOverflow
	}
	cl.balances[id] = bal + amount
	cl.dirty[id] = true
	log.Trace(log.LedgerMonitoring, "contract credit", "id", id.Hex(), "amount", amount, "balance", bal+amount)
	return nil
}

// Debit removes from a contract balance and never produces a negative one.
func (cl *ContractBalanceLedger) Debit(id types.ContractID, amount uint64) error {
	bal := cl.balances[id]
	if bal < amount {
		return ledgererrors.ErrBInsufficientFunds
	}
	cl.balances[id] = bal - amount
	cl.dirty[id] = true
	log.Trace(log.LedgerMonitoring, "contract debit", "id", id.Hex(), "amount", amount, "balance", bal-amount)
	return nil
}

// load installs a persisted balance without marking it dirty.
func (cl *ContractBalanceLedger) load(id types.ContractID, balance uint64) {
	cl.balances[id] = balance
}

// takeDirty hands the modified balances to the caller and resets tracking.
func (cl *ContractBalanceLedger) takeDirty() map[types.ContractID]uint64 {
	out := make(map[types.ContractID]uint64, len(cl.dirty))
	for id := range cl.dirty {
		out[id] = cl.balances[id]
	}
	cl.dirty = make(map[types.ContractID]bool)
	return out
}
