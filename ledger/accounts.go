package ledger

import (
	"github.com/nocturnelabs/nocturne/ledgererrors"
	"github.com/nocturnelabs/nocturne/log"
	"github.com/nocturnelabs/nocturne/types"
)

// AccountLedger owns the transparent (Moonlight) side: public-key addressed
// balances with replay-protecting nonces. Accounts come into existence on
// first credit.
type AccountLedger struct {
	accounts map[types.AccountKey]*types.AccountData
	dirty    map[types.AccountKey]bool
}

func NewAccountLedger() *AccountLedger {
	return &AccountLedger{
		accounts: make(map[types.AccountKey]*types.AccountData),
		dirty:    make(map[types.AccountKey]bool),
	}
}

// BalanceOf returns the balance; missing accounts read as zero.
func (al *AccountLedger) BalanceOf(key types.AccountKey) uint64 {
	if a, ok := al.accounts[key]; ok {
		return a.Balance
	}
	return 0
}

// Account returns the full public projection of an account.
func (al *AccountLedger) Account(key types.AccountKey) types.AccountData {
	if a, ok := al.accounts[key]; ok {
		return *a
	}
	return types.AccountData{}
}

func (al *AccountLedger) get(key types.AccountKey) *types.AccountData {
	a, ok := al.accounts[key]
	if !ok {
		a = &types.AccountData{}
		al.accounts[key] = a
	}
	return a
}

// Credit adds to a balance. Overflow is a fatal implementation error in the
// caller, so it is checked and returned, never wrapped.
func (al *AccountLedger) Credit(key types.AccountKey, amount uint64) error {
	a := al.get(key)
	if a.Balance > ^uint64(0)-amount {
		return ledgererrors.ErrBBalanceOverflow
	}
	a.Balance += amount
	al.dirty[key] = true
	log.Trace(log.LedgerMonitoring, "account credit", "key", key.Hex(), "amount", amount, "balance", a.Balance)
	return nil
}

// Debit removes from a balance and never produces a negative one.
func (al *AccountLedger) Debit(key types.AccountKey, amount uint64) error {
	a, ok := al.accounts[key]
	if !ok || a.Balance < amount {
		return ledgererrors.ErrBInsufficientFunds
	}
	a.Balance -= amount
	al.dirty[key] = true
	log.Trace(log.LedgerMonitoring, "account debit", "key", key.Hex(), "amount", amount, "balance", a.Balance)
	return nil
}

// NextNonce returns the nonce the account's next transaction must carry.
func (al *AccountLedger) NextNonce(key types.AccountKey) uint64 {
	if a, ok := al.accounts[key]; ok {
		return a.Nonce + 1
	}
	return 1
}

// Nonce returns the last used nonce.
func (al *AccountLedger) Nonce(key types.AccountKey) uint64 {
	if a, ok := al.accounts[key]; ok {
		return a.Nonce
	}
	return 0
}

// AdvanceNonce moves the stored nonce to expected, which must be exactly
// current+1. Stale or replayed nonces are rejected before any mutation.
func (al *AccountLedger) AdvanceNonce(key types.AccountKey, expected uint64) error {
	a := al.get(key)
	if expected != a.Nonce+1 {
		return ledgererrors.ErrBNonceMismatch
	}
	a.Nonce = expected
	al.dirty[key] = true
	return nil
}

// load installs a persisted account without marking it dirty.
func (al *AccountLedger) load(key types.AccountKey, data types.AccountData) {
	d := data
	al.accounts[key] = &d
}

// takeDirty hands the modified accounts to the caller and resets tracking.
func (al *AccountLedger) takeDirty() map[types.AccountKey]types.AccountData {
	out := make(map[types.AccountKey]types.AccountData, len(al.dirty))
	for key := range al.dirty {
		out[key] = *al.accounts[key]
	}
	al.dirty = make(map[types.AccountKey]bool)
	return out
}
