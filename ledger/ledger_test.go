package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nocturnelabs/nocturne/common"
	"github.com/nocturnelabs/nocturne/ledgererrors"
	"github.com/nocturnelabs/nocturne/storage"
	"github.com/nocturnelabs/nocturne/types"
)

var (
	alice = types.BytesToAccountKey(common.Blake2Hash([]byte("alice")).Bytes())
	bob   = types.BytesToAccountKey(common.Blake2Hash([]byte("bob")).Bytes())

	contractX = types.BytesToContractID(common.Blake2Hash([]byte("contract-x")).Bytes())
	contractY = types.BytesToContractID(common.Blake2Hash([]byte("contract-y")).Bytes())
)

type approveAllProofs struct{}

func (approveAllProofs) Verify(proof []byte, publicInputs [][]byte) bool { return true }

type rejectAllProofs struct{}

func (rejectAllProofs) Verify(proof []byte, publicInputs [][]byte) bool { return false }

type approveAllSigs struct{}

func (approveAllSigs) Verify(key types.AccountKey, msg []byte, sig []byte) bool { return true }

type rejectAllSigs struct{}

func (rejectAllSigs) Verify(key types.AccountKey, msg []byte, sig []byte) bool { return false }

type invokerFunc func(ctx context.Context, bridge *ValueBridge, caller types.CallerContext, call types.ContractCall, gasBudget uint64) InvocationResult

func (f invokerFunc) Invoke(ctx context.Context, bridge *ValueBridge, caller types.CallerContext, call types.ContractCall, gasBudget uint64) InvocationResult {
	return f(ctx, bridge, caller, call, gasBudget)
}

func noCalls() ContractInvoker {
	return invokerFunc(func(context.Context, *ValueBridge, types.CallerContext, types.ContractCall, uint64) InvocationResult {
		panic("unexpected contract invocation")
	})
}

func testSpec() *types.ChainSpec {
	spec := types.DefaultChainSpec()
	spec.NotesTreeDepth = 10
	spec.GenesisAccounts = []types.GenesisAccount{{Key: alice, Balance: 1000}}
	return spec
}

func newTestState(t *testing.T, spec *types.ChainSpec) (*LedgerState, *storage.LedgerStore, *MemorySink) {
	t.Helper()
	store, err := storage.NewMemoryLedgerStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	sink := NewMemorySink()
	state, err := NewGenesisLedgerState(spec, store, sink)
	require.NoError(t, err)
	return state, store, sink
}

func TestAccountLedgerCreditDebit(t *testing.T) {
	al := NewAccountLedger()
	assert.Equal(t, uint64(0), al.BalanceOf(alice))

	require.NoError(t, al.Credit(alice, 100))
	assert.Equal(t, uint64(100), al.BalanceOf(alice))

	require.NoError(t, al.Debit(alice, 40))
	assert.Equal(t, uint64(60), al.BalanceOf(alice))

	assert.ErrorIs(t, al.Debit(alice, 61), ledgererrors.ErrBInsufficientFunds)
	assert.Equal(t, uint64(60), al.BalanceOf(alice))

	// debiting an account that never existed is insufficient, not zero-ok
	assert.ErrorIs(t, al.Debit(bob, 1), ledgererrors.ErrBInsufficientFunds)
}

func TestAccountLedgerOverflow(t *testing.T) {
	al := NewAccountLedger()
	require.NoError(t, al.Credit(alice, ^uint64(0)))
	assert.ErrorIs(t, al.Credit(alice, 1), ledgererrors.ErrBBalanceOverflow)
	assert.Equal(t, ^uint64(0), al.BalanceOf(alice))
}

func TestAccountLedgerNonceDiscipline(t *testing.T) {
	al := NewAccountLedger()
	assert.Equal(t, uint64(1), al.NextNonce(alice))
	assert.Equal(t, uint64(0), al.Nonce(alice))

	assert.ErrorIs(t, al.AdvanceNonce(alice, 2), ledgererrors.ErrBNonceMismatch)
	require.NoError(t, al.AdvanceNonce(alice, 1))
	assert.Equal(t, uint64(1), al.Nonce(alice))
	assert.Equal(t, uint64(2), al.NextNonce(alice))

	// replays and stale nonces stay rejected
	assert.ErrorIs(t, al.AdvanceNonce(alice, 1), ledgererrors.ErrBNonceMismatch)
	require.NoError(t, al.AdvanceNonce(alice, 2))
}

func TestNoteLedgerInsertAssignsPosition(t *testing.T) {
	nl := NewNoteLedger(8)
	stealth := common.Blake2Hash([]byte("stealth"))

	n := types.NewTransparentNote(stealth, 100)
	pos, err := nl.InsertNote(n, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), pos)
	// the caller's copy stays untouched
	assert.Equal(t, uint64(0), n.Height)

	stored, err := nl.NoteAt(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), stored.Pos)
	assert.Equal(t, uint64(5), stored.Height)

	_, err = nl.NoteAt(1)
	assert.ErrorIs(t, err, ledgererrors.ErrNPositionOutOfRange)
}

func TestNoteLedgerDoubleSpend(t *testing.T) {
	nl := NewNoteLedger(8)
	nf := common.Blake2Hash([]byte("nf"))

	assert.False(t, nl.ContainsNullifier(nf))
	require.NoError(t, nl.InsertNullifier(nf))
	assert.True(t, nl.ContainsNullifier(nf))
	assert.ErrorIs(t, nl.InsertNullifier(nf), ledgererrors.ErrNDoubleSpend)
}

func TestContractBalanceLedger(t *testing.T) {
	cl := NewContractBalanceLedger()
	assert.Equal(t, uint64(0), cl.BalanceOf(contractX))

	require.NoError(t, cl.Credit(contractX, 100))
	require.NoError(t, cl.Debit(contractX, 30))
	assert.Equal(t, uint64(70), cl.BalanceOf(contractX))
	assert.ErrorIs(t, cl.Debit(contractX, 71), ledgererrors.ErrBInsufficientFunds)
	assert.ErrorIs(t, cl.Debit(contractY, 1), ledgererrors.ErrBInsufficientFunds)
}
