package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nocturnelabs/nocturne/common"
	"github.com/nocturnelabs/nocturne/ledgererrors"
)

func testAccountKey(tag string) AccountKey {
	return BytesToAccountKey(common.Blake2Hash([]byte(tag)).Bytes())
}

func TestEnvelopeValidate(t *testing.T) {
	receiver := testAccountKey("bob")

	cases := []struct {
		name string
		env  TransactionEnvelope
		ok   bool
	}{
		{
			name: "neither payload set",
			env:  TransactionEnvelope{},
			ok:   false,
		},
		{
			name: "both payloads set",
			env: TransactionEnvelope{
				Phoenix:   &PhoenixPayload{Nullifiers: []common.Hash{common.Blake2Hash([]byte("nf"))}},
				Moonlight: &MoonlightPayload{Sender: testAccountKey("alice")},
			},
			ok: false,
		},
		{
			name: "phoenix without nullifiers",
			env:  TransactionEnvelope{Phoenix: &PhoenixPayload{}},
			ok:   false,
		},
		{
			name: "phoenix duplicate nullifiers",
			env: TransactionEnvelope{Phoenix: &PhoenixPayload{
				Nullifiers: []common.Hash{
					common.Blake2Hash([]byte("nf")),
					common.Blake2Hash([]byte("nf")),
				},
			}},
			ok: false,
		},
		{
			name: "phoenix ok",
			env: TransactionEnvelope{Phoenix: &PhoenixPayload{
				Nullifiers: []common.Hash{common.Blake2Hash([]byte("nf"))},
			}},
			ok: true,
		},
		{
			name: "moonlight value without receiver",
			env: TransactionEnvelope{Moonlight: &MoonlightPayload{
				Sender: testAccountKey("alice"),
				Value:  10,
			}},
			ok: false,
		},
		{
			name: "moonlight deposit only",
			env: TransactionEnvelope{Moonlight: &MoonlightPayload{
				Sender:  testAccountKey("alice"),
				Deposit: 100,
			}},
			ok: true,
		},
		{
			name: "moonlight transfer ok",
			env: TransactionEnvelope{Moonlight: &MoonlightPayload{
				Sender:   testAccountKey("alice"),
				Receiver: &receiver,
				Value:    10,
			}},
			ok: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.env.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ledgererrors.ErrTMalformedEnvelope)
			}
		})
	}
}

func TestEnvelopeHashCoversFields(t *testing.T) {
	receiver := testAccountKey("bob")
	base := func() *MoonlightPayload {
		return &MoonlightPayload{
			Sender:   testAccountKey("alice"),
			Receiver: &receiver,
			Value:    300,
			Nonce:    1,
			Fee:      Fee{GasPrice: 1, GasLimit: 50},
		}
	}

	env := TransactionEnvelope{Moonlight: base()}
	h := env.Hash()
	assert.Equal(t, h, env.Hash())

	bumped := base()
	bumped.Nonce = 2
	assert.NotEqual(t, h, (&TransactionEnvelope{Moonlight: bumped}).Hash())

	called := base()
	called.Call = &ContractCall{ContractID: BytesToContractID([]byte{0xaa}), FnName: "swap"}
	assert.NotEqual(t, h, (&TransactionEnvelope{Moonlight: called}).Hash())

	// the signature is not part of the identity
	signed := base()
	signed.Signature = []byte("sig")
	assert.Equal(t, h, (&TransactionEnvelope{Moonlight: signed}).Hash())
}

func TestMaxFeeOverflow(t *testing.T) {
	fee := Fee{GasPrice: 6, GasLimit: 50}
	max, err := fee.MaxFee()
	require.NoError(t, err)
	assert.Equal(t, uint64(300), max)

	fee = Fee{GasPrice: ^uint64(0), GasLimit: 2}
	_, err = fee.MaxFee()
	assert.ErrorIs(t, err, ledgererrors.ErrBBalanceOverflow)

	fee = Fee{GasPrice: 0, GasLimit: ^uint64(0)}
	max, err = fee.MaxFee()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), max)
}

func TestNoteRoundTrip(t *testing.T) {
	stealth := common.Blake2Hash([]byte("stealth"))
	n := NewTransparentNote(stealth, 750)
	n.Pos = 12
	n.Height = 3

	b, err := n.Bytes()
	require.NoError(t, err)
	got, err := NoteFromBytes(b)
	require.NoError(t, err)
	assert.Equal(t, n, got)

	// obfuscated notes carry an opaque payload and no plaintext value
	o := NewObfuscatedNote(common.Blake2Hash([]byte("cm")), stealth, []byte("ciphertext"))
	b, err = o.Bytes()
	require.NoError(t, err)
	got, err = NoteFromBytes(b)
	require.NoError(t, err)
	assert.Equal(t, o, got)

	_, err = NoteFromBytes(b[:len(b)-3])
	assert.Error(t, err)
}

func TestTransparentNoteCommitmentBindsValue(t *testing.T) {
	stealth := common.Blake2Hash([]byte("stealth"))
	a := NewTransparentNote(stealth, 100)
	b := NewTransparentNote(stealth, 101)
	assert.NotEqual(t, a.Commitment, b.Commitment)
	assert.NotEqual(t, a.LeafHash(), b.LeafHash())
}

func TestNullifierBindsPosition(t *testing.T) {
	stealth := common.Blake2Hash([]byte("stealth"))
	secret := []byte("owner secret")

	a := NewTransparentNote(stealth, 100)
	a.Pos = 0
	b := a.Clone()
	b.Pos = 1

	// the same note at a different position nullifies differently
	assert.NotEqual(t, NullifierFor(a, secret), NullifierFor(b, secret))
	assert.NotEqual(t, NullifierFor(a, secret), NullifierFor(a, []byte("other secret")))
	assert.Equal(t, NullifierFor(a, secret), NullifierFor(a.Clone(), secret))
}

func TestEventEncoding(t *testing.T) {
	ev := WithdrawalEvent{
		Contract:   BytesToContractID([]byte{0x07}),
		Value:      42,
		ToShielded: true,
	}
	b1, err := EncodeEvent(ev)
	require.NoError(t, err)
	require.NotEmpty(t, b1)
	b2, err := EncodeEvent(ev)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
	assert.Equal(t, "withdraw", ev.Topic())
}

func TestCallerContextKinds(t *testing.T) {
	id := BytesToContractID([]byte{0x05})

	host := HostCaller()
	assert.True(t, host.IsHost())
	assert.False(t, host.IsContract())

	tx := TransactorCaller()
	assert.True(t, tx.IsTransactor())

	c := ContractCaller(id)
	assert.True(t, c.IsContract())
	assert.Equal(t, id, c.Contract)
}
