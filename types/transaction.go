package types

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/nocturnelabs/nocturne/common"
	"github.com/nocturnelabs/nocturne/ledgererrors"
)

// DestinationKind selects which accounting model receives a credit.
type DestinationKind uint8

const (
	DestinationShielded    DestinationKind = 0
	DestinationTransparent DestinationKind = 1
)

// Destination names where value lands: a fresh transparent note at a stealth
// address, or a Moonlight account.
type Destination struct {
	Kind    DestinationKind `json:"kind"`
	Stealth common.Hash     `json:"stealth,omitempty"`
	Account AccountKey      `json:"account,omitempty"`
}

func ShieldedDestination(stealth common.Hash) Destination {
	return Destination{Kind: DestinationShielded, Stealth: stealth}
}

func TransparentDestination(key AccountKey) Destination {
	return Destination{Kind: DestinationTransparent, Account: key}
}

// Fee is the gas terms a transaction commits to up front. The full
// GasPrice*GasLimit is debited in the Spent phase; the unspent remainder is
// returned to Refund once actual usage is known.
type Fee struct {
	GasPrice uint64      `json:"gas_price"`
	GasLimit uint64      `json:"gas_limit"`
	Refund   Destination `json:"refund"`
}

// MaxFee returns GasPrice*GasLimit, erroring on overflow rather than
// wrapping.
func (f Fee) MaxFee() (uint64, error) {
	if f.GasPrice != 0 && f.GasLimit > ^uint64(0)/f.GasPrice {
		return 0, ledgererrors.ErrBBalanceOverflow
	}
	return f.GasPrice * f.GasLimit, nil
}

// ContractCall names the contract function a transaction wants executed after
// its spend committed.
type ContractCall struct {
	ContractID ContractID `json:"contract"`
	FnName     string     `json:"fn_name"`
	Args       []byte     `json:"args"`
}

// PhoenixPayload is a shielded transaction: it spends notes by nullifier and
// produces fresh output notes. The proof ties nullifiers, outputs, deposit
// and fee together; the ledger consumes its verdict, never its internals.
type PhoenixPayload struct {
	Root       common.Hash   `json:"root"` // anchor the proof was built against
	Nullifiers []common.Hash `json:"nullifiers"`
	Outputs    []Note        `json:"outputs"`
	Deposit    uint64        `json:"deposit"`
	Fee        Fee           `json:"fee"`
	Call       *ContractCall `json:"call,omitempty"`
	Proof      []byte        `json:"proof"`
}

// MoonlightPayload is a transparent transaction: a nonce-protected transfer
// from a public account, optionally earmarking a deposit and attaching a
// contract call.
type MoonlightPayload struct {
	Sender    AccountKey    `json:"sender"`
	Receiver  *AccountKey   `json:"receiver,omitempty"`
	Value     uint64        `json:"value"`
	Deposit   uint64        `json:"deposit"`
	Nonce     uint64        `json:"nonce"`
	Fee       Fee           `json:"fee"`
	Call      *ContractCall `json:"call,omitempty"`
	Signature []byte        `json:"signature"`
}

// TransactionEnvelope is the tagged union dispatched once at the top of the
// transaction processor. Exactly one of Phoenix or Moonlight is set.
type TransactionEnvelope struct {
	Phoenix   *PhoenixPayload   `json:"phoenix,omitempty"`
	Moonlight *MoonlightPayload `json:"moonlight,omitempty"`
}

func (t *TransactionEnvelope) IsPhoenix() bool {
	return t.Phoenix != nil
}

func (t *TransactionEnvelope) IsMoonlight() bool {
	return t.Moonlight != nil
}

// Validate rejects malformed envelopes before any state is touched.
func (t *TransactionEnvelope) Validate() error {
	if (t.Phoenix == nil) == (t.Moonlight == nil) {
		return ledgererrors.ErrTMalformedEnvelope
	}
	if p := t.Phoenix; p != nil {
		if len(p.Nullifiers) == 0 {
			return ledgererrors.ErrTMalformedEnvelope
		}
		seen := make(map[common.Hash]bool, len(p.Nullifiers))
		for _, n := range p.Nullifiers {
			if seen[n] {
				return ledgererrors.ErrTMalformedEnvelope
			}
			seen[n] = true
		}
	}
	if m := t.Moonlight; m != nil {
		// Value always rides to a named receiver; contracts are funded
		// through the deposit earmark instead.
		if m.Value > 0 && m.Receiver == nil {
			return ledgererrors.ErrTMalformedEnvelope
		}
	}
	return nil
}

// Fee returns the gas terms regardless of model.
func (t *TransactionEnvelope) GetFee() Fee {
	if t.Phoenix != nil {
		return t.Phoenix.Fee
	}
	return t.Moonlight.Fee
}

// GetDeposit returns the value the transaction earmarked for a contract.
func (t *TransactionEnvelope) GetDeposit() uint64 {
	if t.Phoenix != nil {
		return t.Phoenix.Deposit
	}
	return t.Moonlight.Deposit
}

// GetCall returns the attached contract call, if any.
func (t *TransactionEnvelope) GetCall() *ContractCall {
	if t.Phoenix != nil {
		return t.Phoenix.Call
	}
	return t.Moonlight.Call
}

// SigningBytes is the canonical byte layout covered by the Moonlight
// signature and by the envelope hash. Field order is protocol-sensitive.
func (m *MoonlightPayload) SigningBytes() []byte {
	var buf bytes.Buffer
	buf.Write(m.Sender.Bytes())
	if m.Receiver != nil {
		buf.WriteByte(1)
		buf.Write(m.Receiver.Bytes())
	} else {
		buf.WriteByte(0)
	}
	binary.Write(&buf, binary.LittleEndian, m.Value)
	binary.Write(&buf, binary.LittleEndian, m.Deposit)
	binary.Write(&buf, binary.LittleEndian, m.Nonce)
	binary.Write(&buf, binary.LittleEndian, m.Fee.GasPrice)
	binary.Write(&buf, binary.LittleEndian, m.Fee.GasLimit)
	writeCall(&buf, m.Call)
	return buf.Bytes()
}

func (p *PhoenixPayload) signedBytes() []byte {
	var buf bytes.Buffer
	buf.Write(p.Root.Bytes())
	for _, n := range p.Nullifiers {
		buf.Write(n.Bytes())
	}
	for i := range p.Outputs {
		b, _ := p.Outputs[i].Bytes()
		buf.Write(b)
	}
	binary.Write(&buf, binary.LittleEndian, p.Deposit)
	binary.Write(&buf, binary.LittleEndian, p.Fee.GasPrice)
	binary.Write(&buf, binary.LittleEndian, p.Fee.GasLimit)
	writeCall(&buf, p.Call)
	return buf.Bytes()
}

func writeCall(buf *bytes.Buffer, call *ContractCall) {
	if call == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	buf.Write(call.ContractID.Bytes())
	binary.Write(buf, binary.LittleEndian, uint32(len(call.FnName)))
	buf.WriteString(call.FnName)
	binary.Write(buf, binary.LittleEndian, uint32(len(call.Args)))
	buf.Write(call.Args)
}

// Hash identifies the transaction in receipts and events.
func (t *TransactionEnvelope) Hash() common.Hash {
	if t.Phoenix != nil {
		return common.Blake2Hash(t.Phoenix.signedBytes())
	}
	if t.Moonlight != nil {
		return common.Blake2Hash(t.Moonlight.SigningBytes())
	}
	return common.Hash{}
}

func (t *TransactionEnvelope) String() string {
	switch {
	case t.Phoenix != nil:
		return fmt.Sprintf("phoenix tx %s inputs=%d outputs=%d deposit=%d",
			t.Hash().String_short(), len(t.Phoenix.Nullifiers), len(t.Phoenix.Outputs), t.Phoenix.Deposit)
	case t.Moonlight != nil:
		return fmt.Sprintf("moonlight tx %s sender=%s value=%d nonce=%d",
			t.Hash().String_short(), t.Moonlight.Sender.Hex(), t.Moonlight.Value, t.Moonlight.Nonce)
	default:
		return "malformed tx"
	}
}

// AccountData is the public projection of a transparent account.
type AccountData struct {
	Balance uint64 `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// ExecutionReceipt reports the outcome of one processed transaction back to
// the host. CallFailed distinguishes "executed with failure" from a rejected
// transaction, which never produces a receipt.
type ExecutionReceipt struct {
	TxHash        common.Hash `json:"tx_hash"`
	GasSpent      uint64      `json:"gas_spent"`
	Output        []byte      `json:"output,omitempty"`
	CallFailed    bool        `json:"call_failed"`
	FailureReason string      `json:"failure_reason,omitempty"`
}
