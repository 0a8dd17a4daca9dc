package types

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/nocturnelabs/nocturne/common"
)

// NoteKind selects between the two shielded note flavors. Transparent notes
// carry their value in the clear (refunds, withdrawals, conversions, mints);
// obfuscated notes hide it behind the commitment and an encrypted payload.
type NoteKind uint8

const (
	NoteTransparent NoteKind = 0
	NoteObfuscated  NoteKind = 1
)

// Note is a shielded (Phoenix) note. Once inserted into the notes tree it is
// immutable; Pos and Height are assigned by the ledger at insertion.
//
// Field order in the serialized form is protocol-sensitive and must never be
// reordered.
type Note struct {
	Kind           NoteKind    `json:"kind"`
	Commitment     common.Hash `json:"commitment"`
	StealthAddress common.Hash `json:"stealth_address"`
	Value          uint64      `json:"value"` // plaintext for transparent notes, zero otherwise
	EncryptedData  []byte      `json:"encrypted_data"`
	Pos            uint64      `json:"pos"`
	Height         uint64      `json:"height"`
}

// NewTransparentNote builds a transparent note for the given one-time stealth
// address, deriving the commitment the way the external prover does.
func NewTransparentNote(stealth common.Hash, value uint64) *Note {
	return &Note{
		Kind:           NoteTransparent,
		Commitment:     common.MiMCHashUint64(value, stealth.Bytes()),
		StealthAddress: stealth,
		Value:          value,
	}
}

// NewObfuscatedNote builds an obfuscated note around an externally computed
// commitment and the encrypted value payload.
func NewObfuscatedNote(commitment common.Hash, stealth common.Hash, encryptedData []byte) *Note {
	return &Note{
		Kind:           NoteObfuscated,
		Commitment:     commitment,
		StealthAddress: stealth,
		EncryptedData:  encryptedData,
	}
}

// NullifierFor is the reference nullifier derivation used by genesis tooling
// and tests. Wallets derive the same value from the owner secret without
// revealing which note it spends.
func NullifierFor(n *Note, ownerSecret []byte) common.Hash {
	return common.MiMCHash(ownerSecret, n.Commitment.Bytes(), common.Uint64ToBytes(n.Pos))
}

// LeafHash is the hash inserted into the notes tree for this note.
func (n *Note) LeafHash() common.Hash {
	b, err := n.Bytes()
	if err != nil {
		// A note that made it into the ledger always serializes.
		panic(fmt.Sprintf("note leaf hash: %v", err))
	}
	return common.Blake2HashLeaf(b)
}

// Bytes encodes the note as a byte slice.
func (n *Note) Bytes() ([]byte, error) {
	if len(n.EncryptedData) > MaxNotePayloadSize {
		return nil, fmt.Errorf("note payload too large: %d > %d", len(n.EncryptedData), MaxNotePayloadSize)
	}
	var buf bytes.Buffer
	buf.WriteByte(byte(n.Kind))
	buf.Write(n.Commitment.Bytes())
	buf.Write(n.StealthAddress.Bytes())
	if err := binary.Write(&buf, binary.LittleEndian, n.Value); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(n.EncryptedData))); err != nil {
		return nil, err
	}
	buf.Write(n.EncryptedData)
	if err := binary.Write(&buf, binary.LittleEndian, n.Pos); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, n.Height); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Recover reconstructs a Note from a byte slice.
func (n *Note) Recover(data []byte) error {
	const fixed = 1 + 32 + 32 + 8 + 4
	if len(data) < fixed {
		return fmt.Errorf("invalid note length: %d", len(data))
	}
	buf := bytes.NewReader(data)

	kind, err := buf.ReadByte()
	if err != nil {
		return err
	}
	if kind > byte(NoteObfuscated) {
		return fmt.Errorf("invalid note kind: %d", kind)
	}
	n.Kind = NoteKind(kind)

	h := make([]byte, 32)
	if _, err := buf.Read(h); err != nil {
		return err
	}
	n.Commitment = common.BytesToHash(h)
	if _, err := buf.Read(h); err != nil {
		return err
	}
	n.StealthAddress = common.BytesToHash(h)

	if err := binary.Read(buf, binary.LittleEndian, &n.Value); err != nil {
		return err
	}
	var payloadLen uint32
	if err := binary.Read(buf, binary.LittleEndian, &payloadLen); err != nil {
		return err
	}
	if payloadLen > MaxNotePayloadSize {
		return fmt.Errorf("note payload too large: %d", payloadLen)
	}
	if payloadLen > 0 {
		n.EncryptedData = make([]byte, payloadLen)
		if _, err := buf.Read(n.EncryptedData); err != nil {
			return err
		}
	} else {
		n.EncryptedData = nil
	}
	if err := binary.Read(buf, binary.LittleEndian, &n.Pos); err != nil {
		return err
	}
	if err := binary.Read(buf, binary.LittleEndian, &n.Height); err != nil {
		return err
	}
	return nil
}

func NoteFromBytes(data []byte) (*Note, error) {
	n := Note{}
	if err := n.Recover(data); err != nil {
		return nil, err
	}
	return &n, nil
}

func (n *Note) Clone() *Note {
	clone := *n
	if n.EncryptedData != nil {
		clone.EncryptedData = make([]byte, len(n.EncryptedData))
		copy(clone.EncryptedData, n.EncryptedData)
	}
	return &clone
}

func (n *Note) String() string {
	return fmt.Sprintf("Note pos=%d height=%d kind=%d commitment=%s value=%d",
		n.Pos, n.Height, n.Kind, n.Commitment.String_short(), n.Value)
}
