package common

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// ComputeHash computes the BLAKE2b hash of the given data
func ComputeHash(data []byte) []byte {
	hash := blake2b.Sum256(data)
	return hash[:]
}

func Blake2Hash(data []byte) Hash {
	return BytesToHash(ComputeHash(data))
}

// Blake2HashPair hashes the concatenation of two 32-byte nodes, used for
// interior Merkle nodes.
func Blake2HashPair(left Hash, right Hash) Hash {
	h, _ := blake2b.New256(nil)
	h.Write(left.Bytes())
	h.Write(right.Bytes())
	return BytesToHash(h.Sum(nil))
}

// Blake2HashLeaf hashes leaf data with a domain separator so leaves can never
// collide with interior nodes.
func Blake2HashLeaf(data []byte) Hash {
	h, _ := blake2b.New256(nil)
	h.Write([]byte("leaf"))
	h.Write(data)
	return BytesToHash(h.Sum(nil))
}

func Uint64ToBytes(val uint64) []byte {
	bytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(bytes, val)
	return bytes
}

func Uint32ToBytes(val uint32) []byte {
	bytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(bytes, val)
	return bytes
}

func BytesToUint64(data []byte) uint64 {
	if len(data) < 8 {
		panic("BytesToUint64: byte slice too short")
	}
	return binary.LittleEndian.Uint64(data)
}

func BytesToUint32(data []byte) uint32 {
	if len(data) < 4 {
		panic("BytesToUint32: byte slice too short")
	}
	return binary.LittleEndian.Uint32(data)
}

// Uint64ToBytesBE encodes big-endian, used for storage keys where
// lexicographic order must match numeric order.
func Uint64ToBytesBE(val uint64) []byte {
	bytes := make([]byte, 8)
	binary.BigEndian.PutUint64(bytes, val)
	return bytes
}

func BytesToUint64BE(data []byte) uint64 {
	if len(data) < 8 {
		panic("BytesToUint64BE: byte slice too short")
	}
	return binary.BigEndian.Uint64(data)
}
