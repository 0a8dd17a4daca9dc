package types

import (
	"encoding/json"
	"fmt"

	"github.com/nocturnelabs/nocturne/common"
)

// ContractID identifies a deployed contract.
type ContractID [32]byte

// AccountKey is the public-key identity behind a transparent (Moonlight)
// account.
type AccountKey [32]byte

func BytesToContractID(b []byte) ContractID {
	var id ContractID
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	copy(id[32-len(b):], b)
	return id
}

func HexToContractID(s string) ContractID {
	return BytesToContractID(common.Hex2Bytes(s))
}

func (id ContractID) Bytes() []byte {
	return id[:]
}

func (id ContractID) Hex() string {
	return common.Bytes2Hex(id[:])
}

func (id ContractID) String() string {
	return id.Hex()
}

func (id ContractID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.Hex())
}

func (id *ContractID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*id = HexToContractID(s)
	return nil
}

func BytesToAccountKey(b []byte) AccountKey {
	var k AccountKey
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	copy(k[32-len(b):], b)
	return k
}

func HexToAccountKey(s string) AccountKey {
	return BytesToAccountKey(common.Hex2Bytes(s))
}

func (k AccountKey) Bytes() []byte {
	return k[:]
}

func (k AccountKey) Hex() string {
	return common.Bytes2Hex(k[:])
}

func (k AccountKey) String() string {
	return k.Hex()
}

func (k AccountKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.Hex())
}

func (k *AccountKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*k = HexToAccountKey(s)
	return nil
}

// CallerKind distinguishes who sits behind an entrypoint invocation. The
// privilege split is enforced dynamically per call, never by static typing.
type CallerKind uint8

const (
	CallerHost CallerKind = iota
	CallerTransactor
	CallerContract
)

// CallerContext carries the identity of the immediate caller and is threaded
// into every entrypoint.
type CallerContext struct {
	Kind     CallerKind
	Contract ContractID // set only when Kind == CallerContract
}

func HostCaller() CallerContext {
	return CallerContext{Kind: CallerHost}
}

func TransactorCaller() CallerContext {
	return CallerContext{Kind: CallerTransactor}
}

func ContractCaller(id ContractID) CallerContext {
	return CallerContext{Kind: CallerContract, Contract: id}
}

func (c CallerContext) IsHost() bool {
	return c.Kind == CallerHost
}

func (c CallerContext) IsTransactor() bool {
	return c.Kind == CallerTransactor
}

func (c CallerContext) IsContract() bool {
	return c.Kind == CallerContract
}

func (c CallerContext) String() string {
	switch c.Kind {
	case CallerHost:
		return "host"
	case CallerTransactor:
		return "transactor"
	case CallerContract:
		return fmt.Sprintf("contract:%s", c.Contract.Hex())
	default:
		return "unknown"
	}
}
