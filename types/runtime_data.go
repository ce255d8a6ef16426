package types

import (
	"github.com/holiman/uint256"
)

// Gas represents the amount of computational resources available to, or
// consumed by, compiled code.
type Gas = int64

// RuntimeData is the host's copy of the execution parameters handed to a
// compiled contract. Its binary form is laid out field by field in the
// order compiled code expects; see internal/runtime/host.
type RuntimeData struct {
	Gas      Gas
	GasPrice int64
	// CallData is the host address of the call data bytes.
	CallData     uint64
	CallDataSize int64
	Value        uint256.Int
	// Code is the host address of the executing code.
	Code     uint64
	CodeSize int64
	Address  uint256.Int
	Sender   uint256.Int
	Depth    int64
}

// MemoryRegion describes the VM memory handed to compiled code.
// Size must never exceed Capacity.
type MemoryRegion struct {
	Data     uint64
	Size     uint64
	Capacity uint64
}

// RuntimeFrame is the host's view of the runtime ABI struct: the addresses
// of RuntimeData and of the environment handle, and the memory region stored
// inline.
type RuntimeFrame struct {
	Data   uint64
	Env    uint64
	Memory MemoryRegion
}
