package evmjit

import (
	"github.com/llir/llvm/ir/constant"
	irtypes "github.com/llir/llvm/ir/types"

	"github.com/evmjit/evmjit/types"
)

// RuntimeData is the host's copy of the execution parameters.
type RuntimeData = types.RuntimeData

// RuntimeFrame is the host's view of the runtime ABI struct.
type RuntimeFrame = types.RuntimeFrame

// Checksum identifies a published runtime ABI descriptor.
type Checksum = types.Checksum

// JITConfig configures the JIT.
type JITConfig = types.JITConfig

// ReturnCode is the status an entry function returns to the host.
type ReturnCode int32

const (
	ReturnStop ReturnCode = iota
	ReturnReturn
	ReturnRevert
	ReturnOutOfGas
)

func returnCode(c ReturnCode) *constant.Int {
	return constant.NewInt(irtypes.I32, int64(c))
}
