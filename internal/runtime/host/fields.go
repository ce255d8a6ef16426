package host

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/evmjit/evmjit/internal/runtime"
	"github.com/evmjit/evmjit/types"
)

func sizeField(d *types.RuntimeData, f runtime.RuntimeDataField) *int64 {
	switch f {
	case runtime.Gas:
		return &d.Gas
	case runtime.GasPrice:
		return &d.GasPrice
	case runtime.CallDataSize:
		return &d.CallDataSize
	case runtime.CodeSize:
		return &d.CodeSize
	case runtime.Depth:
		return &d.Depth
	}
	panic(fmt.Sprintf("host: %s is not a size field", f))
}

func ptrField(d *types.RuntimeData, f runtime.RuntimeDataField) *uint64 {
	switch f {
	case runtime.CallData:
		return &d.CallData
	case runtime.Code:
		return &d.Code
	}
	panic(fmt.Sprintf("host: %s is not a pointer field", f))
}

func wordField(d *types.RuntimeData, f runtime.RuntimeDataField) *uint256.Int {
	switch f {
	case runtime.Value:
		return &d.Value
	case runtime.Address:
		return &d.Address
	case runtime.Sender:
		return &d.Sender
	}
	panic(fmt.Sprintf("host: %s is not a word field", f))
}
