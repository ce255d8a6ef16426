package runtime

import (
	"fmt"

	"github.com/llir/llvm/ir/types"
)

// RuntimeDataField names one field of the RuntimeData blob.
type RuntimeDataField int

const (
	Gas RuntimeDataField = iota
	GasPrice
	CallData
	CallDataSize
	Value
	Code
	CodeSize
	Address
	Sender
	Depth
)

// NumRuntimeDataFields is the number of fields in RuntimeData.
const NumRuntimeDataFields = 10

// FieldKind is the storage class of a RuntimeData field.
type FieldKind int

const (
	// KindSize is a 64-bit integer: gas, sizes, depth.
	KindSize FieldKind = iota
	// KindWord is a 256-bit EVM word.
	KindWord
	// KindBytePtr is an address of host-owned bytes.
	KindBytePtr
)

// WordBits is the width of an EVM word.
const WordBits = 256

// IRType returns the IR type used for fields of kind k.
func (k FieldKind) IRType() types.Type {
	switch k {
	case KindSize:
		return types.I64
	case KindWord:
		return types.NewInt(WordBits)
	case KindBytePtr:
		return types.I8Ptr
	default:
		panic(fmt.Sprintf("runtime: unknown field kind %d", int(k)))
	}
}

type fieldEntry struct {
	field RuntimeDataField
	index int
	name  string
	kind  FieldKind
}

// fieldRegistry is the single source of truth for RuntimeData: position in
// this table is the field index shared with the host.
var fieldRegistry = [NumRuntimeDataFields]fieldEntry{
	{Gas, 0, "gas", KindSize},
	{GasPrice, 1, "gasPrice", KindSize},
	{CallData, 2, "callData", KindBytePtr},
	{CallDataSize, 3, "callDataSize", KindSize},
	{Value, 4, "value", KindWord},
	{Code, 5, "code", KindBytePtr},
	{CodeSize, 6, "codeSize", KindSize},
	{Address, 7, "address", KindWord},
	{Sender, 8, "sender", KindWord},
	{Depth, 9, "depth", KindSize},
}

func init() {
	seen := make(map[RuntimeDataField]bool, NumRuntimeDataFields)
	for pos, e := range fieldRegistry {
		if e.index != pos || seen[e.field] {
			panic(fmt.Sprintf("runtime: field registry entry %d (%s) is out of order", pos, e.name))
		}
		seen[e.field] = true
	}
}

func (f RuntimeDataField) entry() fieldEntry {
	for _, e := range fieldRegistry {
		if e.field == f {
			return e
		}
	}
	panic(fmt.Sprintf("runtime: unknown RuntimeData field %d", int(f)))
}

// Index returns the position of f inside RuntimeData.
func (f RuntimeDataField) Index() int { return f.entry().index }

// Name returns the display name of f; extracted values carry it.
func (f RuntimeDataField) Name() string { return f.entry().name }

// Kind returns the storage class of f.
func (f RuntimeDataField) Kind() FieldKind { return f.entry().kind }

func (f RuntimeDataField) String() string { return f.Name() }

// RuntimeDataFields returns all fields in index order.
func RuntimeDataFields() []RuntimeDataField {
	fields := make([]RuntimeDataField, NumRuntimeDataFields)
	for i, e := range fieldRegistry {
		fields[i] = e.field
	}
	return fields
}

// FieldAt returns the field stored at index.
func FieldAt(index int) (RuntimeDataField, bool) {
	if index < 0 || index >= NumRuntimeDataFields {
		return 0, false
	}
	return fieldRegistry[index].field, true
}
