// Package memory describes how compiled code sees the VM memory region:
// a small by-value struct embedded in the runtime ABI struct.
package memory

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"

	"github.com/evmjit/evmjit/internal/codegen"
)

// TypeName tags the memory representation struct.
const TypeName = "MemRep"

// Field positions inside the memory representation.
const (
	DataIndex = iota
	SizeIndex
	CapacityIndex

	NumFields
)

// RepresentationType is `%MemRep = type { i8*, i64, i64 }`: base address,
// bytes in use and bytes reserved. Size never exceeds capacity.
type RepresentationType struct {
	id  codegen.TypeID
	typ *types.StructType
	ptr *types.PointerType
}

// NewRepresentationType defines the memory representation in m.
func NewRepresentationType(m *ir.Module, reg *codegen.TypeRegistry) *RepresentationType {
	st := types.NewStruct(fieldTypes()...)
	id := reg.Define(m, TypeName, st)
	return &RepresentationType{id: id, typ: st, ptr: types.NewPointer(st)}
}

func fieldTypes() []types.Type {
	return []types.Type{types.I8Ptr, types.I64, types.I64}
}

// ID returns the nominal type ID.
func (r *RepresentationType) ID() codegen.TypeID { return r.id }

// Type returns the struct type.
func (r *RepresentationType) Type() *types.StructType { return r.typ }

// PtrType returns the pointer-to-struct type.
func (r *RepresentationType) PtrType() *types.PointerType { return r.ptr }

// IsRepresentationType reports whether t has the memory representation's
// shape and tag.
func IsRepresentationType(t types.Type) bool {
	st, ok := t.(*types.StructType)
	if !ok || st.Opaque || st.Packed {
		return false
	}
	if st.Name() != TypeName {
		return false
	}
	want := fieldTypes()
	if len(st.Fields) != len(want) {
		return false
	}
	for i, f := range st.Fields {
		if !f.Equal(want[i]) {
			return false
		}
	}
	return true
}
