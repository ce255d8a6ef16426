package runtime

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"

	"github.com/evmjit/evmjit/internal/codegen"
)

// RuntimeDataTypeName tags the RuntimeData struct.
const RuntimeDataTypeName = "RuntimeData"

// RuntimeDataType is the IR view of the host-owned RuntimeData blob.
type RuntimeDataType struct {
	id  codegen.TypeID
	typ *types.StructType
	ptr *types.PointerType
}

// NewRuntimeDataType defines %RuntimeData in m with one field per registry
// entry, in registry order.
func NewRuntimeDataType(m *ir.Module, reg *codegen.TypeRegistry) *RuntimeDataType {
	st := types.NewStruct(runtimeDataFieldTypes()...)
	id := reg.Define(m, RuntimeDataTypeName, st)
	return &RuntimeDataType{id: id, typ: st, ptr: types.NewPointer(st)}
}

func runtimeDataFieldTypes() []types.Type {
	fields := make([]types.Type, NumRuntimeDataFields)
	for _, f := range RuntimeDataFields() {
		fields[f.Index()] = f.Kind().IRType()
	}
	return fields
}

// ID returns the nominal type ID.
func (d *RuntimeDataType) ID() codegen.TypeID { return d.id }

// Type returns the struct type.
func (d *RuntimeDataType) Type() *types.StructType { return d.typ }

// PtrType returns the pointer-to-struct type.
func (d *RuntimeDataType) PtrType() *types.PointerType { return d.ptr }

// IsRuntimeDataType reports whether t has the RuntimeData shape and tag.
func IsRuntimeDataType(t types.Type) bool {
	st, ok := t.(*types.StructType)
	if !ok || st.Opaque || st.Packed {
		return false
	}
	if st.Name() != RuntimeDataTypeName || len(st.Fields) != NumRuntimeDataFields {
		return false
	}
	for i, want := range runtimeDataFieldTypes() {
		if !st.Fields[i].Equal(want) {
			return false
		}
	}
	return true
}
