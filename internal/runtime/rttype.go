package runtime

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"

	"github.com/evmjit/evmjit/internal/codegen"
	"github.com/evmjit/evmjit/internal/runtime/layout"
	"github.com/evmjit/evmjit/internal/runtime/memory"
)

// RuntimeTypeName tags the runtime ABI struct.
const RuntimeTypeName = "Runtime"

// Field positions of the runtime ABI struct.
const (
	RuntimeDataPtrIndex = 0
	EnvPtrIndex         = 1
	MemIndex            = 2

	// NumRuntimeFields is the field count of the runtime ABI struct.
	NumRuntimeFields = 3
)

// RuntimeType is the struct the host passes to compiled entry points:
//
//	%Runtime = type { %RuntimeData*, %Env*, %MemRep }
//
// The memory representation is embedded by value.
type RuntimeType struct {
	id  codegen.TypeID
	typ *types.StructType
	ptr *types.PointerType
}

// NewRuntimeType defines %Runtime in m. It is called once per compilation
// context, before any function taking the runtime pointer is built.
func NewRuntimeType(m *ir.Module, reg *codegen.TypeRegistry, data *RuntimeDataType, env *EnvDataType, mem *memory.RepresentationType) *RuntimeType {
	st := types.NewStruct(data.PtrType(), env.PtrType(), mem.Type())
	id := reg.Define(m, RuntimeTypeName, st)
	return &RuntimeType{id: id, typ: st, ptr: types.NewPointer(st)}
}

// ID returns the nominal type ID.
func (r *RuntimeType) ID() codegen.TypeID { return r.id }

// Type returns the struct type.
func (r *RuntimeType) Type() *types.StructType { return r.typ }

// PtrType returns the pointer-to-struct type.
func (r *RuntimeType) PtrType() *types.PointerType { return r.ptr }

// Is reports whether t is this context's runtime struct: the very handle
// registered under r's ID, not merely something shaped like it.
func (r *RuntimeType) Is(t types.Type) bool {
	st, ok := t.(*types.StructType)
	return ok && st == r.typ
}

// IsPtr reports whether t is a pointer to this context's runtime struct.
func (r *RuntimeType) IsPtr(t types.Type) bool {
	pt, ok := t.(*types.PointerType)
	return ok && r.Is(pt.ElemType)
}

// IsRuntimeType reports whether t is structurally a runtime ABI struct.
// It has no side effects.
func IsRuntimeType(t types.Type) bool {
	st, ok := t.(*types.StructType)
	if !ok {
		return false
	}
	if !layout.IsSized(st) {
		return false
	}
	if len(st.Fields) != NumRuntimeFields {
		return false
	}
	if st.Packed {
		return false
	}
	if st.Name() != RuntimeTypeName {
		return false
	}

	dataPtr, ok := st.Fields[RuntimeDataPtrIndex].(*types.PointerType)
	if !ok || !IsRuntimeDataType(dataPtr.ElemType) {
		return false
	}

	envPtr, ok := st.Fields[EnvPtrIndex].(*types.PointerType)
	if !ok || !IsEnvDataType(envPtr.ElemType) {
		return false
	}

	return memory.IsRepresentationType(st.Fields[MemIndex])
}
