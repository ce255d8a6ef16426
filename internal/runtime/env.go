package runtime

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"

	"github.com/evmjit/evmjit/internal/codegen"
)

// EnvTypeName tags the environment handle struct.
const EnvTypeName = "Env"

// EnvDataType is the opaque host callback handle. Compiled code only passes
// %Env* back to host callbacks; it never looks inside.
type EnvDataType struct {
	id  codegen.TypeID
	typ *types.StructType
	ptr *types.PointerType
}

// NewEnvDataType defines `%Env = type opaque` in m.
func NewEnvDataType(m *ir.Module, reg *codegen.TypeRegistry) *EnvDataType {
	st := &types.StructType{Opaque: true}
	id := reg.Define(m, EnvTypeName, st)
	return &EnvDataType{id: id, typ: st, ptr: types.NewPointer(st)}
}

// ID returns the nominal type ID.
func (e *EnvDataType) ID() codegen.TypeID { return e.id }

// Type returns the struct type.
func (e *EnvDataType) Type() *types.StructType { return e.typ }

// PtrType returns the pointer-to-struct type.
func (e *EnvDataType) PtrType() *types.PointerType { return e.ptr }

// IsEnvDataType reports whether t is the opaque environment handle.
func IsEnvDataType(t types.Type) bool {
	st, ok := t.(*types.StructType)
	return ok && st.Opaque && st.Name() == EnvTypeName
}
