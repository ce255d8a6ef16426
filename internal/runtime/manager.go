package runtime

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"github.com/rs/zerolog"

	"github.com/evmjit/evmjit/internal/codegen"
	"github.com/evmjit/evmjit/internal/runtime/memory"
)

// Context is what a Manager needs from the compilation context it runs in.
type Context interface {
	Builder() *codegen.Builder
	Runtime() *RuntimeType
	RuntimeData() *RuntimeDataType
	Env() *EnvDataType
	MemRep() *memory.RepresentationType
	// MainFunction is the unit's single top-level entry function, or nil
	// before it is created.
	MainFunction() *ir.Func
	Logger() zerolog.Logger
}

// Manager gives opcode lowering cheap access to the runtime ABI of the
// unit's entry function. It is built right after the entry block exists and
// is dropped once the unit is lowered.
type Manager struct {
	ctx Context
	fn  *ir.Func

	dataPtr value.Value
	memPtr  value.Value
	envPtr  value.Value
	fields  [NumRuntimeDataFields]value.Value
}

// NewManager emits the runtime prologue into the entry block of the unit's
// main function, which must own the builder's insertion point:
//
//	gep 0 / load          -> data pointer
//	gep 2                 -> memory address
//	gep 1 / load          -> env pointer
//	load RuntimeData      -> one aggregate load
//	extractvalue 0..9     -> every RuntimeData field
//
// The insertion point is restored afterwards.
func NewManager(ctx Context) *Manager {
	const op = "NewManager"
	b := ctx.Builder()
	fn := b.Func()
	if fn == nil {
		fatalf(KindSignature, op, "no function at the insertion point")
	}
	entry := codegen.EntryBlock(fn)
	if entry == nil {
		fatalf(KindSignature, op, "function %s has no entry block", fn.Name())
	}
	rtPtr := runtimePtrOf(ctx, fn, op)
	if main := ctx.MainFunction(); fn != main {
		fatalf(KindSignature, op, "insertion point is in %s, not in the entry function", fn.Name())
	}

	saved := b.InsertBlock()
	b.PositionAtEnd(entry)
	defer b.PositionAtEnd(saved)

	m := &Manager{ctx: ctx, fn: fn}

	dataPtr := b.BuildLoad(b.BuildStructGEP(rtPtr, RuntimeDataPtrIndex, ""), "dataPtr")
	if !isPtrTo(dataPtr.Type(), ctx.RuntimeData().Type()) {
		fatalf(KindDerivedType, op, "data pointer is %s, want %s", dataPtr.Type(), ctx.RuntimeData().PtrType())
	}
	m.dataPtr = dataPtr

	memPtr := b.BuildStructGEP(rtPtr, MemIndex, "mem")
	if !isPtrTo(memPtr.Type(), ctx.MemRep().Type()) {
		fatalf(KindDerivedType, op, "memory address is %s, want %s", memPtr.Type(), ctx.MemRep().PtrType())
	}
	m.memPtr = memPtr

	envPtr := b.BuildLoad(b.BuildStructGEP(rtPtr, EnvPtrIndex, ""), "env")
	if !isPtrTo(envPtr.Type(), ctx.Env().Type()) {
		fatalf(KindDerivedType, op, "env pointer is %s, want %s", envPtr.Type(), ctx.Env().PtrType())
	}
	m.envPtr = envPtr

	data := b.BuildLoad(dataPtr, "data")
	for _, f := range RuntimeDataFields() {
		m.fields[f.Index()] = b.BuildExtractValue(data, f.Index(), f.Name())
	}

	logger := ctx.Logger()
	logger.Debug().
		Str("func", fn.Name()).
		Int("fields", NumRuntimeDataFields).
		Msg("runtime prologue emitted")
	return m
}

// Func returns the function the manager was built for.
func (m *Manager) Func() *ir.Func {
	return m.fn
}

// RuntimePtr returns parameter 0 of the function at the current insertion
// point. It is looked up on every call so it is never stale.
func (m *Manager) RuntimePtr() value.Value {
	fn := m.ctx.Builder().Func()
	if fn == nil {
		fatalf(KindSignature, "RuntimePtr", "no function at the insertion point")
	}
	return runtimePtrOf(m.ctx, fn, "RuntimePtr")
}

func runtimePtrOf(ctx Context, fn *ir.Func, op string) value.Value {
	if len(fn.Params) == 0 {
		fatalf(KindSignature, op, "function %s takes no parameters", fn.Name())
	}
	p := fn.Params[0]
	if !ctx.Runtime().IsPtr(p.Type()) {
		fatalf(KindSignature, op, "parameter 0 of %s is %s, want %s", fn.Name(), p.Type(), ctx.Runtime().PtrType())
	}
	return p
}

type insertionState int

const (
	inEntryFunction insertionState = iota
	inOtherFunction
)

func (m *Manager) insertionState() insertionState {
	if m.ctx.Builder().Func() == m.ctx.MainFunction() {
		return inEntryFunction
	}
	return inOtherFunction
}

// DataPtr returns the RuntimeData pointer valid at the insertion point. In
// the entry function that is the cached prologue value; anywhere else it is
// loaded again from that function's runtime pointer and checked again, since
// the runtime struct may have changed shape after the prologue was emitted.
func (m *Manager) DataPtr() value.Value {
	switch m.insertionState() {
	case inEntryFunction:
		return m.cachedDataPtr()
	default:
		return m.derivedDataPtr()
	}
}

func (m *Manager) cachedDataPtr() value.Value {
	return m.dataPtr
}

func (m *Manager) derivedDataPtr() value.Value {
	const op = "DataPtr"
	rtPtr := m.RuntimePtr()
	b := m.ctx.Builder()
	dataPtr := b.BuildLoad(b.BuildStructGEP(rtPtr, RuntimeDataPtrIndex, ""), "data")
	pt, ok := dataPtr.Type().(*types.PointerType)
	if !ok {
		fatalf(KindStaleManager, op, "re-derived data pointer is %s", dataPtr.Type())
	}
	if !IsRuntimeDataType(pt.ElemType) || pt.ElemType != m.ctx.RuntimeData().Type() {
		fatalf(KindStaleManager, op, "re-derived data pointer points to %s", pt.ElemType)
	}
	return dataPtr
}

// MemPtr returns the address of the memory representation inside the
// runtime struct. It is an address: callers load or store through it.
func (m *Manager) MemPtr() value.Value { return m.memPtr }

// EnvPtr returns the environment handle.
func (m *Manager) EnvPtr() value.Value { return m.envPtr }

// Field returns the cached value of f.
func (m *Manager) Field(f RuntimeDataField) value.Value {
	return m.fields[f.Index()]
}

func (m *Manager) Gas() value.Value     { return m.Field(Gas) }
func (m *Manager) Address() value.Value { return m.Field(Address) }
func (m *Manager) Sender() value.Value  { return m.Field(Sender) }
func (m *Manager) Value() value.Value   { return m.Field(Value) }
func (m *Manager) Depth() value.Value   { return m.Field(Depth) }

func isPtrTo(t types.Type, st *types.StructType) bool {
	pt, ok := t.(*types.PointerType)
	return ok && pt.ElemType == st
}
