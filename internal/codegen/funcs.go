package codegen

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
)

// EntryBlockName is the name given to the first block of every function
// created here.
const EntryBlockName = "entry"

// RuntimeParamName names parameter 0 of functions receiving the runtime pointer.
const RuntimeParamName = "rt"

// MainFunc is the single top-level entry function of a compilation unit:
// `i32 @main(%Runtime* %rt)`. The host calls it with the runtime ABI struct
// and reads the returned status code.
type MainFunc struct {
	fn    *ir.Func
	entry *ir.Block
}

// NewMainFunc declares the entry function in m and positions b at the end of
// its entry block, so runtime access can be set up right after.
func NewMainFunc(m *ir.Module, b *Builder, name string, runtimePtr *types.PointerType) *MainFunc {
	fn := m.NewFunc(name, types.I32, ir.NewParam(RuntimeParamName, runtimePtr))
	entry := fn.NewBlock(EntryBlockName)
	b.PositionAtEnd(entry)
	return &MainFunc{fn: fn, entry: entry}
}

// Func returns the underlying function.
func (f *MainFunc) Func() *ir.Func { return f.fn }

// EntryBlock returns the function's entry block.
func (f *MainFunc) EntryBlock() *ir.Block { return f.entry }

// NewHelperFunc declares a `void @name(%Runtime* %rt)` function with an entry
// block. The builder is left untouched.
func NewHelperFunc(m *ir.Module, name string, runtimePtr *types.PointerType) *ir.Func {
	fn := m.NewFunc(name, types.Void, ir.NewParam(RuntimeParamName, runtimePtr))
	fn.NewBlock(EntryBlockName)
	return fn
}

// EntryBlock returns the first block of fn, or nil for a declaration.
func EntryBlock(fn *ir.Func) *ir.Block {
	if fn == nil || len(fn.Blocks) == 0 {
		return nil
	}
	return fn.Blocks[0]
}

// FindFunc returns the function named name in m.
func FindFunc(m *ir.Module, name string) *ir.Func {
	for _, fn := range m.Funcs {
		if fn.Name() == name {
			return fn
		}
	}
	return nil
}
