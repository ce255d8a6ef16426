// Package codegen holds the IR construction primitives shared by the JIT:
// an insertion-point builder over llir blocks, a nominal registry for named
// struct types, and the function shapes the runtime ABI expects.
package codegen

import (
	"fmt"
	"strconv"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// Builder appends instructions at the end of its current block.
// It mirrors the LLVM IRBuilder: an insertion point that other passes move
// between blocks and functions while lowering. Like IRBuilder it keeps local
// names unique within a function, renaming a clash from "x" to "x1".
type Builder struct {
	block *ir.Block
	names map[*ir.Func]map[string]bool
}

// NewBuilder returns a builder with no insertion point.
func NewBuilder() *Builder {
	return &Builder{names: make(map[*ir.Func]map[string]bool)}
}

// PositionAtEnd moves the insertion point to the end of block.
func (b *Builder) PositionAtEnd(block *ir.Block) {
	b.block = block
}

// ClearInsertionPoint drops the current insertion point.
func (b *Builder) ClearInsertionPoint() {
	b.block = nil
}

// InsertBlock returns the current insertion block, or nil.
func (b *Builder) InsertBlock() *ir.Block {
	return b.block
}

// Func returns the function owning the insertion block, or nil when there
// is no insertion point or the block is detached.
func (b *Builder) Func() *ir.Func {
	if b.block == nil {
		return nil
	}
	return b.block.Parent
}

// uniqueName returns name, or name with the smallest numeric suffix that is
// not yet used by a parameter, block or instruction of block's function.
func (b *Builder) uniqueName(block *ir.Block, name string) string {
	fn := block.Parent
	if fn == nil {
		return name
	}
	if b.names == nil {
		b.names = make(map[*ir.Func]map[string]bool)
	}
	used, ok := b.names[fn]
	if !ok {
		used = localNames(fn)
		b.names[fn] = used
	}
	// blocks may be added behind the builder's back
	for _, blk := range fn.Blocks {
		used[blk.Name()] = true
	}
	unique := name
	for i := 1; used[unique]; i++ {
		unique = name + strconv.Itoa(i)
	}
	used[unique] = true
	return unique
}

func localNames(fn *ir.Func) map[string]bool {
	used := make(map[string]bool)
	for _, p := range fn.Params {
		used[p.Name()] = true
	}
	for _, blk := range fn.Blocks {
		for _, inst := range blk.Insts {
			if n, ok := inst.(value.Named); ok {
				used[n.Name()] = true
			}
		}
	}
	return used
}

func (b *Builder) mustBlock(op string) *ir.Block {
	if b.block == nil {
		panic(fmt.Sprintf("codegen: %s without an insertion point", op))
	}
	return b.block
}

// BuildStructGEP emits `getelementptr inbounds %T, %T* ptr, i32 0, i32 index`.
// ptr must be a pointer to a non-opaque struct with more than index fields.
func (b *Builder) BuildStructGEP(ptr value.Value, index int, name string) *ir.InstGetElementPtr {
	block := b.mustBlock("struct gep")
	pt, ok := ptr.Type().(*types.PointerType)
	if !ok {
		panic(fmt.Sprintf("codegen: struct gep on non-pointer %s", ptr.Type()))
	}
	st, ok := pt.ElemType.(*types.StructType)
	if !ok || st.Opaque {
		panic(fmt.Sprintf("codegen: struct gep on %s", pt))
	}
	if index < 0 || index >= len(st.Fields) {
		panic(fmt.Sprintf("codegen: struct gep index %d out of range for %s", index, st.Name()))
	}
	inst := block.NewGetElementPtr(st, ptr,
		constant.NewInt(types.I32, 0),
		constant.NewInt(types.I32, int64(index)),
	)
	inst.InBounds = true
	inst.Typ = types.NewPointer(st.Fields[index])
	if name != "" {
		inst.SetName(b.uniqueName(block, name))
	}
	return inst
}

// BuildLoad emits a load of the pointee of ptr.
func (b *Builder) BuildLoad(ptr value.Value, name string) *ir.InstLoad {
	block := b.mustBlock("load")
	pt, ok := ptr.Type().(*types.PointerType)
	if !ok {
		panic(fmt.Sprintf("codegen: load from non-pointer %s", ptr.Type()))
	}
	inst := block.NewLoad(pt.ElemType, ptr)
	if name != "" {
		inst.SetName(b.uniqueName(block, name))
	}
	return inst
}

// BuildExtractValue emits `extractvalue agg, index` on a struct value.
func (b *Builder) BuildExtractValue(agg value.Value, index int, name string) *ir.InstExtractValue {
	block := b.mustBlock("extractvalue")
	st, ok := agg.Type().(*types.StructType)
	if !ok || st.Opaque {
		panic(fmt.Sprintf("codegen: extractvalue on %s", agg.Type()))
	}
	if index < 0 || index >= len(st.Fields) {
		panic(fmt.Sprintf("codegen: extractvalue index %d out of range for %s", index, st.Name()))
	}
	inst := block.NewExtractValue(agg, uint64(index))
	inst.Typ = st.Fields[index]
	if name != "" {
		inst.SetName(b.uniqueName(block, name))
	}
	return inst
}

// BuildRet terminates the insertion block. A nil v emits `ret void`.
func (b *Builder) BuildRet(v value.Value) *ir.TermRet {
	block := b.mustBlock("ret")
	return block.NewRet(v)
}
