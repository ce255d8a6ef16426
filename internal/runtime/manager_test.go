package runtime

import (
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evmjit/evmjit/internal/codegen"
)

func gepIndices(t *testing.T, inst ir.Instruction) (*ir.InstGetElementPtr, []int64) {
	t.Helper()
	gep, ok := inst.(*ir.InstGetElementPtr)
	require.True(t, ok, "expected getelementptr, got %T", inst)
	idx := make([]int64, len(gep.Indices))
	for i, v := range gep.Indices {
		c, ok := v.(*constant.Int)
		require.True(t, ok)
		require.True(t, c.Typ.Equal(types.I32))
		idx[i] = c.X.Int64()
	}
	return gep, idx
}

func TestManagerPrologueSequence(t *testing.T) {
	c := newTestContext(t)
	main := c.newMain(t)
	NewManager(c)

	insts := main.EntryBlock().Insts
	require.Len(t, insts, 6+NumRuntimeDataFields)
	rtPtr := main.Func().Params[0]

	// gep 0 -> load: the data pointer
	gep, idx := gepIndices(t, insts[0])
	assert.Equal(t, []int64{0, int64(RuntimeDataPtrIndex)}, idx)
	require.Same(t, rtPtr, gep.Src)
	require.True(t, IsRuntimeType(gep.ElemType))
	dataLoad, ok := insts[1].(*ir.InstLoad)
	require.True(t, ok)
	require.Same(t, gep, dataLoad.Src)

	// gep 2: the memory address, no load
	gep, idx = gepIndices(t, insts[2])
	assert.Equal(t, []int64{0, int64(MemIndex)}, idx)
	require.Same(t, rtPtr, gep.Src)

	// gep 1 -> load: the env pointer
	gep, idx = gepIndices(t, insts[3])
	assert.Equal(t, []int64{0, int64(EnvPtrIndex)}, idx)
	envLoad, ok := insts[4].(*ir.InstLoad)
	require.True(t, ok)
	require.Same(t, gep, envLoad.Src)
	pointee := envLoad.Type().(*types.PointerType).ElemType
	require.True(t, IsEnvDataType(pointee))

	// one load of the whole RuntimeData through the data pointer
	data, ok := insts[5].(*ir.InstLoad)
	require.True(t, ok)
	require.Same(t, dataLoad, data.Src)
	require.True(t, IsRuntimeDataType(data.Type()))

	// then every field, in registry order
	for i, f := range RuntimeDataFields() {
		ev, ok := insts[6+i].(*ir.InstExtractValue)
		require.True(t, ok, "instruction %d is %T", 6+i, insts[6+i])
		require.Same(t, data, ev.X)
		require.True(t, IsRuntimeDataType(ev.X.Type()))
		assert.Equal(t, []uint64{uint64(f.Index())}, ev.Indices)
		assert.Equal(t, f.Name(), ev.Name())
	}
}

func TestManagerGetterTypes(t *testing.T) {
	c := newTestContext(t)
	c.newMain(t)
	m := NewManager(c)

	require.True(t, m.EnvPtr().Type().Equal(c.env.PtrType()))
	require.True(t, m.DataPtr().Type().Equal(c.rtData.PtrType()))
	require.True(t, m.MemPtr().Type().Equal(c.mem.PtrType()))

	// The memory pointer is an address into the runtime struct, not a load.
	_, isGEP := m.MemPtr().(*ir.InstGetElementPtr)
	require.True(t, isGEP)
	_, isLoad := m.MemPtr().(*ir.InstLoad)
	require.False(t, isLoad)

	require.True(t, m.Gas().Type().Equal(types.I64))
	require.True(t, m.Depth().Type().Equal(types.I64))
	require.True(t, m.Value().Type().Equal(types.NewInt(WordBits)))
	require.True(t, m.Address().Type().Equal(types.NewInt(WordBits)))
	require.True(t, m.Sender().Type().Equal(types.NewInt(WordBits)))
	require.True(t, m.Field(CallData).Type().Equal(types.I8Ptr))
}

func TestManagerFieldsFollowRegistry(t *testing.T) {
	c := newTestContext(t)
	c.newMain(t)
	m := NewManager(c)

	tests := []struct {
		name  string
		got   func() any
		field RuntimeDataField
		index uint64
	}{
		{"gas", func() any { return m.Gas() }, Gas, 0},
		{"value", func() any { return m.Value() }, Value, 4},
		{"address", func() any { return m.Address() }, Address, 7},
		{"sender", func() any { return m.Sender() }, Sender, 8},
		{"depth", func() any { return m.Depth() }, Depth, 9},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ev, ok := tc.got().(*ir.InstExtractValue)
			require.True(t, ok)
			assert.Equal(t, []uint64{tc.index}, ev.Indices)
			assert.Equal(t, tc.field.Name(), ev.Name())
			require.Same(t, ev, m.Field(tc.field))
		})
	}
}

func TestManagerGettersEmitNothing(t *testing.T) {
	c := newTestContext(t)
	main := c.newMain(t)
	m := NewManager(c)
	before := len(main.EntryBlock().Insts)

	m.Gas()
	m.EnvPtr()
	m.MemPtr()
	m.DataPtr()
	m.RuntimePtr()
	require.Len(t, main.EntryBlock().Insts, before)
}

func TestRuntimePtrFollowsInsertionPoint(t *testing.T) {
	c := newTestContext(t)
	main := c.newMain(t)
	m := NewManager(c)

	require.Same(t, main.Func().Params[0], m.RuntimePtr())

	body := main.Func().NewBlock("body")
	c.builder.PositionAtEnd(body)
	rt := m.RuntimePtr()
	require.Same(t, main.Func().Params[0], rt)
	require.True(t, c.rt.IsPtr(rt.Type()))

	helper := codegen.NewHelperFunc(c.module, "helper", c.rt.PtrType())
	c.builder.PositionAtEnd(codegen.EntryBlock(helper))
	rt = m.RuntimePtr()
	require.Same(t, helper.Params[0], rt)
	require.True(t, c.rt.IsPtr(rt.Type()))
}

func TestDataPtrInsertionStates(t *testing.T) {
	c := newTestContext(t)
	main := c.newMain(t)
	m := NewManager(c)
	cached := m.DataPtr()
	require.Equal(t, inEntryFunction, m.insertionState())

	// Another block of the same function still uses the cached pointer.
	c.builder.PositionAtEnd(main.Func().NewBlock("body"))
	require.Equal(t, inEntryFunction, m.insertionState())
	require.Same(t, cached, m.DataPtr())

	helper := codegen.NewHelperFunc(c.module, "helper", c.rt.PtrType())
	entry := codegen.EntryBlock(helper)
	c.builder.PositionAtEnd(entry)
	require.Equal(t, inOtherFunction, m.insertionState())

	derived := m.DataPtr()
	require.NotSame(t, cached, derived)
	require.True(t, derived.Type().Equal(c.rtData.PtrType()))

	// The pointer comes from the helper's own runtime parameter.
	require.Len(t, entry.Insts, 2)
	gep, idx := gepIndices(t, entry.Insts[0])
	assert.Equal(t, []int64{0, int64(RuntimeDataPtrIndex)}, idx)
	require.Same(t, helper.Params[0], gep.Src)
	require.Same(t, entry.Insts[1], derived)

	// Each call derives again.
	again := m.DataPtr()
	require.NotSame(t, derived, again)
	require.Len(t, entry.Insts, 4)

	c.builder.PositionAtEnd(main.EntryBlock())
	require.Same(t, cached, m.DataPtr())
	require.Same(t, cached, m.cachedDataPtr())
}

func TestNewManagerRestoresInsertionPoint(t *testing.T) {
	c := newTestContext(t)
	main := c.newMain(t)
	body := main.Func().NewBlock("body")
	c.builder.PositionAtEnd(body)

	m := NewManager(c)
	require.Same(t, body, c.builder.InsertBlock())
	require.Empty(t, body.Insts)
	require.Len(t, main.EntryBlock().Insts, 6+NumRuntimeDataFields)
	require.Same(t, main.Func(), m.Func())
}

func TestManagerFatalSignatures(t *testing.T) {
	t.Run("no insertion point", func(t *testing.T) {
		c := newTestContext(t)
		requireInvariant(t, KindSignature, func() { NewManager(c) })
	})

	t.Run("no parameters", func(t *testing.T) {
		c := newTestContext(t)
		fn := c.module.NewFunc("noargs", types.Void)
		c.builder.PositionAtEnd(fn.NewBlock("entry"))
		requireInvariant(t, KindSignature, func() { NewManager(c) })
	})

	t.Run("wrong first parameter", func(t *testing.T) {
		c := newTestContext(t)
		fn := c.module.NewFunc("bytes", types.Void, ir.NewParam("p", types.I8Ptr))
		c.builder.PositionAtEnd(fn.NewBlock("entry"))
		requireInvariant(t, KindSignature, func() { NewManager(c) })
	})

	t.Run("runtime pointer of another context", func(t *testing.T) {
		c := newTestContext(t)
		other := newTestContext(t)
		fn := c.module.NewFunc("foreign", types.Void, ir.NewParam("rt", other.rt.PtrType()))
		c.builder.PositionAtEnd(fn.NewBlock("entry"))
		requireInvariant(t, KindSignature, func() { NewManager(c) })
	})

	t.Run("before the entry function exists", func(t *testing.T) {
		c := newTestContext(t)
		fn := codegen.NewHelperFunc(c.module, "helper", c.rt.PtrType())
		c.builder.PositionAtEnd(codegen.EntryBlock(fn))
		requireInvariant(t, KindSignature, func() { NewManager(c) })
	})

	t.Run("outside the entry function", func(t *testing.T) {
		c := newTestContext(t)
		main := c.newMain(t)
		fn := codegen.NewHelperFunc(c.module, "helper", c.rt.PtrType())
		c.builder.PositionAtEnd(codegen.EntryBlock(fn))
		requireInvariant(t, KindSignature, func() { NewManager(c) })
		require.Empty(t, main.EntryBlock().Insts)
	})

	t.Run("runtime pointer outside a runtime function", func(t *testing.T) {
		c := newTestContext(t)
		c.newMain(t)
		m := NewManager(c)

		fn := c.module.NewFunc("plain", types.Void, ir.NewParam("n", types.I64))
		c.builder.PositionAtEnd(fn.NewBlock("entry"))
		requireInvariant(t, KindSignature, func() { m.RuntimePtr() })
		requireInvariant(t, KindSignature, func() { m.DataPtr() })

		c.builder.ClearInsertionPoint()
		requireInvariant(t, KindSignature, func() { m.RuntimePtr() })
	})
}

func TestManagerRejectsReshapedRuntime(t *testing.T) {
	tests := []struct {
		name  string
		index int
		field func(c *testContext) types.Type
	}{
		{"data pointer", RuntimeDataPtrIndex, func(c *testContext) types.Type { return types.I8Ptr }},
		{"memory by value", MemIndex, func(c *testContext) types.Type { return types.I64 }},
		{"env pointer", EnvPtrIndex, func(c *testContext) types.Type { return c.rtData.PtrType() }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestContext(t)
			c.newMain(t)
			c.rt.Type().Fields[tc.index] = tc.field(c)
			requireInvariant(t, KindDerivedType, func() { NewManager(c) })
		})
	}
}

func TestDerivedDataPtrRevalidates(t *testing.T) {
	tests := []struct {
		name  string
		field func(c *testContext) types.Type
	}{
		{"not a pointer", func(c *testContext) types.Type { return types.I64 }},
		{"pointer to env", func(c *testContext) types.Type { return c.env.PtrType() }},
		{"pointer to a look-alike", func(c *testContext) types.Type {
			fields := make([]types.Type, len(c.rtData.Type().Fields))
			copy(fields, c.rtData.Type().Fields)
			twin := types.NewStruct(fields...)
			twin.SetName(RuntimeDataTypeName)
			return types.NewPointer(twin)
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestContext(t)
			main := c.newMain(t)
			m := NewManager(c)

			c.rt.Type().Fields[RuntimeDataPtrIndex] = tc.field(c)
			// the entry function keeps its cached pointer
			require.NotNil(t, m.DataPtr())

			helper := codegen.NewHelperFunc(c.module, "helper", c.rt.PtrType())
			c.builder.PositionAtEnd(codegen.EntryBlock(helper))
			requireInvariant(t, KindStaleManager, func() { m.DataPtr() })

			c.builder.PositionAtEnd(main.EntryBlock())
			require.Equal(t, inEntryFunction, m.insertionState())
		})
	}
}

func TestInvariantErrorMessage(t *testing.T) {
	err := &InvariantError{Kind: KindDerivedType, Op: "NewManager", Detail: "env pointer is i8*"}
	require.Equal(t, "runtime abi invariant (derived type) in NewManager: env pointer is i8*", err.Error())
	require.Equal(t, "stale manager", KindStaleManager.String())
	require.Equal(t, "InvariantKind(9)", InvariantKind(9).String())
}
