package runtime

import (
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/evmjit/evmjit/internal/codegen"
	"github.com/evmjit/evmjit/internal/runtime/memory"
)

// testContext is a minimal compilation context: one module with the
// runtime ABI types defined, and a builder.
type testContext struct {
	module  *ir.Module
	builder *codegen.Builder
	reg     *codegen.TypeRegistry
	rtData  *RuntimeDataType
	env     *EnvDataType
	mem     *memory.RepresentationType
	rt      *RuntimeType
	main    *codegen.MainFunc
}

var _ Context = (*testContext)(nil)

func newTestContext(t *testing.T) *testContext {
	t.Helper()
	m := ir.NewModule()
	reg := codegen.NewTypeRegistry()
	c := &testContext{module: m, builder: codegen.NewBuilder(), reg: reg}
	c.rtData = NewRuntimeDataType(m, reg)
	c.env = NewEnvDataType(m, reg)
	c.mem = memory.NewRepresentationType(m, reg)
	c.rt = NewRuntimeType(m, reg, c.rtData, c.env, c.mem)
	require.True(t, IsRuntimeType(c.rt.Type()))
	return c
}

func (c *testContext) Builder() *codegen.Builder          { return c.builder }
func (c *testContext) Runtime() *RuntimeType              { return c.rt }
func (c *testContext) RuntimeData() *RuntimeDataType      { return c.rtData }
func (c *testContext) Env() *EnvDataType                  { return c.env }
func (c *testContext) MemRep() *memory.RepresentationType { return c.mem }
func (c *testContext) Logger() zerolog.Logger             { return zerolog.Nop() }

func (c *testContext) MainFunction() *ir.Func {
	if c.main == nil {
		return nil
	}
	return c.main.Func()
}

func (c *testContext) newMain(t *testing.T) *codegen.MainFunc {
	t.Helper()
	c.main = codegen.NewMainFunc(c.module, c.builder, "main", c.rt.PtrType())
	return c.main
}

// requireInvariant runs fn and checks it panics with an InvariantError of
// the given kind.
func requireInvariant(t *testing.T, kind InvariantKind, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		require.NotNil(t, r, "expected a %s invariant failure", kind)
		err, ok := r.(*InvariantError)
		require.True(t, ok, "panic value %v is not an InvariantError", r)
		require.Equal(t, kind, err.Kind, err.Error())
	}()
	fn()
}
