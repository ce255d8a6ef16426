// Package jit owns the compilation context: one IR module, one builder and
// the runtime ABI types shared by every function compiled in it.
package jit

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/rs/zerolog"

	"github.com/evmjit/evmjit/internal/codegen"
	"github.com/evmjit/evmjit/internal/runtime"
	"github.com/evmjit/evmjit/internal/runtime/abi"
	"github.com/evmjit/evmjit/internal/runtime/layout"
	"github.com/evmjit/evmjit/internal/runtime/memory"
	"github.com/evmjit/evmjit/types"
)

// Context is a compilation context. It is created once per top-level unit,
// used from a single goroutine and closed when the unit is done. Type
// handles and values from one Context mean nothing in another.
type Context struct {
	config   types.JITConfig
	logger   zerolog.Logger
	module   *ir.Module
	builder  *codegen.Builder
	registry *codegen.TypeRegistry
	layout   *layout.Layout

	rtData *runtime.RuntimeDataType
	env    *runtime.EnvDataType
	memrep *memory.RepresentationType
	rt     *runtime.RuntimeType

	main   *codegen.MainFunc
	closed bool
}

var _ runtime.Context = (*Context)(nil)

// NewContext creates the module and defines the runtime ABI types in it.
func NewContext(config types.JITConfig, logger zerolog.Logger) (*Context, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	l, err := layout.New(uint64(config.Target.PointerSize))
	if err != nil {
		return nil, err
	}

	m := ir.NewModule()
	m.TargetTriple = config.Target.Triple
	m.DataLayout = l.DataLayout()
	reg := codegen.NewTypeRegistry()

	c := &Context{
		config:   config,
		logger:   logger.With().Str("component", "jit").Logger(),
		module:   m,
		builder:  codegen.NewBuilder(),
		registry: reg,
		layout:   l,
	}
	c.rtData = runtime.NewRuntimeDataType(m, reg)
	c.env = runtime.NewEnvDataType(m, reg)
	c.memrep = memory.NewRepresentationType(m, reg)
	c.rt = runtime.NewRuntimeType(m, reg, c.rtData, c.env, c.memrep)

	mustVerify(c.rt)

	c.logger.Debug().
		Uint32("pointer_size", config.Target.PointerSize).
		Int("types", reg.Len()).
		Msg("compilation context created")
	return c, nil
}

// mustVerify stops compilation when the runtime struct does not have the
// ABI shape.
func mustVerify(rt *runtime.RuntimeType) {
	if !runtime.IsRuntimeType(rt.Type()) {
		panic(&runtime.InvariantError{
			Kind:   runtime.KindABIShape,
			Op:     "NewContext",
			Detail: fmt.Sprintf("constructed %s does not verify", rt.Type()),
		})
	}
}

func (c *Context) mustOpen() {
	if c.closed {
		panic("jit: use of closed compilation context")
	}
}

// Config returns the configuration the context was created with.
func (c *Context) Config() types.JITConfig { return c.config }

// Logger returns the context logger.
func (c *Context) Logger() zerolog.Logger { return c.logger }

// Module returns the IR module being built.
func (c *Context) Module() *ir.Module {
	c.mustOpen()
	return c.module
}

// Builder returns the context's single builder.
func (c *Context) Builder() *codegen.Builder {
	c.mustOpen()
	return c.builder
}

// Types returns the nominal registry of the context's struct types.
func (c *Context) Types() *codegen.TypeRegistry { return c.registry }

// Layout returns the target data layout.
func (c *Context) Layout() *layout.Layout { return c.layout }

func (c *Context) Runtime() *runtime.RuntimeType         { return c.rt }
func (c *Context) RuntimeData() *runtime.RuntimeDataType { return c.rtData }
func (c *Context) Env() *runtime.EnvDataType             { return c.env }
func (c *Context) MemRep() *memory.RepresentationType    { return c.memrep }

// NewMainFunc creates the unit's entry function, named by the target config,
// and positions the builder in its entry block. There is one per context.
func (c *Context) NewMainFunc() *codegen.MainFunc {
	c.mustOpen()
	if c.main != nil {
		panic(fmt.Sprintf("jit: main function %q already created", c.main.Func().Name()))
	}
	c.main = codegen.NewMainFunc(c.module, c.builder, c.config.Target.MainFunction, c.rt.PtrType())
	return c.main
}

// MainFunction returns the entry function, or nil before NewMainFunc.
func (c *Context) MainFunction() *ir.Func {
	if c.main == nil {
		return nil
	}
	return c.main.Func()
}

// NewHelperFunc declares a function that also receives the runtime pointer.
func (c *Context) NewHelperFunc(name string) *ir.Func {
	c.mustOpen()
	return codegen.NewHelperFunc(c.module, name, c.rt.PtrType())
}

// Descriptor describes the runtime ABI as laid out on the target.
func (c *Context) Descriptor() (*abi.Descriptor, error) {
	return abi.Build(c.layout, c.rt.Type(), c.rtData.Type(), c.memrep.Type())
}

// String renders the module as LLVM IR assembly.
func (c *Context) String() string {
	c.mustOpen()
	return c.module.String()
}

// Close ends the context. Any later use of the module or builder panics.
func (c *Context) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.builder.ClearInsertionPoint()
	c.logger.Debug().Msg("compilation context closed")
}
