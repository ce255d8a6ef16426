// Package evmjit is the entry point of the JIT's runtime-interface layer.
// It hands out one compilation context per top-level unit, sets up runtime
// access for the unit's entry function, and publishes the runtime ABI the
// host must follow when calling compiled code.
package evmjit

import (
	"context"
	"errors"
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/evmjit/evmjit/internal/jit"
	"github.com/evmjit/evmjit/internal/runtime"
	"github.com/evmjit/evmjit/internal/runtime/abi"
	"github.com/evmjit/evmjit/internal/runtime/cache"
	"github.com/evmjit/evmjit/types"
)

// Unit is one top-level compilation unit. Lower emits the unit's body into
// the entry function; the builder starts in the entry block, after the
// runtime prologue. Lower must terminate every block it creates; the entry
// block gets `ret i32 0` if Lower leaves it open. A nil Lower produces an
// entry function that only sets up runtime access.
type Unit struct {
	Name  string
	Lower func(ctx *jit.Context, rt *runtime.Manager)
}

// ErrUnterminated is returned when lowering leaves a block without a
// terminator.
var ErrUnterminated = errors.New("block has no terminator")

// JIT is the main entry point to this library. It is safe for concurrent
// use; every compilation gets its own context.
type JIT struct {
	config types.JITConfig
	logger zerolog.Logger
	store  *cache.Store
}

// NewJIT creates a JIT and opens its ABI descriptor store.
func NewJIT(config types.JITConfig, logger zerolog.Logger) (*JIT, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	store, err := cache.Open(config.Cache)
	if err != nil {
		return nil, err
	}
	return &JIT{config: config, logger: logger, store: store}, nil
}

// Close releases the descriptor store.
func (j *JIT) Close() error {
	return j.store.Close()
}

// NewContext returns a fresh compilation context. The caller owns it and
// must Close it.
func (j *JIT) NewContext() (*jit.Context, error) {
	return jit.NewContext(j.config, j.logger)
}

// CompileUnit compiles u in a context of its own and returns the module IR.
// Broken runtime-ABI invariants abort compilation with a panic carrying a
// *runtime.InvariantError.
func (j *JIT) CompileUnit(u Unit) (string, error) {
	ctx, err := j.NewContext()
	if err != nil {
		return "", err
	}
	defer ctx.Close()

	main := ctx.NewMainFunc()
	rt := runtime.NewManager(ctx)
	if u.Lower != nil {
		u.Lower(ctx, rt)
	}

	b := ctx.Builder()
	b.PositionAtEnd(main.EntryBlock())
	if main.EntryBlock().Term == nil {
		b.BuildRet(returnCode(ReturnStop))
	}
	if err := checkTerminated(ctx.Module()); err != nil {
		return "", fmt.Errorf("unit %s: %w", u.Name, err)
	}

	j.logger.Info().Str("unit", u.Name).Int("funcs", len(ctx.Module().Funcs)).Msg("unit compiled")
	return ctx.String(), nil
}

func checkTerminated(m *ir.Module) error {
	for _, fn := range m.Funcs {
		for _, block := range fn.Blocks {
			if block.Term == nil {
				return fmt.Errorf("%w: block %s in %s", ErrUnterminated, block.Ident(), fn.Ident())
			}
		}
	}
	return nil
}

// CompileUnits compiles units concurrently and returns their IR in order.
// The first error cancels the remaining units that have not started.
func (j *JIT) CompileUnits(ctx context.Context, units []Unit) ([]string, error) {
	out := make([]string, len(units))
	g, ctx := errgroup.WithContext(ctx)
	for i, u := range units {
		i, u := i, u
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ir, err := j.CompileUnit(u)
			if err != nil {
				return fmt.Errorf("unit %s: %w", u.Name, err)
			}
			out[i] = ir
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Descriptor returns the runtime ABI for the configured target.
func (j *JIT) Descriptor() (*abi.Descriptor, error) {
	ctx, err := j.NewContext()
	if err != nil {
		return nil, err
	}
	defer ctx.Close()
	return ctx.Descriptor()
}

// PublishABI stores the runtime ABI descriptor and returns its checksum.
func (j *JIT) PublishABI() (types.Checksum, error) {
	d, err := j.Descriptor()
	if err != nil {
		return types.Checksum{}, err
	}
	cs, err := j.store.Save(d)
	if err != nil {
		return types.Checksum{}, err
	}
	j.logger.Info().Stringer("checksum", cs).Msg("runtime abi published")
	return cs, nil
}

// CheckABI verifies that the descriptor a host published under cs matches
// the ABI this JIT compiles against.
func (j *JIT) CheckABI(cs types.Checksum) error {
	host, err := j.store.Load(cs)
	if err != nil {
		return err
	}
	d, err := j.Descriptor()
	if err != nil {
		return err
	}
	if err := d.Compatible(host); err != nil {
		j.logger.Warn().Err(err).Stringer("checksum", cs).Msg("host runtime abi rejected")
		return err
	}
	return nil
}

// Metrics summarizes the descriptor store.
func (j *JIT) Metrics() (types.StoreMetrics, error) {
	return j.store.Metrics()
}

// Store exposes the descriptor store.
func (j *JIT) Store() *cache.Store {
	return j.store
}

// IsIncompatible reports whether err came from an ABI mismatch.
func IsIncompatible(err error) bool {
	return errors.Is(err, abi.ErrIncompatible)
}
