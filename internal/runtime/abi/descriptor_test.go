package abi_test

import (
	"testing"

	"github.com/llir/llvm/ir/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evmjit/evmjit/internal/jit"
	"github.com/evmjit/evmjit/internal/runtime"
	"github.com/evmjit/evmjit/internal/runtime/abi"
	"github.com/evmjit/evmjit/internal/runtime/layout"
	evmtypes "github.com/evmjit/evmjit/types"
)

func descriptorFor(t *testing.T, pointerSize uint32) *abi.Descriptor {
	t.Helper()
	config := evmtypes.DefaultJITConfig()
	config.Target.PointerSize = pointerSize
	ctx, err := jit.NewContext(config, zerolog.Nop())
	require.NoError(t, err)
	defer ctx.Close()
	d, err := ctx.Descriptor()
	require.NoError(t, err)
	return d
}

func offsets(s abi.Struct) []uint64 {
	out := make([]uint64, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Offset
	}
	return out
}

func TestBuild64(t *testing.T) {
	d := descriptorFor(t, 8)

	require.Equal(t, uint32(abi.Version), d.Version)
	assert.Equal(t, []uint64{0, 8, 16, 24, 32, 64, 72, 80, 112, 144}, offsets(d.RuntimeData))
	assert.Equal(t, uint64(152), d.RuntimeData.Size)
	assert.Equal(t, []uint64{0, 8, 16}, offsets(d.Memory))
	assert.Equal(t, uint64(24), d.Memory.Size)
	assert.Equal(t, []uint64{0, 8, 16}, offsets(d.Runtime))
	assert.Equal(t, uint64(40), d.Runtime.Size)
	assert.Equal(t, uint64(16), d.MemoryOffset())

	for _, f := range runtime.RuntimeDataFields() {
		assert.Equal(t, f.Name(), d.Field(f).Name)
		assert.Equal(t, uint32(f.Index()), d.Field(f).Index)
	}
	assert.Equal(t, uint64(32), d.Field(runtime.Address).Size)
	assert.Equal(t, "mem", d.Runtime.Fields[runtime.MemIndex].Name)
}

func TestBuild32(t *testing.T) {
	d := descriptorFor(t, 4)

	assert.Equal(t, []uint64{0, 8, 16, 24, 32, 64, 72, 80, 112, 144}, offsets(d.RuntimeData))
	assert.Equal(t, uint64(4), d.Field(runtime.CallData).Size)
	assert.Equal(t, []uint64{0, 4, 8}, offsets(d.Runtime))
	assert.Equal(t, uint64(32), d.Runtime.Size)
}

func TestBuildRejectsNonRuntime(t *testing.T) {
	l, err := layout.New(8)
	require.NoError(t, err)
	st := types.NewStruct(types.I64)
	_, err = abi.Build(l, st, st, st)
	require.Error(t, err)
}

func TestMarshalIsCanonical(t *testing.T) {
	d := descriptorFor(t, 8)
	bz, err := d.Marshal()
	require.NoError(t, err)

	back, err := abi.Unmarshal(bz)
	require.NoError(t, err)
	require.Equal(t, d, back)

	again := descriptorFor(t, 8)
	cs1, err := d.Checksum()
	require.NoError(t, err)
	cs2, err := again.Checksum()
	require.NoError(t, err)
	require.Equal(t, cs1, cs2)

	other, err := descriptorFor(t, 4).Checksum()
	require.NoError(t, err)
	require.NotEqual(t, cs1, other)

	_, err = abi.Unmarshal([]byte{0xff, 0x00})
	require.Error(t, err)
}

func TestCompatible(t *testing.T) {
	d := descriptorFor(t, 8)
	require.NoError(t, d.Compatible(descriptorFor(t, 8)))

	err := d.Compatible(descriptorFor(t, 4))
	require.ErrorIs(t, err, abi.ErrIncompatible)

	tests := []struct {
		name   string
		mutate func(d *abi.Descriptor)
	}{
		{"version", func(d *abi.Descriptor) { d.Version++ }},
		{"struct name", func(d *abi.Descriptor) { d.Memory.Name = "Region" }},
		{"struct size", func(d *abi.Descriptor) { d.Runtime.Size += 8 }},
		{"field order", func(d *abi.Descriptor) {
			f := d.RuntimeData.Fields
			f[runtime.Address.Index()], f[runtime.Sender.Index()] = f[runtime.Sender.Index()], f[runtime.Address.Index()]
		}},
		{"field count", func(d *abi.Descriptor) { d.RuntimeData.Fields = d.RuntimeData.Fields[:9] }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			host := descriptorFor(t, 8)
			tc.mutate(host)
			require.ErrorIs(t, d.Compatible(host), abi.ErrIncompatible)
		})
	}
}
