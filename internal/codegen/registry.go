package codegen

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
)

// TypeID identifies a named struct type within one TypeRegistry.
// The zero value never identifies a registered type.
type TypeID uint32

// TypeRegistry assigns nominal identities to the named struct types of one
// compilation context. Handles from another registry are never found.
type TypeRegistry struct {
	ids    map[*types.StructType]TypeID
	byName map[string]*types.StructType
	next   TypeID
}

// NewTypeRegistry returns an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		ids:    make(map[*types.StructType]TypeID),
		byName: make(map[string]*types.StructType),
	}
}

// Define names st, emits its type definition into m and returns its ID.
// Names are unique per registry; redefining one is a programming error.
func (r *TypeRegistry) Define(m *ir.Module, name string, st *types.StructType) TypeID {
	if _, ok := r.byName[name]; ok {
		panic(fmt.Sprintf("codegen: struct type %q defined twice", name))
	}
	m.NewTypeDef(name, st)
	r.next++
	r.ids[st] = r.next
	r.byName[name] = st
	return r.next
}

// Lookup returns the ID of a registered struct handle.
func (r *TypeRegistry) Lookup(t types.Type) (TypeID, bool) {
	st, ok := t.(*types.StructType)
	if !ok {
		return 0, false
	}
	id, ok := r.ids[st]
	return id, ok
}

// ByName returns the registered struct type with the given name.
func (r *TypeRegistry) ByName(name string) (*types.StructType, bool) {
	st, ok := r.byName[name]
	return st, ok
}

// Len reports how many types are registered.
func (r *TypeRegistry) Len() int {
	return len(r.ids)
}
