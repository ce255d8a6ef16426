package runtime

import (
	"fmt"
)

// InvariantKind classifies a broken runtime-ABI invariant.
type InvariantKind int

const (
	// KindABIShape: a struct that must be the runtime ABI struct is not.
	KindABIShape InvariantKind = iota
	// KindSignature: the function being built does not take the runtime
	// pointer as its first parameter, or is not the unit's entry function
	// when one is required.
	KindSignature
	// KindDerivedType: an address or value derived from the runtime pointer
	// has the wrong type.
	KindDerivedType
	// KindStaleManager: a manager was used outside the entry function and
	// the re-derived data pointer did not validate.
	KindStaleManager
)

func (k InvariantKind) String() string {
	switch k {
	case KindABIShape:
		return "abi shape"
	case KindSignature:
		return "signature"
	case KindDerivedType:
		return "derived type"
	case KindStaleManager:
		return "stale manager"
	default:
		return fmt.Sprintf("InvariantKind(%d)", int(k))
	}
}

// InvariantError reports a bug in the compiler's own wiring. It is raised
// with panic and never returned: compilation cannot continue past it.
type InvariantError struct {
	Kind   InvariantKind
	Op     string
	Detail string
}

var _ error = (*InvariantError)(nil)

func (e *InvariantError) Error() string {
	return fmt.Sprintf("runtime abi invariant (%s) in %s: %s", e.Kind, e.Op, e.Detail)
}

func fatalf(kind InvariantKind, op string, format string, args ...any) {
	panic(&InvariantError{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)})
}
