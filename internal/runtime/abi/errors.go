package abi

import "errors"

// ErrIncompatible is wrapped by every Compatible failure.
var ErrIncompatible = errors.New("incompatible runtime abi")
