package vm

import "github.com/pkg/errors"

// Sentinel errors for the protocol violations enumerated in spec §7. All of
// them are fatal: a host function that hits one of these panics with the
// (possibly wrapped) sentinel, and Root.Execute recovers the panic and turns
// it into a returned error, aborting the block without a half-mutated
// commit (the post-state is only ever published as Execute's return value).
var (
	ErrNotExposed      = errors.New("vm: child call target is not in the exposed set")
	ErrSlotOccupied    = errors.New("vm: loadModule slot already occupied")
	ErrSlotNotLoaded   = errors.New("vm: callModule slot has no loaded module")
	ErrEmptyCallStack  = errors.New("vm: argument/return requires a non-empty call stack")
	ErrOutOfBounds     = errors.New("vm: guest memory access out of bounds")
	ErrInvalidUTF8     = errors.New("vm: name argument is not valid UTF-8")
	ErrNoMemory        = errors.New("vm: module does not export memory")
	ErrNoMain          = errors.New("vm: module does not export main")
	ErrMemoryGrowFailed = errors.New("vm: failed to grow linear memory")
)
