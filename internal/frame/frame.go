// Package frame implements the per-call stack frame descriptor described in
// spec §4.2: the only conduit through which bytes cross a sandbox boundary.
package frame

import (
	"context"

	"github.com/tetratelabs/wazero/api"
)

// StackFrame is a value record describing one cross-module call: a handle
// to the caller's linear memory, and the (offset, length) of the caller's
// argument and return regions. Frames are immutable for the duration of one
// call.
type StackFrame struct {
	Memory api.Memory

	ArgumentOffset uint32
	ArgumentLength uint32

	ReturnOffset uint32
	ReturnLength uint32
}

// TransferArgument copies min(destLen, f.ArgumentLength) bytes from
// f.Memory[f.ArgumentOffset:] into destMem[destPtr:], and always returns the
// actual argument length — not the number of bytes copied — so the callee
// can probe the required buffer size by calling with destLen=0. Over-reads
// never leak caller memory past the advertised region; under-reads do not
// zero-extend the destination.
func (f StackFrame) TransferArgument(ctx context.Context, destMem api.Memory, destPtr, destLen uint32) (uint32, bool) {
	n := min(destLen, f.ArgumentLength)
	if n > 0 {
		if !transfer(ctx, f.Memory, f.ArgumentOffset, destMem, destPtr, n) {
			return 0, false
		}
	}
	return f.ArgumentLength, true
}

// TransferReturn copies min(srcLen, f.ReturnLength) bytes from
// srcMem[srcPtr:] into f.Memory[f.ReturnOffset:], and always returns the
// full return-region capacity, truncating silently on length mismatch.
func (f StackFrame) TransferReturn(ctx context.Context, srcMem api.Memory, srcPtr, srcLen uint32) (uint32, bool) {
	n := min(srcLen, f.ReturnLength)
	if n > 0 {
		if !transfer(ctx, srcMem, srcPtr, f.Memory, f.ReturnOffset, n) {
			return 0, false
		}
	}
	return f.ReturnLength, true
}

// transfer copies length bytes from src[srcOff:] to dst[dstOff:]. wazero's
// api.Memory exposes bounds-checked Read/Write but no single inter-memory
// primitive, so this composes the two — the read gives a write-through view
// into src, which is copied into dst before src has a chance to be grown or
// otherwise invalidated.
func transfer(ctx context.Context, src api.Memory, srcOff uint32, dst api.Memory, dstOff uint32, length uint32) bool {
	b, ok := src.Read(ctx, srcOff, length)
	if !ok {
		return false
	}
	return dst.Write(ctx, dstOff, b)
}
