package vm

import (
	"context"
	"unicode/utf8"

	"github.com/tetratelabs/wazero/api"

	"github.com/quilt/ewasm-rt/internal/scratch"
)

// readUTF8 reads length bytes at ptr and validates them as UTF-8, the
// convention every *Name/*Len pair in the host interface relies on for
// eth2_expose and the callee name of eth2_call/eth2_callModule.
func readUTF8(ctx context.Context, mem api.Memory, ptr, length uint32) (string, bool) {
	b, ok := mem.Read(ctx, ptr, length)
	if !ok || !utf8.Valid(b) {
		return "", false
	}
	return string(b), true
}

func readKey(ctx context.Context, mem api.Memory, ptr uint32) (scratch.Key, bool) {
	b, ok := mem.Read(ctx, ptr, uint32(len(scratch.Key{})))
	if !ok {
		return scratch.Key{}, false
	}
	var k scratch.Key
	copy(k[:], b)
	return k, true
}

func readValue(ctx context.Context, mem api.Memory, ptr uint32) (scratch.Value, bool) {
	b, ok := mem.Read(ctx, ptr, uint32(len(scratch.Value{})))
	if !ok {
		return scratch.Value{}, false
	}
	var v scratch.Value
	copy(v[:], b)
	return v, true
}
