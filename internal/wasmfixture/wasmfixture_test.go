package wasmfixture

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestMemoryOnlyModuleMatchesHandWritten cross-checks the builder against the
// hand-written binary used in package frame's tests, byte for byte.
func TestMemoryOnlyModuleMatchesHandWritten(t *testing.T) {
	want := []byte{
		0x00, 0x61, 0x73, 0x6d,
		0x01, 0x00, 0x00, 0x00,
		0x05, 0x03, 0x01, 0x00, 0x01,
		0x07, 0x0a, 0x01, 0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	}

	got := Module{MemoryPages: 1, ExportMemory: true}.Build()
	assert.Equal(t, want, got)
}

func TestI32ConstMultiByteEncoding(t *testing.T) {
	// 1234 doesn't fit in one LEB128 group, exercising the continuation bit.
	assert.Equal(t, []byte{OpI32Const, 0xd2, 0x09}, I32Const(1234))
	assert.Equal(t, []byte{OpI32Const, 0x05}, I32Const(5))
}

func TestImportedFuncTypeIsShared(t *testing.T) {
	sig := FuncType{Params: []byte{ValI32}, Results: nil}
	m := Module{
		Imports: []Import{{Module: "env", Field: "a", Type: sig}},
		Funcs: []Func{
			{Type: sig, Body: []byte{Drop()[0]}, Export: "main"},
		},
	}
	// Should not panic and should produce a non-empty binary with exactly
	// one type entry shared between the import and the local function.
	got := m.Build()
	assert.NotEmpty(t, got)
	// The type section follows the 8-byte header: id, byte size, entry count.
	assert.Equal(t, []byte{sectionType, 0x05, 0x01}, got[8:11])
}
