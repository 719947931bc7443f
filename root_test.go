package ewasm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	ewasm "github.com/quilt/ewasm-rt"
	"github.com/quilt/ewasm-rt/internal/hostabi"
	"github.com/quilt/ewasm-rt/internal/wasmfixture"
)

var i32 = wasmfixture.ValI32

func wantRoot(first byte) [32]byte {
	var want [32]byte
	want[0] = first
	return want
}

// TestE1_StoreConstantAndSave is spec.md §8 scenario E1.
func TestE1_StoreConstantAndSave(t *testing.T) {
	fSave := wasmfixture.FuncType{Params: []byte{i32}}
	script := wasmfixture.Module{
		MemoryPages:  1,
		ExportMemory: true,
		Imports: []wasmfixture.Import{
			{Module: hostabi.ModuleName, Field: hostabi.SavePostStateRoot, Type: fSave},
		},
		Funcs: []wasmfixture.Func{{
			Type:   wasmfixture.FuncType{},
			Export: hostabi.MainExportName,
			Body: wasmfixture.Concat(
				wasmfixture.I32Const(0), wasmfixture.I32Const(42), wasmfixture.I32Store(),
				wasmfixture.I32Const(0), wasmfixture.Call(0),
			),
		}},
	}.Build()

	got, err := ewasm.Execute(context.Background(), script, nil, [32]byte{})
	require.NoError(t, err)
	require.Equal(t, wantRoot(42), got)
}

// TestE2_PreRootRoundTrip is spec.md §8 scenario E2 / property 1: for every
// pre-root, loadPreStateRoot(0); savePostStateRoot(0) returns it unchanged.
func TestE2_PreRootRoundTrip(t *testing.T) {
	fPtr := wasmfixture.FuncType{Params: []byte{i32}}
	script := wasmfixture.Module{
		MemoryPages:  1,
		ExportMemory: true,
		Imports: []wasmfixture.Import{
			{Module: hostabi.ModuleName, Field: hostabi.LoadPreStateRoot, Type: fPtr},
			{Module: hostabi.ModuleName, Field: hostabi.SavePostStateRoot, Type: fPtr},
		},
		Funcs: []wasmfixture.Func{{
			Type:   wasmfixture.FuncType{},
			Export: hostabi.MainExportName,
			Body: wasmfixture.Concat(
				wasmfixture.I32Const(0), wasmfixture.Call(0),
				wasmfixture.I32Const(0), wasmfixture.Call(1),
			),
		}},
	}.Build()

	for _, pre := range [][32]byte{
		{},
		wantRoot(42),
		{0xff, 0xee, 0xdd},
	} {
		pre := pre
		got, err := ewasm.Execute(context.Background(), script, nil, pre)
		require.NoError(t, err)
		require.Equal(t, pre, got)
	}
}

// TestE3_BlockDataSize is spec.md §8 scenario E3 / property 2: writes
// blockDataSize() at offset 0 then saves; 42 zero bytes of block data yields
// post-root [42,0,...].
func TestE3_BlockDataSize(t *testing.T) {
	fSize := wasmfixture.FuncType{Results: []byte{i32}}
	fSave := wasmfixture.FuncType{Params: []byte{i32}}
	script := wasmfixture.Module{
		MemoryPages:  1,
		ExportMemory: true,
		Imports: []wasmfixture.Import{
			{Module: hostabi.ModuleName, Field: hostabi.BlockDataSize, Type: fSize},
			{Module: hostabi.ModuleName, Field: hostabi.SavePostStateRoot, Type: fSave},
		},
		Funcs: []wasmfixture.Func{{
			Type:   wasmfixture.FuncType{},
			Export: hostabi.MainExportName,
			Body: wasmfixture.Concat(
				wasmfixture.I32Const(0), wasmfixture.Call(0), wasmfixture.I32Store(),
				wasmfixture.I32Const(0), wasmfixture.Call(1),
			),
		}},
	}.Build()

	blockData := make([]byte, 42)
	got, err := ewasm.Execute(context.Background(), script, blockData, [32]byte{})
	require.NoError(t, err)
	require.Equal(t, wantRoot(42), got)
}

// TestE4_BufferSetThenGet is spec.md §8 scenario E4: bufferSet(0,0,32) with
// key=32 bytes of 1s, value=i32 42 at offset 32; bufferGet(0,0,64);
// savePostStateRoot(64).
func TestE4_BufferSetThenGet(t *testing.T) {
	fKV := wasmfixture.FuncType{Params: []byte{i32, i32, i32}}
	fGet := wasmfixture.FuncType{Params: []byte{i32, i32, i32}, Results: []byte{i32}}
	fSave := wasmfixture.FuncType{Params: []byte{i32}}
	script := wasmfixture.Module{
		MemoryPages:  1,
		ExportMemory: true,
		Imports: []wasmfixture.Import{
			{Module: hostabi.ModuleName, Field: hostabi.BufferSet, Type: fKV},
			{Module: hostabi.ModuleName, Field: hostabi.BufferGet, Type: fGet},
			{Module: hostabi.ModuleName, Field: hostabi.SavePostStateRoot, Type: fSave},
		},
		Funcs: []wasmfixture.Func{{
			Type:   wasmfixture.FuncType{},
			Export: hostabi.MainExportName,
			Body: wasmfixture.Concat(
				// key at offset 0 is 32 bytes of 1s; value is i32 42 at offset 32.
				setKeyOfOnes(0),
				wasmfixture.I32Const(32), wasmfixture.I32Const(42), wasmfixture.I32Store(),
				wasmfixture.I32Const(0), wasmfixture.I32Const(0), wasmfixture.I32Const(32), wasmfixture.Call(0),
				wasmfixture.I32Const(0), wasmfixture.I32Const(0), wasmfixture.I32Const(64), wasmfixture.Call(1), wasmfixture.Drop(),
				wasmfixture.I32Const(64), wasmfixture.Call(2),
			),
		}},
	}.Build()

	got, err := ewasm.Execute(context.Background(), script, nil, [32]byte{})
	require.NoError(t, err)
	require.Equal(t, wantRoot(42), got)
}

// setKeyOfOnes writes 32 bytes of 0x01 starting at off, one i32 store at a
// time (4 bytes of 0x01010101 each), matching the 32-byte-key convention the
// scratch buffer host calls read.
func setKeyOfOnes(off uint32) []byte {
	var out []byte
	for i := uint32(0); i < 32; i += 4 {
		out = append(out, wasmfixture.Concat(wasmfixture.I32Const(int32(off+i)), wasmfixture.I32Const(0x01010101), wasmfixture.I32Store())...)
	}
	return out
}
