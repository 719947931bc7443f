package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quilt/ewasm-rt/internal/hostabi"
	"github.com/quilt/ewasm-rt/internal/wasmfixture"
)

// buildStoreAndSaveScript returns a root module equivalent to E1 in spec.md
// §8: i32.store(0, 42); savePostStateRoot(0).
func buildStoreAndSaveScript(t *testing.T) string {
	t.Helper()
	i32 := wasmfixture.ValI32
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

	path := filepath.Join(t.TempDir(), "script.wasm")
	require.NoError(t, os.WriteFile(path, script, 0o644))
	return path
}

func TestDoMain_PrintsPostRoot(t *testing.T) {
	scriptPath := buildStoreAndSaveScript(t)

	var stdOut, stdErr bytes.Buffer
	code := doMain([]string{"-script", scriptPath}, &stdOut, &stdErr)

	require.Equal(t, 0, code, stdErr.String())
	want := "2a00000000000000000000000000000000000000000000000000000000000000\n"
	assert.Equal(t, want, stdOut.String())
}

func TestDoMain_MissingScript(t *testing.T) {
	var stdOut, stdErr bytes.Buffer
	code := doMain(nil, &stdOut, &stdErr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdErr.String(), "missing -script")
}

func TestDoMain_BadPreRoot(t *testing.T) {
	scriptPath := buildStoreAndSaveScript(t)

	var stdOut, stdErr bytes.Buffer
	code := doMain([]string{"-script", scriptPath, "-pre-root", "not-hex"}, &stdOut, &stdErr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdErr.String(), "-pre-root must be")
}
