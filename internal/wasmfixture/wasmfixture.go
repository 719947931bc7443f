// Package wasmfixture hand-assembles minimal Wasm binaries for tests. There
// is no wat2wasm or Go toolchain available to produce .wasm fixtures from
// text, so this builds the handful of section types the test suite needs
// (type, import, function, memory, export, code, data) directly from bytes, in the
// same appendSection/appendLEB128 style used by the corpus's own hand-rolled
// section encoder.
package wasmfixture

import "sort"

// Value types, as encoded in a Wasm binary's type section.
const (
	ValI32 byte = 0x7F
	ValI64 byte = 0x7E
)

// A representative slice of instruction opcodes, enough to write the tiny
// function bodies the test suite needs.
const (
	OpUnreachable byte = 0x00
	OpBlock       byte = 0x02
	OpIf          byte = 0x04
	OpEnd         byte = 0x0B
	OpCall        byte = 0x10
	OpDrop        byte = 0x1A
	OpLocalGet    byte = 0x20
	OpLocalSet    byte = 0x21
	OpI32Load     byte = 0x28
	OpI32Store    byte = 0x36
	OpI32Const    byte = 0x41
	OpI32Ne       byte = 0x47
)

// blockTypeEmpty is the "void" block type byte used by if/block/loop when
// there is no result.
const blockTypeEmpty byte = 0x40

const (
	sectionType     byte = 1
	sectionImport   byte = 2
	sectionFunction byte = 3
	sectionMemory   byte = 5
	sectionExport   byte = 7
	sectionCode     byte = 10
	sectionData     byte = 11

	exportKindFunc   byte = 0x00
	exportKindMemory byte = 0x02
	importKindFunc   byte = 0x00
)

// FuncType is a function signature: zero or more parameter types and zero
// or one result type (multi-value returns aren't needed by this ABI).
type FuncType struct {
	Params  []byte
	Results []byte
}

// Import is a single entry in the import section; every host function this
// runtime exposes is a func import under module "env".
type Import struct {
	Module string
	Field  string
	Type   FuncType
}

// Func is a locally defined function. Export is optional; an empty string
// means the function is only reachable by index from other code (unused by
// these fixtures, but kept for completeness).
type Func struct {
	Type   FuncType
	Locals []byte // one value type per local, no run-length grouping needed at this size
	Body   []byte // instructions, WITHOUT the trailing end opcode
	Export string
}

// Module describes everything needed to assemble one Wasm binary: its
// imports, its own functions, and whether it exports linear memory.
type Module struct {
	Imports      []Import
	Funcs        []Func
	MemoryPages  uint32 // 0 means no memory section at all
	ExportMemory bool
	Data         map[uint32][]byte // active data segments, offset -> bytes
}

// Build assembles the module into a Wasm binary.
func (m Module) Build() []byte {
	var typeSec, importSec, funcSec, exportSec, codeSec []byte
	var types []FuncType
	typeIndex := func(t FuncType) uint32 {
		for i, existing := range types {
			if sameType(existing, t) {
				return uint32(i)
			}
		}
		types = append(types, t)
		return uint32(len(types) - 1)
	}

	for _, imp := range m.Imports {
		typeIndex(imp.Type)
	}
	for _, fn := range m.Funcs {
		typeIndex(fn.Type)
	}

	importSec = appendULEB128(importSec, uint32(len(m.Imports)))
	for _, imp := range m.Imports {
		importSec = appendName(importSec, imp.Module)
		importSec = appendName(importSec, imp.Field)
		importSec = append(importSec, importKindFunc)
		importSec = appendULEB128(importSec, typeIndex(imp.Type))
	}

	funcSec = appendULEB128(funcSec, uint32(len(m.Funcs)))
	for _, fn := range m.Funcs {
		funcSec = appendULEB128(funcSec, typeIndex(fn.Type))
	}

	typeSec = appendULEB128(typeSec, uint32(len(types)))
	for _, t := range types {
		typeSec = append(typeSec, 0x60)
		typeSec = appendULEB128(typeSec, uint32(len(t.Params)))
		typeSec = append(typeSec, t.Params...)
		typeSec = appendULEB128(typeSec, uint32(len(t.Results)))
		typeSec = append(typeSec, t.Results...)
	}

	var exports []byte
	var exportN uint32
	if m.ExportMemory {
		exports = appendName(exports, "memory")
		exports = append(exports, exportKindMemory)
		exports = appendULEB128(exports, 0)
		exportN++
	}
	firstLocalFuncIndex := uint32(len(m.Imports))
	for i, fn := range m.Funcs {
		if fn.Export == "" {
			continue
		}
		exports = appendName(exports, fn.Export)
		exports = append(exports, exportKindFunc)
		exports = appendULEB128(exports, firstLocalFuncIndex+uint32(i))
		exportN++
	}
	exportSec = appendULEB128(nil, exportN)
	exportSec = append(exportSec, exports...)

	for _, fn := range m.Funcs {
		var body []byte
		if len(fn.Locals) == 0 {
			body = appendULEB128(body, 0)
		} else {
			body = appendULEB128(body, uint32(len(fn.Locals)))
			for _, l := range fn.Locals {
				body = appendULEB128(body, 1)
				body = append(body, l)
			}
		}
		body = append(body, fn.Body...)
		body = append(body, OpEnd)
		codeSec = appendULEB128(codeSec, uint32(len(body)))
		codeSec = append(codeSec, body...)
	}
	codeSec = prependCount(codeSec, uint32(len(m.Funcs)))

	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	if len(types) > 0 {
		out = appendSection(out, sectionType, typeSec)
	}
	if len(m.Imports) > 0 {
		out = appendSection(out, sectionImport, importSec)
	}
	if len(m.Funcs) > 0 {
		out = appendSection(out, sectionFunction, funcSec)
	}
	if m.MemoryPages > 0 {
		memSec := appendULEB128(nil, 1) // one memory
		memSec = append(memSec, 0x00)   // limits: min only, no max
		memSec = appendULEB128(memSec, m.MemoryPages)
		out = appendSection(out, sectionMemory, memSec)
	}
	if exportN > 0 {
		out = appendSection(out, sectionExport, exportSec)
	}
	if len(m.Funcs) > 0 {
		out = appendSection(out, sectionCode, codeSec)
	}
	if len(m.Data) > 0 {
		out = appendSection(out, sectionData, encodeDataSegments(m.Data))
	}
	return out
}

func encodeDataSegments(segments map[uint32][]byte) []byte {
	offsets := make([]uint32, 0, len(segments))
	for off := range segments {
		offsets = append(offsets, off)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	data := appendULEB128(nil, uint32(len(offsets)))
	for _, off := range offsets {
		bytes := segments[off]
		data = append(data, 0x00) // active segment, memory index 0
		data = append(data, OpI32Const)
		data = appendSLEB128(data, int32(off))
		data = append(data, OpEnd)
		data = appendULEB128(data, uint32(len(bytes)))
		data = append(data, bytes...)
	}
	return data
}

func sameType(a, b FuncType) bool {
	if len(a.Params) != len(b.Params) || len(a.Results) != len(b.Results) {
		return false
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}
	for i := range a.Results {
		if a.Results[i] != b.Results[i] {
			return false
		}
	}
	return true
}

func prependCount(body []byte, count uint32) []byte {
	return append(appendULEB128(nil, count), body...)
}

func appendName(buf []byte, s string) []byte {
	buf = appendULEB128(buf, uint32(len(s)))
	return append(buf, s...)
}

func appendSection(buf []byte, id byte, data []byte) []byte {
	buf = append(buf, id)
	buf = appendULEB128(buf, uint32(len(data)))
	return append(buf, data...)
}

func appendULEB128(buf []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			buf = append(buf, b|0x80)
			continue
		}
		return append(buf, b)
	}
}

func appendSLEB128(buf []byte, v int32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if !done {
			buf = append(buf, b|0x80)
			continue
		}
		return append(buf, b)
	}
}

// I32Const returns the bytes for `i32.const v`.
func I32Const(v int32) []byte {
	return appendSLEB128(append([]byte{}, OpI32Const), v)
}

// Call returns the bytes for `call funcIdx`.
func Call(funcIdx uint32) []byte {
	return appendULEB128(append([]byte{}, OpCall), funcIdx)
}

// LocalGet returns the bytes for `local.get idx`.
func LocalGet(idx uint32) []byte {
	return appendULEB128(append([]byte{}, OpLocalGet), idx)
}

// LocalSet returns the bytes for `local.set idx`.
func LocalSet(idx uint32) []byte {
	return appendULEB128(append([]byte{}, OpLocalSet), idx)
}

// Drop returns the bytes for `drop`.
func Drop() []byte { return []byte{OpDrop} }

// I32Load returns `i32.load` with natural (4-byte) alignment and no offset;
// the address is whatever's already on the stack.
func I32Load() []byte { return []byte{OpI32Load, 0x02, 0x00} }

// I32Store returns `i32.store` with natural alignment and no offset; expects
// address then value on the stack.
func I32Store() []byte { return []byte{OpI32Store, 0x02, 0x00} }

// I32Ne returns `i32.ne`.
func I32Ne() []byte { return []byte{OpI32Ne} }

// IfUnreachable consumes the top-of-stack i32 and traps via unreachable if
// it's non-zero; otherwise falls through. Used to assemble `if (cond)
// (unreachable)` assertions without needing an explicit else/result type.
func IfUnreachable() []byte { return []byte{OpIf, blockTypeEmpty, OpUnreachable, OpEnd} }

// AssertEqual pushes a, pushes b, and traps via unreachable if they differ.
func AssertEqual(a, b []byte) []byte {
	return Concat(a, b, I32Ne(), IfUnreachable())
}

// Concat joins instruction byte slices into one function body.
func Concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
