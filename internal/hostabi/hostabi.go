// Package hostabi names the guest-visible host function interface from spec
// §4.3 and validates the shape of a callable export, shared by both the
// root-side and child-side resolvers.
package hostabi

import (
	"github.com/pkg/errors"
	"github.com/tetratelabs/wazero/api"
)

// Root-side import names (module "env").
const (
	LoadPreStateRoot  = "eth2_loadPreStateRoot"
	SavePostStateRoot = "eth2_savePostStateRoot"
	BlockDataSize     = "eth2_blockDataSize"
	BlockDataCopy     = "eth2_blockDataCopy"
	BufferGet         = "eth2_bufferGet"
	BufferSet         = "eth2_bufferSet"
	BufferMerge       = "eth2_bufferMerge"
	BufferClear       = "eth2_bufferClear"
	LoadModule        = "eth2_loadModule"
	CallModule        = "eth2_callModule"
	Expose            = "eth2_expose"
	Argument          = "eth2_argument"
	Return            = "eth2_return"
	Print             = "print"
)

// Child-side import name (module "env") that the root side does not have.
// Children otherwise import only Argument, Return and Print from above.
const (
	Call = "eth2_call"
)

// ModuleName is the import module every host function is registered under.
const ModuleName = "env"

// MemoryExportName is the export name every script/child module must use for
// its linear memory.
const MemoryExportName = "memory"

// MainExportName is the entrypoint every root and child module must export.
const MainExportName = "main"

var (
	// ErrMissingExport is returned when a named export doesn't exist at all.
	ErrMissingExport = errors.New("hostabi: export not found")
	// ErrNotAFunction is returned when a named export exists but isn't a function.
	ErrNotAFunction = errors.New("hostabi: export is not a function")
	// ErrBadSignature is returned when a callable export isn't zero-arg/i32-result.
	ErrBadSignature = errors.New("hostabi: callable export must take no arguments and return a single i32")
)

// ResolveCallable looks up a zero-argument, single-i32-result export on mod,
// as required by every callee in the call protocol (spec §4.4 step 2).
func ResolveCallable(mod api.Module, name string) (api.Function, error) {
	fn := mod.ExportedFunction(name)
	if fn == nil {
		if mod.ExportedMemory(name) != nil || mod.ExportedGlobal(name) != nil {
			return nil, errors.Wrapf(ErrNotAFunction, "%q", name)
		}
		return nil, errors.Wrapf(ErrMissingExport, "%q", name)
	}
	def := fn.Definition()
	if len(def.ParamTypes()) != 0 || len(def.ResultTypes()) != 1 || def.ResultTypes()[0] != api.ValueTypeI32 {
		return nil, errors.Wrapf(ErrBadSignature, "%q", name)
	}
	return fn, nil
}
