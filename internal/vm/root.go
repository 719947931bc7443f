// Package vm implements the two-tier root/child Wasm runtime: Root owns the
// block-level state (pre/post roots, block data, the scratch buffer, and the
// set of loaded children) and is the only side that ever touches that state
// directly. Every mutation happens inside a host function invoked by a guest,
// so the package has no concurrency story of its own — see doc.go at the
// module root for why that's sufficient.
package vm

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/quilt/ewasm-rt/internal/frame"
	"github.com/quilt/ewasm-rt/internal/hostabi"
	"github.com/quilt/ewasm-rt/internal/scratch"
)

// extraPages is how many additional 64KiB pages Root grows its own memory by
// when Options.ExtraPages is set, matching the historical ewasm-rt
// "--extra-pages" debugging knob for scripts that want headroom beyond what
// their own memory section declares.
const extraPages = 100

// Options configures a Root at construction time. Unlike SetLogger, these
// affect which host imports get registered and so must be fixed before the
// guest module is instantiated.
type Options struct {
	ExtraPages bool
	Debug      bool
}

// Root is the outermost runtime for one block: it owns the compiled script,
// the block's pre/post state roots, the block data blob, the scratch
// buffer, and every child it loads over the course of execution.
type Root struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	instance api.Module
	memory   api.Memory

	data    []byte
	preRoot [32]byte
	postRoot [32]byte

	buffer   scratch.Buffer
	children map[uint32]*Child
	exposed  map[string]struct{}
	callStack []frame.StackFrame

	debug  bool
	logger *logrus.Logger
}

// New compiles and instantiates script as the root module, wiring the full
// root-side host interface (spec §4.3) into a fresh namespace. The module
// must export linear memory and a zero-arg main; callers get
// those errors back rather than a panic since they indicate a malformed
// script rather than a runtime-internal invariant violation.
func New(ctx context.Context, rt wazero.Runtime, script, blockData []byte, preRoot [32]byte, opts Options) (*Root, error) {
	r := &Root{
		runtime:  rt,
		data:     blockData,
		preRoot:  preRoot,
		children: make(map[uint32]*Child),
		exposed:  make(map[string]struct{}),
		debug:    opts.Debug,
	}

	compiled, err := rt.CompileModule(ctx, script)
	if err != nil {
		return nil, errors.Wrap(err, "compiling root script")
	}
	r.compiled = compiled

	ns := rt.NewNamespace(ctx)
	builder := rt.NewHostModuleBuilder(hostabi.ModuleName).
		NewFunctionBuilder().WithFunc(r.extLoadPreStateRoot).Export(hostabi.LoadPreStateRoot).
		NewFunctionBuilder().WithFunc(r.extSavePostStateRoot).Export(hostabi.SavePostStateRoot).
		NewFunctionBuilder().WithFunc(r.extBlockDataSize).Export(hostabi.BlockDataSize).
		NewFunctionBuilder().WithFunc(r.extBlockDataCopy).Export(hostabi.BlockDataCopy).
		NewFunctionBuilder().WithFunc(r.extBufferGet).Export(hostabi.BufferGet).
		NewFunctionBuilder().WithFunc(r.extBufferSet).Export(hostabi.BufferSet).
		NewFunctionBuilder().WithFunc(r.extBufferMerge).Export(hostabi.BufferMerge).
		NewFunctionBuilder().WithFunc(r.extBufferClear).Export(hostabi.BufferClear).
		NewFunctionBuilder().WithFunc(r.extLoadModule).Export(hostabi.LoadModule).
		NewFunctionBuilder().WithFunc(r.extCallModule).Export(hostabi.CallModule).
		NewFunctionBuilder().WithFunc(r.extExpose).Export(hostabi.Expose).
		NewFunctionBuilder().WithFunc(r.extArgument).Export(hostabi.Argument).
		NewFunctionBuilder().WithFunc(r.extReturn).Export(hostabi.Return)
	if r.debug {
		builder = builder.NewFunctionBuilder().WithFunc(r.extPrint).Export(hostabi.Print)
	}
	if _, err := builder.Instantiate(ctx, ns); err != nil {
		return nil, errors.Wrap(err, "instantiating root host module")
	}

	inst, err := ns.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("root"))
	if err != nil {
		return nil, errors.Wrap(err, "instantiating root script")
	}
	r.instance = inst

	mem := inst.Memory()
	if mem == nil {
		return nil, ErrNoMemory
	}
	r.memory = mem

	if inst.ExportedFunction(hostabi.MainExportName) == nil {
		return nil, ErrNoMain
	}

	if opts.ExtraPages {
		if _, ok := mem.Grow(ctx, extraPages); !ok {
			return nil, ErrMemoryGrowFailed
		}
	}

	return r, nil
}

// SetLogger attaches (or detaches, with nil) the sink for print
// calls made by the root module or any of its children. It's safe to call at
// any point before Execute; debug builds with no logger attached simply
// discard whatever the guest prints.
func (r *Root) SetLogger(logger *logrus.Logger) {
	r.logger = logger
}

// Execute runs the root module's main and returns the post-state root it
// published via eth2_savePostStateRoot. Any sandbox or protocol violation —
// raised as a panic from one of the host functions below — is recovered here
// and turned into an error, aborting the block cleanly.
func (r *Root) Execute(ctx context.Context) (postRoot [32]byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = asError(rec)
		}
	}()

	main := r.instance.ExportedFunction(hostabi.MainExportName)
	if main == nil {
		return [32]byte{}, ErrNoMain
	}
	if _, callErr := main.Call(ctx); callErr != nil {
		return [32]byte{}, errors.Wrap(callErr, "executing root main")
	}
	return r.postRoot, nil
}

func asError(rec interface{}) error {
	if e, ok := rec.(error); ok {
		return e
	}
	return errors.Errorf("%v", rec)
}

// CallExposed is the root-side callee path of the call protocol: a child
// reached eth2_call, and the name it asked for is in the exposed set. The
// frame is pushed for the duration of the call so a nested
// eth2_argument/eth2_return inside the exposed function's call graph
// reads/writes it.
func (r *Root) CallExposed(ctx context.Context, name string, f frame.StackFrame) (int32, error) {
	if _, ok := r.exposed[name]; !ok {
		return 0, errors.Wrapf(ErrNotExposed, "%q", name)
	}
	fn, err := hostabi.ResolveCallable(r.instance, name)
	if err != nil {
		return 0, err
	}
	r.callStack = append(r.callStack, f)
	defer func() { r.callStack = r.callStack[:len(r.callStack)-1] }()

	results, callErr := fn.Call(ctx)
	if callErr != nil {
		return 0, errors.Wrapf(callErr, "calling exposed %q", name)
	}
	return int32(results[0]), nil
}

func (r *Root) top() frame.StackFrame {
	if len(r.callStack) == 0 {
		panic(ErrEmptyCallStack)
	}
	return r.callStack[len(r.callStack)-1]
}

func (r *Root) extLoadPreStateRoot(ctx context.Context, mod api.Module, ptr uint32) {
	if !mod.Memory().Write(ctx, ptr, r.preRoot[:]) {
		panic(ErrOutOfBounds)
	}
}

func (r *Root) extSavePostStateRoot(ctx context.Context, mod api.Module, ptr uint32) {
	b, ok := mod.Memory().Read(ctx, ptr, uint32(len(r.postRoot)))
	if !ok {
		panic(ErrOutOfBounds)
	}
	copy(r.postRoot[:], b)
}

func (r *Root) extBlockDataSize(ctx context.Context, mod api.Module) uint32 {
	return uint32(len(r.data))
}

// extBlockDataCopy copies data[offset:offset+length] into the guest at ptr.
// This is offset+length, not length alone — an early ewasm-rt draft used the
// latter and truncated every copy whose offset wasn't zero.
func (r *Root) extBlockDataCopy(ctx context.Context, mod api.Module, ptr, offset, length uint32) {
	start, end := uint64(offset), uint64(offset)+uint64(length)
	if end > uint64(len(r.data)) {
		panic(ErrOutOfBounds)
	}
	if !mod.Memory().Write(ctx, ptr, r.data[start:end]) {
		panic(ErrOutOfBounds)
	}
}

func (r *Root) extBufferGet(ctx context.Context, mod api.Module, frameID, keyPtr, valuePtr uint32) uint32 {
	key, ok := readKey(ctx, mod.Memory(), keyPtr)
	if !ok {
		panic(ErrOutOfBounds)
	}
	value, found := r.buffer.Get(uint8(frameID), key)
	if !found {
		return 1
	}
	if !mod.Memory().Write(ctx, valuePtr, value[:]) {
		panic(ErrOutOfBounds)
	}
	return 0
}

func (r *Root) extBufferSet(ctx context.Context, mod api.Module, frameID, keyPtr, valuePtr uint32) {
	key, ok := readKey(ctx, mod.Memory(), keyPtr)
	if !ok {
		panic(ErrOutOfBounds)
	}
	value, ok := readValue(ctx, mod.Memory(), valuePtr)
	if !ok {
		panic(ErrOutOfBounds)
	}
	r.buffer.Insert(uint8(frameID), key, value)
}

func (r *Root) extBufferMerge(ctx context.Context, mod api.Module, dst, src uint32) {
	r.buffer.Merge(uint8(dst), uint8(src))
}

func (r *Root) extBufferClear(ctx context.Context, mod api.Module, frameID uint32) {
	r.buffer.Clear(uint8(frameID))
}

func (r *Root) extLoadModule(ctx context.Context, mod api.Module, slot, codePtr, codeLen uint32) {
	if _, exists := r.children[slot]; exists {
		panic(errors.Wrapf(ErrSlotOccupied, "slot %d", slot))
	}
	code, ok := mod.Memory().Read(ctx, codePtr, codeLen)
	if !ok {
		panic(ErrOutOfBounds)
	}
	// Read returns a write-through view into the caller's own memory; copy
	// it out before compiling since that memory can be written or grown
	// again the moment this host call returns.
	owned := append([]byte(nil), code...)

	child, err := newChild(ctx, r, owned)
	if err != nil {
		panic(err)
	}
	r.children[slot] = child
}

func (r *Root) extCallModule(ctx context.Context, mod api.Module, slot, namePtr, nameLen, argPtr, argLen, retPtr, retLen uint32) uint32 {
	child, ok := r.children[slot]
	if !ok {
		panic(errors.Wrapf(ErrSlotNotLoaded, "slot %d", slot))
	}
	name, ok := readUTF8(ctx, mod.Memory(), namePtr, nameLen)
	if !ok {
		panic(ErrInvalidUTF8)
	}
	f := frame.StackFrame{
		Memory:         mod.Memory(),
		ArgumentOffset: argPtr,
		ArgumentLength: argLen,
		ReturnOffset:   retPtr,
		ReturnLength:   retLen,
	}
	result, err := child.Invoke(ctx, name, f)
	if err != nil {
		panic(err)
	}
	return uint32(result)
}

func (r *Root) extExpose(ctx context.Context, mod api.Module, namePtr, nameLen uint32) {
	name, ok := readUTF8(ctx, mod.Memory(), namePtr, nameLen)
	if !ok {
		panic(ErrInvalidUTF8)
	}
	r.exposed[name] = struct{}{}
}

func (r *Root) extArgument(ctx context.Context, mod api.Module, dst, dstLen uint32) uint32 {
	n, ok := r.top().TransferArgument(ctx, mod.Memory(), dst, dstLen)
	if !ok {
		panic(ErrOutOfBounds)
	}
	return n
}

func (r *Root) extReturn(ctx context.Context, mod api.Module, src, srcLen uint32) uint32 {
	n, ok := r.top().TransferReturn(ctx, mod.Memory(), src, srcLen)
	if !ok {
		panic(ErrOutOfBounds)
	}
	return n
}

func (r *Root) extPrint(ctx context.Context, mod api.Module, ptr, length uint32) {
	if r.logger == nil {
		return
	}
	b, ok := mod.Memory().Read(ctx, ptr, length)
	if !ok {
		panic(ErrOutOfBounds)
	}
	r.logger.Debug(string(b))
}
