package vm

import (
	"context"
	"weak"

	"github.com/pkg/errors"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/quilt/ewasm-rt/internal/frame"
	"github.com/quilt/ewasm-rt/internal/hostabi"
)

// ErrRootGone fires if a child's host function runs after the owning Root
// has been collected, which should never happen: a Root outlives every call
// into any child it loaded, by construction of Execute and CallExposed. It
// exists as the Go-native analogue of the Rc/Weak upgrade failure the
// original runtime had to account for explicitly.
var ErrRootGone = errors.New("vm: child called back into a root that no longer exists")

// Child is a dynamically loaded module instantiated via eth2_loadModule. It
// owns its own namespace, its own call stack, and a weak reference back to
// the Root that loaded it — weak because the lifetime relationship only
// ever flows one way (Root outlives Child) and a strong back-reference would
// just be a cycle with no one left to break it.
type Child struct {
	instance  api.Module
	rootRef   weak.Pointer[Root]
	callStack []frame.StackFrame
	debug     bool
}

// newChild compiles and instantiates code as a child module under its own
// namespace, wiring the (smaller) child-side host interface.
func newChild(ctx context.Context, root *Root, code []byte) (*Child, error) {
	compiled, err := root.runtime.CompileModule(ctx, code)
	if err != nil {
		return nil, errors.Wrap(err, "compiling child module")
	}

	c := &Child{
		rootRef: weak.Make(root),
		debug:   root.debug,
	}

	ns := root.runtime.NewNamespace(ctx)
	builder := root.runtime.NewHostModuleBuilder(hostabi.ModuleName).
		NewFunctionBuilder().WithFunc(c.extCall).Export(hostabi.Call).
		NewFunctionBuilder().WithFunc(c.extArgument).Export(hostabi.Argument).
		NewFunctionBuilder().WithFunc(c.extReturn).Export(hostabi.Return)
	if c.debug {
		builder = builder.NewFunctionBuilder().WithFunc(c.extPrint).Export(hostabi.Print)
	}
	if _, err := builder.Instantiate(ctx, ns); err != nil {
		return nil, errors.Wrap(err, "instantiating child host module")
	}

	inst, err := ns.InstantiateModule(ctx, compiled, wazero.NewModuleConfig())
	if err != nil {
		return nil, errors.Wrap(err, "instantiating child module")
	}
	c.instance = inst

	if inst.Memory() == nil {
		return nil, ErrNoMemory
	}
	return c, nil
}

// Invoke is the child-side callee path: Root.extCallModule resolved this
// child by slot and is now asking it to run name with f describing the
// caller's (Root's) argument/return regions.
func (c *Child) Invoke(ctx context.Context, name string, f frame.StackFrame) (int32, error) {
	fn, err := hostabi.ResolveCallable(c.instance, name)
	if err != nil {
		return 0, err
	}
	c.callStack = append(c.callStack, f)
	defer func() { c.callStack = c.callStack[:len(c.callStack)-1] }()

	results, callErr := fn.Call(ctx)
	if callErr != nil {
		return 0, errors.Wrapf(callErr, "calling child export %q", name)
	}
	return int32(results[0]), nil
}

func (c *Child) top() frame.StackFrame {
	if len(c.callStack) == 0 {
		panic(ErrEmptyCallStack)
	}
	return c.callStack[len(c.callStack)-1]
}

func (c *Child) extArgument(ctx context.Context, mod api.Module, dst, dstLen uint32) uint32 {
	n, ok := c.top().TransferArgument(ctx, mod.Memory(), dst, dstLen)
	if !ok {
		panic(ErrOutOfBounds)
	}
	return n
}

func (c *Child) extReturn(ctx context.Context, mod api.Module, src, srcLen uint32) uint32 {
	n, ok := c.top().TransferReturn(ctx, mod.Memory(), src, srcLen)
	if !ok {
		panic(ErrOutOfBounds)
	}
	return n
}

// extCall is the child-side caller path: it re-enters Root.CallExposed with
// a frame describing this child's own memory as the caller's region.
func (c *Child) extCall(ctx context.Context, mod api.Module, namePtr, nameLen, argPtr, argLen, retPtr, retLen uint32) uint32 {
	root := c.rootRef.Value()
	if root == nil {
		panic(ErrRootGone)
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
	result, err := root.CallExposed(ctx, name, f)
	if err != nil {
		panic(err)
	}
	return uint32(result)
}

func (c *Child) extPrint(ctx context.Context, mod api.Module, ptr, length uint32) {
	root := c.rootRef.Value()
	if root == nil || root.logger == nil {
		return
	}
	b, ok := mod.Memory().Read(ctx, ptr, length)
	if !ok {
		panic(ErrOutOfBounds)
	}
	root.logger.Debug(string(b))
}
