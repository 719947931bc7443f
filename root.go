package ewasm

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tetratelabs/wazero"

	"github.com/quilt/ewasm-rt/internal/vm"
)

// Re-exported sentinel errors, so callers can errors.Is against them without
// importing an internal package.
var (
	ErrNotExposed     = vm.ErrNotExposed
	ErrSlotOccupied   = vm.ErrSlotOccupied
	ErrSlotNotLoaded  = vm.ErrSlotNotLoaded
	ErrEmptyCallStack = vm.ErrEmptyCallStack
	ErrOutOfBounds    = vm.ErrOutOfBounds
	ErrInvalidUTF8    = vm.ErrInvalidUTF8
	ErrNoMemory       = vm.ErrNoMemory
	ErrNoMain         = vm.ErrNoMain
)

// Root is one block's worth of runtime: the compiled root script, every
// child it loads, and the Wasm engine instance backing both. A Root is
// single-use — construct one per block and discard it after Execute.
type Root struct {
	runtime wazero.Runtime
	inner   *vm.Root
}

// New compiles script as the root module and prepares it to run against
// blockData starting from preRoot. The module is fully instantiated by the
// time New returns; a malformed script (no memory export, no main, a
// compile error) is reported here rather than deferred to Execute.
func New(ctx context.Context, script, blockData []byte, preRoot [32]byte, opts ...Option) (*Root, error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	runtime := wazero.NewRuntime(ctx)
	inner, err := vm.New(ctx, runtime, script, blockData, preRoot, vm.Options{
		ExtraPages: cfg.extraPages,
		Debug:      cfg.debug,
	})
	if err != nil {
		if closeErr := runtime.Close(ctx); closeErr != nil {
			return nil, errors.Wrapf(err, "also failed to close runtime: %v", closeErr)
		}
		return nil, err
	}
	return &Root{runtime: runtime, inner: inner}, nil
}

// SetLogger attaches the sink for print calls made by the root module or any
// child it loads. Only meaningful when the Root was built with WithDebug;
// otherwise no script can import print in the first place.
func (r *Root) SetLogger(logger *logrus.Logger) {
	r.inner.SetLogger(logger)
}

// Execute runs the root module's main to completion and returns the
// post-state root it published. It also tears down the underlying Wasm
// engine and every child instance, so a Root can only be executed once.
func (r *Root) Execute(ctx context.Context) ([32]byte, error) {
	defer func() { _ = r.runtime.Close(ctx) }()
	return r.inner.Execute(ctx)
}
