package ewasm

// config collects the observable feature flags a Root is built with.
type config struct {
	extraPages bool
	debug      bool
}

// Option configures a Root at construction time, fluent-builder style.
type Option func(*config)

// WithExtraPages grows the root module's own linear memory by a fixed
// number of pages beyond whatever its memory section declares, a debugging
// aid scripts can rely on without the runtime guessing their working set.
func WithExtraPages() Option {
	return func(c *config) { c.extraPages = true }
}

// WithDebug registers the print import for the root module and any child it
// loads. Without it, a script or child that imports print fails to
// instantiate rather than silently discarding output.
func WithDebug() Option {
	return func(c *config) { c.debug = true }
}
