package ewasm

import "context"

// Execute is the one-shot block-executor entry point: build a Root, run it,
// and return the post-state commitment. Most callers that only ever run one
// block against one script want this instead of managing a Root directly.
func Execute(ctx context.Context, script, blockData []byte, preRoot [32]byte, opts ...Option) ([32]byte, error) {
	root, err := New(ctx, script, blockData, preRoot, opts...)
	if err != nil {
		return [32]byte{}, err
	}
	return root.Execute(ctx)
}
