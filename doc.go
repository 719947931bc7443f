// Package ewasm is a stateless host runtime for two-tier root/child Wasm
// block verification scripts. A root script receives the block data and the
// pre-state root, may dynamically load and call child modules, and reports
// a post-state root; this package owns none of the actual state-transition
// logic, only the sandboxed I/O surface a script uses to read and write it.
//
// The runtime is deliberately single-threaded: one Root executes one block
// to completion before it's discarded, and the host functions that make up
// its state machine are never called concurrently, since wazero only
// invokes them from the goroutine that called Execute. Running many blocks
// concurrently means constructing many Roots, not sharing one.
package ewasm
