// Command ewasmrun loads a root execution script and a block-data blob,
// runs one block against a given pre-state root, and prints the resulting
// post-state root as hex. It is ambient CLI wiring around the core
// (spec.md §1 explicitly scopes CLI/harness wiring out of the core), kept
// here the way every repo in the retrieval pack ships a thin cmd/ binary
// over its library package.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	ewasm "github.com/quilt/ewasm-rt"
)

func main() {
	os.Exit(doMain(os.Args[1:], os.Stdout, os.Stderr))
}

// doMain is separated from main for the purpose of unit testing, mirroring
// cmd/wazero's doMain(stdOut, stdErr) int pattern.
func doMain(args []string, stdOut, stdErr io.Writer) int {
	flags := flag.NewFlagSet("ewasmrun", flag.ContinueOnError)
	flags.SetOutput(stdErr)

	var (
		scriptPath    string
		blockDataPath string
		preRootHex    string
		extraPages    bool
		debug         bool
	)
	flags.StringVar(&scriptPath, "script", "", "path to the compiled root execution script (.wasm)")
	flags.StringVar(&blockDataPath, "block-data", "", "path to the block-data blob (omit for an empty block)")
	flags.StringVar(&preRootHex, "pre-root", "", "hex-encoded 32-byte pre-state root (defaults to all-zero)")
	flags.BoolVar(&extraPages, "extra-pages", false, "grow the script's linear memory by 100 pages before main")
	flags.BoolVar(&debug, "debug", false, "enable the print import and log script output")

	if err := flags.Parse(args); err != nil {
		return 2
	}
	if scriptPath == "" {
		fmt.Fprintln(stdErr, "missing -script")
		flags.Usage()
		return 1
	}

	script, err := os.ReadFile(scriptPath)
	if err != nil {
		fmt.Fprintf(stdErr, "reading script: %v\n", err)
		return 1
	}

	var blockData []byte
	if blockDataPath != "" {
		blockData, err = os.ReadFile(blockDataPath)
		if err != nil {
			fmt.Fprintf(stdErr, "reading block data: %v\n", err)
			return 1
		}
	}

	var preRoot [32]byte
	if preRootHex != "" {
		decoded, err := hex.DecodeString(preRootHex)
		if err != nil || len(decoded) != len(preRoot) {
			fmt.Fprintln(stdErr, "-pre-root must be exactly 32 bytes of hex")
			return 1
		}
		copy(preRoot[:], decoded)
	}

	var opts []ewasm.Option
	if extraPages {
		opts = append(opts, ewasm.WithExtraPages())
	}
	if debug {
		opts = append(opts, ewasm.WithDebug())
	}

	ctx := context.Background()
	root, err := ewasm.New(ctx, script, blockData, preRoot, opts...)
	if err != nil {
		fmt.Fprintf(stdErr, "loading root: %v\n", err)
		return 1
	}
	if debug {
		logger := logrus.New()
		logger.SetOutput(stdErr)
		logger.SetLevel(logrus.DebugLevel)
		root.SetLogger(logger)
	}

	postRoot, err := root.Execute(ctx)
	if err != nil {
		fmt.Fprintf(stdErr, "executing block: %v\n", err)
		return 1
	}

	fmt.Fprintln(stdOut, hex.EncodeToString(postRoot[:]))
	return 0
}
