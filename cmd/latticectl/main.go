// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// latticectl is a thin operator CLI over the cache core: it stores and
// retrieves objects, reports liveness, and drives the read-only drain,
// all against the same on-disk layout the fetcher and catalog loader
// use. It exists for manual inspection and scripting, not as a
// production entrypoint -- a long-running cache manager instance is
// expected to be embedded in a host process, not driven through this
// binary.
package main

import (
	"fmt"
	"os"

	"github.com/latticefs/latticefs/lib/process"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printUsage()
		return fmt.Errorf("no subcommand given")
	}

	subcommand, rest := args[0], args[1:]
	switch subcommand {
	case "put":
		return runPut(rest)
	case "get":
		return runGet(rest)
	case "status":
		return runStatus(rest)
	case "drain":
		return runDrain(rest)
	case "help", "--help", "-h":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand: %s", subcommand)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: latticectl <subcommand> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "subcommands:")
	fmt.Fprintln(os.Stderr, "  put [--config PATH] [--type regular|catalog|pinned|volatile] FILE")
	fmt.Fprintln(os.Stderr, "  get [--config PATH] -o OUTPUT HASH")
	fmt.Fprintln(os.Stderr, "  status --config PATH")
	fmt.Fprintln(os.Stderr, "  drain [--config PATH]")
}
