// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/latticefs/latticefs/lib/objecthash"
)

func runGet(args []string) error {
	flagSet := pflag.NewFlagSet("get", pflag.ContinueOnError)
	configPath := flagSet.String("config", "", "path to latticefs.yaml (default: $LATTICEFS_CONFIG)")
	outputPath := flagSet.StringP("output", "o", "", "path to write the object's bytes to (required)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return fmt.Errorf("get: expected exactly one hash argument")
	}
	if *outputPath == "" {
		return fmt.Errorf("get: -o/--output is required")
	}

	hash, err := objecthash.ParseHex(flagSet.Arg(0))
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}

	manager, err := openManager(*configPath)
	if err != nil {
		return err
	}

	data, err := manager.Open2Mem(hash)
	if err != nil {
		return fmt.Errorf("get: reading %s: %w", hash, err)
	}

	if err := os.WriteFile(*outputPath, data, 0644); err != nil {
		return fmt.Errorf("get: writing %s: %w", *outputPath, err)
	}
	return nil
}
