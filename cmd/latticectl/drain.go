// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/pflag"
)

func runDrain(args []string) error {
	flagSet := pflag.NewFlagSet("drain", pflag.ContinueOnError)
	configPath := flagSet.String("config", "", "path to latticefs.yaml (default: $LATTICEFS_CONFIG)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	manager, err := openManager(*configPath)
	if err != nil {
		return err
	}

	manager.TearDown2ReadOnly()
	fmt.Println("drained")
	return nil
}
