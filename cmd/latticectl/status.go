// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/latticefs/latticefs/lib/catalog"
	"github.com/latticefs/latticefs/lib/config"
	"github.com/latticefs/latticefs/lib/liveness"
)

func runStatus(args []string) error {
	flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
	configPath := flagSet.String("config", "", "path to latticefs.yaml (required)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}

	markerPath := filepath.Join(cfg.Cache.Root, "running."+cfg.Repository)
	state, running, err := liveness.Check(markerPath)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	if !running {
		fmt.Println("not running")
		return nil
	}
	fmt.Printf("running: pid %d, started %s\n", state.PID, state.Started.Format("2006-01-02T15:04:05Z07:00"))

	if catalog.IsOffline(cfg.Cache.Root, cfg.Repository) {
		fmt.Println("catalog: offline (serving cached root, origin unreachable)")
	} else {
		fmt.Println("catalog: up to date")
	}
	return nil
}
