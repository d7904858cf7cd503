// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/latticefs/latticefs/lib/cachecore"
	"github.com/latticefs/latticefs/lib/clock"
	"github.com/latticefs/latticefs/lib/config"
)

// openManager loads configuration from configPath (falling back to
// config.Load's LATTICEFS_CONFIG environment variable when empty) and
// constructs the POSIX cache manager it describes.
func openManager(configPath string) (*cachecore.PosixManager, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	manager, err := cachecore.NewPosixManager(cachecore.PosixConfig{
		Root:               cfg.Cache.Root,
		Repository:         cfg.Repository,
		AlienCache:         cfg.Cache.AlienCache,
		BigFileThreshold:   cfg.Cache.BigFileThreshold,
		TrustsReportedSize: cfg.Cache.TrustsReportedSize,
		DrainPollInterval:  cfg.Cache.DrainPollInterval,
		Logger:             logger,
		Clock:              clock.Real(),
	})
	if err != nil {
		return nil, fmt.Errorf("opening cache at %s: %w", cfg.Cache.Root, err)
	}
	return manager, nil
}
