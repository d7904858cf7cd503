// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/latticefs/latticefs/lib/cachecore"
	"github.com/latticefs/latticefs/lib/objecthash"
)

func runPut(args []string) error {
	flagSet := pflag.NewFlagSet("put", pflag.ContinueOnError)
	configPath := flagSet.String("config", "", "path to latticefs.yaml (default: $LATTICEFS_CONFIG)")
	objectType := flagSet.String("type", "regular", "regular, catalog, pinned, or volatile")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return fmt.Errorf("put: expected exactly one file argument")
	}
	sourcePath := flagSet.Arg(0)

	typ, err := parseObjectType(*objectType)
	if err != nil {
		return err
	}

	manager, err := openManager(*configPath)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return fmt.Errorf("put: reading %s: %w", sourcePath, err)
	}

	hash := objecthash.HashObject(data)
	if typ == cachecore.Catalog {
		hash = hash.WithSuffix(objecthash.SuffixCatalog)
	}

	txn, err := manager.StartTxn(hash, int64(len(data)))
	if err != nil {
		return fmt.Errorf("put: starting transaction for %s: %w", sourcePath, err)
	}
	manager.CtrlTxn(txn, "latticectl put "+sourcePath, typ)
	if _, err := manager.Write(txn, data); err != nil {
		manager.AbortTxn(txn)
		return fmt.Errorf("put: writing %s: %w", sourcePath, err)
	}
	if err := manager.CommitTxn(txn); err != nil {
		return fmt.Errorf("put: committing %s: %w", sourcePath, err)
	}

	fmt.Println(hash.String())
	return nil
}

func parseObjectType(s string) (cachecore.ObjectType, error) {
	switch s {
	case "regular":
		return cachecore.Regular, nil
	case "catalog":
		return cachecore.Catalog, nil
	case "pinned":
		return cachecore.Pinned, nil
	case "volatile":
		return cachecore.Volatile, nil
	default:
		return 0, fmt.Errorf("unknown object type %q", s)
	}
}
