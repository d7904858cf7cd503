// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin

package cachecore

// isNFS always reports false on Darwin: statfs's f_type field layout
// is not the magic-number scheme Linux uses, and alien caches shared
// with non-Linux hosts are not a supported configuration. Rename
// always goes through the plain path.
func isNFS(path string) bool { return false }

func (m *PosixManager) renameIntoPlace(staging, final string) error {
	return renamePlain(staging, final)
}
