// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package cachecore

import "golang.org/x/sys/unix"

// nfsSuperMagic is NFS's f_type value as reported by statfs(2) on
// Linux (see linux/magic.h: NFS_SUPER_MAGIC).
const nfsSuperMagic = 0x6969

// isNFS reports whether path sits on an NFS-mounted filesystem. A
// Statfs failure is treated as "not NFS": callers only use this to
// decide whether to use the link+unlink rename fallback, and plain
// os.Rename is always the safe default when in doubt.
func isNFS(path string) bool {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return false
	}
	return int64(st.Type) == nfsSuperMagic
}

// renameIntoPlace moves staging to final. On NFS, os.Rename can
// return a spurious error when the destination already exists on
// another client's view of the share, so the fallback treats an
// EEXIST from Link as success: another writer already produced the
// identical content-addressed object.
func (m *PosixManager) renameIntoPlace(staging, final string) error {
	if !m.alienCacheOnNFS {
		return renamePlain(staging, final)
	}
	return renameViaLinkUnlink(staging, final)
}
