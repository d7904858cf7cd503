// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

package cachecore

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/latticefs/latticefs/lib/clock"
	"github.com/latticefs/latticefs/lib/liveness"
	"github.com/latticefs/latticefs/lib/objecthash"
	"github.com/latticefs/latticefs/lib/quota"
)

// legacyMarkerName is a file left behind by the predecessor cache
// format. Its presence means the directory was never migrated; init
// refuses to proceed rather than silently misinterpreting old layout.
const legacyMarkerName = "cvmfscatalog.cache"

// DefaultBigFileThreshold is the size above which StartTxn
// opportunistically triggers quota cleanup before allocating.
const DefaultBigFileThreshold = 25 * 1024 * 1024

// DefaultDrainPollInterval is how often TearDown2ReadOnly polls the
// in-flight transaction counter while draining.
const DefaultDrainPollInterval = 50 * time.Millisecond

// PosixConfig configures a PosixManager.
type PosixConfig struct {
	// Root is the cache directory's root.
	Root string

	// Repository names the checksum/liveness marker suffix
	// (cvmfschecksum.<Repository>, running.<Repository>).
	Repository string

	// AlienCache marks Root as a shared, cross-host cache directory.
	AlienCache bool

	// Quota is the consumed quota collaborator. Defaults to
	// quota.NewNoop() when nil.
	Quota quota.Manager

	// Logger receives structured events. Defaults to slog.Default()
	// when nil.
	Logger *slog.Logger

	// Clock is the injectable time source for the drain spin-wait.
	// Defaults to clock.Real() when nil.
	Clock clock.Clock

	// BigFileThreshold defaults to DefaultBigFileThreshold when zero.
	BigFileThreshold int64

	// TrustsReportedSize controls the size-check exception for
	// backing stores that report sizes asynchronously (e.g. HDFS).
	// There is no implicit default here: callers should take the
	// default from config.CacheConfig.TrustsReportedSize (true)
	// rather than relying on the PosixConfig zero value.
	TrustsReportedSize bool

	// DrainPollInterval defaults to DefaultDrainPollInterval when
	// zero.
	DrainPollInterval time.Duration
}

// PosixManager is the concrete Manager backed by a local directory
// tree: 256 hash-prefix subdirectories, a txn/ staging subdirectory,
// and a quarantaine/ subdirectory for size-mismatch forensics.
type PosixManager struct {
	root              string
	repository        string
	alienCache        bool
	alienCacheOnNFS   bool
	quotaMgr          atomic.Pointer[quota.Manager]
	logger            *slog.Logger
	clock             clock.Clock
	bigFileThreshold  int64
	trustsReportedSize bool
	drainPollInterval time.Duration

	readOnly     atomic.Bool
	inflightTxns atomic.Int64
}

// NewPosixManager creates the on-disk layout (if absent) and returns a
// ready-to-use PosixManager. Directory creation occurs once, here, at
// init.
func NewPosixManager(cfg PosixConfig) (*PosixManager, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("cachecore: PosixConfig.Root is required")
	}
	if cfg.Repository == "" {
		return nil, fmt.Errorf("cachecore: PosixConfig.Repository is required")
	}

	if _, err := os.Stat(filepath.Join(cfg.Root, legacyMarkerName)); err == nil {
		return nil, fmt.Errorf("cachecore: %s contains a legacy-format marker (%s); refusing to use it",
			cfg.Root, legacyMarkerName)
	}

	dirMode := os.FileMode(0700)
	if cfg.AlienCache {
		dirMode = 0770
	}

	for _, sub := range []string{"", "txn", "quarantaine"} {
		if err := os.MkdirAll(filepath.Join(cfg.Root, sub), dirMode); err != nil {
			return nil, fmt.Errorf("cachecore: creating %s: %w", sub, err)
		}
	}
	for i := 0; i < 256; i++ {
		prefix := fmt.Sprintf("%02x", i)
		if err := os.MkdirAll(filepath.Join(cfg.Root, prefix), dirMode); err != nil {
			return nil, fmt.Errorf("cachecore: creating prefix directory %s: %w", prefix, err)
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	bigFileThreshold := cfg.BigFileThreshold
	if bigFileThreshold == 0 {
		bigFileThreshold = DefaultBigFileThreshold
	}
	drainPollInterval := cfg.DrainPollInterval
	if drainPollInterval == 0 {
		drainPollInterval = DefaultDrainPollInterval
	}
	quotaMgr := cfg.Quota
	if quotaMgr == nil {
		quotaMgr = quota.NewNoop()
	}

	m := &PosixManager{
		root:               cfg.Root,
		repository:         cfg.Repository,
		alienCache:         cfg.AlienCache,
		alienCacheOnNFS:    cfg.AlienCache && isNFS(cfg.Root),
		logger:             logger,
		clock:              clk,
		bigFileThreshold:   bigFileThreshold,
		trustsReportedSize: cfg.TrustsReportedSize,
		drainPollInterval:  drainPollInterval,
	}
	m.quotaMgr.Store(&quotaMgr)

	if err := liveness.Mark(m.livenessPath()); err != nil {
		return nil, fmt.Errorf("cachecore: marking liveness: %w", err)
	}

	logger.Info("cache manager ready", "root", cfg.Root, "alien_cache", cfg.AlienCache,
		"alien_cache_on_nfs", m.alienCacheOnNFS)

	return m, nil
}

func (m *PosixManager) quota() quota.Manager { return *m.quotaMgr.Load() }

func (m *PosixManager) livenessPath() string {
	return filepath.Join(m.root, "running."+m.repository)
}

// ChecksumPath returns the persisted "last known good" checksum
// sidecar path for this repository.
func (m *PosixManager) ChecksumPath() string {
	return filepath.Join(m.root, "cvmfschecksum."+m.repository)
}

// Root returns the cache directory root.
func (m *PosixManager) Root() string { return m.root }

func (m *PosixManager) pathFor(hash objecthash.Hash) string {
	return filepath.Join(m.root, hash.PathPrefix(), hash.PathSuffix())
}

// Open succeeds with a read-only descriptor iff an object with that
// hash is committed.
func (m *PosixManager) Open(hash objecthash.Hash) (*Descriptor, error) {
	file, err := os.OpenFile(m.pathFor(hash), os.O_RDONLY, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
		}
		return nil, fmt.Errorf("%w: opening %s: %v", ErrIO, hash, err)
	}

	if err := m.quota().Touch(hash); err != nil {
		m.logger.Warn("quota touch failed", "hash", hash.String(), "error", err)
	}

	return &Descriptor{file: file}, nil
}

// GetSize returns the descriptor's underlying object size.
func (m *PosixManager) GetSize(d *Descriptor) (int64, error) {
	info, err := d.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: stat: %v", ErrIO, err)
	}
	return info.Size(), nil
}

// Pread reads up to len(buf) bytes at offset; a short read at EOF
// returns a smaller count with a nil error, matching POSIX pread(2).
func (m *PosixManager) Pread(d *Descriptor, buf []byte, offset int64) (int, error) {
	n, err := d.file.ReadAt(buf, offset)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		return n, fmt.Errorf("%w: pread: %v", ErrIO, err)
	}
	return n, nil
}

// Dup returns an independent descriptor referencing the same
// underlying object via a real duplicated OS file descriptor, so
// closing one never affects the other and the duplicate stays valid
// across eviction exactly like the original.
func (m *PosixManager) Dup(d *Descriptor) (*Descriptor, error) {
	newFd, err := unix.Dup(int(d.file.Fd()))
	if err != nil {
		return nil, fmt.Errorf("%w: dup: %v", ErrIO, err)
	}
	return &Descriptor{file: os.NewFile(uintptr(newFd), d.file.Name())}, nil
}

// Close releases a descriptor.
func (m *PosixManager) Close(d *Descriptor) error {
	if err := d.file.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", ErrIO, err)
	}
	return nil
}

// StartTxn begins a transaction for hash.
func (m *PosixManager) StartTxn(hash objecthash.Hash, expectedSize int64) (*Transaction, error) {
	if m.readOnly.Load() {
		return nil, ErrReadOnly
	}

	m.inflightTxns.Add(1)

	q := m.quota()
	if maxSize := q.GetMaxFileSize(); expectedSize != SizeUnknown && maxSize >= 0 && expectedSize > maxSize {
		m.inflightTxns.Add(-1)
		return nil, fmt.Errorf("%w: object size %d exceeds max file size %d", ErrNoSpace, expectedSize, maxSize)
	}

	if expectedSize != SizeUnknown && expectedSize > m.bigFileThreshold {
		if capacity := q.GetCapacity(); capacity >= 0 {
			if err := q.Cleanup(capacity - expectedSize); err != nil {
				m.logger.Warn("opportunistic cleanup before big-file transaction failed",
					"hash", hash.String(), "error", err)
			}
		}
	}

	staging, err := os.CreateTemp(filepath.Join(m.root, "txn"), "fetch-*")
	if err != nil {
		m.inflightTxns.Add(-1)
		return nil, fmt.Errorf("%w: creating staging file: %v", ErrIO, err)
	}

	return &Transaction{
		Hash:         hash,
		FinalPath:    m.pathFor(hash),
		StagingPath:  staging.Name(),
		ExpectedSize: expectedSize,
		Type:         Regular,
		stagingFile:  staging,
	}, nil
}

// CtrlTxn records description and type; idempotent.
func (m *PosixManager) CtrlTxn(txn *Transaction, description string, objectType ObjectType) {
	txn.Description = description
	txn.Type = objectType
}

// Write appends buf to the transaction's staging file, buffering small
// writes and flushing only when the 4 KiB buffer fills or on a
// terminal call.
func (m *PosixManager) Write(txn *Transaction, buf []byte) (int, error) {
	if txn.failed {
		return 0, ErrTxnFailed
	}
	if txn.ExpectedSize != SizeUnknown && txn.Size+int64(len(buf)) > txn.ExpectedSize {
		txn.failed = true
		return 0, fmt.Errorf("%w: write would exceed expected size %d", ErrNoSpace, txn.ExpectedSize)
	}

	total := 0
	for len(buf) > 0 {
		space := transactionBufferSize - txn.bufPos
		n := copy(txn.buffer[txn.bufPos:], buf[:min(space, len(buf))])
		txn.bufPos += n
		buf = buf[n:]
		txn.Size += int64(n)
		total += n

		if txn.bufPos == transactionBufferSize {
			if err := m.flush(txn); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// flush writes the buffered bytes to the staging file. A partial
// underlying write advances the buffer pointer accordingly and is
// retried; the transaction remains abortable throughout.
func (m *PosixManager) flush(txn *Transaction) error {
	written := 0
	for written < txn.bufPos {
		n, err := txn.stagingFile.Write(txn.buffer[written:txn.bufPos])
		written += n
		if err != nil {
			// Shift unwritten bytes to the front so state stays
			// consistent even though the transaction is about to be
			// reported as failed by the caller.
			copy(txn.buffer[0:], txn.buffer[written:txn.bufPos])
			txn.bufPos -= written
			return fmt.Errorf("%w: flushing staging file: %v", ErrIO, err)
		}
	}
	txn.bufPos = 0
	return nil
}

// Reset rewinds the staging file to empty.
func (m *PosixManager) Reset(txn *Transaction) error {
	if err := txn.stagingFile.Truncate(0); err != nil {
		return fmt.Errorf("%w: truncating staging file: %v", ErrIO, err)
	}
	if _, err := txn.stagingFile.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seeking staging file: %v", ErrIO, err)
	}
	txn.bufPos = 0
	txn.Size = 0
	txn.failed = false
	return nil
}

// OpenFromTxn flushes pending buffered bytes and returns a read-only
// descriptor on the staging file.
func (m *PosixManager) OpenFromTxn(txn *Transaction) (*Descriptor, error) {
	if err := m.flush(txn); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(txn.StagingPath, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: opening staging file: %v", ErrIO, err)
	}
	return &Descriptor{file: file}, nil
}

// AbortTxn closes the staging descriptor, unlinks the staging file,
// and destroys the transaction. Never leaves staging files behind.
func (m *PosixManager) AbortTxn(txn *Transaction) error {
	if txn.done {
		return nil
	}
	txn.done = true
	defer m.inflightTxns.Add(-1)

	txn.stagingFile.Close()
	if err := os.Remove(txn.StagingPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: unlinking staging file: %v", ErrIO, err)
	}
	return nil
}

// CommitTxn flushes, verifies the size contract, performs the quota
// handoff, and renames staging to canonical.
func (m *PosixManager) CommitTxn(txn *Transaction) error {
	if txn.done {
		return fmt.Errorf("cachecore: transaction already terminal")
	}
	if txn.failed {
		m.abortFailed(txn)
		return ErrTxnFailed
	}

	if err := m.flush(txn); err != nil {
		m.abortFailed(txn)
		return err
	}

	sizeKnownMismatch := txn.ExpectedSize != SizeUnknown && txn.Size != txn.ExpectedSize
	skipCheck := !m.trustsReportedSize && txn.Size == 0
	if sizeKnownMismatch && !skipCheck {
		m.quarantine(txn)
		txn.stagingFile.Close()
		os.Remove(txn.StagingPath)
		txn.done = true
		m.inflightTxns.Add(-1)
		return fmt.Errorf("%w: size mismatch: got %d bytes, expected %d", ErrIO, txn.Size, txn.ExpectedSize)
	}

	q := m.quota()
	pinned := txn.Type == Pinned || txn.Type == Catalog
	if pinned {
		if !q.Pin(txn.Hash, txn.Size, txn.Description, txn.Type == Catalog) {
			txn.stagingFile.Close()
			os.Remove(txn.StagingPath)
			txn.done = true
			m.inflightTxns.Add(-1)
			return fmt.Errorf("%w: quota refused pin", ErrNoSpace)
		}
	}

	if m.alienCache {
		if err := txn.stagingFile.Chmod(0660); err != nil {
			m.logger.Warn("chmod staging file for alien cache failed", "hash", txn.Hash.String(), "error", err)
		}
	}
	txn.stagingFile.Close()

	if err := m.renameIntoPlace(txn.StagingPath, txn.FinalPath); err != nil {
		os.Remove(txn.StagingPath)
		if pinned {
			if rmErr := q.Remove(txn.Hash); rmErr != nil {
				m.logger.Warn("quota remove after failed rename failed", "hash", txn.Hash.String(), "error", rmErr)
			}
		}
		txn.done = true
		m.inflightTxns.Add(-1)
		return fmt.Errorf("%w: renaming into place: %v", ErrIO, err)
	}

	switch txn.Type {
	case Regular:
		if err := q.Insert(txn.Hash, txn.Size, txn.Description); err != nil {
			m.logger.Warn("quota insert failed", "hash", txn.Hash.String(), "error", err)
		}
	case Volatile:
		if err := q.InsertVolatile(txn.Hash, txn.Size, txn.Description); err != nil {
			m.logger.Warn("quota insert-volatile failed", "hash", txn.Hash.String(), "error", err)
		}
	}

	txn.done = true
	m.inflightTxns.Add(-1)
	m.logger.Debug("transaction committed", "hash", txn.Hash.String(), "size", txn.Size, "type", txn.Type.String())
	return nil
}

// abortFailed tears down a transaction that failed before reaching the
// size check (e.g. a flush error), treating it like AbortTxn.
func (m *PosixManager) abortFailed(txn *Transaction) {
	txn.stagingFile.Close()
	os.Remove(txn.StagingPath)
	txn.done = true
	m.inflightTxns.Add(-1)
}

// quarantine copies the staging file's current bytes into
// quarantaine/<hex> for forensics before it is discarded.
func (m *PosixManager) quarantine(txn *Transaction) {
	dest := filepath.Join(m.root, "quarantaine", txn.Hash.Hex())
	src, err := os.Open(txn.StagingPath)
	if err != nil {
		m.logger.Warn("quarantine: reopening staging file failed", "hash", txn.Hash.String(), "error", err)
		return
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		m.logger.Warn("quarantine: creating forensic copy failed", "hash", txn.Hash.String(), "error", err)
		return
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		m.logger.Warn("quarantine: copying forensic bytes failed", "hash", txn.Hash.String(), "error", err)
	}
}

// Open2Mem performs Open+GetSize+Pread+Close in one call.
func (m *PosixManager) Open2Mem(hash objecthash.Hash) ([]byte, error) {
	d, err := m.Open(hash)
	if err != nil {
		return nil, err
	}
	defer m.Close(d)

	size, err := m.GetSize(d)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, size)
	var read int64
	for read < size {
		n, err := m.Pread(d, buf[read:], read)
		if n == 0 && err == nil {
			break
		}
		read += int64(n)
		if err != nil {
			return nil, err
		}
	}
	return buf[:read], nil
}

// CommitFromMem performs StartTxn+CtrlTxn+Write+CommitTxn for a small,
// fully in-memory object.
func (m *PosixManager) CommitFromMem(hash objecthash.Hash, data []byte, description string) error {
	txn, err := m.StartTxn(hash, int64(len(data)))
	if err != nil {
		return err
	}
	m.CtrlTxn(txn, description, Regular)

	if _, err := m.Write(txn, data); err != nil {
		m.AbortTxn(txn)
		return err
	}
	return m.CommitTxn(txn)
}

// TearDown2ReadOnly transitions the cache from read-write to read-only.
// The transition is monotonic and one-way:
//
//  1. Set the read-only flag; subsequent StartTxn calls immediately
//     return ErrReadOnly.
//  2. Spin-wait (polling at DrainPollInterval) until the in-flight
//     transaction counter reaches zero.
//  3. Replace the active quota collaborator with a no-op and let the
//     previous one be garbage collected.
//  4. Delete the liveness marker file.
//  5. Log the transition.
func (m *PosixManager) TearDown2ReadOnly() {
	m.readOnly.Store(true)

	for m.inflightTxns.Load() > 0 {
		m.clock.Sleep(m.drainPollInterval)
	}

	noop := quota.NewNoop()
	m.quotaMgr.Store(&noop)

	if err := liveness.Clear(m.livenessPath()); err != nil {
		m.logger.Warn("clearing liveness marker during drain failed", "error", err)
	}

	m.logger.Info("cache drained to read-only", "root", m.root)
}

var _ Manager = (*PosixManager)(nil)
