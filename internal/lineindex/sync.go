package lineindex

import (
	"fmt"
	"os"
	"syscall"
)

// Outcome reports what a Sync found. When Truncated is true the index no
// longer describes the file and the caller must Rebuild (and reset any
// derived indexes); NewLines is meaningless in that case.
type Outcome struct {
	Truncated bool
	NewLines  int
}

// Sync compares the file's current state against the index. Pure appends are
// scanned incrementally, costing time proportional to the appended delta. A
// size shrink, an inode/device change, or a mismatch in the hashed leading
// bytes means the file is no longer the one that was indexed, and Truncated
// is returned without touching the existing index.
func (ix *Index) Sync() (Outcome, error) {
	ix.mu.RLock()
	if ix.closed {
		ix.mu.RUnlock()
		return Outcome{}, ErrClosed
	}
	oldSize := ix.size
	oldLen := ix.lenLocked()
	ix.mu.RUnlock()

	info, err := os.Stat(ix.path)
	if err != nil {
		return Outcome{}, fmt.Errorf("stat %s: %w", ix.path, err)
	}

	if info.Size() < oldSize {
		return Outcome{Truncated: true}, nil
	}
	if ix.hasStat {
		if inode, dev, ok := fileIdentity(info); ok && (inode != ix.inode || dev != ix.dev) {
			return Outcome{Truncated: true}, nil
		}
	}
	if changed, err := ix.headChanged(); err != nil {
		return Outcome{}, err
	} else if changed {
		return Outcome{Truncated: true}, nil
	}

	if info.Size() == oldSize {
		return Outcome{NewLines: 0}, nil
	}

	if err := ix.scanTo(info.Size()); err != nil {
		return Outcome{}, err
	}
	// A short file's head sample grows with it.
	if ix.headLen < headSampleLen {
		if err := ix.rehashHead(); err != nil {
			return Outcome{}, err
		}
	}

	n := ix.Len() - oldLen
	if n < 0 {
		// A Finalize-promoted trailing line went back to being a tracked
		// partial because more unterminated bytes arrived.
		n = 0
	}
	return Outcome{NewLines: n}, nil
}

// Rebuild discards the index and rescans the file from scratch, picking up
// the path's current inode. The OnLine callback fires for every line again,
// so callers must reset derived state first.
func (ix *Index) Rebuild() error {
	ix.mu.Lock()
	if ix.closed {
		ix.mu.Unlock()
		return ErrClosed
	}
	old := ix.file()
	ix.offsets = ix.offsets[:0]
	ix.scanned = 0
	ix.size = 0
	ix.final = false
	ix.headHash = 0
	ix.headLen = 0
	ix.mu.Unlock()

	// attach publishes the new handle atomically; the old one is closed
	// only after that, so a reader racing the swap either keeps the old
	// handle or sees the new one, and at worst reads a closed-file error.
	if err := ix.attach(); err != nil {
		return err
	}
	_ = old.Close()

	info, err := ix.file().Stat()
	if err != nil {
		return fmt.Errorf("stat log file: %w", err)
	}
	if err := ix.scanTo(info.Size()); err != nil {
		return err
	}
	return ix.rehashHead()
}

// headChanged re-reads the hashed leading bytes from the path (not the held
// handle, which may point at a rotated-away inode).
func (ix *Index) headChanged() (bool, error) {
	ix.mu.RLock()
	want, n := ix.headHash, ix.headLen
	ix.mu.RUnlock()
	if n == 0 {
		return false, nil
	}

	f, err := os.Open(ix.path)
	if err != nil {
		return false, fmt.Errorf("opening %s: %w", ix.path, err)
	}
	defer func() { _ = f.Close() }()

	got, err := hashHead(f, n)
	if err != nil {
		return false, err
	}
	return got != want, nil
}

// statIdentity extracts the inode and device from file info. The ok result
// is false on platforms without Stat_t, where identity falls back to the
// head hash alone.
func statIdentity(info os.FileInfo) (inode, dev uint64, ok bool) {
	return fileIdentity(info)
}

func fileIdentity(info os.FileInfo) (inode, dev uint64, ok bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, false
	}
	return stat.Ino, uint64(stat.Dev), true
}
