// Package checkpoint persists a source's line and severity indexes across
// restarts, so reopening a large file seeds both from disk and scans only
// the bytes appended since.
package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"lazytail/internal/format"
	"lazytail/internal/lineindex"
)

// Version is bumped whenever the encoded layout changes. A checkpoint with
// a different version is discarded and the file rescanned.
const Version = 1

// ErrStale means the checkpoint does not describe the file's current
// contents. The caller falls back to a full scan.
var ErrStale = errors.New("checkpoint does not match file")

// Checkpoint is the persisted index state for one log file. On disk it is
// a format.Header followed by the msgpack-encoded struct.
type Checkpoint struct {
	// HeadHash and HeadLen identify the file the offsets were built from.
	// A file whose leading bytes changed was rewritten, not appended to.
	HeadHash uint64 `msgpack:"head_hash"`
	HeadLen  int    `msgpack:"head_len"`

	// Scanned is the byte offset just past the last indexed line.
	Scanned int64 `msgpack:"scanned"`
	// Offsets are the start offsets of every complete line.
	Offsets []int64 `msgpack:"offsets"`
	// Severities are the per-line severity classes, same order as Offsets.
	Severities []uint8 `msgpack:"severities"`
}

// Save atomically writes the checkpoint to path.
func Save(path string, cp *Checkpoint) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	payload, err := msgpack.Marshal(cp)
	if err != nil {
		return err
	}
	hdr := format.Header{Type: format.TypeCheckpoint, Version: Version}.Encode()
	data := append(hdr[:], payload...)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load reads a checkpoint from path. Returns (nil, nil) when the file does
// not exist, is corrupt, or carries a different version; a bad checkpoint
// costs a rescan, never a failure.
func Load(path string) (*Checkpoint, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	if _, err := format.DecodeAndValidate(data, format.TypeCheckpoint, Version); err != nil {
		return nil, nil //nolint:nilerr // foreign or outdated checkpoint is treated as absent
	}

	var cp Checkpoint
	if err := msgpack.Unmarshal(data[format.HeaderSize:], &cp); err != nil {
		return nil, nil //nolint:nilerr // corrupt checkpoint is treated as absent
	}
	if len(cp.Severities) != len(cp.Offsets) {
		return nil, nil
	}
	return &cp, nil
}

// Validate checks that the checkpoint still describes the file at logPath.
// Returns ErrStale when the file shrank below the indexed region or its
// leading bytes changed.
func (cp *Checkpoint) Validate(logPath string) error {
	info, err := os.Stat(logPath)
	if err != nil {
		return err
	}
	if info.Size() < cp.Scanned {
		return fmt.Errorf("%w: file shrank (%d < %d)", ErrStale, info.Size(), cp.Scanned)
	}

	h, err := lineindex.HashFileHead(logPath, cp.HeadLen)
	if err != nil {
		return err
	}
	if h != cp.HeadHash {
		return fmt.Errorf("%w: head hash changed", ErrStale)
	}
	return nil
}
