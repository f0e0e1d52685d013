// Package home manages the lazytail state directory layout.
//
// The state directory holds everything lazytail persists between runs,
// which today is index checkpoints. All of it is rebuildable from the log
// files themselves, so it lives under the platform cache directory.
//
// Layout:
//
//	<root>/
//	  checkpoints/   (per-file index checkpoints)
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dir represents a lazytail state directory.
type Dir struct {
	root string
}

// New creates a Dir with an explicit root path.
func New(root string) Dir {
	return Dir{root: root}
}

// Default returns a Dir using the platform-appropriate cache location:
//   - Linux:   ~/.cache/lazytail
//   - macOS:   ~/Library/Caches/lazytail
//   - Windows: %LocalAppData%/lazytail
func Default() (Dir, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return Dir{}, fmt.Errorf("determine cache directory: %w", err)
	}
	return Dir{root: filepath.Join(base, "lazytail")}, nil
}

// Root returns the state directory path.
func (d Dir) Root() string {
	return d.root
}

// CheckpointsDir returns the directory holding index checkpoints.
func (d Dir) CheckpointsDir() string {
	return filepath.Join(d.root, "checkpoints")
}

// EnsureExists creates the state directory layout if it doesn't exist.
func (d Dir) EnsureExists() error {
	if err := os.MkdirAll(d.CheckpointsDir(), 0o750); err != nil {
		return fmt.Errorf("create state directory %s: %w", d.root, err)
	}
	return nil
}
