// Package lineindex maintains a byte-offset index over one append-only log
// file. The index records the starting offset of every complete line, giving
// O(1) line counts and O(1) seeks, and is extended incrementally as the file
// grows. Truncation or identity changes are detected by Sync and reported to
// the caller, which must rebuild.
package lineindex

import (
	"bytes"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

var (
	ErrClosed     = errors.New("line index closed")
	ErrOutOfRange = errors.New("line number out of range")
)

// headSampleLen is how many leading bytes are hashed for identity checks.
// A file whose first bytes changed was rewritten, not appended to.
const headSampleLen = 256

// defaultChunkSize is the read buffer used while scanning for terminators.
const defaultChunkSize = 256 * 1024

// Range is the byte range of one line's content, excluding the terminator
// and any trailing carriage return. End is exclusive.
type Range struct {
	Start int64
	End   int64
}

// Len returns the content length in bytes.
func (r Range) Len() int64 { return r.End - r.Start }

// OnLineFunc observes each complete line as it is indexed. The line slice is
// only valid for the duration of the call. Callbacks run on the scanning
// goroutine, in line order, with no index lock held.
type OnLineFunc func(n int, line []byte)

// Option configures an Index at Open time.
type Option func(*Index)

// WithOnLine registers a callback invoked once per complete line, during the
// initial scan and every later Sync. Used to keep derived indexes in lockstep.
func WithOnLine(fn OnLineFunc) Option {
	return func(ix *Index) { ix.onLine = fn }
}

// WithChunkSize overrides the scan buffer size.
func WithChunkSize(n int) Option {
	return func(ix *Index) {
		if n > 0 {
			ix.chunkSize = n
		}
	}
}

// Index is a line-offset index over a single file.
//
// Writes (Sync, Rebuild) take the exclusive lock only while committing a
// batch of offsets; readers hold the shared lock briefly or snapshot Len
// first. Line content is read with ReadAt and never goes through the lock,
// so a reader never observes a half-appended line. The file handle is held
// in an atomic pointer because Rebuild swaps it while readers are in flight;
// a reader holding the pre-swap handle gets at worst a read error from the
// closed handle, never a torn pointer.
type Index struct {
	path      string
	f         atomic.Pointer[os.File]
	onLine    OnLineFunc
	chunkSize int

	mu      sync.RWMutex
	offsets []int64 // start offset of each complete line
	scanned int64   // offset just past the last complete line's terminator
	size    int64   // file size as of the last successful scan
	final   bool    // trailing partial line promoted by Finalize
	closed  bool

	inode    uint64
	dev      uint64
	hasStat  bool
	headHash uint64
	headLen  int
}

// Open builds a full index of path by scanning to the current EOF.
func Open(path string, opts ...Option) (*Index, error) {
	ix := newIndex(path, opts)
	if err := ix.attach(); err != nil {
		return nil, err
	}
	info, err := ix.file().Stat()
	if err != nil {
		_ = ix.file().Close()
		return nil, fmt.Errorf("stat log file: %w", err)
	}
	if err := ix.scanTo(info.Size()); err != nil {
		_ = ix.file().Close()
		return nil, err
	}
	if err := ix.rehashHead(); err != nil {
		_ = ix.file().Close()
		return nil, err
	}
	return ix, nil
}

// Restore seeds an index from previously saved complete-line offsets instead
// of a full scan, then scans any remainder. The caller is responsible for
// checking that the offsets still describe this file (see checkpoint).
// The OnLine callback fires only for lines past the seeded region.
func Restore(path string, offsets []int64, scanned int64, opts ...Option) (*Index, error) {
	ix := newIndex(path, opts)
	if err := ix.attach(); err != nil {
		return nil, err
	}
	info, err := ix.file().Stat()
	if err != nil {
		_ = ix.file().Close()
		return nil, fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() < scanned {
		_ = ix.file().Close()
		return nil, fmt.Errorf("restore: file shorter than seeded index (%d < %d)", info.Size(), scanned)
	}

	ix.offsets = append(ix.offsets, offsets...)
	ix.scanned = scanned
	ix.size = scanned

	if err := ix.scanTo(info.Size()); err != nil {
		_ = ix.file().Close()
		return nil, err
	}
	if err := ix.rehashHead(); err != nil {
		_ = ix.file().Close()
		return nil, err
	}
	return ix, nil
}

func newIndex(path string, opts []Option) *Index {
	ix := &Index{path: path, chunkSize: defaultChunkSize}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// attach opens the file and records its identity. The handle is published
// atomically so in-flight readers keep a coherent handle across a Rebuild.
func (ix *Index) attach() error {
	f, err := os.Open(ix.path)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	ix.inode, ix.dev, ix.hasStat = statIdentity(info)
	ix.f.Store(f)
	return nil
}

// file returns the current handle.
func (ix *Index) file() *os.File {
	return ix.f.Load()
}

// Len returns the number of complete lines.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.lenLocked()
}

func (ix *Index) lenLocked() int {
	n := len(ix.offsets)
	if ix.final && ix.scanned < ix.size {
		n++
	}
	return n
}

// Size returns the file size as of the last successful scan.
func (ix *Index) Size() int64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.size
}

// Path returns the indexed file path.
func (ix *Index) Path() string { return ix.path }

// Offsets returns a copy of the complete-line start offsets. Meant for
// checkpointing; not a hot path.
func (ix *Index) Offsets() []int64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]int64, len(ix.offsets))
	copy(out, ix.offsets)
	return out
}

// Scanned returns the offset just past the last complete line's terminator.
func (ix *Index) Scanned() int64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.scanned
}

// HasPartial reports whether an unterminated trailing line is being tracked.
func (ix *Index) HasPartial() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.scanned < ix.size
}

// LineAt returns the content byte range of line i.
func (ix *Index) LineAt(i int) (Range, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.closed {
		return Range{}, ErrClosed
	}
	n := len(ix.offsets)
	if ix.final && ix.scanned < ix.size && i == n {
		// Finalized trailing line has no terminator to strip.
		return Range{Start: ix.scanned, End: ix.size}, nil
	}
	if i < 0 || i >= n {
		return Range{}, fmt.Errorf("line %d: %w", i, ErrOutOfRange)
	}

	start := ix.offsets[i]
	var end int64
	if i+1 < n {
		end = ix.offsets[i+1]
	} else {
		end = ix.scanned
	}
	end-- // terminator
	if end > start && ix.byteAt(end-1) == '\r' {
		end--
	}
	return Range{Start: start, End: end}, nil
}

// byteAt reads a single byte; used only to trim carriage returns, so a read
// failure just means "not a CR".
func (ix *Index) byteAt(off int64) byte {
	var b [1]byte
	if _, err := ix.file().ReadAt(b[:], off); err != nil {
		return 0
	}
	return b[0]
}

// ReadLine reads the content of line i. Safe to call concurrently with Sync.
func (ix *Index) ReadLine(i int) ([]byte, error) {
	r, err := ix.LineAt(i)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, r.Len())
	if r.Len() == 0 {
		return buf, nil
	}
	if _, err := ix.file().ReadAt(buf, r.Start); err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading line %d: %w", i, err)
	}
	return buf, nil
}

// Finalize promotes a trailing unterminated line to a complete line. Meant
// for sources known to produce no more data. A later Sync that finds a
// terminator or more bytes clears the promotion and re-indexes normally.
func (ix *Index) Finalize() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.scanned < ix.size {
		ix.final = true
	}
}

// Close releases the underlying file handle.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return nil
	}
	ix.closed = true
	return ix.file().Close()
}

// scanTo scans from the current scanned offset to limit, committing complete
// lines in per-chunk batches. The region between the last terminator and
// limit is tracked as a partial line. A read failure mid-scan leaves every
// already-committed line valid.
func (ix *Index) scanTo(limit int64) error {
	ix.mu.RLock()
	pos := ix.scanned
	base := len(ix.offsets)
	ix.mu.RUnlock()

	if limit < pos {
		return fmt.Errorf("scan limit %d before scanned offset %d", limit, pos)
	}

	f := ix.file()
	buf := make([]byte, ix.chunkSize)
	var carry []byte // partial line content carried across chunks
	lineStart := pos
	committed := base

	for pos < limit {
		want := int64(len(buf))
		if rem := limit - pos; rem < want {
			want = rem
		}
		n, err := f.ReadAt(buf[:want], pos)
		if n > 0 {
			chunk := buf[:n]
			rel := 0
			var starts []int64
			for {
				nl := bytes.IndexByte(chunk[rel:], '\n')
				if nl < 0 {
					carry = append(carry, chunk[rel:]...)
					break
				}
				abs := rel + nl
				content := chunk[rel:abs]
				if len(carry) > 0 {
					carry = append(carry, content...)
					content = carry
				}
				if ix.onLine != nil {
					ix.onLine(committed+len(starts), trimCR(content))
				}
				starts = append(starts, lineStart)
				carry = carry[:0]
				lineStart = pos + int64(abs) + 1
				rel = abs + 1
			}

			if len(starts) > 0 {
				ix.mu.Lock()
				ix.offsets = append(ix.offsets, starts...)
				ix.scanned = lineStart
				if ix.size < lineStart {
					ix.size = lineStart
				}
				ix.final = false
				ix.mu.Unlock()
				committed += len(starts)
			}
			pos += int64(n)
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("scanning %s: %w", ix.path, err)
		}
	}

	// Record the trailing partial region, if any.
	ix.mu.Lock()
	if pos > ix.size {
		ix.size = pos
	}
	if ix.scanned < ix.size {
		ix.final = false
	}
	ix.mu.Unlock()
	return nil
}

// trimCR strips one trailing carriage return.
func trimCR(b []byte) []byte {
	if len(b) > 0 && b[len(b)-1] == '\r' {
		return b[:len(b)-1]
	}
	return b
}

func (ix *Index) rehashHead() error {
	ix.mu.RLock()
	size := ix.size
	ix.mu.RUnlock()

	n := headSampleLen
	if size < int64(n) {
		n = int(size)
	}
	h, err := hashHead(ix.file(), n)
	if err != nil {
		return err
	}
	ix.mu.Lock()
	ix.headHash = h
	ix.headLen = n
	ix.mu.Unlock()
	return nil
}

// HeadHash returns the identity hash of the file's leading bytes and the
// number of bytes hashed.
func (ix *Index) HeadHash() (uint64, int) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.headHash, ix.headLen
}

// HashFileHead hashes the first n bytes of the file at path with the same
// function HeadHash reports, so saved hashes can be checked against a file
// before an index is built from them.
func HashFileHead(path string, n int) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()
	return hashHead(f, n)
}

func hashHead(f *os.File, n int) (uint64, error) {
	if n == 0 {
		return 0, nil
	}
	buf := make([]byte, n)
	if _, err := f.ReadAt(buf, 0); err != nil && err != io.EOF {
		return 0, fmt.Errorf("hashing file head: %w", err)
	}
	h := fnv.New64a()
	_, _ = h.Write(buf)
	return h.Sum64(), nil
}
