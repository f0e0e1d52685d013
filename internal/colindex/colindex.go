package colindex

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// Index maps line numbers to severities, stored as one roaring bitmap per
// severity class. Updates come from the same single writer that appends to
// the line index, so membership always reflects some valid prefix of the
// file; readers may see a slightly stale line count but never a partially
// classified line.
type Index struct {
	mu      sync.RWMutex
	bitmaps [numSeverities]*roaring.Bitmap
	count   uint64
}

// New creates an empty columnar index.
func New() *Index {
	ix := &Index{}
	for i := range ix.bitmaps {
		ix.bitmaps[i] = roaring.New()
	}
	return ix
}

// Update records the severity of the given line. Line numbers must arrive
// in increasing order (append-only), which keeps bitmap insertion O(1)
// amortized.
func (ix *Index) Update(line uint32, sev Severity) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if sev >= numSeverities {
		sev = Unknown
	}
	ix.bitmaps[sev].Add(line)
	ix.count++
}

// Add classifies raw line bytes and records the result.
func (ix *Index) Add(line uint32, raw []byte) Severity {
	sev := Classify(raw)
	ix.Update(line, sev)
	return sev
}

// Len returns the number of classified lines.
func (ix *Index) Len() uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.count
}

// SeverityAt returns the recorded severity of a line, or Unknown if the
// line has not been classified.
func (ix *Index) SeverityAt(line uint32) Severity {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	// Unknown checked last: most lines in a leveled log hit a real class.
	for sev := Trace; sev < numSeverities; sev++ {
		if ix.bitmaps[sev].Contains(line) {
			return sev
		}
	}
	return Unknown
}

// Histogram returns per-severity line counts. Cardinality comes straight
// off the bitmaps, so cost is independent of file size.
func (ix *Index) Histogram() map[Severity]uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make(map[Severity]uint64, numSeverities)
	for sev := Severity(0); sev < numSeverities; sev++ {
		if c := ix.bitmaps[sev].GetCardinality(); c > 0 {
			out[sev] = c
		}
	}
	return out
}

// Bitmap returns a copy of the line-number set for one severity, safe for
// the caller to intersect or iterate while the index keeps growing.
func (ix *Index) Bitmap(sev Severity) *roaring.Bitmap {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if sev >= numSeverities {
		sev = Unknown
	}
	return ix.bitmaps[sev].Clone()
}

// Contains reports whether the line is recorded under the severity.
func (ix *Index) Contains(line uint32, sev Severity) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if sev >= numSeverities {
		return false
	}
	return ix.bitmaps[sev].Contains(line)
}

// SeverityRun returns the per-line severity classes in line order. Meant
// for checkpointing; not a hot path.
func (ix *Index) SeverityRun() []uint8 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]uint8, ix.count)
	for sev := Severity(0); sev < numSeverities; sev++ {
		it := ix.bitmaps[sev].Iterator()
		for it.HasNext() {
			line := it.Next()
			if uint64(line) < uint64(len(out)) {
				out[line] = uint8(sev)
			}
		}
	}
	return out
}

// Reset discards all classifications. Called when the line index is rebuilt
// after truncation so both indexes restart in lockstep.
func (ix *Index) Reset() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for i := range ix.bitmaps {
		ix.bitmaps[i] = roaring.New()
	}
	ix.count = 0
}
