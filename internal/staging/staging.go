// Package staging implements the scanner's temp staging area: per-scan
// buffers of pending new content and extras, keyed by source_path, that
// survive across directory boundaries within a scan but never across scans.
package staging

import (
	"sync"
	"time"

	"github.com/reelbox/reelbox/internal/classifier"
)

// Entry is one staged file awaiting flush into the repository.
type Entry struct {
	Path           string
	Classification classifier.Classification
	Size           int64
	MTime          time.Time
	FastHash       string
}

// noneKey is the bucket for entries with no source_path (extras found while
// no source_path is tracked, and loose movies/generics found while one is).
const noneKey = ""

// Staging holds the two per-scan buffers described in the component design:
// new_content for potential movies/episodes/generics, extras for extras.
// Both are keyed by source_path, with noneKey used for entries that have
// none. It is owned by a single orchestrator goroutine; the fast-hash
// worker pool never touches it directly, so the mutex here guards against
// accidental misuse rather than real contention.
type Staging struct {
	mu         sync.Mutex
	newContent map[string][]Entry
	extras     map[string][]Entry
}

// New returns an empty Staging.
func New() *Staging {
	s := &Staging{}
	s.Reset()
	return s
}

// Reset wipes both buffers. Called before each root folder is walked: stale
// entries from a prior partial scan are always invalid because their
// files will be rediscovered on the new walk, so there is nothing worth
// preserving across a crash.
func (s *Staging) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.newContent = make(map[string][]Entry)
	s.extras = make(map[string][]Entry)
}

// StageNewContent appends e to the new_content buffer for sourcePath.
func (s *Staging) StageNewContent(sourcePath string, e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.newContent[sourcePath] = append(s.newContent[sourcePath], e)
}

// StageExtra appends e to the extras buffer for sourcePath.
func (s *Staging) StageExtra(sourcePath string, e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extras[sourcePath] = append(s.extras[sourcePath], e)
}

// Flush removes and returns every entry staged for sourcePath, new_content
// first and extras second, matching the flush order the component design
// specifies.
func (s *Staging) Flush(sourcePath string) (newContent, extras []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	newContent = s.newContent[sourcePath]
	extras = s.extras[sourcePath]
	delete(s.newContent, sourcePath)
	delete(s.extras, sourcePath)
	return newContent, extras
}

// FlushNone flushes the bucket for entries with no source_path; it is the
// same as Flush(noneKey).
func (s *Staging) FlushNone() (newContent, extras []Entry) {
	return s.Flush(noneKey)
}

// PendingSourcePaths reports every source_path (excluding noneKey) that
// currently has staged content in either buffer, for diagnostics and for
// the end-of-walk leftover flush.
func (s *Staging) PendingSourcePaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	for k := range s.newContent {
		if k != noneKey {
			seen[k] = true
		}
	}
	for k := range s.extras {
		if k != noneKey {
			seen[k] = true
		}
	}
	paths := make([]string, 0, len(seen))
	for k := range seen {
		paths = append(paths, k)
	}
	return paths
}
