// Package tracker implements the scanner's single-slot source-path
// invariant enforcer: at most one source_path may be "active" while the
// orchestrator walks a directory tree.
package tracker

import "github.com/reelbox/reelbox/internal/scanerr"

// Tracker holds the one active source_path for the current scan, if any.
// It is not safe for concurrent use; the orchestrator owns it and drives
// it from a single goroutine.
type Tracker struct {
	active string
	set    bool
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{}
}

// Track records sourcePath as active. It is a no-op if sourcePath is
// already the active slot. It fails with *scanerr.SourcePathConflict if a
// different source_path is already active — the signal that two distinct
// shows or movies have been nested inside one tracked folder.
func (t *Tracker) Track(sourcePath string) error {
	if sourcePath == "" {
		return nil
	}
	if !t.set {
		t.active = sourcePath
		t.set = true
		return nil
	}
	if t.active == sourcePath {
		return nil
	}
	return &scanerr.SourcePathConflict{First: t.active, Second: sourcePath}
}

// Remove clears the active slot if it equals sourcePath, reporting whether
// it did. The orchestrator calls this on directory exit to decide whether
// staged content for that source_path should be flushed.
func (t *Tracker) Remove(sourcePath string) bool {
	if t.set && t.active == sourcePath {
		t.set = false
		t.active = ""
		return true
	}
	return false
}

// Active reports the current slot, if any.
func (t *Tracker) Active() (string, bool) {
	return t.active, t.set
}
