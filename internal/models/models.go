// Package models holds the persisted shapes shared by the repository,
// scanner, and migration engine.
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ──────────────────── Index ────────────────────

type IndexType string

const (
	IndexTypeVideos IndexType = "videos"
	IndexTypePhotos IndexType = "photos"
	IndexTypeAudio  IndexType = "audio"
)

type IndexStatus string

const (
	IndexStatusIdle     IndexStatus = "idle"
	IndexStatusQueued   IndexStatus = "queued"
	IndexStatusScanning IndexStatus = "scanning"
)

type Index struct {
	ID          uuid.UUID   `json:"id" db:"id"`
	Name        string      `json:"name" db:"name"`
	Type        IndexType   `json:"type" db:"type"`
	RootFolders []string    `json:"root_folders" db:"root_folders"`
	Status      IndexStatus `json:"status" db:"status"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

// ──────────────────── VideoItem ────────────────────

type VideoItemType string

const (
	ItemTypeMovie   VideoItemType = "movie"
	ItemTypeShow    VideoItemType = "show"
	ItemTypeSeason  VideoItemType = "season"
	ItemTypeEpisode VideoItemType = "episode"
	ItemTypeVideo   VideoItemType = "video"
	ItemTypeExtra   VideoItemType = "extra"
)

type VideoItem struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	IndexID         uuid.UUID       `json:"index_id" db:"index_id"`
	ParentID        *uuid.UUID      `json:"parent_id,omitempty" db:"parent_id"`
	Type            VideoItemType   `json:"type" db:"type"`
	Title           string          `json:"title" db:"title"`
	SortTitle       *string         `json:"sort_title,omitempty" db:"sort_title"`
	Year            *int            `json:"year,omitempty" db:"year"`
	Number          *int            `json:"number,omitempty" db:"number"`
	SourcePath      *string         `json:"source_path,omitempty" db:"source_path"`
	Metadata        json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	AddedAt         time.Time       `json:"added_at" db:"added_at"`
	LatestAddedAt   time.Time       `json:"latest_added_at" db:"latest_added_at"`
}

// ──────────────────── VideoVersion ────────────────────

type VideoVersion struct {
	ID         uuid.UUID `json:"id" db:"id"`
	ItemID     uuid.UUID `json:"item_id" db:"item_id"`
	Edition    string    `json:"edition" db:"edition"`
	Container  *string   `json:"container,omitempty" db:"container"`
	Resolution *string   `json:"resolution,omitempty" db:"resolution"`
	RuntimeMs  *int64    `json:"runtime_ms,omitempty" db:"runtime_ms"`
	AddedAt    time.Time `json:"added_at" db:"added_at"`
}

// ──────────────────── VideoPart ────────────────────

type VideoPart struct {
	ID        uuid.UUID `json:"id" db:"id"`
	VersionID uuid.UUID `json:"version_id" db:"version_id"`
	Path      string    `json:"path" db:"path"`
	Size      int64     `json:"size" db:"size"`
	MTime     time.Time `json:"mtime" db:"mtime"`
	PartIndex int       `json:"part_index" db:"part_index"`
	FastHash  string    `json:"fast_hash" db:"fast_hash"`
}

// ──────────────────── ScanJob ────────────────────

type ScanJobStatus string

const (
	ScanJobQueued    ScanJobStatus = "queued"
	ScanJobScanning  ScanJobStatus = "scanning"
	ScanJobCompleted ScanJobStatus = "completed"
	ScanJobFailed    ScanJobStatus = "failed"
)

type ScanJob struct {
	ID          uuid.UUID     `json:"id" db:"id"`
	IndexID     uuid.UUID     `json:"index_id" db:"index_id"`
	Status      ScanJobStatus `json:"status" db:"status"`
	QueuedAt    time.Time     `json:"queued_at" db:"queued_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
}

// ──────────────────── ScanResult ────────────────────

// ScanResult summarizes one completed (or cancelled) scan pass.
type ScanResult struct {
	FilesFound    int      `json:"files_found"`
	FilesSkipped  int      `json:"files_skipped"`
	FilesAdded    int      `json:"files_added"`
	FilesMigrated int      `json:"files_migrated"`
	Errors        []string `json:"errors,omitempty"`

	// RootErrors holds the typed failures behind the corresponding entries
	// of Errors (currently only *scanerr.RootUnavailable) for a caller that
	// wants errors.As instead of string-matching. Not persisted.
	RootErrors []error `json:"-"`
}
