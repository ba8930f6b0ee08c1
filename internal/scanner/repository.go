package scanner

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/reelbox/reelbox/internal/migration"
	"github.com/reelbox/reelbox/internal/models"
)

// PartRef is the identity-lookup result for find_part_by_identity: enough
// to know where an existing part lives without fetching its whole chain.
type PartRef struct {
	PartID    uuid.UUID
	VersionID uuid.UUID
	ItemID    uuid.UUID
	Path      string
}

// ShowAttrs, SeasonAttrs and EpisodeAttrs are the arguments to
// upsert_hierarchy: a show/season/episode triple resolved or created in one
// idempotent call.
type ShowAttrs struct {
	Title      string
	SourcePath string
}

type SeasonAttrs struct {
	Number int
	Title  string
}

type EpisodeAttrs struct {
	Number int
	Title  string
}

// MovieAttrs describes a movie item find-or-create.
type MovieAttrs struct {
	Title      string
	Year       int
	SourcePath string // "" for a loose movie with no owning folder.
}

// ExtraAttrs describes an extra item. SourcePath is the tracked ancestor
// source_path the extra was staged under ("" if none); a repository may use
// it to attach the extra to the show or movie owning that path (see
// SPEC_FULL.md §9).
type ExtraAttrs struct {
	Title      string
	SourcePath string
}

// VersionAttrs describes a video_version to create.
type VersionAttrs struct {
	Edition    string
	Container  string
	Resolution string
	RuntimeMs  int64
}

// PartAttrs describes a video_part to create.
type PartAttrs struct {
	Path      string
	Size      int64
	MTime     time.Time
	FastHash  string
	PartIndex int
}

// Repository is everything the orchestrator needs from the relational
// store. It embeds migration.Repository so a single Postgres-backed type
// satisfies both the orchestrator and the migration engine.
type Repository interface {
	migration.Repository

	FindPartByIdentity(ctx context.Context, size int64, fastHash string) ([]PartRef, error)
	// PartOwner returns both the part's direct owning item (the episode,
	// for TV) and the nearest ancestor that actually carries a source_path
	// (the show, for TV; itself, for a movie or generic item) — the item
	// migration must key rename/merge/split/move off, since for TV only the
	// show carries a source_path.
	PartOwner(ctx context.Context, partID uuid.UUID) (direct models.VideoItem, ancestor models.VideoItem, versionID uuid.UUID, err error)
	FindMovieItem(ctx context.Context, indexID uuid.UUID, attrs MovieAttrs) (*models.VideoItem, error)

	UpsertHierarchy(ctx context.Context, indexID uuid.UUID, show ShowAttrs, season SeasonAttrs, episode EpisodeAttrs) (uuid.UUID, error)
	CreateMovieItem(ctx context.Context, indexID uuid.UUID, attrs MovieAttrs) (uuid.UUID, error)
	CreateExtraItem(ctx context.Context, indexID uuid.UUID, attrs ExtraAttrs) (uuid.UUID, error)
	CreateGenericItem(ctx context.Context, indexID uuid.UUID, title string) (uuid.UUID, error)

	CreateVersion(ctx context.Context, itemID uuid.UUID, attrs VersionAttrs) (uuid.UUID, error)
	FindVersionByEdition(ctx context.Context, itemID uuid.UUID, edition string) (*uuid.UUID, error)
	CreatePart(ctx context.Context, versionID uuid.UUID, attrs PartAttrs) (uuid.UUID, error)
	UpdatePartPath(ctx context.Context, partID uuid.UUID, newPath string, newMTime time.Time) error
}
