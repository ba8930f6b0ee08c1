// Package repository is the Postgres-backed persistence layer: a single
// VideoRepository satisfies both the scanner's and the migration engine's
// narrow repository interfaces, grounded in the teacher's per-concern
// repository style (explicit column lists, RETURNING, sql.ErrNoRows
// handling, fmt.Errorf("...: %w", err) wrapping throughout).
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/reelbox/reelbox/internal/models"
	"github.com/reelbox/reelbox/internal/scanner"
)

type VideoRepository struct {
	db *sql.DB
}

func NewVideoRepository(db *sql.DB) *VideoRepository {
	return &VideoRepository{db: db}
}

const videoItemColumns = `id, index_id, parent_id, type, title, sort_title, year, number,
	source_path, metadata, added_at, latest_added_at`

func scanVideoItem(row interface{ Scan(dest ...interface{}) error }) (models.VideoItem, error) {
	var it models.VideoItem
	err := row.Scan(&it.ID, &it.IndexID, &it.ParentID, &it.Type, &it.Title, &it.SortTitle,
		&it.Year, &it.Number, &it.SourcePath, &it.Metadata, &it.AddedAt, &it.LatestAddedAt)
	return it, err
}

// ──────────────────── migration.Repository ────────────────────

func (r *VideoRepository) FindItemsBySourcePath(ctx context.Context, indexID uuid.UUID, sourcePath string) ([]models.VideoItem, error) {
	query := `SELECT ` + videoItemColumns + ` FROM video_items WHERE index_id = $1 AND source_path = $2`
	rows, err := r.db.QueryContext(ctx, query, indexID, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("find items by source_path: %w", err)
	}
	defer rows.Close()

	var out []models.VideoItem
	for rows.Next() {
		it, err := scanVideoItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *VideoRepository) UpdateItemSourcePath(ctx context.Context, itemID uuid.UUID, newSourcePath string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE video_items SET source_path = $1 WHERE id = $2`, newSourcePath, itemID)
	if err != nil {
		return fmt.Errorf("update item source_path: %w", err)
	}
	return nil
}

func (r *VideoRepository) CreateItemLike(ctx context.Context, template models.VideoItem, newSourcePath string) (uuid.UUID, error) {
	id := uuid.New()
	query := `
		INSERT INTO video_items (id, index_id, parent_id, type, title, sort_title, year, source_path, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, query, id, template.IndexID, template.ParentID, template.Type,
		template.Title, template.SortTitle, template.Year, newSourcePath, template.Metadata)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create item like %s: %w", template.ID, err)
	}
	return id, nil
}

func (r *VideoRepository) CountPartsInVersion(ctx context.Context, versionID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM video_parts WHERE version_id = $1`, versionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count parts in version %s: %w", versionID, err)
	}
	return n, nil
}

func (r *VideoRepository) CreateVersionLike(ctx context.Context, itemID uuid.UUID, templateVersionID uuid.UUID) (uuid.UUID, error) {
	id := uuid.New()
	query := `
		INSERT INTO video_versions (id, item_id, edition, container, resolution, runtime_ms)
		SELECT $1, $2, edition, container, resolution, runtime_ms FROM video_versions WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, id, itemID, templateVersionID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create version like %s: %w", templateVersionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return uuid.Nil, fmt.Errorf("create version like %s: template not found", templateVersionID)
	}
	return id, nil
}

func (r *VideoRepository) MovePart(ctx context.Context, partID uuid.UUID, toVersionID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `UPDATE video_parts SET version_id = $1 WHERE id = $2`, toVersionID, partID)
	if err != nil {
		return fmt.Errorf("move part %s: %w", partID, err)
	}
	return nil
}

func (r *VideoRepository) MoveVersion(ctx context.Context, versionID uuid.UUID, toItemID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `UPDATE video_versions SET item_id = $1 WHERE id = $2`, toItemID, versionID)
	if err != nil {
		return fmt.Errorf("move version %s: %w", versionID, err)
	}
	return nil
}

// DeleteItemIfEmpty deletes itemID if it has no children and no versions of
// its own, then walks up parent_id doing the same check on its parent, and
// so on — pruning a whole now-empty ancestor chain (e.g. a season left with
// no episodes after its last one moved elsewhere) in one call.
func (r *VideoRepository) DeleteItemIfEmpty(ctx context.Context, itemID uuid.UUID) error {
	query := `
		DELETE FROM video_items
		WHERE id = $1
		  AND NOT EXISTS (SELECT 1 FROM video_items WHERE parent_id = $1)
		  AND NOT EXISTS (SELECT 1 FROM video_versions WHERE item_id = $1)
		RETURNING parent_id`

	for {
		var parentID *uuid.UUID
		err := r.db.QueryRowContext(ctx, query, itemID).Scan(&parentID)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("delete item if empty %s: %w", itemID, err)
		}
		if parentID == nil {
			return nil
		}
		itemID = *parentID
	}
}

// ──────────────────── scanner.Repository ────────────────────

func (r *VideoRepository) FindPartByIdentity(ctx context.Context, size int64, fastHash string) ([]scanner.PartRef, error) {
	query := `
		SELECT p.id, p.version_id, v.item_id, p.path
		FROM video_parts p
		JOIN video_versions v ON v.id = p.version_id
		WHERE p.size = $1 AND p.fast_hash = $2`
	rows, err := r.db.QueryContext(ctx, query, size, fastHash)
	if err != nil {
		return nil, fmt.Errorf("find part by identity: %w", err)
	}
	defer rows.Close()

	var out []scanner.PartRef
	for rows.Next() {
		var ref scanner.PartRef
		if err := rows.Scan(&ref.PartID, &ref.VersionID, &ref.ItemID, &ref.Path); err != nil {
			return nil, fmt.Errorf("scan part ref: %w", err)
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

// PartOwner returns a part's direct owning item and version, plus the
// nearest ancestor (walking parent_id) that actually carries a source_path.
// For a movie, generic item or extra, direct and ancestor are the same row —
// those types own their source_path directly. For TV, only the show does;
// an episode and season always carry a nil source_path (see
// findOrCreateChildTx), so the ancestor walk is required to find it.
func (r *VideoRepository) PartOwner(ctx context.Context, partID uuid.UUID) (direct models.VideoItem, ancestor models.VideoItem, versionID uuid.UUID, err error) {
	var directItemID uuid.UUID
	err = r.db.QueryRowContext(ctx, `
		SELECT v.id, v.item_id
		FROM video_parts p
		JOIN video_versions v ON v.id = p.version_id
		WHERE p.id = $1`, partID).Scan(&versionID, &directItemID)
	if err != nil {
		return models.VideoItem{}, models.VideoItem{}, uuid.Nil, fmt.Errorf("part owner %s: %w", partID, err)
	}

	chain, err := r.itemChain(ctx, directItemID)
	if err != nil {
		return models.VideoItem{}, models.VideoItem{}, uuid.Nil, err
	}

	direct = chain[0]
	ancestor = direct
	for _, it := range chain {
		if it.SourcePath != nil && *it.SourcePath != "" {
			ancestor = it
			break
		}
	}
	return direct, ancestor, versionID, nil
}

// itemChain returns itemID and every ancestor reached by walking parent_id,
// itself first and the root last, via a recursive CTE over the
// self-referential video_items hierarchy.
func (r *VideoRepository) itemChain(ctx context.Context, itemID uuid.UUID) ([]models.VideoItem, error) {
	query := `
		WITH RECURSIVE chain AS (
			SELECT ` + videoItemColumns + `, 0 AS depth
			FROM video_items WHERE id = $1
			UNION ALL
			SELECT i.id, i.index_id, i.parent_id, i.type, i.title, i.sort_title, i.year, i.number,
			       i.source_path, i.metadata, i.added_at, i.latest_added_at, chain.depth + 1
			FROM video_items i
			JOIN chain ON chain.parent_id = i.id
		)
		SELECT id, index_id, parent_id, type, title, sort_title, year, number,
		       source_path, metadata, added_at, latest_added_at
		FROM chain ORDER BY depth`
	rows, err := r.db.QueryContext(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("item chain %s: %w", itemID, err)
	}
	defer rows.Close()

	var chain []models.VideoItem
	for rows.Next() {
		it, err := scanVideoItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item chain row: %w", err)
		}
		chain = append(chain, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("item chain %s: not found", itemID)
	}
	return chain, nil
}

func (r *VideoRepository) FindMovieItem(ctx context.Context, indexID uuid.UUID, attrs scanner.MovieAttrs) (*models.VideoItem, error) {
	query := `SELECT ` + videoItemColumns + ` FROM video_items
		WHERE index_id = $1 AND type = $2 AND title = $3 AND year IS NOT DISTINCT FROM $4
		  AND source_path IS NOT DISTINCT FROM $5
		LIMIT 1`
	year := yearPtr(attrs.Year)
	var sourcePath *string
	if attrs.SourcePath != "" {
		sourcePath = &attrs.SourcePath
	}
	row := r.db.QueryRowContext(ctx, query, indexID, models.ItemTypeMovie, attrs.Title, year, sourcePath)
	it, err := scanVideoItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find movie item: %w", err)
	}
	return &it, nil
}

func (r *VideoRepository) UpsertHierarchy(ctx context.Context, indexID uuid.UUID, show scanner.ShowAttrs, season scanner.SeasonAttrs, episode scanner.EpisodeAttrs) (uuid.UUID, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upsert hierarchy: begin: %w", err)
	}
	defer tx.Rollback()

	showID, err := findOrCreateChildTx(ctx, tx, indexID, nil, models.ItemTypeShow, show.Title, &show.SourcePath, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upsert show: %w", err)
	}
	seasonID, err := findOrCreateChildTx(ctx, tx, indexID, &showID, models.ItemTypeSeason, season.Title, nil, &season.Number)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upsert season: %w", err)
	}
	episodeID, err := findOrCreateChildTx(ctx, tx, indexID, &seasonID, models.ItemTypeEpisode, episode.Title, nil, &episode.Number)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upsert episode: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("upsert hierarchy: commit: %w", err)
	}
	return episodeID, nil
}

// findOrCreateChildTx is the idempotent walk-or-create step UpsertHierarchy
// runs three times (show, season, episode): a season/episode is identified
// by (parent_id, number); a show, which has no number, is identified by its
// source_path — the one column invariant 4 guarantees is unique per show
// within an index.
func findOrCreateChildTx(ctx context.Context, tx *sql.Tx, indexID uuid.UUID, parentID *uuid.UUID, typ models.VideoItemType, title string, sourcePath *string, number *int) (uuid.UUID, error) {
	var query string
	var args []interface{}
	switch {
	case number != nil:
		query = `SELECT id FROM video_items WHERE index_id = $1 AND type = $2 AND parent_id IS NOT DISTINCT FROM $3 AND number = $4`
		args = []interface{}{indexID, typ, parentID, *number}
	default:
		query = `SELECT id FROM video_items WHERE index_id = $1 AND type = $2 AND parent_id IS NOT DISTINCT FROM $3 AND source_path IS NOT DISTINCT FROM $4`
		args = []interface{}{indexID, typ, parentID, sourcePath}
	}

	var id uuid.UUID
	err := tx.QueryRowContext(ctx, query, args...).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return uuid.Nil, fmt.Errorf("lookup %s: %w", typ, err)
	}

	id = uuid.New()
	insert := `INSERT INTO video_items (id, index_id, parent_id, type, title, number, source_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := tx.ExecContext(ctx, insert, id, indexID, parentID, typ, title, number, sourcePath); err != nil {
		return uuid.Nil, fmt.Errorf("insert %s: %w", typ, err)
	}
	return id, nil
}

func (r *VideoRepository) CreateMovieItem(ctx context.Context, indexID uuid.UUID, attrs scanner.MovieAttrs) (uuid.UUID, error) {
	id := uuid.New()
	var sourcePath *string
	if attrs.SourcePath != "" {
		sourcePath = &attrs.SourcePath
	}
	query := `INSERT INTO video_items (id, index_id, type, title, year, source_path) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(ctx, query, id, indexID, models.ItemTypeMovie, attrs.Title, yearPtr(attrs.Year), sourcePath); err != nil {
		return uuid.Nil, fmt.Errorf("create movie item: %w", err)
	}
	return id, nil
}

func (r *VideoRepository) CreateExtraItem(ctx context.Context, indexID uuid.UUID, attrs scanner.ExtraAttrs) (uuid.UUID, error) {
	id := uuid.New()
	query := `INSERT INTO video_items (id, index_id, type, title) VALUES ($1, $2, $3, $4)`
	if _, err := r.db.ExecContext(ctx, query, id, indexID, models.ItemTypeExtra, attrs.Title); err != nil {
		return uuid.Nil, fmt.Errorf("create extra item: %w", err)
	}
	// Soft-linkage (SPEC_FULL.md §9): opportunistically attach to a show or
	// movie that already owns this source_path, if one exists.
	if attrs.SourcePath != "" {
		owners, err := r.FindItemsBySourcePath(ctx, indexID, attrs.SourcePath)
		if err == nil && len(owners) > 0 {
			_, _ = r.db.ExecContext(ctx, `UPDATE video_items SET parent_id = $1 WHERE id = $2`, owners[0].ID, id)
		}
	}
	return id, nil
}

func (r *VideoRepository) CreateGenericItem(ctx context.Context, indexID uuid.UUID, title string) (uuid.UUID, error) {
	id := uuid.New()
	query := `INSERT INTO video_items (id, index_id, type, title) VALUES ($1, $2, $3, $4)`
	if _, err := r.db.ExecContext(ctx, query, id, indexID, models.ItemTypeVideo, title); err != nil {
		return uuid.Nil, fmt.Errorf("create generic item: %w", err)
	}
	return id, nil
}

func (r *VideoRepository) CreateVersion(ctx context.Context, itemID uuid.UUID, attrs scanner.VersionAttrs) (uuid.UUID, error) {
	id := uuid.New()
	var container, resolution *string
	var runtimeMs *int64
	if attrs.Container != "" {
		container = &attrs.Container
	}
	if attrs.Resolution != "" {
		resolution = &attrs.Resolution
	}
	if attrs.RuntimeMs != 0 {
		runtimeMs = &attrs.RuntimeMs
	}
	query := `INSERT INTO video_versions (id, item_id, edition, container, resolution, runtime_ms) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(ctx, query, id, itemID, attrs.Edition, container, resolution, runtimeMs); err != nil {
		return uuid.Nil, fmt.Errorf("create version: %w", err)
	}
	return id, nil
}

func (r *VideoRepository) FindVersionByEdition(ctx context.Context, itemID uuid.UUID, edition string) (*uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRowContext(ctx, `SELECT id FROM video_versions WHERE item_id = $1 AND edition = $2`, itemID, edition).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find version by edition: %w", err)
	}
	return &id, nil
}

func (r *VideoRepository) CreatePart(ctx context.Context, versionID uuid.UUID, attrs scanner.PartAttrs) (uuid.UUID, error) {
	id := uuid.New()
	query := `INSERT INTO video_parts (id, version_id, path, size, mtime, part_index, fast_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(ctx, query, id, versionID, attrs.Path, attrs.Size, attrs.MTime, attrs.PartIndex, attrs.FastHash); err != nil {
		return uuid.Nil, fmt.Errorf("create part %s: %w", attrs.Path, err)
	}
	return id, nil
}

func (r *VideoRepository) UpdatePartPath(ctx context.Context, partID uuid.UUID, newPath string, newMTime time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE video_parts SET path = $1, mtime = $2 WHERE id = $3`, newPath, newMTime, partID)
	if err != nil {
		return fmt.Errorf("update part path %s: %w", partID, err)
	}
	return nil
}

// ──────────────────── Index ────────────────────

func (r *VideoRepository) CreateIndex(ctx context.Context, idx *models.Index) error {
	query := `INSERT INTO indexes (id, name, type, root_folders, status) VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`
	return r.db.QueryRowContext(ctx, query, idx.ID, idx.Name, idx.Type, pq.Array(idx.RootFolders), idx.Status).
		Scan(&idx.CreatedAt, &idx.UpdatedAt)
}

func (r *VideoRepository) GetIndex(ctx context.Context, id uuid.UUID) (*models.Index, error) {
	idx := &models.Index{}
	query := `SELECT id, name, type, root_folders, status, created_at, updated_at FROM indexes WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&idx.ID, &idx.Name, &idx.Type, pq.Array(&idx.RootFolders), &idx.Status, &idx.CreatedAt, &idx.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("index not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get index: %w", err)
	}
	return idx, nil
}

func (r *VideoRepository) UpdateIndexStatus(ctx context.Context, id uuid.UUID, status models.IndexStatus) error {
	_, err := r.db.ExecContext(ctx, `UPDATE indexes SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update index status: %w", err)
	}
	return nil
}

func (r *VideoRepository) ListIndexes(ctx context.Context) ([]models.Index, error) {
	query := `SELECT id, name, type, root_folders, status, created_at, updated_at FROM indexes ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}
	defer rows.Close()

	var out []models.Index
	for rows.Next() {
		var idx models.Index
		if err := rows.Scan(&idx.ID, &idx.Name, &idx.Type, pq.Array(&idx.RootFolders), &idx.Status, &idx.CreatedAt, &idx.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan index: %w", err)
		}
		out = append(out, idx)
	}
	return out, rows.Err()
}

// ──────────────────── ScanJob ────────────────────

func (r *VideoRepository) CreateScanJob(ctx context.Context, indexID uuid.UUID) (uuid.UUID, error) {
	id := uuid.New()
	query := `INSERT INTO scan_jobs (id, index_id, status) VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, id, indexID, models.ScanJobQueued); err != nil {
		return uuid.Nil, fmt.Errorf("create scan job: %w", err)
	}
	return id, nil
}

func (r *VideoRepository) MarkScanJobStarted(ctx context.Context, jobID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `UPDATE scan_jobs SET status = $1, started_at = now() WHERE id = $2`, models.ScanJobScanning, jobID)
	if err != nil {
		return fmt.Errorf("mark scan job started: %w", err)
	}
	return nil
}

// CompleteScanJob records the terminal state of a scan job. The summary
// counts themselves are not persisted here — the caller broadcasts them via
// EventNotifier — scan_jobs only tracks lifecycle state per §6.3.
func (r *VideoRepository) CompleteScanJob(ctx context.Context, jobID uuid.UUID, result models.ScanResult) error {
	status := models.ScanJobCompleted
	if len(result.Errors) > 0 {
		status = models.ScanJobFailed
	}
	_, err := r.db.ExecContext(ctx, `UPDATE scan_jobs SET status = $1, completed_at = now() WHERE id = $2`, status, jobID)
	if err != nil {
		return fmt.Errorf("complete scan job: %w", err)
	}
	return nil
}

// RecoverInterruptedScans coerces any scanning job left over from a crash
// back to queued (spec.md §4.6's restart rule), grounded in the teacher's
// own crash-tolerant use of deterministic per-library task IDs to avoid a
// double-enqueue after restart.
func (r *VideoRepository) RecoverInterruptedScans(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE scan_jobs SET status = $1 WHERE status = $2`, models.ScanJobQueued, models.ScanJobScanning)
	if err != nil {
		return 0, fmt.Errorf("recover interrupted scans: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func yearPtr(year int) *int {
	if year == 0 {
		return nil
	}
	return &year
}
