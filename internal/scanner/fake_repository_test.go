package scanner

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/reelbox/reelbox/internal/models"
)

// fakeRepository is an in-memory stand-in for the Postgres repository used
// to exercise the orchestrator without a database. It is intentionally
// naive — linear scans, no real transactions — since it only needs to be
// correct, not fast.
type fakeRepository struct {
	items    map[uuid.UUID]*models.VideoItem
	versions map[uuid.UUID]*models.VideoVersion
	parts    map[uuid.UUID]*models.VideoPart
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		items:    map[uuid.UUID]*models.VideoItem{},
		versions: map[uuid.UUID]*models.VideoVersion{},
		parts:    map[uuid.UUID]*models.VideoPart{},
	}
}

func (r *fakeRepository) FindPartByIdentity(_ context.Context, size int64, fastHash string) ([]PartRef, error) {
	var out []PartRef
	for _, p := range r.parts {
		if p.Size == size && p.FastHash == fastHash {
			v := r.versions[p.VersionID]
			out = append(out, PartRef{PartID: p.ID, VersionID: p.VersionID, ItemID: v.ItemID, Path: p.Path})
		}
	}
	return out, nil
}

func (r *fakeRepository) PartOwner(_ context.Context, partID uuid.UUID) (models.VideoItem, models.VideoItem, uuid.UUID, error) {
	p := r.parts[partID]
	v := r.versions[p.VersionID]
	direct := *r.items[v.ItemID]

	ancestor := direct
	for cur := direct; ; {
		if cur.SourcePath != nil && *cur.SourcePath != "" {
			ancestor = cur
			break
		}
		if cur.ParentID == nil {
			break
		}
		cur = *r.items[*cur.ParentID]
	}
	return direct, ancestor, v.ID, nil
}

func (r *fakeRepository) FindMovieItem(_ context.Context, indexID uuid.UUID, attrs MovieAttrs) (*models.VideoItem, error) {
	for _, it := range r.items {
		if it.IndexID != indexID || it.Type != models.ItemTypeMovie {
			continue
		}
		if attrs.SourcePath != "" {
			if it.SourcePath != nil && *it.SourcePath == attrs.SourcePath {
				return it, nil
			}
			continue
		}
		year := 0
		if it.Year != nil {
			year = *it.Year
		}
		if it.Title == attrs.Title && year == attrs.Year {
			return it, nil
		}
	}
	return nil, nil
}

func (r *fakeRepository) FindItemsBySourcePath(_ context.Context, indexID uuid.UUID, sourcePath string) ([]models.VideoItem, error) {
	var out []models.VideoItem
	for _, it := range r.items {
		if it.IndexID == indexID && it.SourcePath != nil && *it.SourcePath == sourcePath {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (r *fakeRepository) FindChildrenByParentAndNumber(_ context.Context, parentID uuid.UUID, number int) ([]models.VideoItem, error) {
	var out []models.VideoItem
	for _, it := range r.items {
		if it.ParentID != nil && *it.ParentID == parentID && it.Number != nil && *it.Number == number {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (r *fakeRepository) UpsertHierarchy(_ context.Context, indexID uuid.UUID, show ShowAttrs, season SeasonAttrs, episode EpisodeAttrs) (uuid.UUID, error) {
	showItem := r.findOrCreateChild(indexID, nil, models.ItemTypeShow, show.Title, &show.SourcePath, nil)
	seasonItem := r.findOrCreateChild(indexID, &showItem.ID, models.ItemTypeSeason, season.Title, nil, &season.Number)
	episodeItem := r.findOrCreateChild(indexID, &seasonItem.ID, models.ItemTypeEpisode, episode.Title, nil, &episode.Number)
	return episodeItem.ID, nil
}

func (r *fakeRepository) findOrCreateChild(indexID uuid.UUID, parentID *uuid.UUID, typ models.VideoItemType, title string, sourcePath *string, number *int) *models.VideoItem {
	for _, it := range r.items {
		if it.IndexID != indexID || it.Type != typ {
			continue
		}
		if !uuidPtrEqual(it.ParentID, parentID) {
			continue
		}
		if number != nil {
			if it.Number == nil || *it.Number != *number {
				continue
			}
		} else if it.Title != title {
			continue
		}
		return it
	}
	now := time.Now()
	item := &models.VideoItem{
		ID: uuid.New(), IndexID: indexID, ParentID: parentID, Type: typ,
		Title: title, SourcePath: sourcePath, Number: number,
		AddedAt: now, LatestAddedAt: now,
	}
	r.items[item.ID] = item
	return item
}

func uuidPtrEqual(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (r *fakeRepository) CreateMovieItem(_ context.Context, indexID uuid.UUID, attrs MovieAttrs) (uuid.UUID, error) {
	now := time.Now()
	var sp *string
	if attrs.SourcePath != "" {
		sp = &attrs.SourcePath
	}
	year := attrs.Year
	item := &models.VideoItem{
		ID: uuid.New(), IndexID: indexID, Type: models.ItemTypeMovie,
		Title: attrs.Title, Year: &year, SourcePath: sp,
		AddedAt: now, LatestAddedAt: now,
	}
	r.items[item.ID] = item
	return item.ID, nil
}

func (r *fakeRepository) CreateExtraItem(_ context.Context, indexID uuid.UUID, attrs ExtraAttrs) (uuid.UUID, error) {
	now := time.Now()
	var sp *string
	if attrs.SourcePath != "" {
		sp = &attrs.SourcePath
	}
	item := &models.VideoItem{ID: uuid.New(), IndexID: indexID, Type: models.ItemTypeExtra, Title: attrs.Title, SourcePath: sp, AddedAt: now, LatestAddedAt: now}
	r.items[item.ID] = item
	return item.ID, nil
}

func (r *fakeRepository) CreateGenericItem(_ context.Context, indexID uuid.UUID, title string) (uuid.UUID, error) {
	now := time.Now()
	item := &models.VideoItem{ID: uuid.New(), IndexID: indexID, Type: models.ItemTypeVideo, Title: title, AddedAt: now, LatestAddedAt: now}
	r.items[item.ID] = item
	return item.ID, nil
}

func (r *fakeRepository) CreateVersion(_ context.Context, itemID uuid.UUID, attrs VersionAttrs) (uuid.UUID, error) {
	v := &models.VideoVersion{ID: uuid.New(), ItemID: itemID, Edition: attrs.Edition, AddedAt: time.Now()}
	r.versions[v.ID] = v
	return v.ID, nil
}

func (r *fakeRepository) FindVersionByEdition(_ context.Context, itemID uuid.UUID, edition string) (*uuid.UUID, error) {
	for _, v := range r.versions {
		if v.ItemID == itemID && v.Edition == edition {
			id := v.ID
			return &id, nil
		}
	}
	return nil, nil
}

func (r *fakeRepository) CreatePart(_ context.Context, versionID uuid.UUID, attrs PartAttrs) (uuid.UUID, error) {
	p := &models.VideoPart{
		ID: uuid.New(), VersionID: versionID, Path: attrs.Path, Size: attrs.Size,
		MTime: attrs.MTime, PartIndex: attrs.PartIndex, FastHash: attrs.FastHash,
	}
	r.parts[p.ID] = p
	return p.ID, nil
}

func (r *fakeRepository) UpdatePartPath(_ context.Context, partID uuid.UUID, newPath string, newMTime time.Time) error {
	r.parts[partID].Path = newPath
	r.parts[partID].MTime = newMTime
	return nil
}

// migration.Repository methods.

func (r *fakeRepository) UpdateItemSourcePath(_ context.Context, itemID uuid.UUID, newSourcePath string) error {
	r.items[itemID].SourcePath = &newSourcePath
	return nil
}

func (r *fakeRepository) CreateItemLike(_ context.Context, template models.VideoItem, newSourcePath string) (uuid.UUID, error) {
	now := time.Now()
	clone := template
	clone.ID = uuid.New()
	clone.SourcePath = &newSourcePath
	clone.AddedAt, clone.LatestAddedAt = now, now
	r.items[clone.ID] = &clone
	return clone.ID, nil
}

func (r *fakeRepository) CountPartsInVersion(_ context.Context, versionID uuid.UUID) (int, error) {
	n := 0
	for _, p := range r.parts {
		if p.VersionID == versionID {
			n++
		}
	}
	return n, nil
}

func (r *fakeRepository) CreateVersionLike(_ context.Context, itemID uuid.UUID, templateVersionID uuid.UUID) (uuid.UUID, error) {
	tv := r.versions[templateVersionID]
	v := &models.VideoVersion{ID: uuid.New(), ItemID: itemID, Edition: tv.Edition, AddedAt: time.Now()}
	r.versions[v.ID] = v
	return v.ID, nil
}

func (r *fakeRepository) MovePart(_ context.Context, partID uuid.UUID, toVersionID uuid.UUID) error {
	r.parts[partID].VersionID = toVersionID
	return nil
}

func (r *fakeRepository) MoveVersion(_ context.Context, versionID uuid.UUID, toItemID uuid.UUID) error {
	r.versions[versionID].ItemID = toItemID
	return nil
}

// DeleteItemIfEmpty mirrors the real repository's recursive prune: delete
// itemID if it's childless and versionless, then repeat on its parent.
func (r *fakeRepository) DeleteItemIfEmpty(_ context.Context, itemID uuid.UUID) error {
	for {
		it, ok := r.items[itemID]
		if !ok {
			return nil
		}
		for _, v := range r.versions {
			if v.ItemID == itemID {
				return nil
			}
		}
		for _, other := range r.items {
			if other.ParentID != nil && *other.ParentID == itemID {
				return nil
			}
		}
		delete(r.items, itemID)
		if it.ParentID == nil {
			return nil
		}
		itemID = *it.ParentID
	}
}
