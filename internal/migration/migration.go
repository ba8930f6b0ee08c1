// Package migration implements the four-scenario move of a video_part (and
// possibly its owning version) between video_item parents when a file's
// classified source_path no longer matches the item that currently owns it.
package migration

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/reelbox/reelbox/internal/models"
)

// Repository is the subset of repository operations the migration engine
// needs. It is defined here, by the consumer, rather than alongside the
// concrete Postgres implementation.
type Repository interface {
	FindItemsBySourcePath(ctx context.Context, indexID uuid.UUID, sourcePath string) ([]models.VideoItem, error)
	UpdateItemSourcePath(ctx context.Context, itemID uuid.UUID, newSourcePath string) error
	CreateItemLike(ctx context.Context, template models.VideoItem, newSourcePath string) (uuid.UUID, error)
	CountPartsInVersion(ctx context.Context, versionID uuid.UUID) (int, error)
	CreateVersionLike(ctx context.Context, itemID uuid.UUID, templateVersionID uuid.UUID) (uuid.UUID, error)
	MovePart(ctx context.Context, partID uuid.UUID, toVersionID uuid.UUID) error
	MoveVersion(ctx context.Context, versionID uuid.UUID, toItemID uuid.UUID) error
	DeleteItemIfEmpty(ctx context.Context, itemID uuid.UUID) error
}

// StatFunc reports whether a path still exists on disk. Exists as an
// injection point so tests don't have to touch the real filesystem.
type StatFunc func(path string) bool

// Engine runs the migration table in §4.7 against a Repository.
type Engine struct {
	Repo Repository
	Stat StatFunc
}

// New returns an Engine. A nil stat defaults to os.Stat.
func New(repo Repository, stat StatFunc) *Engine {
	if stat == nil {
		stat = func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		}
	}
	return &Engine{Repo: repo, Stat: stat}
}

// Move is everything the orchestrator knows about a part whose classified
// source_path has diverged from its current owner. OldItem is the nearest
// ancestor that actually carries the old source_path — the item rename/
// merge/split/move dispatch and rename's UpdateItemSourcePath operate on
// (the show, for TV; itself, for a movie). DirectItem is the part's actual
// direct owner (the episode, for TV) — the node that becomes empty, and so
// needs a DeleteItemIfEmpty check, once its version has been reparented
// away. DirectItem defaults to OldItem when left unset, which is the
// correct behaviour for movies and generic items where the two coincide.
type Move struct {
	IndexID       uuid.UUID
	PartID        uuid.UUID
	VersionID     uuid.UUID
	OldItem       models.VideoItem
	DirectItem    models.VideoItem
	NewSourcePath string
}

// Scenario names the row of the §4.7 table that fired, for logging and
// tests.
type Scenario string

const (
	ScenarioRename Scenario = "rename"
	ScenarioMerge  Scenario = "merge"
	ScenarioSplit  Scenario = "split"
	ScenarioMove   Scenario = "move"
)

// Migrate dispatches m to the correct §4.7 scenario and executes it.
func (e *Engine) Migrate(ctx context.Context, m Move) (Scenario, error) {
	if m.DirectItem.ID == uuid.Nil {
		m.DirectItem = m.OldItem
	}

	oldSourcePath := ""
	if m.OldItem.SourcePath != nil {
		oldSourcePath = *m.OldItem.SourcePath
	}
	oldAlive := oldSourcePath != "" && e.Stat(oldSourcePath)

	existing, err := e.Repo.FindItemsBySourcePath(ctx, m.IndexID, m.NewSourcePath)
	if err != nil {
		return "", fmt.Errorf("migration: find items by source_path: %w", err)
	}
	newExists := len(existing) > 0

	switch {
	case !oldAlive && !newExists:
		return ScenarioRename, e.rename(ctx, m)
	case !oldAlive && newExists:
		return ScenarioMerge, e.merge(ctx, m, existing[0])
	case oldAlive && !newExists:
		return ScenarioSplit, e.split(ctx, m)
	default:
		return ScenarioMove, e.move(ctx, m, existing[0])
	}
}

func (e *Engine) rename(ctx context.Context, m Move) error {
	return e.Repo.UpdateItemSourcePath(ctx, m.OldItem.ID, m.NewSourcePath)
}

func (e *Engine) merge(ctx context.Context, m Move, destination models.VideoItem) error {
	if err := e.reparentPart(ctx, m, destination.ID); err != nil {
		return err
	}
	return e.Repo.DeleteItemIfEmpty(ctx, m.DirectItem.ID)
}

func (e *Engine) split(ctx context.Context, m Move) error {
	newItemID, err := e.Repo.CreateItemLike(ctx, m.OldItem, m.NewSourcePath)
	if err != nil {
		return fmt.Errorf("migration: create split item: %w", err)
	}
	return e.reparentPart(ctx, m, newItemID)
}

func (e *Engine) move(ctx context.Context, m Move, destination models.VideoItem) error {
	return e.reparentPart(ctx, m, destination.ID)
}

// reparentPart implements the reparent_part semantics: if the part's
// version has more than one part, create a new version under the
// destination item and move only this part, leaving the rest of the
// source version in place; otherwise move the whole version across.
func (e *Engine) reparentPart(ctx context.Context, m Move, toItemID uuid.UUID) error {
	count, err := e.Repo.CountPartsInVersion(ctx, m.VersionID)
	if err != nil {
		return fmt.Errorf("migration: count parts: %w", err)
	}

	if count > 1 {
		newVersionID, err := e.Repo.CreateVersionLike(ctx, toItemID, m.VersionID)
		if err != nil {
			return fmt.Errorf("migration: create destination version: %w", err)
		}
		if err := e.Repo.MovePart(ctx, m.PartID, newVersionID); err != nil {
			return fmt.Errorf("migration: move part: %w", err)
		}
		return nil
	}

	if err := e.Repo.MoveVersion(ctx, m.VersionID, toItemID); err != nil {
		return fmt.Errorf("migration: move whole version: %w", err)
	}
	return nil
}
