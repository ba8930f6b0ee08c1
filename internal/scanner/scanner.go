// Package scanner walks an index's root folders, classifies files, and
// materialises the result into the relational schema described in
// SPEC_FULL.md §6, reconciling moved files via the migration engine and
// recovering cleanly from a crash mid-scan.
package scanner

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/reelbox/reelbox/internal/classifier"
	"github.com/reelbox/reelbox/internal/fsprobe"
	"github.com/reelbox/reelbox/internal/migration"
	"github.com/reelbox/reelbox/internal/models"
	"github.com/reelbox/reelbox/internal/scanerr"
	"github.com/reelbox/reelbox/internal/staging"
	"github.com/reelbox/reelbox/internal/tracker"
)

var videoExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".avi": true, ".mov": true,
	".m4v": true, ".wmv": true, ".flv": true, ".webm": true,
	".ts": true, ".m2ts": true, ".mpg": true, ".mpeg": true,
}

// ProgressFunc is called periodically during a scan with running totals.
// Callers (e.g. the jobs package) are expected to throttle their own
// downstream broadcasts; the orchestrator invokes it once per directory.
type ProgressFunc func(found, processed int)

const defaultProbeWorkers = 8

// Scanner is the orchestrator. Per-scan state lives in the ScanLibrary
// invocation, so one Scanner can drive scans for several indexes,
// serialised by whatever owns the call sites (the jobs package enforces
// one in-flight scan per index via its queue). The probe cache is the one
// piece of state that legitimately outlives a single ScanLibrary call: it
// lets a rescan skip re-hashing a file whose (path, size, mtime) hasn't
// changed since the last pass.
type Scanner struct {
	Repo         Repository
	Prober       fsprobe.Prober
	ProbeWorkers int

	cache *probeCache
}

// New returns a Scanner backed by repo.
func New(repo Repository, prober fsprobe.Prober) *Scanner {
	return &Scanner{Repo: repo, Prober: prober, ProbeWorkers: defaultProbeWorkers, cache: newProbeCache(defaultCacheShards)}
}

func (s *Scanner) cacheLookup(indexID uuid.UUID, path string) (fsprobe.Result, bool) {
	if s.cache == nil {
		return fsprobe.Result{}, false
	}
	info, err := os.Stat(path)
	if err != nil {
		return fsprobe.Result{}, false
	}
	return s.cache.lookup(indexID, path, info.Size(), info.ModTime())
}

func (s *Scanner) cacheStore(indexID uuid.UUID, path string, res fsprobe.Result) {
	if s.cache == nil {
		return
	}
	s.cache.store(indexID, path, res)
}

// stackFrame is one entry of the explicit directory stack from §4.6. A
// non-exit frame processes a directory's own files then pushes its exit
// frame below its (reversed) subdirectories, so the exit frame only pops
// once every descendant has been fully processed — the post-order point
// at which a directory's tracked source_path, if any, is known complete.
type stackFrame struct {
	path string
	exit bool
}

// ScanLibrary walks every root folder of index, classifying, reconciling,
// and flushing content into the repository. It returns a summary even on
// a cancelled or partially-failed run; fatal errors (source-path conflict,
// storage error) are also returned so the caller can decide state
// transitions.
func (s *Scanner) ScanLibrary(ctx context.Context, index models.Index, progress ProgressFunc) (*models.ScanResult, error) {
	result := &models.ScanResult{}
	stage := staging.New()
	engine := migration.New(s.Repo, nil)

	for _, root := range index.RootFolders {
		if err := ctx.Err(); err != nil {
			return result, scanerr.Cancelled
		}

		if _, err := os.Stat(root); err != nil {
			rootErr := &scanerr.RootUnavailable{Path: root, Err: err}
			result.Errors = append(result.Errors, rootErr.Error())
			result.RootErrors = append(result.RootErrors, rootErr)
			log.Printf("scanner: %v", rootErr)
			continue
		}

		stage.Reset()
		trk := tracker.New()

		if err := s.walkRoot(ctx, index.ID, root, stage, trk, engine, result, progress); err != nil {
			if err == scanerr.Cancelled {
				return result, err
			}
			if conflict, ok := err.(*scanerr.SourcePathConflict); ok {
				result.Errors = append(result.Errors, conflict.Error())
				return result, conflict
			}
			return result, err
		}

		// Flush whatever is still staged for this root before the next
		// root's Reset: any source_path whose folder exit was never reached,
		// then loose movies/generics/extras staged under the empty key.
		for _, sp := range stage.PendingSourcePaths() {
			if err := s.flush(ctx, index.ID, sp, stage, result); err != nil {
				return result, err
			}
		}
		if err := s.flush(ctx, index.ID, "", stage, result); err != nil {
			return result, err
		}
	}

	return result, nil
}

func (s *Scanner) walkRoot(
	ctx context.Context,
	indexID uuid.UUID,
	root string,
	stage *staging.Staging,
	trk *tracker.Tracker,
	engine *migration.Engine,
	result *models.ScanResult,
	progress ProgressFunc,
) error {
	stack := []stackFrame{{path: root}}

	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if frame.exit {
			if trk.Remove(frame.path) {
				if err := s.flush(ctx, indexID, frame.path, stage, result); err != nil {
					return err
				}
			}
			continue
		}

		if err := ctx.Err(); err != nil {
			return scanerr.Cancelled
		}

		entries, err := os.ReadDir(frame.path)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("readdir %s: %v", frame.path, err))
			continue
		}

		var files []string
		var dirs []string
		for _, e := range entries {
			full := filepath.Join(frame.path, e.Name())
			if e.IsDir() {
				dirs = append(dirs, full)
				continue
			}
			if !videoExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
				continue
			}
			files = append(files, full)
		}
		sort.Strings(files)
		sort.Strings(dirs)

		if err := s.processFiles(ctx, indexID, files, stage, trk, engine, result); err != nil {
			return err
		}

		if progress != nil {
			progress(result.FilesFound, result.FilesAdded+result.FilesSkipped)
		}

		// Post-order: this directory's own exit frame must pop after every
		// descendant, so it goes on the stack below the (reversed)
		// subdirectories.
		stack = append(stack, stackFrame{path: frame.path, exit: true})
		for i := len(dirs) - 1; i >= 0; i-- {
			stack = append(stack, stackFrame{path: dirs[i]})
		}
	}

	return nil
}

type probeResult struct {
	path string
	res  fsprobe.Result
	err  error
}

// processFiles probes every file in a directory concurrently (the one
// parallel stage the concurrency model allows), then walks the results in
// original order so every staging/repository mutation stays serialised.
func (s *Scanner) processFiles(
	ctx context.Context,
	indexID uuid.UUID,
	files []string,
	stage *staging.Staging,
	trk *tracker.Tracker,
	engine *migration.Engine,
	result *models.ScanResult,
) error {
	if len(files) == 0 {
		return nil
	}

	results := make([]probeResult, len(files))
	workers := s.ProbeWorkers
	if workers <= 0 {
		workers = defaultProbeWorkers
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, path := range files {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, path string) {
			defer wg.Done()
			defer func() { <-sem }()
			if cached, ok := s.cacheLookup(indexID, path); ok {
				results[i] = probeResult{path: path, res: cached}
				return
			}
			res, err := s.Prober.ProbeContext(ctx, path)
			if err == nil {
				s.cacheStore(indexID, path, res)
			}
			results[i] = probeResult{path: path, res: res, err: err}
		}(i, path)
	}
	wg.Wait()

	for _, pr := range results {
		result.FilesFound++
		if pr.err != nil {
			result.FilesSkipped++
			result.Errors = append(result.Errors, fmt.Sprintf("probe %s: %v", pr.path, pr.err))
			continue
		}

		c := classifier.Classify(pr.path)
		if err := s.processFile(ctx, indexID, pr.path, pr.res, c, stage, trk, engine, result); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scanner) processFile(
	ctx context.Context,
	indexID uuid.UUID,
	path string,
	probe fsprobe.Result,
	c classifier.Classification,
	stage *staging.Staging,
	trk *tracker.Tracker,
	engine *migration.Engine,
	result *models.ScanResult,
) error {
	existing, err := s.Repo.FindPartByIdentity(ctx, probe.Size, probe.FastHash)
	if err != nil {
		return &scanerr.StorageError{Inner: err}
	}

	if len(existing) > 0 {
		return s.reconcileExisting(ctx, indexID, path, probe, c, existing[0], engine, result)
	}

	return s.stageNew(indexID, path, probe, c, stage, trk, result)
}

// reconcileExisting handles an already-known (size, fast_hash) identity:
// same path (mtime refresh only), or a moved file (path update, possibly
// via the migration engine when its source_path changed owners).
func (s *Scanner) reconcileExisting(
	ctx context.Context,
	indexID uuid.UUID,
	path string,
	probe fsprobe.Result,
	c classifier.Classification,
	ref PartRef,
	engine *migration.Engine,
	result *models.ScanResult,
) error {
	if ref.Path == path {
		if err := s.Repo.UpdatePartPath(ctx, ref.PartID, path, probe.MTime); err != nil {
			return &scanerr.StorageError{Inner: err}
		}
		return nil
	}

	direct, ancestor, versionID, err := s.Repo.PartOwner(ctx, ref.PartID)
	if err != nil {
		return &scanerr.StorageError{Inner: err}
	}

	oldSourcePath := ""
	if ancestor.SourcePath != nil {
		oldSourcePath = *ancestor.SourcePath
	}

	if oldSourcePath == c.SourcePath {
		// The show/movie that owns this source_path hasn't changed, so the
		// migration engine has nothing to do. For TV this can still mean
		// the episode's season changed underneath it (e.g. folded into
		// Specials) — reconcile that placement directly.
		if c.MediaType == classifier.TvEpisode {
			if err := s.reconcileTVPlacement(ctx, indexID, direct, versionID, c); err != nil {
				return err
			}
		}
		if err := s.Repo.UpdatePartPath(ctx, ref.PartID, path, probe.MTime); err != nil {
			return &scanerr.StorageError{Inner: err}
		}
		return nil
	}

	_, err = engine.Migrate(ctx, migration.Move{
		IndexID:       indexID,
		PartID:        ref.PartID,
		VersionID:     versionID,
		OldItem:       ancestor,
		DirectItem:    direct,
		NewSourcePath: c.SourcePath,
	})
	if err != nil {
		return &scanerr.StorageError{Inner: err}
	}
	if err := s.Repo.UpdatePartPath(ctx, ref.PartID, path, probe.MTime); err != nil {
		return &scanerr.StorageError{Inner: err}
	}
	result.FilesMigrated++
	return nil
}

// reconcileTVPlacement re-resolves an episode's season/episode slot within
// its (unchanged) show and, if the classified season/number no longer
// matches where the version currently lives, reparents the version there
// and prunes the old episode/season chain if it's now empty.
func (s *Scanner) reconcileTVPlacement(ctx context.Context, indexID uuid.UUID, direct models.VideoItem, versionID uuid.UUID, c classifier.Classification) error {
	episodeID, err := s.Repo.UpsertHierarchy(ctx, indexID,
		ShowAttrs{Title: c.ShowTitle, SourcePath: c.SourcePath},
		SeasonAttrs{Number: c.Season, Title: seasonTitle(c.Season)},
		EpisodeAttrs{Number: c.EpisodeStart, Title: fmt.Sprintf("Episode %d", c.EpisodeStart)},
	)
	if err != nil {
		return &scanerr.StorageError{Inner: err}
	}
	if episodeID == direct.ID {
		return nil
	}
	if err := s.Repo.MoveVersion(ctx, versionID, episodeID); err != nil {
		return &scanerr.StorageError{Inner: err}
	}
	return s.Repo.DeleteItemIfEmpty(ctx, direct.ID)
}

// stageNew handles a file whose (size, fast_hash) has never been seen: it
// either joins the tracked source_path's staging buffers, or — for a
// source_path-less movie/generic file arriving while nothing is tracked —
// is inserted immediately, skipping staging entirely.
func (s *Scanner) stageNew(
	indexID uuid.UUID,
	path string,
	probe fsprobe.Result,
	c classifier.Classification,
	stage *staging.Staging,
	trk *tracker.Tracker,
	result *models.ScanResult,
) error {
	entry := staging.Entry{Path: path, Classification: c, Size: probe.Size, MTime: probe.MTime, FastHash: probe.FastHash}

	if c.MediaType == classifier.Extra {
		// Extras carry no source_path of their own; key them by the tracked
		// ancestor source_path, if any, so they flush with (and can link to)
		// that show or movie.
		ancestor, _ := trk.Active()
		stage.StageExtra(ancestor, entry)
		return nil
	}

	if c.SourcePath != "" {
		if err := trk.Track(c.SourcePath); err != nil {
			return err
		}
		stage.StageNewContent(c.SourcePath, entry)
		return nil
	}

	if _, active := trk.Active(); !active {
		return s.insertImmediate(indexID, entry, result)
	}

	stage.StageNewContent("", entry)
	return nil
}

// insertImmediate handles the shortcut for a source_path-less movie or
// generic file discovered while no source_path is being tracked: there is
// no flush boundary to wait for, so it's written straight through.
func (s *Scanner) insertImmediate(indexID uuid.UUID, entry staging.Entry, result *models.ScanResult) error {
	ctx := context.Background()
	c := entry.Classification

	var itemID uuid.UUID
	var err error
	switch c.MediaType {
	case classifier.Movie:
		itemID, err = s.findOrCreateMovie(ctx, indexID, c)
	default:
		itemID, err = s.Repo.CreateGenericItem(ctx, indexID, genericTitle(entry.Path))
	}
	if err != nil {
		return &scanerr.StorageError{Inner: err}
	}

	if err := s.createVersionAndPart(ctx, itemID, c, entry); err != nil {
		return err
	}
	result.FilesAdded++
	return nil
}

// flush materialises everything staged for sourcePath (or the empty key,
// for loose content) into the repository: new_content first, extras
// second, per §4.4.
func (s *Scanner) flush(ctx context.Context, indexID uuid.UUID, sourcePath string, stage *staging.Staging, result *models.ScanResult) error {
	newContent, extras := stage.Flush(sourcePath)

	if err := s.flushNewContent(ctx, indexID, sourcePath, newContent, result); err != nil {
		return err
	}
	if err := s.flushExtras(ctx, indexID, sourcePath, extras, result); err != nil {
		return err
	}
	return nil
}

func (s *Scanner) flushNewContent(ctx context.Context, indexID uuid.UUID, sourcePath string, entries []staging.Entry, result *models.ScanResult) error {
	if len(entries) == 0 {
		return nil
	}

	switch entries[0].Classification.MediaType {
	case classifier.TvEpisode:
		return s.flushTV(ctx, indexID, sourcePath, entries, result)
	case classifier.Movie:
		return s.flushMovies(ctx, indexID, entries, result)
	default:
		for _, e := range entries {
			itemID, err := s.Repo.CreateGenericItem(ctx, indexID, genericTitle(e.Path))
			if err != nil {
				return &scanerr.StorageError{Inner: err}
			}
			if err := s.createVersionAndPart(ctx, itemID, e.Classification, e); err != nil {
				return err
			}
			result.FilesAdded++
		}
		return nil
	}
}

func (s *Scanner) flushTV(ctx context.Context, indexID uuid.UUID, sourcePath string, entries []staging.Entry, result *models.ScanResult) error {
	showTitle := entries[0].Classification.ShowTitle
	for _, e := range entries {
		c := e.Classification
		episodeID, err := s.Repo.UpsertHierarchy(ctx, indexID,
			ShowAttrs{Title: showTitle, SourcePath: sourcePath},
			SeasonAttrs{Number: c.Season, Title: seasonTitle(c.Season)},
			EpisodeAttrs{Number: c.EpisodeStart, Title: fmt.Sprintf("Episode %d", c.EpisodeStart)},
		)
		if err != nil {
			return &scanerr.StorageError{Inner: err}
		}
		if err := s.createVersionAndPart(ctx, episodeID, c, e); err != nil {
			return err
		}
		result.FilesAdded++
	}
	return nil
}

func (s *Scanner) flushMovies(ctx context.Context, indexID uuid.UUID, entries []staging.Entry, result *models.ScanResult) error {
	for _, e := range entries {
		c := e.Classification
		itemID, err := s.findOrCreateMovie(ctx, indexID, c)
		if err != nil {
			return &scanerr.StorageError{Inner: err}
		}
		if err := s.createVersionAndPart(ctx, itemID, c, e); err != nil {
			return err
		}
		result.FilesAdded++
	}
	return nil
}

func (s *Scanner) flushExtras(ctx context.Context, indexID uuid.UUID, sourcePath string, entries []staging.Entry, result *models.ScanResult) error {
	for _, e := range entries {
		itemID, err := s.Repo.CreateExtraItem(ctx, indexID, ExtraAttrs{Title: genericTitle(e.Path), SourcePath: sourcePath})
		if err != nil {
			return &scanerr.StorageError{Inner: err}
		}
		if err := s.createVersionAndPart(ctx, itemID, e.Classification, e); err != nil {
			return err
		}
		result.FilesAdded++
	}
	return nil
}

func (s *Scanner) findOrCreateMovie(ctx context.Context, indexID uuid.UUID, c classifier.Classification) (uuid.UUID, error) {
	attrs := MovieAttrs{Title: c.Title, Year: c.Year, SourcePath: c.SourcePath}
	existing, err := s.Repo.FindMovieItem(ctx, indexID, attrs)
	if err != nil {
		return uuid.Nil, err
	}
	if existing != nil {
		return existing.ID, nil
	}
	return s.Repo.CreateMovieItem(ctx, indexID, attrs)
}

func (s *Scanner) createVersionAndPart(ctx context.Context, itemID uuid.UUID, c classifier.Classification, e staging.Entry) error {
	edition := c.Edition
	if edition == "" {
		edition = "Default"
	}

	versionID, err := s.Repo.FindVersionByEdition(ctx, itemID, edition)
	if err != nil {
		return &scanerr.StorageError{Inner: err}
	}
	if versionID == nil {
		id, err := s.Repo.CreateVersion(ctx, itemID, VersionAttrs{Edition: edition})
		if err != nil {
			return &scanerr.StorageError{Inner: err}
		}
		versionID = &id
	}

	partIndex := 0
	if c.HasPart {
		partIndex = c.PartIndex
	}

	_, err = s.Repo.CreatePart(ctx, *versionID, PartAttrs{
		Path:      e.Path,
		Size:      e.Size,
		MTime:     e.MTime,
		FastHash:  e.FastHash,
		PartIndex: partIndex,
	})
	if err != nil {
		return &scanerr.StorageError{Inner: err}
	}
	return nil
}

func seasonTitle(number int) string {
	if number == 0 {
		return "Specials"
	}
	return fmt.Sprintf("Season %d", number)
}

func genericTitle(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
