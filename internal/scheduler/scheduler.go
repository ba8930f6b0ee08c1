// Package scheduler enqueues a periodic rescan per index on a cron
// schedule, replacing the teacher's ticker-based per-library polling with
// github.com/robfig/cron/v3 per SPEC_FULL.md §8 and §9's re-scan
// requirement.
package scheduler

import (
	"context"
	"log"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/reelbox/reelbox/internal/models"
)

// OnScanDue is called when an index is due for a scheduled rescan.
type OnScanDue func(indexID uuid.UUID)

// IndexLister is the narrow repository slice scheduler needs.
type IndexLister interface {
	ListIndexes(ctx context.Context) ([]models.Index, error)
}

// Scheduler fires callback for every index on the given cron schedule.
type Scheduler struct {
	repo     IndexLister
	callback OnScanDue
	cron     *cron.Cron
}

// New creates a scheduler that runs schedule (standard 5-field cron
// syntax) against the indexes in repo. An empty or invalid schedule is
// rejected with an error; cmd/reelbox skips building a Scheduler when
// CRON_SCAN_SCHEDULE is empty.
func New(repo IndexLister, schedule string, cb OnScanDue) (*Scheduler, error) {
	c := cron.New()
	s := &Scheduler{repo: repo, callback: cb, cron: c}
	if _, err := c.AddFunc(schedule, s.check); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Println("scheduler: periodic rescan checker started")
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) check() {
	indexes, err := s.repo.ListIndexes(context.Background())
	if err != nil {
		log.Printf("scheduler: error listing indexes: %v", err)
		return
	}
	for _, idx := range indexes {
		if idx.Status == models.IndexStatusScanning {
			continue
		}
		log.Printf("scheduler: index %q is due for a scheduled rescan", idx.Name)
		s.callback(idx.ID)
	}
}
