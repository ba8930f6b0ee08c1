package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/reelbox/reelbox/internal/models"
	"github.com/reelbox/reelbox/internal/scanner"
)

// EventNotifier is the narrow broadcast hook scan progress is pushed
// through. Non-goals exclude a UI, so reelbox ships only a logging
// implementation (see LogNotifier below); any real-time transport a
// caller wants to add can satisfy this interface without touching the
// handler.
type EventNotifier interface {
	Broadcast(event string, payload interface{})
}

// LogNotifier is the default EventNotifier: it writes one log line per
// event instead of pushing to a connected client.
type LogNotifier struct{}

func (LogNotifier) Broadcast(event string, payload interface{}) {
	log.Printf("event %s: %+v", event, payload)
}

// Repository is the subset of the persistence layer the scan handler
// needs beyond what it hands to scanner.Scanner.
type Repository interface {
	GetIndex(ctx context.Context, id uuid.UUID) (*models.Index, error)
	UpdateIndexStatus(ctx context.Context, id uuid.UUID, status models.IndexStatus) error
	CreateScanJob(ctx context.Context, indexID uuid.UUID) (uuid.UUID, error)
	MarkScanJobStarted(ctx context.Context, jobID uuid.UUID) error
	CompleteScanJob(ctx context.Context, jobID uuid.UUID, result models.ScanResult) error
}

// ScanPayload is the asynq task body for TaskScanIndex.
type ScanPayload struct {
	IndexID string
	JobID   string
}

type ScanHandler struct {
	scanner  *scanner.Scanner
	repo     Repository
	notifier EventNotifier
}

func NewScanHandler(sc *scanner.Scanner, repo Repository, notifier EventNotifier) *ScanHandler {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &ScanHandler{scanner: sc, repo: repo, notifier: notifier}
}

// ProcessTask runs one scan pass for the index named in the payload,
// grounded in the teacher's ScanHandler: unmarshal payload, look up the
// target, broadcast start/progress/complete, then hand off to the
// scanner. Progress is throttled to at most once every 500ms, except
// that a callback where processed has caught up with found is always
// broadcast, so a fast local disk doesn't flood the notifier.
func (h *ScanHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p ScanPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal scan payload: %w", err)
	}

	indexID, err := uuid.Parse(p.IndexID)
	if err != nil {
		return fmt.Errorf("parse index id: %w", err)
	}
	jobID, err := uuid.Parse(p.JobID)
	if err != nil {
		return fmt.Errorf("parse job id: %w", err)
	}

	index, err := h.repo.GetIndex(ctx, indexID)
	if err != nil {
		return fmt.Errorf("get index: %w", err)
	}

	log.Printf("jobs: scanning index %q (%s)", index.Name, index.ID)
	h.notifier.Broadcast("scan:start", map[string]string{"index_id": p.IndexID, "name": index.Name})

	if err := h.repo.MarkScanJobStarted(ctx, jobID); err != nil {
		return fmt.Errorf("mark scan job started: %w", err)
	}
	if err := h.repo.UpdateIndexStatus(ctx, indexID, models.IndexStatusScanning); err != nil {
		return fmt.Errorf("update index status: %w", err)
	}

	var lastBroadcast time.Time
	progress := func(found, processed int) {
		now := time.Now()
		if now.Sub(lastBroadcast) < 500*time.Millisecond && processed < found {
			return
		}
		lastBroadcast = now
		h.notifier.Broadcast("scan:progress", map[string]interface{}{
			"index_id":  p.IndexID,
			"found":     found,
			"processed": processed,
		})
	}

	result, scanErr := h.scanner.ScanLibrary(ctx, *index, progress)

	finalStatus := models.IndexStatusIdle
	if scanErr != nil {
		result = &models.ScanResult{Errors: []string{scanErr.Error()}}
		log.Printf("jobs: scan of index %s failed: %v", index.ID, scanErr)
	}
	if err := h.repo.CompleteScanJob(ctx, jobID, *result); err != nil {
		return fmt.Errorf("complete scan job: %w", err)
	}
	if err := h.repo.UpdateIndexStatus(ctx, indexID, finalStatus); err != nil {
		return fmt.Errorf("update index status: %w", err)
	}

	h.notifier.Broadcast("scan:complete", map[string]interface{}{
		"index_id":       p.IndexID,
		"files_found":    result.FilesFound,
		"files_added":    result.FilesAdded,
		"files_migrated": result.FilesMigrated,
		"errors":         result.Errors,
	})

	// A scan error is reported via the job/notifier, not retried by asynq —
	// a source-path conflict or unavailable root won't resolve itself on
	// redelivery, and scheduler.go will enqueue the next pass regardless.
	return nil
}
