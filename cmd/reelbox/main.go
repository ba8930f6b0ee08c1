// Command reelbox wires config, storage, the scanner, and the job queue
// together and runs the asynq worker loop, grounded in the teacher's
// cmd/cinevault/main.go wiring order: load config, connect + migrate the
// database, construct the domain services, register job handlers, start
// background loops, then block until signalled.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/reelbox/reelbox/internal/config"
	"github.com/reelbox/reelbox/internal/db"
	"github.com/reelbox/reelbox/internal/fsprobe"
	"github.com/reelbox/reelbox/internal/jobs"
	"github.com/reelbox/reelbox/internal/repository"
	"github.com/reelbox/reelbox/internal/scanner"
	"github.com/reelbox/reelbox/internal/scheduler"
	"github.com/reelbox/reelbox/internal/version"
)

func main() {
	cfg := config.Load()
	info := version.Load()
	log.Printf("reelbox %s starting", info.Version)

	sqlDB, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer sqlDB.Close()

	if err := db.Migrate(sqlDB, "migrations"); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	repo := repository.NewVideoRepository(sqlDB)

	prober := fsprobe.New(fsprobe.Algorithm(cfg.FastHashAlgorithm), cfg.FastHashBytes)
	if cfg.FastHashRateLimit > 0 {
		prober.Limiter = rate.NewLimiter(rate.Limit(cfg.FastHashRateLimit), 1)
	}

	sc := scanner.New(repo, prober)
	sc.ProbeWorkers = cfg.ScanWorkers

	queue := jobs.NewQueue(cfg.RedisAddr)
	handler := jobs.NewScanHandler(sc, repo, jobs.LogNotifier{})
	queue.RegisterHandler(jobs.TaskScanIndex, handler)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if n, err := repo.RecoverInterruptedScans(ctx); err != nil {
		log.Printf("recover interrupted scans: %v", err)
	} else if n > 0 {
		log.Printf("recovered %d interrupted scan job(s) back to queued", n)
	}

	enqueueScan := func(indexID uuid.UUID) {
		jobID, err := repo.CreateScanJob(ctx, indexID)
		if err != nil {
			log.Printf("create scan job for %s: %v", indexID, err)
			return
		}
		payload := jobs.ScanPayload{IndexID: indexID.String(), JobID: jobID.String()}
		if _, err := queue.EnqueueUnique(jobs.TaskScanIndex, payload, "scan:"+indexID.String()); err != nil {
			log.Printf("enqueue scan for %s: %v", indexID, err)
		}
	}

	if cfg.CronScanSchedule != "" {
		sched, err := scheduler.New(repo, cfg.CronScanSchedule, enqueueScan)
		if err != nil {
			log.Fatalf("build scheduler: %v", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	go func() {
		if err := queue.Start(ctx); err != nil {
			log.Fatalf("job queue worker: %v", err)
		}
	}()
	defer queue.Stop()

	log.Println("reelbox ready")
	<-ctx.Done()
	log.Println("reelbox shutting down")
}
