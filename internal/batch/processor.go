package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"imagepack/internal/metrics"
)

// Row failure causes surfaced to the caller.
const (
	failNoImages = "No images found"
	failDownload = "Failed to download image"
)

// Config controls Processor behavior.
type Config struct {
	// Concurrency is the number of rows processed in parallel. 1 keeps strict
	// sequential processing.
	Concurrency int
	// RowDelay is the pause applied after each row attempt, rate limiting the
	// search surface.
	RowDelay time.Duration
}

// Processor drives every record through resolve and fetch, maintaining the
// per-row status table and emitting a full snapshot after each transition.
type Processor struct {
	resolver Resolver
	fetcher  Fetcher
	clock    Clock
	cfg      Config
	logger   *zap.Logger
}

// Result summarizes one completed batch.
type Result struct {
	Statuses  []RowStatus
	Succeeded int
	Failed    int
	Elapsed   time.Duration
}

// NewProcessor constructs a Processor.
func NewProcessor(resolver Resolver, fetcher Fetcher, clock Clock, cfg Config, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Processor{
		resolver: resolver,
		fetcher:  fetcher,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run processes records in input order, writing successful downloads into
// workDir as <id><ext>. One row's failure never aborts the batch: resolution
// misses, fetch misses and even panics are mapped onto the row's failed
// status. Rows are handed to workers in input order and every emitted frame
// is a full snapshot taken under the table lock, so frames stay strictly
// ordered even when Concurrency > 1. A canceled context stops further rows
// but already-finished statuses are kept.
func (p *Processor) Run(ctx context.Context, records []Record, workDir string, emitter Emitter) Result {
	start := p.clock.Now()

	table := make([]RowStatus, len(records))
	for i, rec := range records {
		table[i] = RowStatus{ID: rec.ID, Phrase: rec.Phrase, Status: StatusPending}
	}

	var mu sync.Mutex
	emit := func() {
		if emitter == nil {
			return
		}
		snapshot := make([]RowStatus, len(table))
		copy(snapshot, table)
		emitter.Snapshot(snapshot)
	}
	transition := func(idx int, status Status, cause string) {
		mu.Lock()
		defer mu.Unlock()
		table[idx].Status = status
		table[idx].Error = cause
		emit()
	}

	mu.Lock()
	emit()
	mu.Unlock()

	workers := p.cfg.Concurrency
	if workers > len(records) {
		workers = len(records)
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				transition(idx, StatusDownloading, "")
				cause := p.attemptRow(ctx, records[idx], workDir)
				if cause == "" {
					transition(idx, StatusSuccess, "")
					metrics.RowProcessed("success")
				} else {
					transition(idx, StatusFailed, cause)
					metrics.RowProcessed("failed")
				}
				p.pause(ctx)
			}
		}()
	}

feed:
	for i := range records {
		if ctx.Err() != nil {
			break
		}
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	res := Result{
		Statuses: table,
		Elapsed:  p.clock.Now().Sub(start),
	}
	for _, row := range table {
		switch row.Status {
		case StatusSuccess:
			res.Succeeded++
		case StatusFailed:
			res.Failed++
		}
	}
	return res
}

// attemptRow returns an empty string on success, otherwise the failure cause.
func (p *Processor) attemptRow(ctx context.Context, rec Record, workDir string) (cause string) {
	defer func() {
		if r := recover(); r != nil {
			cause = fmt.Sprint(r)
			p.logger.Error("row attempt panicked",
				zap.String("id", rec.ID),
				zap.Any("panic", r),
			)
		}
	}()

	candidates := p.resolver.Resolve(ctx, rec.Phrase)
	if len(candidates) == 0 {
		return failNoImages
	}
	for _, candidate := range candidates {
		asset, ok := p.fetcher.Fetch(ctx, candidate)
		if !ok {
			continue
		}
		name := rec.ID + asset.Extension
		if err := os.WriteFile(filepath.Join(workDir, name), asset.Data, 0o600); err != nil {
			return err.Error()
		}
		metrics.ImageBytes(len(asset.Data))
		p.logger.Debug("row downloaded",
			zap.String("id", rec.ID),
			zap.String("url", candidate),
			zap.Int("bytes", len(asset.Data)),
		)
		return ""
	}
	return failDownload
}

func (p *Processor) pause(ctx context.Context) {
	if p.cfg.RowDelay <= 0 {
		return
	}
	t := time.NewTimer(p.cfg.RowDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
