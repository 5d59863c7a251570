// Package backfill computes and stores embeddings for every photo that does not have one
// for a model yet.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mamage/photo-similarity/internal/constants"
	"github.com/mamage/photo-similarity/internal/database"
	"github.com/mamage/photo-similarity/internal/extractor"
	"github.com/mamage/photo-similarity/internal/imagesource"
	"github.com/mamage/photo-similarity/internal/logger"
	"github.com/mamage/photo-similarity/internal/metrics"
	"go.uber.org/zap"
)

// Outcome classifies what happened to one photo.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeErrored   Outcome = "errored"
)

// ErrNoLocation marks a photo record without an image location.
var ErrNoLocation = errors.New("photo has no location")

// Options controls one run.
type Options struct {
	ModelName   string        // defaults to the extractor's model
	ProjectID   int64         // 0 scans every project
	Limit       int           // 0 means no limit
	Delay       time.Duration // pause between items on each worker
	Concurrency int           // 1 (or less) runs strictly serially

	// Progress, when set, is called once per finished item. Calls are serialized.
	Progress func(Progress)
}

// Progress reports one finished item.
type Progress struct {
	Photo   database.PendingPhoto
	Outcome Outcome
	Err     error
	Done    int
	Total   int
}

// Summary counts outcomes of a run.
type Summary struct {
	Processed int           `json:"processed"`
	Skipped   int           `json:"skipped"`
	Errored   int           `json:"errored"`
	Total     int           `json:"total"`
	Duration  time.Duration `json:"duration"`
}

// Driver runs backfills against one store.
type Driver struct {
	store     database.Store
	resolver  imagesource.Resolver
	extractor extractor.Extractor
	logger    *zap.Logger
}

// NewDriver creates a Driver.
func NewDriver(store database.Store, resolver imagesource.Resolver, ext extractor.Extractor, l *zap.Logger) *Driver {
	return &Driver{store: store, resolver: resolver, extractor: ext, logger: logger.OrNop(l)}
}

// Pending lists the photos a run with opts would visit.
func (d *Driver) Pending(ctx context.Context, opts Options) ([]database.PendingPhoto, error) {
	photos, err := d.store.ListMissing(ctx, d.modelName(opts), database.MissingFilter{ProjectID: opts.ProjectID, Limit: opts.Limit})
	if err != nil {
		return nil, fmt.Errorf("list photos missing embeddings: %w", err)
	}
	return photos, nil
}

func (d *Driver) modelName(opts Options) string {
	if opts.ModelName != "" {
		return opts.ModelName
	}
	return d.extractor.Model()
}

// Run processes every pending photo. Per-photo failures are counted and logged and never
// stop the run, except a model load failure, which aborts it. When ctx is cancelled no new
// items start and the partial summary is returned together with ctx.Err().
func (d *Driver) Run(ctx context.Context, opts Options) (Summary, error) {
	start := time.Now()
	model := d.modelName(opts)

	photos, err := d.Pending(ctx, opts)
	if err != nil {
		return Summary{}, err
	}

	concurrency := min(max(opts.Concurrency, constants.DefaultBackfillConcurrency), constants.MaxBackfillConcurrency)

	d.logger.Info("backfill started",
		zap.String("model", model),
		zap.Int64("project_id", opts.ProjectID),
		zap.Int("pending", len(photos)),
		zap.Int("concurrency", concurrency),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	summary := Summary{Total: len(photos)}
	var mu sync.Mutex
	var fatal error
	done := 0

	record := func(p database.PendingPhoto, outcome Outcome, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch outcome {
		case OutcomeProcessed:
			summary.Processed++
		case OutcomeSkipped:
			summary.Skipped++
		case OutcomeErrored:
			summary.Errored++
		}
		done++
		if fatal == nil && extractor.IsModelLoad(err) {
			fatal = err
			cancel()
		}
		metrics.BackfillItemsTotal.WithLabelValues(model, string(outcome)).Inc()
		if opts.Progress != nil {
			opts.Progress(Progress{Photo: p, Outcome: outcome, Err: err, Done: done, Total: len(photos)})
		}
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

dispatch:
	for i, photo := range photos {
		select {
		case <-runCtx.Done():
			break dispatch
		case sem <- struct{}{}:
		}
		if runCtx.Err() != nil {
			<-sem
			break
		}

		wg.Add(1)
		go func(p database.PendingPhoto, last bool) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome, err := d.processOne(runCtx, p, model)
			record(p, outcome, err)

			if opts.Delay > 0 && !last {
				select {
				case <-runCtx.Done():
				case <-time.After(opts.Delay):
				}
			}
		}(photo, i == len(photos)-1)
	}

	wg.Wait()

	mu.Lock()
	summary.Duration = time.Since(start)
	result := summary
	fatalErr := fatal
	mu.Unlock()

	d.logger.Info("backfill finished",
		zap.String("model", model),
		zap.Int("processed", result.Processed),
		zap.Int("skipped", result.Skipped),
		zap.Int("errored", result.Errored),
		zap.Int("total", result.Total),
		zap.Duration("duration", result.Duration),
	)

	if fatalErr != nil {
		return result, fmt.Errorf("model unavailable, backfill aborted: %w", fatalErr)
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// processOne embeds and stores one photo. Missing or unreadable images are skips;
// inference and storage failures are errors.
func (d *Driver) processOne(ctx context.Context, p database.PendingPhoto, model string) (Outcome, error) {
	log := d.logger.With(zap.Int64("photo_id", p.ID), zap.String("location", p.Location))

	if p.Location == "" {
		log.Debug("skipping photo without location")
		return OutcomeSkipped, ErrNoLocation
	}

	data, err := d.resolver.Fetch(ctx, p.Location)
	if err != nil {
		var fe *imagesource.FetchError
		switch {
		case errors.Is(err, imagesource.ErrNotFound):
			log.Warn("image not found, skipping")
		case errors.As(err, &fe):
			log.Warn("image fetch failed, skipping", zap.Int("status", fe.Status), zap.Error(err))
		default:
			log.Warn("image fetch failed, skipping", zap.Error(err))
		}
		return OutcomeSkipped, err
	}
	if len(data) == 0 {
		log.Warn("image is empty, skipping")
		return OutcomeSkipped, imagesource.ErrNotFound
	}

	vec, err := d.extractor.Extract(ctx, data)
	if err != nil {
		log.Error("embedding failed", zap.Error(err))
		return OutcomeErrored, err
	}

	if err := d.store.Put(ctx, p.ID, model, vec); err != nil {
		log.Error("storing embedding failed", zap.Error(err))
		return OutcomeErrored, err
	}

	log.Debug("embedding stored", zap.Int("dim", len(vec)))
	return OutcomeProcessed, nil
}
