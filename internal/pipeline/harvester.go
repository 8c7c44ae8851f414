// Package pipeline orchestrates harvesting: for each FetchTask it walks the
// search list, enriches every item with its detail and employer data,
// normalizes the results and persists them as one batch.
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/job-harvester/internal/jobs"
	"github.com/jonathan/job-harvester/internal/source"
)

// Source is the search API. *source.Client implements it.
type Source interface {
	SearchPage(ctx context.Context, task jobs.FetchTask, page int) (*source.Page, error)
	JobDetail(ctx context.Context, code string) (*jobs.JobDetail, error)
	Employer(ctx context.Context, employerCode string) (*jobs.EmployerProfile, error)
}

// Persister stores a finished batch atomically. db.Store implements it.
type Persister interface {
	Persist(ctx context.Context, batch *jobs.Batch) error
}

// SweepCallback is called after every sweep. With Concurrency > 1 it is
// called from several goroutines.
type SweepCallback func(result SweepResult)

// Options configures a Harvester.
type Options struct {
	// MaxPages bounds pagination per task. Defaults to 1.
	MaxPages int
	// Concurrency is the number of tasks swept in parallel. Defaults to 1.
	Concurrency int
	Pacer       Pacer
	Logger      *zap.Logger
	OnSweep     SweepCallback
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Task           jobs.FetchTask
	Pages          int
	Listed         int
	Dropped        int
	DetailMisses   int
	EmployerMisses int
	Persisted      int
	// Err is the persistence error, if the batch was rolled back.
	Err      error
	Duration time.Duration
}

// Harvester runs sweeps against a Source and hands batches to a Persister.
type Harvester struct {
	source Source
	store  Persister
	pacer  Pacer
	logger *zap.Logger
	opts   Options
}

// New creates a Harvester.
func New(src Source, store Persister, opts Options) *Harvester {
	if opts.MaxPages <= 0 {
		opts.MaxPages = 1
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Harvester{
		source: src,
		store:  store,
		pacer:  opts.Pacer,
		logger: logger,
		opts:   opts,
	}
}

// Sweep harvests one task. Item and page failures are logged and counted;
// the only error returned is the context's, in which case nothing is
// persisted.
func (h *Harvester) Sweep(ctx context.Context, task jobs.FetchTask) (SweepResult, error) {
	start := time.Now()
	res := SweepResult{Task: task}
	log := h.logger.With(
		zap.String("region", task.Region.Code),
		zap.String("category", task.Category.Code),
	)
	batch := jobs.NewBatch(task)

	log.Info("sweep started",
		zap.String("region_name", task.Region.Label()),
		zap.String("category_name", task.Category.Label()))

	for page := 1; page <= h.opts.MaxPages; page++ {
		p, err := h.source.SearchPage(ctx, task, page)
		if err != nil {
			if ctx.Err() != nil {
				return h.finish(res, start), ctx.Err()
			}
			log.Warn("list fetch failed, stopping pagination", zap.Int("page", page), zap.Error(err))
			break
		}
		res.Pages++
		if len(p.Items) == 0 {
			log.Info("empty list page", zap.Int("page", page))
			break
		}

		for _, item := range p.Items {
			res.Listed++
			posting, err := h.harvestItem(ctx, log, task, item, &res)
			if err != nil {
				return h.finish(res, start), err
			}
			if posting != nil {
				batch.Add(jobs.Normalize(posting))
			}
		}

		if err := h.pacer.AfterPage(ctx); err != nil {
			return h.finish(res, start), err
		}
		if p.TotalPage > 0 && page >= p.TotalPage {
			break
		}
	}

	if err := ctx.Err(); err != nil {
		return h.finish(res, start), err
	}

	if err := h.store.Persist(ctx, batch); err != nil {
		if ctx.Err() != nil {
			return h.finish(res, start), ctx.Err()
		}
		res.Err = err
		log.Error("failed to persist batch", zap.Int("rows", batch.Len()), zap.Error(err))
	} else {
		res.Persisted = batch.Len()
	}

	res = h.finish(res, start)
	log.Info("sweep finished",
		zap.Int("pages", res.Pages),
		zap.Int("listed", res.Listed),
		zap.Int("dropped", res.Dropped),
		zap.Int("detail_misses", res.DetailMisses),
		zap.Int("employer_misses", res.EmployerMisses),
		zap.Int("persisted", res.Persisted),
		zap.Duration("elapsed", res.Duration))
	return res, nil
}

// harvestItem runs the detail and employer stages for one list item. It
// returns a nil posting when the item cannot be addressed, and an error
// only when ctx is done.
func (h *Harvester) harvestItem(ctx context.Context, log *zap.Logger, task jobs.FetchTask, item map[string]json.RawMessage, res *SweepResult) (*jobs.JobPosting, error) {
	code, err := source.JobCode(item)
	if err != nil {
		res.Dropped++
		log.Warn("dropping item", zap.Error(err))
		return nil, nil
	}

	posting := &jobs.JobPosting{
		Fields:   item,
		Code:     code,
		Category: task.Category.Label(),
	}
	log = log.With(zap.String("code", code))

	detail, err := h.source.JobDetail(ctx, code)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		res.DetailMisses++
		log.Warn("detail fetch failed", zap.Error(err))
		return posting, nil
	}
	posting.Detail = detail

	employerCode := source.EmployerCode(detail.CustURL)
	if employerCode == "" {
		res.EmployerMisses++
		log.Warn("missing custUrl in detail header")
		return posting, nil
	}

	profile, err := h.source.Employer(ctx, employerCode)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		res.EmployerMisses++
		log.Warn("employer fetch failed", zap.String("employer", employerCode), zap.Error(err))
		return posting, nil
	}
	posting.Employer = profile
	return posting, nil
}

func (h *Harvester) finish(res SweepResult, start time.Time) SweepResult {
	res.Duration = time.Since(start)
	return res
}

// Run sweeps every task, pausing between sweeps. Tasks run one at a time
// unless Concurrency is greater than 1. It stops early only when ctx is
// done.
func (h *Harvester) Run(ctx context.Context, tasks []jobs.FetchTask) ([]SweepResult, error) {
	if h.opts.Concurrency <= 1 {
		results := make([]SweepResult, 0, len(tasks))
		for i, task := range tasks {
			if i > 0 {
				if err := h.pacer.AfterTask(ctx); err != nil {
					return results, err
				}
			}
			res, err := h.Sweep(ctx, task)
			results = append(results, res)
			h.emit(res)
			if err != nil {
				return results, err
			}
		}
		return results, nil
	}

	results := make([]SweepResult, len(tasks))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(h.opts.Concurrency)
	for i, task := range tasks {
		g.Go(func() error {
			// The first wave starts immediately; later sweeps pause first.
			if i >= h.opts.Concurrency {
				if err := h.pacer.AfterTask(gCtx); err != nil {
					return err
				}
			}
			res, err := h.Sweep(gCtx, task)
			results[i] = res
			h.emit(res)
			return err
		})
	}
	err := g.Wait()
	return results, err
}

func (h *Harvester) emit(res SweepResult) {
	if h.opts.OnSweep != nil {
		h.opts.OnSweep(res)
	}
}

// Failed counts the sweeps whose batch could not be persisted.
func Failed(results []SweepResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
