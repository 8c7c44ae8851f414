package pipeline

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/jonathan/job-harvester/internal/fetch"
)

// Default pause bounds.
const (
	DefaultPageMin = 2 * time.Second
	DefaultPageMax = 5 * time.Second
	DefaultTaskMin = 20 * time.Second
	DefaultTaskMax = 30 * time.Second
)

// Pacer spaces out list pages and sweeps with uniformly random pauses.
type Pacer struct {
	PageMin, PageMax time.Duration
	TaskMin, TaskMax time.Duration

	// Sleep defaults to fetch.Sleep.
	Sleep func(context.Context, time.Duration) error
	// Float64 returns a value in [0, 1). Defaults to rand.Float64.
	Float64 func() float64
}

// DefaultPacer returns 2-5s page pauses and 20-30s task pauses.
func DefaultPacer() Pacer {
	return Pacer{
		PageMin: DefaultPageMin,
		PageMax: DefaultPageMax,
		TaskMin: DefaultTaskMin,
		TaskMax: DefaultTaskMax,
	}
}

// AfterPage pauses after a list page has been processed.
func (p Pacer) AfterPage(ctx context.Context) error {
	return p.pause(ctx, p.PageMin, p.PageMax)
}

// AfterTask pauses between two sweeps.
func (p Pacer) AfterTask(ctx context.Context) error {
	return p.pause(ctx, p.TaskMin, p.TaskMax)
}

func (p Pacer) pause(ctx context.Context, lo, hi time.Duration) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = fetch.Sleep
	}
	return sleep(ctx, p.delay(lo, hi))
}

func (p Pacer) delay(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	f := rand.Float64
	if p.Float64 != nil {
		f = p.Float64
	}
	return lo + time.Duration(f()*float64(hi-lo))
}
