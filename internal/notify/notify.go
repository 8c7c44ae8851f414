// Package notify publishes harvest summaries to a Redis channel for
// downstream consumers such as anomaly reports.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jonathan/job-harvester/internal/pipeline"
)

// DefaultChannel is the channel events are published on.
const DefaultChannel = "harvest.events"

// Event types.
const (
	EventSweep = "sweep"
	EventRun   = "run"
)

// Event is the message published after a sweep or a run.
type Event struct {
	Type      string `json:"type"`
	RunID     string `json:"run_id"`
	Region    string `json:"region,omitempty"`
	Category  string `json:"category,omitempty"`
	Sweeps    int    `json:"sweeps,omitempty"`
	Pages     int    `json:"pages"`
	Listed    int    `json:"listed"`
	Dropped   int    `json:"dropped"`
	Persisted int    `json:"persisted"`
	Failed    int    `json:"failed,omitempty"`
	Error     string `json:"error,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
	Timestamp int64  `json:"timestamp"`
}

// SweepEvent builds the event for one sweep.
func SweepEvent(runID string, res pipeline.SweepResult, now time.Time) Event {
	ev := Event{
		Type:      EventSweep,
		RunID:     runID,
		Region:    res.Task.Region.Code,
		Category:  res.Task.Category.Code,
		Pages:     res.Pages,
		Listed:    res.Listed,
		Dropped:   res.Dropped,
		Persisted: res.Persisted,
		ElapsedMS: res.Duration.Milliseconds(),
		Timestamp: now.Unix(),
	}
	if res.Err != nil {
		ev.Error = res.Err.Error()
		ev.Failed = 1
	}
	return ev
}

// RunEvent aggregates the sweeps of a run.
func RunEvent(runID string, results []pipeline.SweepResult, elapsed time.Duration, now time.Time) Event {
	ev := Event{
		Type:      EventRun,
		RunID:     runID,
		Sweeps:    len(results),
		ElapsedMS: elapsed.Milliseconds(),
		Timestamp: now.Unix(),
	}
	for _, r := range results {
		ev.Pages += r.Pages
		ev.Listed += r.Listed
		ev.Dropped += r.Dropped
		ev.Persisted += r.Persisted
	}
	ev.Failed = pipeline.Failed(results)
	return ev
}

type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Notifier publishes events to Redis.
type Notifier struct {
	client  publisher
	close   func() error
	channel string
	logger  *zap.Logger
	now     func() time.Time
}

// Options configures a Notifier.
type Options struct {
	Addr     string
	Password string
	DB       int
	Channel  string
	Logger   *zap.Logger
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, opts Options) (*Notifier, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return newNotifier(client, client.Close, opts), nil
}

func newNotifier(client publisher, closeFn func() error, opts Options) *Notifier {
	channel := opts.Channel
	if channel == "" {
		channel = DefaultChannel
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{client: client, close: closeFn, channel: channel, logger: logger, now: time.Now}
}

// Publish sends one event.
func (n *Notifier) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// SweepCallback returns a pipeline callback that publishes every sweep.
// Publish failures are logged and never interrupt the run.
func (n *Notifier) SweepCallback(ctx context.Context, runID string) pipeline.SweepCallback {
	return func(res pipeline.SweepResult) {
		if err := n.Publish(ctx, SweepEvent(runID, res, n.now())); err != nil {
			n.logger.Warn("failed to publish sweep event",
				zap.String("region", res.Task.Region.Code),
				zap.String("category", res.Task.Category.Code),
				zap.Error(err))
		}
	}
}

// PublishRun sends the run summary.
func (n *Notifier) PublishRun(ctx context.Context, runID string, results []pipeline.SweepResult, elapsed time.Duration) error {
	return n.Publish(ctx, RunEvent(runID, results, elapsed, n.now()))
}

// Close closes the Redis connection.
func (n *Notifier) Close() error {
	if n.close == nil {
		return nil
	}
	return n.close()
}
