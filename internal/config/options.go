package config

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/jonathan/job-harvester/internal/db"
	"github.com/jonathan/job-harvester/internal/fetch"
	"github.com/jonathan/job-harvester/internal/notify"
	"github.com/jonathan/job-harvester/internal/pipeline"
	"github.com/jonathan/job-harvester/internal/source"
)

// FetchOptions builds the session options.
func (c *Config) FetchOptions(logger *zap.Logger) *fetch.Options {
	opts := fetch.DefaultOptions()
	opts.Timeout = c.HTTP.Timeout
	opts.UserAgents = c.HTTP.UserAgents
	opts.Headers = c.HTTP.Headers
	opts.RequestsPerSecond = c.HTTP.RequestsPerSecond
	opts.Retry.Total = c.HTTP.Retry.Total
	opts.Retry.BackoffFactor = c.HTTP.Retry.BackoffFactor
	opts.Retry.StatusForcelist = c.HTTP.Retry.StatusForcelist
	opts.Backoff.Base = c.HTTP.Backoff.Base
	opts.Backoff.Cap = c.HTTP.Backoff.Cap
	opts.MaxAttempts = c.HTTP.Backoff.MaxAttempts
	opts.Logger = logger
	return opts
}

// SourceOptions builds the API client options.
func (c *Config) SourceOptions() source.Options {
	detail := make(http.Header, len(c.HTTP.DetailHeaders))
	for k, v := range c.HTTP.DetailHeaders {
		detail.Set(k, v)
	}
	return source.Options{
		Endpoints: source.Endpoints{
			ListURL:    c.Search.ListURL,
			DetailURL:  c.Search.DetailURL,
			CompanyURL: c.Search.CompanyURL,
		},
		Params: source.SearchParams{
			Role:      c.Search.Role,
			KeywordOp: c.Search.KeywordOp,
			Keyword:   c.Search.Keyword,
			Order:     c.Search.Order,
			Asc:       c.Search.Asc,
			Mode:      c.Search.Mode,
			SourceTag: c.Search.SourceTag,
		},
		DetailHeaders: detail,
	}
}

// StoreOptions builds the persistence options.
func (c *Config) StoreOptions() db.Options {
	return db.Options{
		Driver:       c.Storage.Driver,
		DSN:          c.Storage.DSN,
		Table:        c.Storage.Table,
		ChunkRows:    c.Storage.ChunkRows,
		MaxOpenConns: c.Storage.MaxOpenConns,
	}
}

// Pacer builds the page and task pacer.
func (c *Config) Pacer() pipeline.Pacer {
	return pipeline.Pacer{
		PageMin: c.Pacing.PageMin,
		PageMax: c.Pacing.PageMax,
		TaskMin: c.Pacing.TaskMin,
		TaskMax: c.Pacing.TaskMax,
	}
}

// HarvestOptions builds the harvester options; callers add OnSweep.
func (c *Config) HarvestOptions(logger *zap.Logger) pipeline.Options {
	return pipeline.Options{
		MaxPages:    c.Search.MaxPages,
		Concurrency: c.Harvest.Concurrency,
		Pacer:       c.Pacer(),
		Logger:      logger,
	}
}

// NotifyEnabled reports whether a Redis address is configured.
func (c *Config) NotifyEnabled() bool {
	return c.Notify.RedisAddr != ""
}

// NotifyOptions builds the notifier options.
func (c *Config) NotifyOptions(logger *zap.Logger) notify.Options {
	return notify.Options{
		Addr:     c.Notify.RedisAddr,
		Password: c.Notify.RedisPassword,
		DB:       c.Notify.RedisDB,
		Channel:  c.Notify.Channel,
		Logger:   logger,
	}
}
