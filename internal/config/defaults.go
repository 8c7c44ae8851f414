package config

import (
	"net/http"
	"strings"

	"github.com/spf13/viper"

	"github.com/jonathan/job-harvester/internal/db"
	"github.com/jonathan/job-harvester/internal/fetch"
	"github.com/jonathan/job-harvester/internal/notify"
	"github.com/jonathan/job-harvester/internal/pipeline"
	"github.com/jonathan/job-harvester/internal/source"
)

// Default returns the built-in configuration: one sweep of Taipei City for
// the management trainee category, stored in a local SQLite file.
func Default() *Config {
	endpoints := source.DefaultEndpoints()
	params := source.DefaultSearchParams()
	retry := fetch.DefaultTransportRetry()

	return &Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Regions: []CodeConfig{
			{Code: "6001001000", Name: "台北市"},
		},
		Categories: []CodeConfig{
			{Code: "2001001002", Name: "儲備幹部"},
		},
		Search: SearchConfig{
			ListURL:    endpoints.ListURL,
			DetailURL:  endpoints.DetailURL,
			CompanyURL: endpoints.CompanyURL,
			Role:       params.Role,
			KeywordOp:  params.KeywordOp,
			Keyword:    params.Keyword,
			Order:      params.Order,
			Asc:        params.Asc,
			Mode:       params.Mode,
			SourceTag:  params.SourceTag,
			MaxPages:   1,
		},
		HTTP: HTTPConfig{
			Timeout:    fetch.DefaultTimeout,
			UserAgents: append([]string(nil), fetch.DefaultUserAgents...),
			Headers: map[string]string{
				"accept":          "application/json, text/javascript, */*; q=0.01",
				"accept-language": "zh-TW,zh;q=0.9,en-US;q=0.8,en;q=0.7",
				"origin":          "https://www.104.com.tw",
				"referer":         "https://www.104.com.tw/jobs/search/",
			},
			DetailHeaders:     flatten(source.DefaultDetailHeaders()),
			RequestsPerSecond: 2,
			Retry: RetryConfig{
				Total:           retry.Total,
				BackoffFactor:   retry.BackoffFactor,
				StatusForcelist: retry.StatusForcelist,
			},
			Backoff: BackoffConfig{
				Base:        fetch.DefaultBackoffBase,
				Cap:         fetch.DefaultBackoffCap,
				MaxAttempts: fetch.DefaultMaxAttempts,
			},
		},
		Pacing: PacingConfig{
			PageMin: pipeline.DefaultPageMin,
			PageMax: pipeline.DefaultPageMax,
			TaskMin: pipeline.DefaultTaskMin,
			TaskMax: pipeline.DefaultTaskMax,
		},
		Storage: StorageConfig{
			Driver:       db.DriverSQLite,
			DSN:          "jobs.db",
			Table:        db.DefaultTable,
			ChunkRows:    db.DefaultChunkRows,
			MaxOpenConns: 4,
		},
		Harvest: HarvestConfig{Concurrency: 1},
		Notify:  NotifyConfig{Channel: notify.DefaultChannel},
	}
}

// flatten lowercases header names, matching how viper stores map keys.
func flatten(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[strings.ToLower(k)] = h.Get(k)
	}
	return out
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("regions", codeMaps(d.Regions))
	v.SetDefault("categories", codeMaps(d.Categories))

	v.SetDefault("search.list_url", d.Search.ListURL)
	v.SetDefault("search.detail_url", d.Search.DetailURL)
	v.SetDefault("search.company_url", d.Search.CompanyURL)
	v.SetDefault("search.role", d.Search.Role)
	v.SetDefault("search.keyword_op", d.Search.KeywordOp)
	v.SetDefault("search.keyword", d.Search.Keyword)
	v.SetDefault("search.order", d.Search.Order)
	v.SetDefault("search.asc", d.Search.Asc)
	v.SetDefault("search.mode", d.Search.Mode)
	v.SetDefault("search.source_tag", d.Search.SourceTag)
	v.SetDefault("search.max_pages", d.Search.MaxPages)

	v.SetDefault("http.timeout", d.HTTP.Timeout)
	v.SetDefault("http.user_agents", d.HTTP.UserAgents)
	v.SetDefault("http.headers", d.HTTP.Headers)
	v.SetDefault("http.detail_headers", d.HTTP.DetailHeaders)
	v.SetDefault("http.requests_per_second", d.HTTP.RequestsPerSecond)
	v.SetDefault("http.retry.total", d.HTTP.Retry.Total)
	v.SetDefault("http.retry.backoff_factor", d.HTTP.Retry.BackoffFactor)
	v.SetDefault("http.retry.status_forcelist", d.HTTP.Retry.StatusForcelist)
	v.SetDefault("http.backoff.base", d.HTTP.Backoff.Base)
	v.SetDefault("http.backoff.cap", d.HTTP.Backoff.Cap)
	v.SetDefault("http.backoff.max_attempts", d.HTTP.Backoff.MaxAttempts)

	v.SetDefault("pacing.page_min", d.Pacing.PageMin)
	v.SetDefault("pacing.page_max", d.Pacing.PageMax)
	v.SetDefault("pacing.task_min", d.Pacing.TaskMin)
	v.SetDefault("pacing.task_max", d.Pacing.TaskMax)

	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.dsn", d.Storage.DSN)
	v.SetDefault("storage.table", d.Storage.Table)
	v.SetDefault("storage.chunk_rows", d.Storage.ChunkRows)
	v.SetDefault("storage.max_open_conns", d.Storage.MaxOpenConns)

	v.SetDefault("harvest.concurrency", d.Harvest.Concurrency)

	v.SetDefault("notify.redis_addr", d.Notify.RedisAddr)
	v.SetDefault("notify.redis_password", d.Notify.RedisPassword)
	v.SetDefault("notify.redis_db", d.Notify.RedisDB)
	v.SetDefault("notify.channel", d.Notify.Channel)
}

func codeMaps(codes []CodeConfig) []map[string]any {
	out := make([]map[string]any, len(codes))
	for i, c := range codes {
		out[i] = map[string]any{"code": c.Code, "name": c.Name}
	}
	return out
}
