package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "harvester.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, "https://www.104.com.tw/jobs/search/", cfg.HTTP.Headers["referer"])
	assert.Equal(t, 3*time.Second, cfg.HTTP.Backoff.Base)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  format: console
regions:
  - code: "6001001000"
    name: 台北市
  - code: "6001002000"
    name: 新北市
pacing:
  page_min: 1s
  page_max: 2s
  task_min: 5s
  task_max: 10s
storage:
  driver: mysql
  dsn: user:pass@tcp(127.0.0.1:3306)/jobs?charset=utf8mb4
search:
  max_pages: 3
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Len(t, cfg.Regions, 2)
	assert.Equal(t, "新北市", cfg.Regions[1].Name)
	assert.Equal(t, Default().Categories, cfg.Categories)
	assert.Equal(t, time.Second, cfg.Pacing.PageMin)
	assert.Equal(t, 10*time.Second, cfg.Pacing.TaskMax)
	assert.Equal(t, "mysql", cfg.Storage.Driver)
	assert.Equal(t, "jobs", cfg.Storage.Table)
	assert.Equal(t, 3, cfg.Search.MaxPages)
	assert.Equal(t, "2018indexpoc", cfg.Search.SourceTag)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HARVESTER_STORAGE_DSN", "postgres://harvester@localhost/jobs")
	t.Setenv("HARVESTER_STORAGE_DRIVER", "postgres")
	t.Setenv("HARVESTER_HARVEST_CONCURRENCY", "3")
	t.Setenv("HARVESTER_PACING_TASK_MAX", "45s")

	cfg, err := Load(writeConfig(t, "log:\n  level: warn\n"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://harvester@localhost/jobs", cfg.Storage.DSN)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, 3, cfg.Harvest.Concurrency)
	assert.Equal(t, 45*time.Second, cfg.Pacing.TaskMax)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
		rule    string
	}{
		{"page bounds inverted", "pacing:\n  page_min: 5s\n  page_max: 2s\n", "pacing.page_max", "gtefield"},
		{"unknown driver", "storage:\n  driver: oracle\n", "storage.driver", "oneof"},
		{"bad log format", "log:\n  format: xml\n", "log.format", "oneof"},
		{"region without code", "regions:\n  - name: 台北市\n", "regions[0].code", "required"},
		{"zero concurrency", "harvest:\n  concurrency: 0\n", "harvest.concurrency", "min"},
		{"bad forcelist", "http:\n  retry:\n    status_forcelist: [200]\n", "http.retry.status_forcelist[0]", "gte"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			require.Len(t, ve.Errors, 1, err.Error())
			assert.Equal(t, tt.field, ve.Errors[0].Field)
			assert.Equal(t, tt.rule, ve.Errors[0].Rule)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestTasks(t *testing.T) {
	cfg := Default()
	cfg.Regions = append(cfg.Regions, CodeConfig{Code: "6001002000", Name: "新北市"})
	cfg.Categories = append(cfg.Categories, CodeConfig{Code: "2001001001", Name: "經營管理主管"})

	all, err := cfg.Tasks(nil, nil)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "6001001000/2001001002", all[0].String())
	assert.Equal(t, "6001001000/2001001001", all[1].String())

	some, err := cfg.Tasks([]string{"新北市"}, []string{"2001001001"})
	require.NoError(t, err)
	require.Len(t, some, 1)
	assert.Equal(t, "6001002000/2001001001", some[0].String())
	assert.Equal(t, "經營管理主管", some[0].Category.Name)

	_, err = cfg.Tasks([]string{"9999"}, nil)
	assert.ErrorContains(t, err, `unknown region "9999"`)
}

func TestWriteDefault_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "harvester.yaml")
	require.NoError(t, WriteDefault(path, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Persistence backend")
	assert.Contains(t, string(data), "timeout: 30s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestWriteDefault_ExistingFile(t *testing.T) {
	path := writeConfig(t, "log:\n  level: debug\n")

	err := WriteDefault(path, false)
	assert.ErrorContains(t, err, "already exists")

	require.NoError(t, WriteDefault(path, true))
	bak, err := os.ReadFile(path + ".bak")
	require.NoError(t, err)
	assert.Equal(t, "log:\n  level: debug\n", string(bak))
}

func TestOptions(t *testing.T) {
	cfg := Default()
	cfg.HTTP.Retry.Total = 2
	cfg.HTTP.Backoff.MaxAttempts = 4

	fo := cfg.FetchOptions(zap.NewNop())
	assert.Equal(t, 2, fo.Retry.Total)
	assert.Equal(t, []string{"GET"}, fo.Retry.AllowedMethods)
	assert.Equal(t, 4, fo.MaxAttempts)
	assert.Equal(t, 3*time.Second, fo.Backoff.Base)

	so := cfg.SourceOptions()
	assert.Equal(t, "https://www.104.com.tw/", so.DetailHeaders.Get("Referer"))
	assert.Equal(t, cfg.Search.DetailURL, so.Endpoints.DetailURL)
	assert.Equal(t, "15", so.Params.Order)

	st := cfg.StoreOptions()
	assert.Equal(t, "sqlite", st.Driver)
	assert.Equal(t, 200, st.ChunkRows)

	ho := cfg.HarvestOptions(nil)
	assert.Equal(t, 1, ho.MaxPages)
	assert.Equal(t, 20*time.Second, ho.Pacer.TaskMin)

	assert.False(t, cfg.NotifyEnabled())
	cfg.Notify.RedisAddr = "localhost:6379"
	assert.True(t, cfg.NotifyEnabled())
	assert.Equal(t, "harvest.events", cfg.NotifyOptions(nil).Channel)
}
