// Package config loads harvester configuration from a YAML file with
// HARVESTER_* environment overrides, and validates it.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/jonathan/job-harvester/internal/jobs"
)

// EnvPrefix prefixes environment overrides, e.g. HARVESTER_STORAGE_DSN.
const EnvPrefix = "HARVESTER"

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "harvester.yaml"

// Config is the complete harvester configuration.
type Config struct {
	Log        LogConfig     `mapstructure:"log" yaml:"log"`
	Regions    []CodeConfig  `mapstructure:"regions" yaml:"regions" validate:"required,min=1,dive"`
	Categories []CodeConfig  `mapstructure:"categories" yaml:"categories" validate:"required,min=1,dive"`
	Search     SearchConfig  `mapstructure:"search" yaml:"search"`
	HTTP       HTTPConfig    `mapstructure:"http" yaml:"http"`
	Pacing     PacingConfig  `mapstructure:"pacing" yaml:"pacing"`
	Storage    StorageConfig `mapstructure:"storage" yaml:"storage"`
	Harvest    HarvestConfig `mapstructure:"harvest" yaml:"harvest"`
	Notify     NotifyConfig  `mapstructure:"notify" yaml:"notify"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=json console"`
}

// CodeConfig is one entry of the region or category table.
type CodeConfig struct {
	Code string `mapstructure:"code" yaml:"code" validate:"required"`
	Name string `mapstructure:"name" yaml:"name"`
}

// SearchConfig holds the API endpoints and fixed query parameters.
type SearchConfig struct {
	ListURL    string `mapstructure:"list_url" yaml:"list_url" validate:"required,url"`
	DetailURL  string `mapstructure:"detail_url" yaml:"detail_url" validate:"required,url"`
	CompanyURL string `mapstructure:"company_url" yaml:"company_url" validate:"required,url"`
	Role       string `mapstructure:"role" yaml:"role"`
	KeywordOp  string `mapstructure:"keyword_op" yaml:"keyword_op"`
	Keyword    string `mapstructure:"keyword" yaml:"keyword"`
	Order      string `mapstructure:"order" yaml:"order"`
	Asc        string `mapstructure:"asc" yaml:"asc"`
	Mode       string `mapstructure:"mode" yaml:"mode"`
	SourceTag  string `mapstructure:"source_tag" yaml:"source_tag"`
	MaxPages   int    `mapstructure:"max_pages" yaml:"max_pages" validate:"min=1"`
}

// HTTPConfig configures the fetch session.
type HTTPConfig struct {
	Timeout           time.Duration     `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
	UserAgents        []string          `mapstructure:"user_agents" yaml:"user_agents" validate:"min=1,dive,required"`
	Headers           map[string]string `mapstructure:"headers" yaml:"headers"`
	DetailHeaders     map[string]string `mapstructure:"detail_headers" yaml:"detail_headers"`
	RequestsPerSecond float64           `mapstructure:"requests_per_second" yaml:"requests_per_second" validate:"gte=0"`
	Retry             RetryConfig       `mapstructure:"retry" yaml:"retry"`
	Backoff           BackoffConfig     `mapstructure:"backoff" yaml:"backoff"`
}

// RetryConfig is the status-code retry policy of the transport.
type RetryConfig struct {
	Total           int           `mapstructure:"total" yaml:"total" validate:"gte=0"`
	BackoffFactor   time.Duration `mapstructure:"backoff_factor" yaml:"backoff_factor" validate:"gte=0"`
	StatusForcelist []int         `mapstructure:"status_forcelist" yaml:"status_forcelist" validate:"dive,gte=400,lte=599"`
}

// BackoffConfig is the exponential backoff around transport failures.
type BackoffConfig struct {
	Base        time.Duration `mapstructure:"base" yaml:"base" validate:"gt=0"`
	Cap         time.Duration `mapstructure:"cap" yaml:"cap" validate:"gtefield=Base"`
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts" validate:"gte=0"`
}

// PacingConfig bounds the random pauses between pages and tasks.
type PacingConfig struct {
	PageMin time.Duration `mapstructure:"page_min" yaml:"page_min" validate:"gte=0"`
	PageMax time.Duration `mapstructure:"page_max" yaml:"page_max" validate:"gtefield=PageMin"`
	TaskMin time.Duration `mapstructure:"task_min" yaml:"task_min" validate:"gte=0"`
	TaskMax time.Duration `mapstructure:"task_max" yaml:"task_max" validate:"gtefield=TaskMin"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Driver       string `mapstructure:"driver" yaml:"driver" validate:"oneof=postgres mysql sqlite"`
	DSN          string `mapstructure:"dsn" yaml:"dsn" validate:"required"`
	Table        string `mapstructure:"table" yaml:"table" validate:"required"`
	ChunkRows    int    `mapstructure:"chunk_rows" yaml:"chunk_rows" validate:"gte=0"`
	MaxOpenConns int    `mapstructure:"max_open_conns" yaml:"max_open_conns" validate:"gte=0"`
}

// HarvestConfig controls run-level behavior.
type HarvestConfig struct {
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency" validate:"min=1"`
}

// NotifyConfig enables the Redis notifier when RedisAddr is set.
type NotifyConfig struct {
	RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" yaml:"redis_db" validate:"gte=0"`
	Channel       string `mapstructure:"channel" yaml:"channel"`
}

// Load reads configuration from path, or from ./harvester.yaml when path is
// empty and the file exists. Defaults fill everything the file leaves out
// and HARVESTER_* variables override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultFile, ".yaml"))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FieldError is one failed validation rule.
type FieldError struct {
	Field string
	Rule  string
	Param string
}

// ValidationError lists every invalid field of a Config.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("config validation failed:")
	for _, fe := range e.Errors {
		if fe.Param != "" {
			fmt.Fprintf(&sb, "\n- %s: %s=%s", fe.Field, fe.Rule, fe.Param)
		} else {
			fmt.Fprintf(&sb, "\n- %s: %s", fe.Field, fe.Rule)
		}
	}
	return sb.String()
}

var validate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}()

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate config: %w", err)
	}

	out := &ValidationError{Errors: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		out.Errors = append(out.Errors, FieldError{Field: field, Rule: fe.Tag(), Param: fe.Param()})
	}
	return out
}

// Tasks enumerates the FetchTasks of the configured tables. Non-empty
// filters restrict regions and categories to the given codes or names.
func (c *Config) Tasks(regionFilter, categoryFilter []string) ([]jobs.FetchTask, error) {
	regions, err := selectCodes("region", c.Regions, regionFilter)
	if err != nil {
		return nil, err
	}
	categories, err := selectCodes("category", c.Categories, categoryFilter)
	if err != nil {
		return nil, err
	}
	return jobs.Tasks(regions, categories), nil
}

func selectCodes(kind string, table []CodeConfig, filter []string) ([]jobs.Code, error) {
	if len(filter) == 0 {
		codes := make([]jobs.Code, len(table))
		for i, c := range table {
			codes[i] = jobs.Code{Code: c.Code, Name: c.Name}
		}
		return codes, nil
	}

	codes := make([]jobs.Code, 0, len(filter))
	for _, want := range filter {
		found := false
		for _, c := range table {
			if c.Code == want || (c.Name != "" && c.Name == want) {
				codes = append(codes, jobs.Code{Code: c.Code, Name: c.Name})
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown %s %q", kind, want)
		}
	}
	return codes, nil
}
