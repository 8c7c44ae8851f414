package config

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/jonathan/job-harvester/internal/db"
)

const mask = "xxxxx"

var keywordPassword = regexp.MustCompile(`(?i)(password\s*=\s*)('[^']*'|\S+)`)

// Redacted returns a copy of c with credentials masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Notify.RedisPassword != "" {
		out.Notify.RedisPassword = mask
	}
	out.Storage.DSN = RedactDSN(out.Storage.Driver, out.Storage.DSN)
	return &out
}

// RedactDSN masks the password in a connection string. A DSN that cannot be
// parsed is masked whole.
func RedactDSN(driver, dsn string) string {
	switch driver {
	case db.DriverMySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return mask
		}
		if cfg.Passwd != "" {
			cfg.Passwd = mask
		}
		return cfg.FormatDSN()
	case db.DriverPostgres:
		if strings.Contains(dsn, "://") {
			u, err := url.Parse(dsn)
			if err != nil {
				return mask
			}
			return u.Redacted()
		}
		return keywordPassword.ReplaceAllString(dsn, "${1}"+mask)
	default:
		return dsn
	}
}
