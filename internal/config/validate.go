package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// recordSeparator joins group and order id in saved record lines.
const recordSeparator = " - "

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Run.Timezone); err != nil {
		return fmt.Errorf("run.timezone %q: %w", c.Run.Timezone, err)
	}
	if c.Run.Date != "" {
		if _, err := time.Parse(time.DateOnly, c.Run.Date); err != nil {
			return fmt.Errorf("run.date must be YYYY-MM-DD, got %q", c.Run.Date)
		}
	}

	switch c.Source.Kind {
	case "xlsx", "csv":
		if c.Source.Path == "" {
			return errors.New("source.path is required")
		}
	case "replay":
	default:
		return fmt.Errorf("source.kind must be xlsx, csv or replay, got %q", c.Source.Kind)
	}
	if utf8.RuneCountInString(c.Source.CSVDelimiter) != 1 {
		return fmt.Errorf("source.csv_delimiter must be a single character, got %q", c.Source.CSVDelimiter)
	}

	switch c.Tables.Backend {
	case "sheets":
		if c.Tables.CredentialsFile == "" {
			return errors.New("tables.credentials_file is required for the sheets backend")
		}
	case "xlsx":
	default:
		return fmt.Errorf("tables.backend must be sheets or xlsx, got %q", c.Tables.Backend)
	}
	if c.Tables.RequestsPerMinute < 1 {
		return errors.New("tables.requests_per_minute must be >= 1")
	}

	if len(c.Groups) == 0 {
		return errors.New("groups must list at least one group")
	}
	seen := make(map[string]bool)
	for i, g := range c.Groups {
		if g.Label == "" {
			return fmt.Errorf("groups[%d].label is required", i)
		}
		if seen[g.Label] {
			return fmt.Errorf("groups[%d].label %q is duplicated", i, g.Label)
		}
		seen[g.Label] = true
		// Record lines are "<group> - <id>" split on the first separator.
		if strings.Contains(g.Label, recordSeparator) {
			return fmt.Errorf("groups[%d].label %q must not contain %q", i, g.Label, recordSeparator)
		}
		for j, a := range g.Aliases {
			if strings.Contains(a, recordSeparator) {
				return fmt.Errorf("groups[%d].aliases[%d] %q must not contain %q", i, j, a, recordSeparator)
			}
		}
		if g.Spreadsheet == "" && c.Margins.Spreadsheet == "" {
			return fmt.Errorf("groups[%d].spreadsheet or margins.spreadsheet is required", i)
		}
	}

	if c.Statistics.Spreadsheet == "" {
		return errors.New("statistics.spreadsheet is required")
	}
	if c.Statistics.Sheet == "" {
		return errors.New("statistics.sheet is required")
	}

	if c.Retry.QuotaBackoff <= 0 {
		return errors.New("retry.quota_backoff must be > 0")
	}
	if c.Retry.MaxQuotaRetries < 0 {
		return errors.New("retry.max_quota_retries must be >= 0")
	}
	if c.Retry.TransientRetries < 0 {
		return errors.New("retry.transient_retries must be >= 0")
	}
	if c.Retry.CallTimeout < 0 {
		return errors.New("retry.call_timeout must be >= 0")
	}
	if c.Pacing.GroupPause < 0 || c.Pacing.ReconcilePause < 0 {
		return errors.New("pacing pauses must be >= 0")
	}

	if c.History.Postgres.Enabled {
		if err := c.History.Postgres.validate("history.postgres"); err != nil {
			return err
		}
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
