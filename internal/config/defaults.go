package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultTimezone          = "Europe/Moscow"
	DefaultSourceKind        = "xlsx"
	DefaultGroupColumn       = "Организация"
	DefaultCommentColumn     = "Комментарий"
	DefaultCSVDelimiter      = ";"
	DefaultBackend           = "sheets"
	DefaultRequestsPerMinute = 60
	DefaultMarginColumn      = "Маржа"
	DefaultQuotaBackoff      = 20 * time.Second
	DefaultTransientRetries  = 3
	DefaultTransientBackoff  = 1 * time.Second
	DefaultCallTimeout       = 30 * time.Second
	DefaultGroupPause        = 80 * time.Second
	DefaultReconcilePause    = 80 * time.Second
	DefaultHistoryDir        = "history"
	DefaultCheckpointPath    = "state/checkpoint.db"
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 4
	DefaultMinConns          = 1
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
)

// DefaultDateLayouts are tried in order when parsing source dates.
var DefaultDateLayouts = []string{
	"02.01.2006",
	"02.01.2006 15:04",
	"02.01.2006 15:04:05",
	"2006-01-02",
	"2006-01-02 15:04:05",
}

func (c *Config) applyDefaults() {
	// Run defaults
	if c.Run.Timezone == "" {
		c.Run.Timezone = DefaultTimezone
	}

	// Source defaults
	if c.Source.Kind == "" {
		c.Source.Kind = DefaultSourceKind
	}
	if c.Source.GroupColumn == "" {
		c.Source.GroupColumn = DefaultGroupColumn
	}
	if c.Source.CommentColumn == "" {
		c.Source.CommentColumn = DefaultCommentColumn
	}
	if c.Source.CSVDelimiter == "" {
		c.Source.CSVDelimiter = DefaultCSVDelimiter
	}
	if len(c.Source.DateLayouts) == 0 {
		c.Source.DateLayouts = append([]string(nil), DefaultDateLayouts...)
	}

	// Table defaults
	if c.Tables.Backend == "" {
		c.Tables.Backend = DefaultBackend
	}
	if c.Tables.RequestsPerMinute == 0 {
		c.Tables.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if c.Margins.ColumnLabel == "" {
		c.Margins.ColumnLabel = DefaultMarginColumn
	}

	// Retry defaults
	if c.Retry.QuotaBackoff == 0 {
		c.Retry.QuotaBackoff = DefaultQuotaBackoff
	}
	if c.Retry.TransientRetries == 0 {
		c.Retry.TransientRetries = DefaultTransientRetries
	}
	if c.Retry.TransientBackoff == 0 {
		c.Retry.TransientBackoff = DefaultTransientBackoff
	}
	if c.Retry.CallTimeout == 0 {
		c.Retry.CallTimeout = DefaultCallTimeout
	}

	// Pacing defaults
	if c.Pacing.GroupPause == 0 {
		c.Pacing.GroupPause = DefaultGroupPause
	}
	if c.Pacing.ReconcilePause == 0 {
		c.Pacing.ReconcilePause = DefaultReconcilePause
	}

	// History defaults
	if c.History.Dir == "" {
		c.History.Dir = DefaultHistoryDir
	}
	applyDBDefaults(&c.History.Postgres)

	if c.Checkpoint.Path == "" {
		c.Checkpoint.Path = DefaultCheckpointPath
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
