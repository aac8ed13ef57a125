package config

import (
	"time"

	"github.com/rickgao/orderstats/internal/model"
)

// Config is the root configuration of the reconciler.
type Config struct {
	Run        RunConfig        `yaml:"run"`
	Source     SourceConfig     `yaml:"source"`
	Tables     TablesConfig     `yaml:"tables"`
	Margins    MarginsConfig    `yaml:"margins"`
	Groups     []GroupConfig    `yaml:"groups"`
	Statistics StatisticsConfig `yaml:"statistics"`
	Retry      RetryConfig      `yaml:"retry"`
	Pacing     PacingConfig     `yaml:"pacing"`
	History    HistoryConfig    `yaml:"history"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Events     EventsConfig     `yaml:"events"`
	Status     StatusConfig     `yaml:"status"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// RunConfig selects the day to reconcile.
type RunConfig struct {
	Date     string `yaml:"date"`     // YYYY-MM-DD; empty means yesterday
	Timezone string `yaml:"timezone"` // IANA name used to compute yesterday
}

// SourceConfig selects where order records come from.
type SourceConfig struct {
	Kind          string   `yaml:"kind"` // "xlsx", "csv" or "replay"
	Path          string   `yaml:"path"` // May contain {date}
	Sheet         string   `yaml:"sheet"`
	GroupColumn   string   `yaml:"group_column"`
	CommentColumn string   `yaml:"comment_column"`
	DateColumn    string   `yaml:"date_column"`
	DateLayouts   []string `yaml:"date_layouts"`
	CSVDelimiter  string   `yaml:"csv_delimiter"`
}

// TablesConfig selects the table backend.
type TablesConfig struct {
	Backend           string `yaml:"backend"` // "sheets" or "xlsx"
	CredentialsFile   string `yaml:"credentials_file"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

// MarginsConfig locates margin tables.
type MarginsConfig struct {
	Spreadsheet string `yaml:"spreadsheet"`  // Default spreadsheet of group tables
	ColumnLabel string `yaml:"column_label"` // Header of the margin column
}

// GroupConfig is one organization and its margin worksheet.
type GroupConfig struct {
	Label       string   `yaml:"label"`
	Sheet       string   `yaml:"sheet"`
	Spreadsheet string   `yaml:"spreadsheet"` // Overrides margins.spreadsheet
	Aliases     []string `yaml:"aliases"`
}

// StatisticsConfig locates the statistics table.
type StatisticsConfig struct {
	Spreadsheet string `yaml:"spreadsheet"`
	Sheet       string `yaml:"sheet"`
	DateAnchor  string `yaml:"date_anchor"`
	CountLabel  string `yaml:"count_label"`
}

// RetryConfig holds the table retry policy.
type RetryConfig struct {
	QuotaBackoff     time.Duration `yaml:"quota_backoff"`
	MaxQuotaRetries  int           `yaml:"max_quota_retries"`
	TransientRetries int           `yaml:"transient_retries"`
	TransientBackoff time.Duration `yaml:"transient_backoff"`
	CallTimeout      time.Duration `yaml:"call_timeout"`
}

// PacingConfig holds pauses that keep a run under the per-minute quota.
type PacingConfig struct {
	GroupPause     time.Duration `yaml:"group_pause"`
	ReconcilePause time.Duration `yaml:"reconcile_pause"`
}

// HistoryConfig holds the run archive settings.
type HistoryConfig struct {
	Dir      string   `yaml:"dir"`
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// CheckpointConfig holds the marker store location.
type CheckpointConfig struct {
	Path string `yaml:"path"` // Empty keeps markers in memory
}

// EventsConfig selects progress event sinks.
type EventsConfig struct {
	Console      bool   `yaml:"console"`
	WebSocketURL string `yaml:"websocket_url"`
}

// StatusConfig holds the status HTTP server settings.
type StatusConfig struct {
	Addr string `yaml:"addr"` // Empty disables the server
}

// LoggingConfig holds slog settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// ModelGroups converts the configured groups, filling in the default
// spreadsheet.
func (c *Config) ModelGroups() []model.Group {
	groups := make([]model.Group, 0, len(c.Groups))
	for _, g := range c.Groups {
		ss := g.Spreadsheet
		if ss == "" {
			ss = c.Margins.Spreadsheet
		}
		sheet := g.Sheet
		if sheet == "" {
			sheet = g.Label
		}
		groups = append(groups, model.Group{
			Label:       g.Label,
			Spreadsheet: ss,
			Sheet:       sheet,
			Aliases:     append([]string(nil), g.Aliases...),
		})
	}
	return groups
}

// RunDate resolves the day to reconcile: run.date if set, otherwise yesterday
// in run.timezone relative to now.
func (c *Config) RunDate(now time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(c.Run.Timezone)
	if err != nil {
		return time.Time{}, err
	}
	if c.Run.Date != "" {
		return time.ParseInLocation(time.DateOnly, c.Run.Date, loc)
	}
	y, m, d := now.In(loc).AddDate(0, 0, -1).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
}
