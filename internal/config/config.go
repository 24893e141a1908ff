// Package config provides YAML-based configuration loading for Daily Read,
// with DAILY_READ_* environment variables taking precedence over the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/dailyread/internal/project"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "DAILY_READ_"

// Config is the top-level Daily Read configuration.
type Config struct {
	OrderPortal       OrderPortalConfig `yaml:"order_portal"`
	Data              DataConfig        `yaml:"data"`
	ReportsLocation   string            `yaml:"reports_location"`
	UsersListLocation string            `yaml:"users_list_location"`
	Log               LogConfig         `yaml:"log"`
	Sources           SourcesConfig     `yaml:"sources"`
	Reconcile         ReconcileConfig   `yaml:"reconcile"`
	Fetch             FetchConfig       `yaml:"fetch"`
	StatusPriority    []string          `yaml:"status_priority"`
	Schedule          string            `yaml:"schedule"`
	DB                DBConfig          `yaml:"db"`
	Notify            NotifyConfig      `yaml:"notify"`
	Serve             ServeConfig       `yaml:"serve"`
}

// OrderPortalConfig holds the remote order service settings.
type OrderPortalConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// DataConfig describes the project record store.
type DataConfig struct {
	Location    string `yaml:"location"`
	Backend     string `yaml:"backend"` // "git" or "manifest"
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level    string `yaml:"level"`
	Location string `yaml:"location"`
}

// SourcesConfig enables the lab data sources.
type SourcesConfig struct {
	Stockholm StatusDBConfig `yaml:"stockholm"`
	SNPSeq    FeedConfig     `yaml:"snpseq"`
	UGC       FeedConfig     `yaml:"ugc"`
}

// StatusDBConfig holds CouchDB settings of the NGI Stockholm source.
type StatusDBConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// FeedConfig describes a JSON feed source.
type FeedConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// ReconcileConfig holds the closing window policy.
type ReconcileConfig struct {
	ClosedBeforeInDays int `yaml:"closed_before_in_days"`
	PaddingDays        int `yaml:"padding_days"`
}

// FetchConfig bounds how far back sources are queried.
type FetchConfig struct {
	MonthsBack int `yaml:"months_back"`
}

// DBConfig selects the run history database.
type DBConfig struct {
	Driver   string `yaml:"driver"` // "sqlite" or "mysql"
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// NotifyConfig holds optional chat notification targets.
type NotifyConfig struct {
	SlackWebhookURL  string `yaml:"slack_webhook_url"`
	DiscordBotToken  string `yaml:"discord_bot_token"`
	DiscordChannelID string `yaml:"discord_channel_id"`
}

// ServeConfig holds dashboard settings.
type ServeConfig struct {
	Port int `yaml:"port"`
}

// LookupFunc resolves an environment variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load reads a YAML config file from path, applies environment overrides and
// returns a validated Config. An empty path means environment only.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	return ParseWithEnv(data, os.LookupEnv)
}

// Parse unmarshals YAML bytes into a validated Config, ignoring the environment.
func Parse(data []byte) (*Config, error) {
	return ParseWithEnv(data, func(string) (string, bool) { return "", false })
}

// ParseWithEnv unmarshals YAML bytes, applies overrides from lookup and
// validates the result.
func ParseWithEnv(data []byte, lookup LookupFunc) (*Config, error) {
	// Window days are preset so an explicit 0 in the file is kept.
	cfg := Config{Reconcile: ReconcileConfig{ClosedBeforeInDays: 30, PaddingDays: 5}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(lookup LookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = truthy(v)
		}
	}

	str("ORDER_PORTAL_URL", &c.OrderPortal.URL)
	str("ORDER_PORTAL_API_KEY", &c.OrderPortal.APIKey)
	str("REPORTS_LOCATION", &c.ReportsLocation)
	str("DATA_LOCATION", &c.Data.Location)
	str("DATA_BACKEND", &c.Data.Backend)
	str("LOG_LOCATION", &c.Log.Location)
	str("LOG_LEVEL", &c.Log.Level)
	str("USERS_LIST_LOCATION", &c.UsersListLocation)
	str("STHLM_STATUSDB_URL", &c.Sources.Stockholm.URL)
	str("STHLM_STATUSDB_USERNAME", &c.Sources.Stockholm.Username)
	str("STHLM_STATUSDB_PASSWORD", &c.Sources.Stockholm.Password)
	str("SNPSEQ_URL", &c.Sources.SNPSeq.URL)
	str("UGC_URL", &c.Sources.UGC.URL)
	str("SCHEDULE", &c.Schedule)
	str("SLACK_WEBHOOK_URL", &c.Notify.SlackWebhookURL)
	str("DISCORD_BOT_TOKEN", &c.Notify.DiscordBotToken)
	str("DISCORD_CHANNEL_ID", &c.Notify.DiscordChannelID)
	flag("FETCH_FROM_NGIS", &c.Sources.Stockholm.Enabled)
	flag("FETCH_FROM_SNPSEQ", &c.Sources.SNPSeq.Enabled)
	flag("FETCH_FROM_UGC", &c.Sources.UGC.Enabled)

	if v, ok := lookup(EnvPrefix + "CLOSED_BEFORE_IN_DAYS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid %sCLOSED_BEFORE_IN_DAYS: %w", EnvPrefix, err)
		}
		c.Reconcile.ClosedBeforeInDays = n
	}
	return nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.OrderPortal.URL != "" && !strings.HasSuffix(c.OrderPortal.URL, "/") {
		c.OrderPortal.URL += "/"
	}
	if c.OrderPortal.Timeout == 0 {
		c.OrderPortal.Timeout = 60 * time.Second
	}
	if c.Data.Backend == "" {
		c.Data.Backend = "git"
	}
	if c.Data.AuthorName == "" {
		c.Data.AuthorName = "Daily Read"
	}
	if c.Data.AuthorEmail == "" {
		c.Data.AuthorEmail = "dailyread@localhost"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Sources.Stockholm.Database == "" {
		c.Sources.Stockholm.Database = "projects"
	}
	if c.Fetch.MonthsBack == 0 {
		c.Fetch.MonthsBack = 6
	}
	if len(c.StatusPriority) == 0 {
		c.StatusPriority = append([]string(nil), project.DefaultStatuses...)
	}
	if c.Schedule == "" {
		c.Schedule = "0 6 * * *"
	}
	if c.DB.Driver == "" {
		c.DB.Driver = "sqlite"
	}
	if c.DB.Driver == "sqlite" && c.DB.Path == "" && c.Data.Location != "" {
		c.DB.Path = filepath.Join(filepath.Dir(filepath.Clean(c.Data.Location)), "dailyread.db")
	}
	if c.DB.Driver == "mysql" {
		if c.DB.Host == "" {
			c.DB.Host = "127.0.0.1"
		}
		if c.DB.Port == 0 {
			c.DB.Port = 3306
		}
		if c.DB.Database == "" {
			c.DB.Database = "dailyread"
		}
		if c.DB.User == "" {
			c.DB.User = "root"
		}
	}
	if c.Serve.Port == 0 {
		c.Serve.Port = 8080
	}
}

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule parses a 5-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	return cronParser.Parse(expr)
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.OrderPortal.URL == "" {
		errs = append(errs, "order_portal.url is required")
	}
	if c.OrderPortal.APIKey == "" {
		errs = append(errs, "order_portal.api_key is required")
	}
	if c.Data.Location == "" {
		errs = append(errs, "data.location is required")
	} else if !filepath.IsAbs(c.Data.Location) {
		errs = append(errs, fmt.Sprintf("data.location is not an absolute path: %s", c.Data.Location))
	}
	if c.Data.Backend != "git" && c.Data.Backend != "manifest" {
		errs = append(errs, fmt.Sprintf("data.backend %q must be git or manifest", c.Data.Backend))
	}
	if !c.Sources.Stockholm.Enabled && !c.Sources.SNPSeq.Enabled && !c.Sources.UGC.Enabled {
		errs = append(errs, "there are no sources specified to fetch data from")
	}
	if c.Sources.Stockholm.Enabled && c.Sources.Stockholm.URL == "" {
		errs = append(errs, "sources.stockholm.url is required when enabled")
	}
	seen := make(map[string]bool, len(c.StatusPriority))
	for i, s := range c.StatusPriority {
		if s == "" {
			errs = append(errs, fmt.Sprintf("status_priority[%d] is empty", i))
		}
		if seen[s] {
			errs = append(errs, fmt.Sprintf("status_priority[%d] %q is duplicated", i, s))
		}
		seen[s] = true
	}
	if c.Reconcile.ClosedBeforeInDays < 0 || c.Reconcile.PaddingDays < 0 {
		errs = append(errs, "reconcile days must not be negative")
	}
	if _, err := ParseSchedule(c.Schedule); err != nil {
		errs = append(errs, fmt.Sprintf("schedule %q: %v", c.Schedule, err))
	}
	if c.DB.Driver != "sqlite" && c.DB.Driver != "mysql" {
		errs = append(errs, fmt.Sprintf("db.driver %q must be sqlite or mysql", c.DB.Driver))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s: %w", strings.Join(errs, "; "), project.ErrConfig)
	}
	return nil
}

// ReadUserList reads an allow-list of orderer emails, one per line. A missing
// file or empty path yields an empty list.
func ReadUserList(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read user list %s: %w", path, err)
	}
	var users []string
	for _, line := range strings.Split(string(data), "\n") {
		if u := strings.TrimSpace(line); u != "" {
			users = append(users, u)
		}
	}
	return users, nil
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "no", "off":
		return false
	}
	return true
}
