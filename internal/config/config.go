package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Zoom     ZoomConfig     `yaml:"zoom"`
	Sync     SyncConfig     `yaml:"sync"`
	Mailer   MailerConfig   `yaml:"mailer"`
	Events   EventsConfig   `yaml:"events"`
	LogLevel string         `yaml:"log_level"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

type ZoomConfig struct {
	APIKey    string        `yaml:"api_key"`
	APISecret string        `yaml:"api_secret"`
	BaseURL   string        `yaml:"base_url"`
	PageSize  int           `yaml:"page_size"`
	Timeout   time.Duration `yaml:"timeout"`
	Retry     RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

type SyncConfig struct {
	SafetyLag               time.Duration `yaml:"safety_lag"`
	MaxWindow               time.Duration `yaml:"max_window"`
	HistoricalStart         string        `yaml:"historical_start"`
	MappingFailureThreshold float64       `yaml:"mapping_failure_threshold"`
	ReportTypes             []string      `yaml:"report_types"`
}

// HistoricalStartDate parses the configured first-run start date. When the
// field is empty it falls back to Aug 1 of the current school year.
func (s SyncConfig) HistoricalStartDate() (time.Time, error) {
	if s.HistoricalStart == "" {
		return schoolYearStart(time.Now().UTC()), nil
	}
	t, err := time.Parse("2006-01-02", s.HistoricalStart)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse historical_start: %w", err)
	}
	return t.UTC(), nil
}

func schoolYearStart(now time.Time) time.Time {
	year := now.Year()
	if now.Month() <= time.June {
		year--
	}
	return time.Date(year, time.August, 1, 0, 0, 0, 0, time.UTC)
}

type MailerConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Host            string   `yaml:"host"`
	Port            string   `yaml:"port"`
	Username        string   `yaml:"username"`
	Password        string   `yaml:"password"`
	From            string   `yaml:"from"`
	To              []string `yaml:"to"`
	NotifyOnSuccess bool     `yaml:"notify_on_success"`
}

type EventsConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

// Enabled reports whether run events should be published.
func (e EventsConfig) Enabled() bool {
	return e.URL != ""
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Zoom.BaseURL == "" {
		c.Zoom.BaseURL = "https://api.zoom.us/v2"
	}
	if c.Zoom.PageSize == 0 {
		c.Zoom.PageSize = 300
	}
	if c.Zoom.Timeout == 0 {
		c.Zoom.Timeout = 30 * time.Second
	}
	if c.Zoom.Retry.MaxAttempts == 0 {
		c.Zoom.Retry.MaxAttempts = 3
	}
	if c.Zoom.Retry.InitialBackoff == 0 {
		c.Zoom.Retry.InitialBackoff = 1 * time.Second
	}
	if c.Zoom.Retry.MaxBackoff == 0 {
		c.Zoom.Retry.MaxBackoff = 30 * time.Second
	}
	if c.Sync.SafetyLag == 0 {
		c.Sync.SafetyLag = 30 * time.Minute
	}
	if c.Sync.MaxWindow == 0 {
		c.Sync.MaxWindow = 24 * time.Hour
	}
	if c.Sync.MappingFailureThreshold == 0 {
		c.Sync.MappingFailureThreshold = 0.05
	}
	if len(c.Sync.ReportTypes) == 0 {
		c.Sync.ReportTypes = []string{"meetings"}
	}
	if c.Mailer.Port == "" {
		c.Mailer.Port = "587"
	}
	if c.Events.Exchange == "" {
		c.Events.Exchange = "zoom_connector"
	}
	if c.Events.RoutingKey == "" {
		c.Events.RoutingKey = "runs"
	}
	if c.Events.QueueName == "" {
		c.Events.QueueName = "attendance_runs"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	if c.Zoom.APIKey == "" || c.Zoom.APISecret == "" {
		return fmt.Errorf("zoom api_key and api_secret are required")
	}
	if _, err := c.Sync.HistoricalStartDate(); err != nil {
		return err
	}
	if c.Sync.MappingFailureThreshold < 0 || c.Sync.MappingFailureThreshold > 1 {
		return fmt.Errorf("mapping_failure_threshold must be within [0, 1]")
	}
	return nil
}
