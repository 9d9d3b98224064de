package config

import (
	"fmt"
	"time"

	redisclient "github.com/edukit/coursegen/internal/infra/redis"
	"github.com/edukit/coursegen/internal/infra/storage/postgres"
)

// Duration is a time.Duration that unmarshals from YAML strings ("90s",
// "5m"). Plain time.Duration fields would only accept nanosecond integers.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the standard time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig       `yaml:"server"`
	Logging    LoggingConfig      `yaml:"logging"`
	Pipeline   PipelineConfig     `yaml:"pipeline"`
	Providers  []ProviderConfig   `yaml:"providers"`
	Budget     BudgetConfig       `yaml:"budget"`
	Checkpoint CheckpointConfig   `yaml:"checkpoint"`
	Redis      redisclient.Config `yaml:"redis"`
	Database   postgres.Config    `yaml:"database"`
	Courses    []CourseConfig     `yaml:"courses"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// PipelineConfig bounds the generation run. Zero values take the documented
// defaults; -1 turns a retry knob off entirely.
type PipelineConfig struct {
	Workers         int      `yaml:"workers"`
	Pacing          Duration `yaml:"pacing"`
	MaxRetries      int      `yaml:"max_retries"`    // transport retries, -1 = none
	BaseDelay       Duration `yaml:"base_delay"`     // first backoff sleep
	RepairRetries   int      `yaml:"repair_retries"` // re-calls after unparseable output, -1 = none
	Temperature     float64  `yaml:"temperature"`
	MaxOutputTokens int      `yaml:"max_output_tokens"`
	TraceRetention  Duration `yaml:"trace_retention"` // 0 = keep forever
}

// ProviderConfig holds settings for one completion provider.
type ProviderConfig struct {
	Name    string   `yaml:"name"` // gemini, anthropic
	APIKey  string   `yaml:"api_key"`
	Model   string   `yaml:"model"`
	BaseURL string   `yaml:"base_url"`
	Timeout Duration `yaml:"timeout"`
}

// BudgetConfig caps daily spend across all providers.
type BudgetConfig struct {
	DailyCalls  int `yaml:"daily_calls"`  // 0 = unlimited
	DailyTokens int `yaml:"daily_tokens"` // 0 = unlimited
}

// CheckpointConfig selects where run state lives. An empty backend is
// resolved from what is configured: postgres when a database URL is set,
// then redis, then local files.
type CheckpointConfig struct {
	Backend string `yaml:"backend"` // file, postgres, redis
	Dir     string `yaml:"dir"`     // file backend root
}

// CourseConfig names one course to generate.
type CourseConfig struct {
	ID         string `yaml:"id"`
	Title      string `yaml:"title"`
	SourceFile string `yaml:"source_file"`
}
