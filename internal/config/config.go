package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultPath is read when no -config flag is given
	DefaultPath = "config/config.yaml"

	// NoFixture as fixtures.default makes every case start from empty data
	NoFixture = "none"

	// NoStore as fixtures.store.type runs cases against whatever data the
	// SUT already holds
	NoStore = "none"
)

// Config holds the application configuration
type Config struct {
	Environment Environment       `yaml:"environment"`
	API         APIConfig         `yaml:"api"`
	Fixtures    FixturesConfig    `yaml:"fixtures"`
	Matcher     MatcherConfig     `yaml:"matcher"`
	Synthesizer SynthesizerConfig `yaml:"synthesizer"`
	Test        TestConfig        `yaml:"test"`
	Reporting   ReportingConfig   `yaml:"reporting"`
}

// Environment holds environment-specific configuration
type Environment struct {
	// BaseURL points at an externally started SUT; when empty the SUT is
	// started from SUT.Command
	BaseURL string    `yaml:"base_url"`
	SUT     SUTConfig `yaml:"sut"`
}

// SUTConfig describes how to start the SUT as a child process
type SUTConfig struct {
	Command      []string `yaml:"command"`
	Dir          string   `yaml:"dir"`
	Env          []string `yaml:"env"`
	Mode         string   `yaml:"mode"` // "per-case" or "once"
	ReadyPath    string   `yaml:"ready_path"`
	ReadyTimeout int      `yaml:"ready_timeout"`
}

// APIConfig locates the API description
type APIConfig struct {
	Description string `yaml:"description"`
}

// FixturesConfig holds fixture loading configuration
type FixturesConfig struct {
	Dir     string      `yaml:"dir"`
	Default string      `yaml:"default"`
	Store   StoreConfig `yaml:"store"`
}

// StoreConfig selects the data store the SUT reads from
type StoreConfig struct {
	Type     string   `yaml:"type"` // "sql" or "none"
	Driver   string   `yaml:"driver"`
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Database string   `yaml:"database"`
	User     string   `yaml:"user"`
	Password string   `yaml:"password"`
	Tables   []string `yaml:"tables"`
}

// MatcherConfig holds schema matcher options. Strict defaults to true.
type MatcherConfig struct {
	Strict  *bool `yaml:"strict"`
	Verbose bool  `yaml:"verbose"`
}

// SynthesizerConfig selects the example generator
type SynthesizerConfig struct {
	Provider  string `yaml:"provider"` // "heuristic" or "openai"
	LLMConfig string `yaml:"llm_config"`
}

// TestConfig holds test execution configuration
type TestConfig struct {
	Timeout int         `yaml:"timeout"`
	Retry   RetryConfig `yaml:"retry"`
}

// RetryConfig holds retry configuration
type RetryConfig struct {
	Attempts int `yaml:"attempts"`
	Delay    int `yaml:"delay"`
}

// ReportingConfig holds reporting configuration
type ReportingConfig struct {
	Format       []string `yaml:"format"`
	OutputDir    string   `yaml:"output_dir"`
	Detailed     bool     `yaml:"detailed"`
	ArtifactsDir string   `yaml:"artifacts_dir"`
	LogDir       string   `yaml:"log_dir"`
}

// LoadConfig loads the configuration from a config file and environment
// variables. A missing file at the default path yields the defaults.
func LoadConfig(configPath string) (*Config, error) {
	explicit := configPath != ""
	if !explicit {
		configPath = DefaultPath
	}

	var config Config
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		// Parse YAML
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %v", err)
		}
	case os.IsNotExist(err) && !explicit:
	case os.IsNotExist(err):
		return nil, fmt.Errorf("config file not found at %s", configPath)
	default:
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}

	config.applyEnv()
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyEnv overrides settings from environment variables if set
func (c *Config) applyEnv() {
	if baseURL := os.Getenv("BASE_URL"); baseURL != "" {
		c.Environment.BaseURL = baseURL
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		c.Fixtures.Store.Password = password
	}
}

// applyDefaults sets default values if not specified
func (c *Config) applyDefaults() {
	if c.Environment.SUT.Mode == "" {
		c.Environment.SUT.Mode = "per-case"
	}
	if c.Environment.SUT.ReadyTimeout == 0 {
		c.Environment.SUT.ReadyTimeout = 30
	}
	if c.API.Description == "" {
		c.API.Description = "openapi.yaml"
	}
	if c.Fixtures.Dir == "" {
		c.Fixtures.Dir = "fixtures"
	}
	if c.Fixtures.Default == "" {
		c.Fixtures.Default = "many-posts"
	}
	if c.Matcher.Strict == nil {
		strict := true
		c.Matcher.Strict = &strict
	}
	if c.Synthesizer.Provider == "" {
		c.Synthesizer.Provider = "heuristic"
	}
	if c.Test.Timeout == 0 {
		c.Test.Timeout = 30
	}
	if c.Test.Retry.Attempts == 0 {
		c.Test.Retry.Attempts = 1
	}
	if len(c.Reporting.Format) == 0 {
		c.Reporting.Format = []string{"json"}
	}
	if c.Reporting.OutputDir == "" {
		c.Reporting.OutputDir = "reports"
	}
	if c.Reporting.LogDir == "" {
		c.Reporting.LogDir = "logs"
	}
}

// Validate checks settings that cannot be defaulted
func (c *Config) Validate() error {
	switch c.Environment.SUT.Mode {
	case "per-case", "once":
	default:
		return fmt.Errorf("invalid sut mode %q: must be per-case or once", c.Environment.SUT.Mode)
	}
	switch c.Fixtures.Store.Type {
	case "", NoStore:
	case "memory":
		return fmt.Errorf("fixture store memory cannot be read by an external SUT: use sql, or %s to skip seeding", NoStore)
	case "sql":
		switch c.Fixtures.Store.Driver {
		case "postgres", "mysql", "sqlserver":
		default:
			return fmt.Errorf("unsupported database driver %q", c.Fixtures.Store.Driver)
		}
	default:
		return fmt.Errorf("unsupported fixture store %q", c.Fixtures.Store.Type)
	}

	switch c.Synthesizer.Provider {
	case "heuristic":
	case "openai":
		if c.Synthesizer.LLMConfig == "" {
			return fmt.Errorf("synthesizer.llm_config is required for provider openai")
		}
	default:
		return fmt.Errorf("unsupported synthesizer %q", c.Synthesizer.Provider)
	}

	for _, format := range c.Reporting.Format {
		if format = strings.TrimSpace(format); format != "json" && format != "text" {
			return fmt.Errorf("unsupported report format %q", format)
		}
	}
	return nil
}

// BaselineFixture returns the fixture derived cases load, empty for none
func (c *Config) BaselineFixture() string {
	if c.Fixtures.Default == NoFixture {
		return ""
	}
	return c.Fixtures.Default
}

// RequireSUT reports whether the configuration says how to reach the SUT.
// Only running tests needs one.
func (c *Config) RequireSUT() error {
	if c.Environment.BaseURL == "" && len(c.Environment.SUT.Command) == 0 {
		return fmt.Errorf("either environment.base_url (or BASE_URL) or environment.sut.command is required")
	}
	return nil
}

// RequireStore reports whether the configuration says where fixtures are
// seeded. Only running tests needs one.
func (c *Config) RequireStore() error {
	if c.Fixtures.Store.Type == "" {
		return fmt.Errorf("fixtures.store.type is required: use sql to seed fixtures, or %s to run against the SUT's existing data", NoStore)
	}
	return nil
}
