package agentloop

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config controls a Loop instance. Zero values are filled in from
// DefaultConfig by LoadConfig and NewLoop.
type Config struct {
	// Model and provider routing.
	Model    string `yaml:"model"`
	Provider string `yaml:"provider"`

	// Generation limits.
	MaxOutputTokens int `yaml:"max_output_tokens"`

	// MaxRounds caps model round trips per submitted input.
	MaxRounds int `yaml:"max_rounds"`

	// Transport retry.
	RetryAttempts        int `yaml:"retry_attempts"`
	RetryIntervalSeconds int `yaml:"retry_interval_seconds"`

	// Shell tool timeouts, in milliseconds.
	DefaultCommandTimeoutMS int `yaml:"default_command_timeout_ms"`
	MaxCommandTimeoutMS     int `yaml:"max_command_timeout_ms"`

	// Loop detection is on unless disabled.
	DisableLoopDetection bool `yaml:"disable_loop_detection"`
	LoopDetectionWindow  int  `yaml:"loop_detection_window"`

	// Per-tool output limits applied before results enter the
	// conversation. Unset tools use the built-in limits.
	ToolOutputCharLimits map[string]int `yaml:"tool_output_char_limits"`
	ToolOutputLineLimits map[string]int `yaml:"tool_output_line_limits"`

	// Subagents.
	MaxSubagentDepth int `yaml:"max_subagent_depth"`

	// UserInstructions is appended to the system prompt verbatim.
	UserInstructions string `yaml:"user_instructions"`

	// Nesting level of this loop; set internally when spawning.
	subagentDepth int
}

// RetryInterval returns the configured retry interval as a duration.
func (c Config) RetryInterval() time.Duration {
	return time.Duration(c.RetryIntervalSeconds) * time.Second
}

// DefaultConfig returns the default loop configuration.
func DefaultConfig() Config {
	return Config{
		Model:                   "gpt-5.2",
		MaxOutputTokens:         8000,
		MaxRounds:               200,
		RetryAttempts:           3,
		RetryIntervalSeconds:    3,
		DefaultCommandTimeoutMS: 10000,
		MaxCommandTimeoutMS:     600000,
		LoopDetectionWindow:     10,
		MaxSubagentDepth:        1,
	}
}

// applyDefaults fills unset fields from DefaultConfig.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Model == "" {
		c.Model = def.Model
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = def.MaxOutputTokens
	}
	if c.MaxRounds <= 0 {
		c.MaxRounds = def.MaxRounds
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = def.RetryAttempts
	}
	if c.RetryIntervalSeconds <= 0 {
		c.RetryIntervalSeconds = def.RetryIntervalSeconds
	}
	if c.DefaultCommandTimeoutMS <= 0 {
		c.DefaultCommandTimeoutMS = def.DefaultCommandTimeoutMS
	}
	if c.MaxCommandTimeoutMS <= 0 {
		c.MaxCommandTimeoutMS = def.MaxCommandTimeoutMS
	}
	if c.LoopDetectionWindow <= 0 {
		c.LoopDetectionWindow = def.LoopDetectionWindow
	}
	if c.MaxSubagentDepth <= 0 {
		c.MaxSubagentDepth = def.MaxSubagentDepth
	}
}

// FindConfig returns the first existing config file from the standard
// search paths: the explicit path if given, ./agentloop.yaml, then
// ~/.config/agentloop/config.yaml. Returns "" if none exists.
func FindConfig(explicit string) string {
	candidates := []string{}
	if explicit != "" {
		candidates = append(candidates, explicit)
	}
	candidates = append(candidates, "agentloop.yaml")
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "agentloop", "config.yaml"))
	}

	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// LoadConfig reads a YAML config file and fills unset fields with
// defaults. An empty path returns DefaultConfig.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}
