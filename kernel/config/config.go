// Package config loads the runtime bootstrap configuration.
package config

import (
	"fmt"
	"io"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nmxmxh/cvstudio/kernel/assets"
	"github.com/nmxmxh/cvstudio/kernel/backend"
	"github.com/nmxmxh/cvstudio/kernel/utils"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = utils.NewError("invalid config")

// Config is the complete bootstrap configuration
type Config struct {
	Assets  AssetsConfig  `yaml:"assets"`
	Runtime RuntimeConfig `yaml:"runtime"`
	Logging LoggingConfig `yaml:"logging"`
	Host    HostConfig    `yaml:"host"`
}

// AssetsConfig locates the runtime binaries.
type AssetsConfig struct {
	BasePath      string   `yaml:"base_path"`
	Required      []string `yaml:"required"`
	MinimumViable int      `yaml:"minimum_viable"` // present assets needed for IsReady
}

// RuntimeConfig shapes backend selection.
type RuntimeConfig struct {
	Candidates   []string `yaml:"candidates"`
	MaxThreads   int      `yaml:"max_threads"`
	IsolationURL string   `yaml:"isolation_url"` // native only: page whose headers prove isolation
	ProbeModel   string   `yaml:"probe_model"`   // optional model used for session tests
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Colorize bool   `yaml:"colorize"`
}

// HostConfig configures the development asset host.
type HostConfig struct {
	Addr     string `yaml:"addr"`
	Root     string `yaml:"root"`
	Isolate  bool   `yaml:"isolate"`
	Compress bool   `yaml:"compress"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	candidates := make([]string, 0, 3)
	for _, id := range backend.DefaultCandidates() {
		candidates = append(candidates, id.String())
	}

	return Config{
		Assets: AssetsConfig{
			BasePath:      "/ort/",
			Required:      assets.Required(),
			MinimumViable: 1,
		},
		Runtime: RuntimeConfig{
			Candidates: candidates,
			MaxThreads: 4,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Colorize: true,
		},
		Host: HostConfig{
			Addr:     ":8080",
			Root:     "public",
			Isolate:  true,
			Compress: true,
		},
	}
}

// Parse overlays YAML onto the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, utils.WrapError(err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses a YAML file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, utils.WrapError(err, "read config")
	}
	return Parse(data)
}

// Validate checks value ranges and backend names.
func (c Config) Validate() error {
	if c.Assets.BasePath == "" {
		return invalid("assets.base_path is required")
	}
	if len(c.Assets.Required) == 0 {
		return invalid("assets.required must list at least one file")
	}
	if c.Assets.MinimumViable < 1 || c.Assets.MinimumViable > len(c.Assets.Required) {
		return invalid("assets.minimum_viable must be between 1 and %d", len(c.Assets.Required))
	}
	if len(c.Runtime.Candidates) == 0 {
		return invalid("runtime.candidates must not be empty")
	}
	for _, name := range c.Runtime.Candidates {
		if _, err := backend.Parse(name); err != nil {
			return invalid("runtime.candidates: %v", err)
		}
	}
	if c.Runtime.MaxThreads < 0 {
		return invalid("runtime.max_threads must not be negative")
	}
	if _, err := utils.ParseLevel(c.Logging.Level); err != nil {
		return invalid("logging.level: %v", err)
	}
	return nil
}

// Backends returns the configured candidates as backend IDs.
func (c Config) Backends() []backend.ID {
	ids := make([]backend.ID, 0, len(c.Runtime.Candidates))
	for _, name := range c.Runtime.Candidates {
		if id, err := backend.Parse(name); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// NewLogger builds a logger from the logging section.
func (c Config) NewLogger(component string, out io.Writer) *utils.Logger {
	level, _ := utils.ParseLevel(c.Logging.Level)
	return utils.NewLogger(utils.LoggerConfig{
		Level:     level,
		Component: component,
		Output:    out,
		Colorize:  c.Logging.Colorize,
	})
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// ResolveBasePath resolves a relative asset base against the page URL so
// the runtime receives an absolute location. Unparseable input is returned
// unchanged.
func ResolveBasePath(base, page string) string {
	if page == "" {
		return base
	}
	ref, err := url.Parse(base)
	if err != nil || ref.IsAbs() {
		return base
	}
	pageURL, err := url.Parse(page)
	if err != nil || !pageURL.IsAbs() {
		return base
	}
	return pageURL.ResolveReference(ref).String()
}
