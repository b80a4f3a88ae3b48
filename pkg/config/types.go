package config

import (
	"github.com/getmockd/testproxy/internal/matching"
	"github.com/getmockd/testproxy/pkg/sanitize"
	"github.com/getmockd/testproxy/pkg/transform"
)

// Defaults.
const (
	DefaultListen       = ":5000"
	DefaultMaxBodyBytes = 10 * 1024 * 1024
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
	DefaultConsumption  = "sequential"
)

// Config is the test proxy's configuration.
type Config struct {
	// Listen is the address the proxy listens on.
	Listen string `json:"listen,omitempty" yaml:"listen,omitempty"`

	// RootDir is the directory relative recording paths resolve against.
	// Empty means the per-user data directory.
	RootDir string `json:"rootDir,omitempty" yaml:"rootDir,omitempty"`

	Log LogConfig `json:"log" yaml:"log"`

	// MaxBodyBytes limits the request and response bodies captured per
	// exchange.
	MaxBodyBytes int64 `json:"maxBodyBytes,omitempty" yaml:"maxBodyBytes,omitempty"`

	// Consumption is "sequential" or "reuse".
	Consumption string `json:"consumption,omitempty" yaml:"consumption,omitempty"`

	Matcher    *matching.Spec   `json:"matcher,omitempty" yaml:"matcher,omitempty"`
	Sanitizers []sanitize.Spec  `json:"sanitizers,omitempty" yaml:"sanitizers,omitempty"`
	Transforms []transform.Spec `json:"transforms,omitempty" yaml:"transforms,omitempty"`

	Preload *PreloadConfig `json:"preload,omitempty" yaml:"preload,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
	// File additionally receives every record as JSON.
	File string `json:"file,omitempty" yaml:"file,omitempty"`
}

// PreloadConfig selects recordings loaded into memory storage at startup.
type PreloadConfig struct {
	Dir     string `json:"dir" yaml:"dir"`
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Listen:       DefaultListen,
		MaxBodyBytes: DefaultMaxBodyBytes,
		Consumption:  DefaultConsumption,
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// Extensions are the built forms of the configured sanitizers, transforms
// and matcher. Matcher is nil when none is configured.
type Extensions struct {
	Sanitizers sanitize.Pipeline
	Transforms transform.Pipeline
	Matcher    matching.Matcher
}

// BuildExtensions constructs the configured extensions.
func (c *Config) BuildExtensions() (*Extensions, error) {
	sanitizers, err := sanitize.BuildAll(c.Sanitizers)
	if err != nil {
		return nil, err
	}
	transforms, err := transform.BuildAll(c.Transforms)
	if err != nil {
		return nil, err
	}

	ext := &Extensions{Sanitizers: sanitizers, Transforms: transforms}
	if c.Matcher != nil {
		ext.Matcher, err = matching.Build(*c.Matcher)
		if err != nil {
			return nil, err
		}
	}
	return ext, nil
}
