package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/getmockd/testproxy/internal/matching"
	"github.com/getmockd/testproxy/pkg/logging"
	"github.com/getmockd/testproxy/pkg/sanitize"
	"github.com/getmockd/testproxy/pkg/transform"
)

// ValidationError reports an invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks every field and returns all problems found, joined.
func (c *Config) Validate() error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Listen); err != nil {
			add("listen", "invalid address %q", c.Listen)
		}
	}
	if c.MaxBodyBytes < 0 {
		add("maxBodyBytes", "must not be negative")
	}
	if !logging.ValidLevel(c.Log.Level) {
		add("log.level", "unknown level %q", c.Log.Level)
	}
	if !logging.ValidFormat(c.Log.Format) {
		add("log.format", "unknown format %q", c.Log.Format)
	}
	switch strings.ToLower(c.Consumption) {
	case "", "sequential", "reuse":
	default:
		add("consumption", "must be sequential or reuse, got %q", c.Consumption)
	}

	for i, spec := range c.Sanitizers {
		if _, err := sanitize.Build(spec); err != nil {
			add(fmt.Sprintf("sanitizers[%d]", i), "%v", err)
		}
	}
	for i, spec := range c.Transforms {
		if _, err := transform.Build(spec); err != nil {
			add(fmt.Sprintf("transforms[%d]", i), "%v", err)
		}
	}
	if c.Matcher != nil {
		if _, err := matching.Build(*c.Matcher); err != nil {
			add("matcher", "%v", err)
		}
	}

	if c.Preload != nil {
		if c.Preload.Dir == "" {
			add("preload.dir", "is required")
		}
		if c.Preload.Pattern != "" && !doublestar.ValidatePattern(c.Preload.Pattern) {
			add("preload.pattern", "invalid pattern %q", c.Preload.Pattern)
		}
	}

	return errors.Join(errs...)
}
