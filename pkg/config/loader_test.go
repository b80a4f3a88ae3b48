package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/testproxy/internal/matching"
	"github.com/getmockd/testproxy/pkg/sanitize"
	"github.com/getmockd/testproxy/pkg/transform"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFromFile_YAML(t *testing.T) {
	path := writeFile(t, "proxy.yaml", `
listen: "127.0.0.1:7000"
rootDir: /tmp/recordings
log:
  level: debug
  format: json
consumption: reuse
matcher:
  type: CustomDefaultMatcher
  compareBodies: false
  excludedHeaders: [X-Request-Nonce]
sanitizers:
  - type: HeaderRegexSanitizer
    key: X-Api-Secret
  - type: RemoveHeaderSanitizer
    headersForRemoval: [X-Debug, X-Trace]
transforms:
  - type: ApiVersionTransform
preload:
  dir: ./fixtures
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.Listen)
	assert.Equal(t, "/tmp/recordings", cfg.RootDir)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "reuse", cfg.Consumption)
	assert.EqualValues(t, DefaultMaxBodyBytes, cfg.MaxBodyBytes)
	require.NotNil(t, cfg.Matcher)
	require.NotNil(t, cfg.Matcher.CompareBodies)
	assert.False(t, *cfg.Matcher.CompareBodies)
	require.Len(t, cfg.Sanitizers, 2)
	assert.Equal(t, []string{"X-Debug", "X-Trace"}, cfg.Sanitizers[1].Headers)
	require.NotNil(t, cfg.Preload)
	assert.Equal(t, "./fixtures", cfg.Preload.Dir)

	ext, err := cfg.BuildExtensions()
	require.NoError(t, err)
	assert.Len(t, ext.Sanitizers, 2)
	assert.IsType(t, &sanitize.RemoveHeaderSanitizer{}, ext.Sanitizers[1])
	require.Len(t, ext.Transforms, 1)
	assert.Equal(t, transform.TypeAPIVersion, ext.Transforms[0].Name())
	assert.Equal(t, matching.NameCustom, ext.Matcher.Name())
}

func TestLoadFromFile_JSONKeepsDefaults(t *testing.T) {
	path := writeFile(t, "proxy.json", `{"rootDir": "recordings"}`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "recordings", cfg.RootDir)
	assert.Equal(t, DefaultListen, cfg.Listen)
	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.Equal(t, DefaultConsumption, cfg.Consumption)

	ext, err := cfg.BuildExtensions()
	require.NoError(t, err)
	assert.Empty(t, ext.Sanitizers)
	assert.Empty(t, ext.Transforms)
	assert.Nil(t, ext.Matcher)
}

func TestLoadFromFile_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
		want error
	}{
		{name: "invalid JSON", file: "bad.json", body: `{ invalid json }`, want: ErrInvalidJSON},
		{name: "invalid YAML", file: "bad.yaml", body: "listen: [unclosed", want: ErrInvalidYAML},
		{name: "empty", file: "empty.yml", body: "  \n", want: ErrEmptyFile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeFile(t, tt.file, tt.body))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrFileNotFound)

	_, err = LoadFromFile(t.TempDir())
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Default().Validate())

	cfg := Default()
	cfg.Listen = "no-port"
	cfg.MaxBodyBytes = -1
	cfg.Log.Level = "trace"
	cfg.Log.Format = "xml"
	cfg.Consumption = "random"
	cfg.Sanitizers = []sanitize.Spec{{Type: "BodyRegexSanitizer", Regex: "("}}
	cfg.Transforms = []transform.Spec{{Type: "NoSuchTransform"}}
	cfg.Matcher = &matching.Spec{Type: "NoSuchMatcher"}
	cfg.Preload = &PreloadConfig{Pattern: "[unclosed"}

	err := cfg.Validate()
	require.Error(t, err)

	fields := map[string]bool{}
	for _, e := range err.(interface{ Unwrap() []error }).Unwrap() {
		var ve *ValidationError
		require.True(t, errors.As(e, &ve))
		fields[ve.Field] = true
	}
	for _, f := range []string{
		"listen", "maxBodyBytes", "log.level", "log.format", "consumption",
		"sanitizers[0]", "transforms[0]", "matcher", "preload.dir", "preload.pattern",
	} {
		assert.True(t, fields[f], f)
	}
}

func TestParseYAML_ValidationFailure(t *testing.T) {
	_, err := ParseYAML([]byte("sanitizers:\n  - type: HeaderRegexSanitizer\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sanitizers[0]")
	assert.Contains(t, err.Error(), "key is required")
}
