package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
ffmpeg_binary = "/opt/ffmpeg/bin/ffmpeg"

[chunking]
length_seconds = 20.0

[engine]
workers = 2
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.FFmpegBinary)
	require.Equal(t, 20.0, cfg.Chunking.LengthSeconds)
	require.Equal(t, 2, cfg.Engine.Workers)
	// Untouched keys keep their defaults.
	require.Equal(t, 2.0, cfg.Chunking.OverlapSeconds)
	require.Equal(t, "whisper-cli", cfg.Engine.Name)
	require.Equal(t, 3600, cfg.Jobs.TTLSeconds)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chunk length", func(c *Config) { c.Chunking.LengthSeconds = 0 }},
		{"negative overlap", func(c *Config) { c.Chunking.OverlapSeconds = -1 }},
		{"overlap not smaller than length", func(c *Config) { c.Chunking.OverlapSeconds = 30 }},
		{"no workers", func(c *Config) { c.Engine.Workers = 0 }},
		{"empty engine", func(c *Config) { c.Engine.Name = "" }},
		{"zero ttl", func(c *Config) { c.Jobs.TTLSeconds = 0 }},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tc.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestSampleConfigMatchesDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sample.toml")
	require.NoError(t, WriteSample(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Default().Chunking, cfg.Chunking)
	require.Equal(t, Default().Jobs.TTLSeconds, cfg.Jobs.TTLSeconds)
}
