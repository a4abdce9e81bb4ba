package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Chunking controls how source media is split into transcription units.
type Chunking struct {
	LengthSeconds          float64 `toml:"length_seconds"`
	OverlapSeconds         float64 `toml:"overlap_seconds"`
	SnapWindowSeconds      float64 `toml:"snap_window_seconds"`
	SilenceThresholdDB     float64 `toml:"silence_threshold_db"`
	SilenceMinSeconds      float64 `toml:"silence_min_seconds"`
	ProbeTimeoutSeconds    int     `toml:"probe_timeout_seconds"`
	SilenceTimeoutSeconds  int     `toml:"silence_timeout_seconds"`
	ExtractTimeoutSeconds  int     `toml:"extract_timeout_seconds"`
}

// Engine selects and configures the speech-to-text backend.
type Engine struct {
	Name           string `toml:"name"`
	Model          string `toml:"model"`
	ModelDir       string `toml:"model_dir"`
	AutoDownload   bool   `toml:"auto_download"`
	Workers        int    `toml:"workers"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Python         string `toml:"python"`
}

// Jobs configures the durable job store.
type Jobs struct {
	DataDir    string `toml:"data_dir"`
	TTLSeconds int    `toml:"ttl_seconds"`
}

// Config is the root configuration for the transcription engine.
type Config struct {
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`

	Chunking Chunking `toml:"chunking"`
	Engine   Engine   `toml:"engine"`
	Jobs     Jobs     `toml:"jobs"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		FFmpegBinary:  "ffmpeg",
		FFprobeBinary: "ffprobe",
		Chunking: Chunking{
			LengthSeconds:         30,
			OverlapSeconds:        2,
			SnapWindowSeconds:     5,
			SilenceThresholdDB:    -30,
			SilenceMinSeconds:     0.5,
			ProbeTimeoutSeconds:   30,
			SilenceTimeoutSeconds: 30,
			ExtractTimeoutSeconds: 60,
		},
		Engine: Engine{
			Name:           "whisper-cli",
			Model:          "small",
			AutoDownload:   true,
			Workers:        4,
			TimeoutSeconds: 300,
			Python:         "python3",
		},
		Jobs: Jobs{
			TTLSeconds: 3600,
		},
	}
}

// Load reads a TOML config file and overlays it on the defaults. A missing
// file is not an error; the defaults are returned unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Chunking.LengthSeconds <= 0 {
		return fmt.Errorf("chunking.length_seconds must be positive, got %v", c.Chunking.LengthSeconds)
	}
	if c.Chunking.OverlapSeconds < 0 {
		return fmt.Errorf("chunking.overlap_seconds must not be negative, got %v", c.Chunking.OverlapSeconds)
	}
	if c.Chunking.OverlapSeconds >= c.Chunking.LengthSeconds {
		return fmt.Errorf("chunking.overlap_seconds (%v) must be smaller than chunking.length_seconds (%v)",
			c.Chunking.OverlapSeconds, c.Chunking.LengthSeconds)
	}
	if c.Chunking.SnapWindowSeconds < 0 {
		return fmt.Errorf("chunking.snap_window_seconds must not be negative, got %v", c.Chunking.SnapWindowSeconds)
	}
	if c.Engine.Workers < 1 {
		return fmt.Errorf("engine.workers must be at least 1, got %d", c.Engine.Workers)
	}
	if c.Engine.Name == "" {
		return errors.New("engine.name must not be empty")
	}
	if c.Jobs.TTLSeconds < 1 {
		return fmt.Errorf("jobs.ttl_seconds must be at least 1, got %d", c.Jobs.TTLSeconds)
	}
	return nil
}

// WriteSample writes the annotated sample configuration to path.
func WriteSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
