package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lingoreel/lingoscribe/internal/chunk"
	"github.com/lingoreel/lingoscribe/internal/config"
	"github.com/lingoreel/lingoscribe/internal/download"
	"github.com/lingoreel/lingoscribe/internal/engine"
	"github.com/lingoreel/lingoscribe/internal/jobs"
	"github.com/lingoreel/lingoscribe/internal/language"
	"github.com/lingoreel/lingoscribe/internal/media"
	"github.com/lingoreel/lingoscribe/internal/platform"
	"github.com/lingoreel/lingoscribe/internal/transcribe"
)

func newTranscribeCmd(app *appState) *cobra.Command {
	var (
		lang  string
		jobID string
	)

	cmd := &cobra.Command{
		Use:   "transcribe <media-file>",
		Short: "Transcribe a media file into an SRT subtitle file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transcribeFn := app.transcribeFn
			if transcribeFn == nil {
				transcribeFn = app.transcribeMedia
			}

			code, err := resolveLanguage(lang)
			if err != nil {
				return err
			}

			out, err := transcribeFn(cmd.Context(), args[0], code, jobID)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&lang, "language", "l", "auto", "Audio language as an ISO 639-1 code, or auto")
	cmd.Flags().StringVar(&jobID, "job-id", "", "Job ID to track this run under (generated when empty)")
	bindEngineFlags(cmd, app)
	return cmd
}

func bindEngineFlags(cmd *cobra.Command, app *appState) {
	// Flags overlay the loaded config after PersistentPreRunE ran.
	flags := cmd.Flags()
	flags.String("engine", "", fmt.Sprintf("Transcription engine (%s)", strings.Join(engine.Names(), "|")))
	flags.String("model", "", "Model name or model file path")
	flags.String("model-dir", "", "Directory where models are stored")
	flags.Int("workers", 0, "Number of chunks transcribed in parallel")
	flags.Bool("auto-download", true, "Automatically download missing models")

	pre := cmd.PreRunE
	cmd.PreRunE = func(c *cobra.Command, args []string) error {
		if pre != nil {
			if err := pre(c, args); err != nil {
				return err
			}
		}
		cfg := app.appConfig()
		if v, _ := flags.GetString("engine"); v != "" {
			cfg.Engine.Name = v
		}
		if v, _ := flags.GetString("model"); v != "" {
			cfg.Engine.Model = v
		}
		if v, _ := flags.GetString("model-dir"); v != "" {
			cfg.Engine.ModelDir = v
		}
		if v, _ := flags.GetInt("workers"); v > 0 {
			cfg.Engine.Workers = v
		}
		if flags.Changed("auto-download") {
			v, _ := flags.GetBool("auto-download")
			cfg.Engine.AutoDownload = v
		}
		return nil
	}
}

// resolveLanguage maps the flag to the code handed to the engine. Empty and
// "auto" mean the engine detects the language itself.
func resolveLanguage(input string) (string, error) {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" || trimmed == "auto" {
		return "", nil
	}
	return language.Normalize(input)
}

func (a *appState) transcribeMedia(ctx context.Context, mediaPath, lang, jobID string) (string, error) {
	mediaPath = filepath.Clean(mediaPath)
	if _, err := os.Stat(mediaPath); err != nil {
		return "", fmt.Errorf("media file not found: %w", err)
	}

	cfg := a.appConfig()

	eng, err := a.buildEngine(ctx, cfg)
	if err != nil {
		return "", err
	}

	dataDir, err := platform.ResolveDataDir(cfg.Jobs.DataDir)
	if err != nil {
		return "", err
	}

	tracker := jobs.Open(filepath.Join(dataDir, "jobs"), time.Duration(cfg.Jobs.TTLSeconds)*time.Second, a.log())
	defer func() {
		if err := tracker.Close(); err != nil {
			a.log().Warn("failed to close job store", zap.Error(err))
		}
	}()

	id, err := tracker.Create(ctx, jobID, mediaPath, lang)
	if err != nil {
		return "", err
	}
	a.log().Info("transcription job created",
		zap.String("job_id", id),
		zap.String("media", mediaPath),
		zap.String("language", describeLanguage(lang)))

	coordinator := &transcribe.Coordinator{
		Prober: media.Prober{
			Binary:  cfg.FFprobeBinary,
			Timeout: time.Duration(cfg.Chunking.ProbeTimeoutSeconds) * time.Second,
		},
		Silence: media.SilenceDetector{
			Binary:      cfg.FFmpegBinary,
			ThresholdDB: cfg.Chunking.SilenceThresholdDB,
			MinDuration: cfg.Chunking.SilenceMinSeconds,
			Timeout:     time.Duration(cfg.Chunking.SilenceTimeoutSeconds) * time.Second,
			Logger:      a.log(),
		},
		Planner: chunk.Planner{
			Length:     cfg.Chunking.LengthSeconds,
			Overlap:    cfg.Chunking.OverlapSeconds,
			SnapWindow: cfg.Chunking.SnapWindowSeconds,
		},
		Extractor: chunk.Extractor{
			Binary:  cfg.FFmpegBinary,
			Timeout: time.Duration(cfg.Chunking.ExtractTimeoutSeconds) * time.Second,
			Logger:  a.log(),
		},
		Engine:      eng,
		Tracker:     tracker,
		Workers:     cfg.Engine.Workers,
		ScratchRoot: filepath.Join(dataDir, "scratch"),
		Logger:      a.log(),
	}

	started := time.Now()
	stopProgress := startJobProgress(a.progressEnabled(), tracker, id)
	out, err := coordinator.Run(ctx, id, mediaPath, lang)
	stopProgress()
	if err != nil {
		a.log().Warn("transcription failed", zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		return "", err
	}
	a.log().Info("transcription finished", zap.Duration("elapsed", time.Since(started)), zap.String("subtitle", out))

	return out, nil
}

func (a *appState) buildEngine(ctx context.Context, cfg *config.Config) (engine.Engine, error) {
	opts := engine.Options{
		Python:  cfg.Engine.Python,
		Timeout: time.Duration(cfg.Engine.TimeoutSeconds) * time.Second,
		Logger:  a.log(),
	}

	// Only whisper-cli consumes local ggml model files; faster-whisper
	// resolves model names through its own cache.
	if cfg.Engine.Name == "whisper-cli" {
		model, err := a.ensureModelAvailable(ctx, cfg)
		if err != nil {
			return nil, err
		}
		opts.ModelPath = model.Path
	} else {
		opts.ModelPath = cfg.Engine.Model
	}

	return engine.New(cfg.Engine.Name, opts)
}

func (a *appState) ensureModelAvailable(ctx context.Context, cfg *config.Config) (engine.ResolvedModel, error) {
	modelDir, err := platform.ResolveModelDir(cfg.Engine.ModelDir)
	if err != nil {
		return engine.ResolvedModel{}, err
	}
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return engine.ResolvedModel{}, fmt.Errorf("create model directory %s: %w", modelDir, err)
	}

	resolved, err := engine.ResolveModel(cfg.Engine.Model, modelDir)
	if err != nil {
		return engine.ResolvedModel{}, err
	}
	if !resolved.NeedsDownload {
		return resolved, nil
	}

	if !cfg.Engine.AutoDownload {
		return engine.ResolvedModel{}, fmt.Errorf("model %q is missing at %s; rerun with --auto-download=true", resolved.Name, resolved.Path)
	}

	a.log().Info("model not found, downloading", zap.String("model", resolved.Name), zap.String("destination", resolved.Path))
	if err := download.File(ctx, download.Options{
		URL:            resolved.URL,
		Destination:    resolved.Path,
		ExpectedSHA256: resolved.SHA256,
		NoProgress:     a.noProgress,
		Logger:         a.log(),
	}); err != nil {
		return engine.ResolvedModel{}, fmt.Errorf("download model %q: %w", resolved.Name, err)
	}

	resolved.NeedsDownload = false
	return resolved, nil
}

func describeLanguage(code string) string {
	if code == "" {
		return "auto"
	}
	return language.DisplayName(code)
}
