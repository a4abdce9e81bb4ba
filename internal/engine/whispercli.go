package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"
)

// whisperCLI runs a whisper.cpp command-line binary per chunk and reads the
// timed segments from its JSON output.
type whisperCLI struct {
	executable string
	modelPath  string
	timeout    time.Duration
	logger     *zap.Logger
}

func newWhisperCLI(opts Options) (Engine, error) {
	if strings.TrimSpace(opts.ModelPath) == "" {
		return nil, errors.New("whisper-cli: model path is required")
	}

	executable, err := resolveWhisperExecutable()
	if err != nil {
		return nil, err
	}

	return &whisperCLI{
		executable: executable,
		modelPath:  opts.ModelPath,
		timeout:    opts.Timeout,
		logger:     opts.Logger,
	}, nil
}

func (w *whisperCLI) Name() string { return "whisper-cli" }

// whisperJSON mirrors the -oj output of whisper-cli. Offsets are in
// milliseconds from the start of the input file.
type whisperJSON struct {
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func (w *whisperCLI) Transcribe(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.AudioPath) == "" {
		return Result{}, errors.New("whisper-cli: audio path is required")
	}

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	// A private output dir per call keeps concurrent chunks from sharing an
	// output base and reading each other's JSON.
	outDir, err := os.MkdirTemp("", "lingoscribe-whisper-")
	if err != nil {
		return Result{}, fmt.Errorf("whisper-cli: create output dir: %w", err)
	}
	defer os.RemoveAll(outDir)
	outBase := filepath.Join(outDir, "chunk")
	jsonOut := outBase + ".json"

	args := []string{"-m", w.modelPath, "-f", req.AudioPath, "-oj", "-of", outBase}
	if lang := strings.TrimSpace(req.Language); lang != "" {
		args = append(args, "-l", lang)
	}

	cmd := exec.CommandContext(ctx, w.executable, args...)
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	w.logger.Debug("running whisper-cli", zap.String("audio", req.AudioPath), zap.Strings("args", args))
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, fmt.Errorf("whisper-cli: timed out after %s transcribing %s", w.timeout, req.AudioPath)
		}
		return Result{}, fmt.Errorf("whisper-cli: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}

	data, err := os.ReadFile(jsonOut)
	if err != nil {
		return Result{}, fmt.Errorf("whisper-cli: read output: %w", err)
	}

	var parsed whisperJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Result{}, fmt.Errorf("whisper-cli: parse output: %w", err)
	}

	var result Result
	var texts []string
	for _, item := range parsed.Transcription {
		text := strings.TrimSpace(item.Text)
		if text == "" {
			continue
		}
		result.Segments = append(result.Segments, Segment{
			Start: float64(item.Offsets.From) / 1000,
			End:   float64(item.Offsets.To) / 1000,
			Text:  text,
		})
		texts = append(texts, text)
	}
	result.Text = strings.Join(texts, " ")
	return result, nil
}

// resolveWhisperExecutable honors an explicit override, then falls back to
// PATH lookup.
func resolveWhisperExecutable() (string, error) {
	if override := strings.TrimSpace(os.Getenv("LINGOSCRIBE_WHISPER_PATH")); override != "" {
		if err := ensureExecutable(override); err != nil {
			return "", fmt.Errorf("LINGOSCRIBE_WHISPER_PATH is not executable: %w", err)
		}
		return override, nil
	}

	path, err := exec.LookPath("whisper-cli")
	if err != nil {
		return "", fmt.Errorf("whisper-cli not found on PATH; install whisper.cpp or set LINGOSCRIBE_WHISPER_PATH: %w", err)
	}
	return path, nil
}

func ensureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if runtime.GOOS != "windows" && info.Mode()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}
