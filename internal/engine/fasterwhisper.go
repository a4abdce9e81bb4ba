package engine

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

//go:embed assets/faster_whisper.py
var fasterWhisperScript []byte

// fasterWhisper shells out to a python helper wrapping the faster-whisper
// library and reads segments from its JSON stdout.
type fasterWhisper struct {
	python    string
	modelPath string
	timeout   time.Duration
	logger    *zap.Logger
}

func newFasterWhisper(opts Options) (Engine, error) {
	python := strings.TrimSpace(opts.Python)
	if python == "" {
		python = "python3"
	}
	return &fasterWhisper{
		python:    python,
		modelPath: opts.ModelPath,
		timeout:   opts.Timeout,
		logger:    opts.Logger,
	}, nil
}

func (f *fasterWhisper) Name() string { return "faster-whisper" }

type fasterWhisperJSON struct {
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (f *fasterWhisper) Transcribe(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.AudioPath) == "" {
		return Result{}, errors.New("faster-whisper: audio path is required")
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	// One helper file per call: chunks transcribe concurrently on a shared
	// engine, so a fixed path would let one chunk's cleanup race a sibling's
	// python startup.
	helper, err := os.CreateTemp("", "lingoscribe-faster-whisper-*.py")
	if err != nil {
		return Result{}, fmt.Errorf("faster-whisper: write helper script: %w", err)
	}
	scriptPath := helper.Name()
	defer os.Remove(scriptPath)
	if _, err := helper.Write(fasterWhisperScript); err != nil {
		_ = helper.Close()
		return Result{}, fmt.Errorf("faster-whisper: write helper script: %w", err)
	}
	if err := helper.Close(); err != nil {
		return Result{}, fmt.Errorf("faster-whisper: write helper script: %w", err)
	}

	args := []string{scriptPath, "--audio", req.AudioPath}
	if f.modelPath != "" {
		args = append(args, "--model", f.modelPath)
	}
	if lang := strings.TrimSpace(req.Language); lang != "" {
		args = append(args, "--language", lang)
	}

	cmd := exec.CommandContext(ctx, f.python, args...)
	f.logger.Debug("running faster-whisper helper", zap.String("audio", req.AudioPath))

	out, err := cmd.Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, fmt.Errorf("faster-whisper: timed out after %s transcribing %s", f.timeout, req.AudioPath)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{}, fmt.Errorf("faster-whisper: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return Result{}, fmt.Errorf("faster-whisper: %w", err)
	}

	var parsed fasterWhisperJSON
	if err := json.Unmarshal(out, &parsed); err != nil {
		return Result{}, fmt.Errorf("faster-whisper: parse helper output: %w", err)
	}

	var result Result
	var texts []string
	for _, seg := range parsed.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		result.Segments = append(result.Segments, Segment{Start: seg.Start, End: seg.End, Text: text})
		texts = append(texts, text)
	}
	result.Text = strings.Join(texts, " ")
	return result, nil
}
