package chunk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lingoreel/lingoscribe/internal/media"
)

// ExtractionError indicates a chunk could not be produced. One missing chunk
// leaves a coverage gap that desynchronizes the transcript, so the parent job
// treats it as fatal.
type ExtractionError struct {
	Index int
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract chunk %d: %v", e.Index, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Extractor cuts one window out of the source media as mono PCM WAV at the
// engine's required sample rate.
type Extractor struct {
	Binary     string
	SampleRate int
	Timeout    time.Duration
	Logger     *zap.Logger
}

// Extract writes the window [w.Start, w.End] of mediaPath into dir and
// returns the chunk path. Non-zero exit, a timeout, or undecodable output is
// an *ExtractionError.
func (e Extractor) Extract(ctx context.Context, mediaPath string, w Window, dir string) (string, error) {
	binary := e.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	sampleRate := e.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	out := filepath.Join(dir, fmt.Sprintf("chunk-%04d.wav", w.Index))
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", formatSeconds(w.Start),
		"-to", formatSeconds(w.End),
		"-i", mediaPath,
		"-vn", "-sn", "-dn",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-c:a", "pcm_s16le",
		out,
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Debug("extracting chunk",
		zap.Int("index", w.Index),
		zap.Float64("start", w.Start),
		zap.Float64("end", w.End))

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &ExtractionError{Index: w.Index, Err: fmt.Errorf("timed out after %s", e.Timeout)}
		}
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			err = fmt.Errorf("%w: %s", err, detail)
		}
		return "", &ExtractionError{Index: w.Index, Err: err}
	}

	if _, err := os.Stat(out); err != nil {
		return "", &ExtractionError{Index: w.Index, Err: fmt.Errorf("output missing: %w", err)}
	}
	if _, err := media.InspectWAV(out); err != nil {
		return "", &ExtractionError{Index: w.Index, Err: fmt.Errorf("output not decodable: %w", err)}
	}
	return out, nil
}

func formatSeconds(value float64) string {
	return strconv.FormatFloat(value, 'f', 3, 64)
}
