package media

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SilenceDetector finds low-loudness points usable as chunk boundaries.
// It shells out to ffmpeg's silencedetect filter and collects the end time
// of every reported silence interval.
type SilenceDetector struct {
	Binary      string
	ThresholdDB float64
	MinDuration float64
	Timeout     time.Duration
	Logger      *zap.Logger
}

// Detect returns ordered silence-end timestamps in seconds. Failure is
// deliberately non-fatal: an unavailable tool or a timeout yields an empty
// slice and the chunk planner falls back to uniform cuts.
func (d SilenceDetector) Detect(ctx context.Context, path string) []float64 {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	binary := d.Binary
	if binary == "" {
		binary = "ffmpeg"
	}

	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	filter := "silencedetect=noise=" + strconv.FormatFloat(d.ThresholdDB, 'f', -1, 64) +
		"dB:d=" + strconv.FormatFloat(d.MinDuration, 'f', -1, 64)

	cmd := exec.CommandContext(ctx, binary,
		"-hide_banner",
		"-nostats",
		"-i", path,
		"-af", filter,
		"-f", "null", "-",
	)
	// silencedetect reports on the diagnostic stream, not stdout.
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		logger.Warn("silence detection unavailable; falling back to uniform chunking",
			zap.String("media", path), zap.Error(err))
		return nil
	}

	points := parseSilenceEnds(&stderr)
	logger.Debug("silence detection finished",
		zap.String("media", path), zap.Int("points", len(points)))
	return points
}

func parseSilenceEnds(output *bytes.Buffer) []float64 {
	var points []float64
	scanner := bufio.NewScanner(output)
	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.Index(line, "silence_end:")
		if idx < 0 {
			continue
		}
		rest := strings.TrimSpace(line[idx+len("silence_end:"):])
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		value, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			continue
		}
		points = append(points, value)
	}
	return points
}
