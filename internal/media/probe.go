// Package media wraps the external ffmpeg/ffprobe tools behind small,
// testable functions: container duration probing, silence detection, and
// decodability checks for extracted audio.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ProbeError indicates the container duration could not be determined.
// Without a duration no chunk plan is possible, so callers treat it as fatal.
type ProbeError struct {
	Path string
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Path, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// Prober reports container durations via ffprobe.
type Prober struct {
	Binary  string
	Timeout time.Duration
}

// Duration returns the media duration in seconds. ffprobe is asked for a
// single numeric value; a non-zero exit, timeout, or unparsable output is a
// *ProbeError.
func (p Prober) Duration(ctx context.Context, path string) (float64, error) {
	binary := p.Binary
	if binary == "" {
		binary = "ffprobe"
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, binary,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		"--", path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, &ProbeError{Path: path, Err: fmt.Errorf("timed out after %s", p.Timeout)}
		}
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			err = fmt.Errorf("%w: %s", err, detail)
		}
		return 0, &ProbeError{Path: path, Err: err}
	}

	value := strings.TrimSpace(string(output))
	seconds, parseErr := strconv.ParseFloat(value, 64)
	if parseErr != nil || seconds < 0 {
		return 0, &ProbeError{Path: path, Err: fmt.Errorf("unparsable duration %q", value)}
	}
	return seconds, nil
}
