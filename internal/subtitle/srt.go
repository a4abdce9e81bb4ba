// Package subtitle writes the reassembled transcript as an SRT artifact.
package subtitle

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Segment is one subtitle cue with absolute timestamps in seconds.
type Segment struct {
	Start float64
	End   float64
	Text  string
}

// OutputPath derives the subtitle path from the source media path: same
// directory, media extension replaced with .srt.
func OutputPath(mediaPath string) string {
	ext := filepath.Ext(mediaPath)
	return strings.TrimSuffix(mediaPath, ext) + ".srt"
}

// WriteSRT writes segments as sequentially numbered SRT cues. Sequence
// numbers start at 1; cues appear in the order given.
func WriteSRT(path string, segments []Segment) error {
	var sb strings.Builder
	for i, seg := range segments {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%d\n", i+1)
		fmt.Fprintf(&sb, "%s --> %s\n", FormatTimestamp(seg.Start), FormatTimestamp(seg.End))
		sb.WriteString(strings.TrimSpace(seg.Text))
		sb.WriteString("\n")
	}

	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("write subtitle file %s: %w", path, err)
	}
	return nil
}

// FormatTimestamp renders seconds as the SRT HH:MM:SS,mmm form.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	millis := int64(seconds*1000 + 0.5)
	hours := millis / 3_600_000
	millis -= hours * 3_600_000
	minutes := millis / 60_000
	millis -= minutes * 60_000
	secs := millis / 1000
	millis -= secs * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}
