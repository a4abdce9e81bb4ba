// Package language validates target-language codes before a transcription
// job is accepted. Callers pass ISO 639-1 codes ("es", "de"); anything the
// engine cannot address is rejected up front rather than failing mid-job.
package language

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Normalize parses input as a language tag and returns the lowercase
// ISO 639-1 base code. Full words like "spanish" are not accepted; the
// platform API contract is two-letter codes.
func Normalize(input string) (string, error) {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return "", fmt.Errorf("language code is required")
	}

	tag, err := language.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("unrecognized language code %q: %w", input, err)
	}

	base, conf := tag.Base()
	if conf == language.No {
		return "", fmt.Errorf("unrecognized language code %q", input)
	}

	code := base.String()
	if len(code) != 2 {
		return "", fmt.Errorf("language %q has no ISO 639-1 two-letter code", input)
	}
	return code, nil
}

// DisplayName returns the English name for a normalized code, for log and
// status messages. Unknown codes are returned unchanged.
func DisplayName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	return display.English.Tags().Name(tag)
}
