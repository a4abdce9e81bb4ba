// Package engine defines the speech-to-text boundary. Backends are external
// processes; each transcribes one chunk in isolation and reports segments in
// chunk-relative time.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Segment is one recognized phrase, timed relative to the chunk start.
type Segment struct {
	Start float64
	End   float64
	Text  string
}

// Request asks for one chunk to be transcribed.
type Request struct {
	AudioPath string
	Language  string
}

// Result is the transcription of a single chunk.
type Result struct {
	Text     string
	Segments []Segment
}

// Engine is a pluggable transcription backend.
type Engine interface {
	Name() string
	Transcribe(ctx context.Context, req Request) (Result, error)
}

// Options carries backend construction parameters resolved by the caller.
type Options struct {
	ModelPath string
	Python    string
	Timeout   time.Duration
	Logger    *zap.Logger
}

type factory func(Options) (Engine, error)

var registry = map[string]factory{
	"whisper-cli":    newWhisperCLI,
	"faster-whisper": newFasterWhisper,
}

// Names lists the registered backends.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New resolves a backend by name. The returned engine is safe for
// concurrent use by the worker pool.
func New(name string, opts Options) (Engine, error) {
	build, ok := registry[strings.TrimSpace(name)]
	if !ok {
		return nil, fmt.Errorf("unknown transcription engine %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return build(opts)
}
