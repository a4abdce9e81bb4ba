// Package transcribe drives one job end to end: plan chunk windows, extract
// them, fan out to the transcription engine on a bounded worker pool, and
// reassemble the per-chunk results into a single time-aligned subtitle file.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/lingoreel/lingoscribe/internal/chunk"
	"github.com/lingoreel/lingoscribe/internal/engine"
	"github.com/lingoreel/lingoscribe/internal/jobs"
	"github.com/lingoreel/lingoscribe/internal/logging"
	"github.com/lingoreel/lingoscribe/internal/subtitle"
)

// DurationProber reports a media file's container duration in seconds.
type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// SilenceDetector reports candidate chunk boundaries. Implementations must
// degrade to an empty slice rather than failing.
type SilenceDetector interface {
	Detect(ctx context.Context, path string) []float64
}

// Extractor produces one normalized audio chunk for a window.
type Extractor interface {
	Extract(ctx context.Context, mediaPath string, w chunk.Window, dir string) (string, error)
}

// Coordinator owns the per-job pipeline. One coordinator may run many jobs;
// each Run call gets its own scratch directory and worker pool.
type Coordinator struct {
	Prober      DurationProber
	Silence     SilenceDetector
	Planner     chunk.Planner
	Extractor   Extractor
	Engine      engine.Engine
	Tracker     *jobs.Tracker
	Workers     int
	ScratchRoot string
	Logger      *zap.Logger
}

// Progress bands per phase. Transcription advances linearly with completed
// chunks, never with wall time.
const (
	progressPlanned     = 10.0
	progressExtracted   = 25.0
	progressTranscribed = 90.0
	extractionBandWidth = progressExtracted - progressPlanned
	transcribeBandWidth = progressTranscribed - progressExtracted
)

type extractedChunk struct {
	window chunk.Window
	path   string
}

type chunkResult struct {
	index  int
	result engine.Result
	err    error
}

// Run executes the job and finalizes its record either way. It returns the
// subtitle artifact path on success.
func (c *Coordinator) Run(ctx context.Context, jobID, mediaPath, language string) (string, error) {
	logger := logging.OrNop(c.Logger).With(zap.String("job_id", jobID), zap.String("media", mediaPath))

	out, transcript, err := c.run(ctx, jobID, mediaPath, language, logger)
	if err != nil {
		logger.Error("transcription job failed", zap.Error(err))
		c.Tracker.Fail(ctx, jobID, err, "transcription failed")
		return "", err
	}

	c.Tracker.Complete(ctx, jobID, out, transcript, "transcription finished")
	logger.Info("transcription job finished", zap.String("subtitle", out))
	return out, nil
}

func (c *Coordinator) run(ctx context.Context, jobID, mediaPath, language string, logger *zap.Logger) (string, string, error) {
	c.Tracker.UpdateProgress(ctx, jobID, 2, "probing media")

	duration, err := c.Prober.Duration(ctx, mediaPath)
	if err != nil {
		return "", "", err
	}

	c.Tracker.UpdateProgress(ctx, jobID, 5, "detecting silence points")
	silences := c.Silence.Detect(ctx, mediaPath)

	windows := c.Planner.Plan(duration, silences)
	if len(windows) == 0 {
		return "", "", fmt.Errorf("no chunk windows for %s: media duration is %.3fs", mediaPath, duration)
	}
	logger.Info("chunk plan ready",
		zap.Float64("duration", duration),
		zap.Int("chunks", len(windows)),
		zap.Int("silence_points", len(silences)))
	c.Tracker.UpdateProgress(ctx, jobID, progressPlanned, fmt.Sprintf("planned %d chunks", len(windows)))

	scratch, err := chunk.NewScratch(c.ScratchRoot, jobID, logger)
	if err != nil {
		return "", "", err
	}
	defer scratch.Release()

	extracted, err := c.extractAll(ctx, jobID, mediaPath, windows, scratch.Dir)
	if err != nil {
		return "", "", err
	}

	results, err := c.transcribeAll(ctx, jobID, language, extracted)
	if err != nil {
		return "", "", err
	}

	c.Tracker.UpdateProgress(ctx, jobID, progressTranscribed, "reassembling transcript")

	segments := reassemble(windows, results)
	outPath := subtitle.OutputPath(mediaPath)
	if err := subtitle.WriteSRT(outPath, segments); err != nil {
		return "", "", err
	}
	return outPath, joinTranscript(results), nil
}

// joinTranscript concatenates per-chunk text in chunk order with single
// spaces, skipping chunks that recognized nothing.
func joinTranscript(results []engine.Result) string {
	texts := make([]string, 0, len(results))
	for _, res := range results {
		if res.Text == "" {
			continue
		}
		texts = append(texts, res.Text)
	}
	return strings.Join(texts, " ")
}

func (c *Coordinator) extractAll(ctx context.Context, jobID, mediaPath string, windows []chunk.Window, dir string) ([]extractedChunk, error) {
	extracted := make([]extractedChunk, 0, len(windows))
	for i, w := range windows {
		path, err := c.Extractor.Extract(ctx, mediaPath, w, dir)
		if err != nil {
			return nil, err
		}
		extracted = append(extracted, extractedChunk{window: w, path: path})

		progress := progressPlanned + extractionBandWidth*float64(i+1)/float64(len(windows))
		c.Tracker.UpdateProgress(ctx, jobID, progress,
			fmt.Sprintf("extracted chunk %d/%d", i+1, len(windows)))
	}
	return extracted, nil
}

// transcribeAll fans chunks out to a pool scoped to this job. On the first
// chunk failure the remaining queued chunks are skipped, but chunks already
// being transcribed run to completion so no background work is orphaned.
func (c *Coordinator) transcribeAll(ctx context.Context, jobID, language string, chunks []extractedChunk) ([]engine.Result, error) {
	workers := c.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(chunks) {
		workers = len(chunks)
	}

	tasks := make(chan extractedChunk)
	results := make(chan chunkResult)
	var failed atomic.Bool

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range tasks {
				if failed.Load() {
					results <- chunkResult{index: task.window.Index, err: errSkipped}
					continue
				}
				res, err := c.Engine.Transcribe(ctx, engine.Request{
					AudioPath: task.path,
					Language:  language,
				})
				results <- chunkResult{index: task.window.Index, result: res, err: err}
			}
		}()
	}

	go func() {
		for _, task := range chunks {
			tasks <- task
		}
		close(tasks)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	collected := make([]engine.Result, len(chunks))
	completed := 0
	var firstErr error
	for r := range results {
		if r.err != nil {
			if firstErr == nil && r.err != errSkipped {
				firstErr = fmt.Errorf("transcribe chunk %d: %w", r.index, r.err)
				failed.Store(true)
			}
			continue
		}
		collected[r.index] = r.result
		completed++

		progress := progressExtracted + transcribeBandWidth*float64(completed)/float64(len(chunks))
		c.Tracker.UpdateProgress(ctx, jobID, progress,
			fmt.Sprintf("transcribed chunk %d/%d", completed, len(chunks)))
	}

	if firstErr != nil {
		return nil, firstErr
	}
	return collected, nil
}

var errSkipped = errors.New("chunk skipped after earlier failure")

// reassemble shifts every segment by its chunk's start offset and emits
// them in chunk-index order. Completion order never drives the output;
// results arrive indexed by window position.
func reassemble(windows []chunk.Window, results []engine.Result) []subtitle.Segment {
	var segments []subtitle.Segment
	for i, res := range results {
		offset := windows[i].Start
		for _, seg := range res.Segments {
			segments = append(segments, subtitle.Segment{
				Start: seg.Start + offset,
				End:   seg.End + offset,
				Text:  seg.Text,
			})
		}
	}
	return segments
}
