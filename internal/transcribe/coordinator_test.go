package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lingoreel/lingoscribe/internal/chunk"
	"github.com/lingoreel/lingoscribe/internal/engine"
	"github.com/lingoreel/lingoscribe/internal/jobs"
)

type fakeProber struct {
	duration float64
	err      error
}

func (f fakeProber) Duration(context.Context, string) (float64, error) {
	return f.duration, f.err
}

type fakeSilence struct {
	points []float64
}

func (f fakeSilence) Detect(context.Context, string) []float64 {
	return f.points
}

type fakeExtractor struct {
	err error
}

func (f fakeExtractor) Extract(_ context.Context, _ string, w chunk.Window, dir string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	path := filepath.Join(dir, fmt.Sprintf("chunk-%04d.wav", w.Index))
	if err := os.WriteFile(path, []byte("pcm"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// fakeEngine returns one segment per chunk in chunk-local time. Delays are
// keyed by chunk index so tests can force later chunks to finish first.
type fakeEngine struct {
	mu       sync.Mutex
	delays   map[int]time.Duration
	failAt   int
	order    []int
	segments func(index int) []engine.Segment
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Transcribe(_ context.Context, req engine.Request) (engine.Result, error) {
	index := chunkIndexFromPath(req.AudioPath)
	if d, ok := f.delays[index]; ok {
		time.Sleep(d)
	}

	f.mu.Lock()
	f.order = append(f.order, index)
	f.mu.Unlock()

	if f.failAt == index {
		return engine.Result{}, errors.New("model crashed")
	}

	segs := []engine.Segment{{Start: 1, End: 2, Text: fmt.Sprintf("part %d", index)}}
	if f.segments != nil {
		segs = f.segments(index)
	}
	text := make([]string, 0, len(segs))
	for _, s := range segs {
		text = append(text, s.Text)
	}
	return engine.Result{Text: strings.Join(text, " "), Segments: segs}, nil
}

func chunkIndexFromPath(path string) int {
	var index int
	fmt.Sscanf(filepath.Base(path), "chunk-%04d.wav", &index)
	return index
}

// recordingStore wraps the in-memory store and keeps every progress value
// written through it, in order.
type recordingStore struct {
	jobs.Store

	mu       sync.Mutex
	progress []float64
}

func (r *recordingStore) Put(ctx context.Context, rec *jobs.Record) error {
	r.mu.Lock()
	r.progress = append(r.progress, rec.Progress)
	r.mu.Unlock()
	return r.Store.Put(ctx, rec)
}

func newTestCoordinator(t *testing.T, eng engine.Engine, tracker *jobs.Tracker) *Coordinator {
	t.Helper()
	return &Coordinator{
		Prober:      fakeProber{duration: 65},
		Silence:     fakeSilence{},
		Planner:     chunk.Planner{Length: 30, Overlap: 2, SnapWindow: 5},
		Extractor:   fakeExtractor{},
		Engine:      eng,
		Tracker:     tracker,
		Workers:     4,
		ScratchRoot: t.TempDir(),
		Logger:      zap.NewNop(),
	}
}

func TestCoordinatorEndToEnd(t *testing.T) {
	t.Parallel()

	tracker := jobs.NewTracker(jobs.NewMemoryStore(time.Hour), zap.NewNop())
	ctx := context.Background()

	mediaDir := t.TempDir()
	mediaPath := filepath.Join(mediaDir, "lesson.mp4")
	require.NoError(t, os.WriteFile(mediaPath, []byte("media"), 0o644))

	id, err := tracker.Create(ctx, "", mediaPath, "es")
	require.NoError(t, err)

	// Chunk 0 is the slowest so completion order inverts chunk order.
	eng := &fakeEngine{
		failAt: -1,
		delays: map[int]time.Duration{0: 60 * time.Millisecond, 1: 30 * time.Millisecond},
	}

	c := newTestCoordinator(t, eng, tracker)
	out, err := c.Run(ctx, id, mediaPath, "es")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(mediaDir, "lesson.srt"), out)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	content := string(data)

	// 65s plans three windows: [0,30), [28,58), [56,65). Output follows
	// chunk order even though chunk 2 finished first.
	require.Less(t, strings.Index(content, "part 0"), strings.Index(content, "part 1"))
	require.Less(t, strings.Index(content, "part 1"), strings.Index(content, "part 2"))
	require.NotEqual(t, []int{0, 1, 2}, eng.order, "delays should have inverted completion order")

	// Chunk 1 starts at 28s, so its local 1..2s segment lands at 29..30s.
	require.Contains(t, content, "00:00:29,000 --> 00:00:30,000")

	rec, err := tracker.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, jobs.StatusCompleted, rec.Status)
	require.Equal(t, 100.0, rec.Progress)
	require.Equal(t, out, rec.Result)
	require.Equal(t, "part 0 part 1 part 2", rec.Transcript)
}

func TestCoordinatorShiftsSegmentTimes(t *testing.T) {
	t.Parallel()

	tracker := jobs.NewTracker(jobs.NewMemoryStore(time.Hour), zap.NewNop())
	ctx := context.Background()

	mediaPath := filepath.Join(t.TempDir(), "clip.mkv")
	require.NoError(t, os.WriteFile(mediaPath, []byte("media"), 0o644))

	id, err := tracker.Create(ctx, "", mediaPath, "")
	require.NoError(t, err)

	eng := &fakeEngine{
		failAt: -1,
		segments: func(index int) []engine.Segment {
			return []engine.Segment{{Start: 2, End: 5, Text: fmt.Sprintf("part %d", index)}}
		},
	}

	c := newTestCoordinator(t, eng, tracker)
	c.Prober = fakeProber{duration: 40}

	out, err := c.Run(ctx, id, mediaPath, "")
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	content := string(data)

	// Windows [0,30) and [28,40): local 2..5s maps to 2..5s and 30..33s.
	require.Contains(t, content, "00:00:02,000 --> 00:00:05,000")
	require.Contains(t, content, "00:00:30,000 --> 00:00:33,000")
}

func TestCoordinatorChunkFailureFailsJob(t *testing.T) {
	t.Parallel()

	tracker := jobs.NewTracker(jobs.NewMemoryStore(time.Hour), zap.NewNop())
	ctx := context.Background()

	mediaPath := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(mediaPath, []byte("media"), 0o644))

	id, err := tracker.Create(ctx, "", mediaPath, "es")
	require.NoError(t, err)

	eng := &fakeEngine{failAt: 1}
	c := newTestCoordinator(t, eng, tracker)

	_, err = c.Run(ctx, id, mediaPath, "es")
	require.Error(t, err)
	require.Contains(t, err.Error(), "chunk 1")

	rec, err := tracker.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, jobs.StatusFailed, rec.Status)
	require.Contains(t, rec.Error, "model crashed")

	// No partial artifact on failure.
	_, statErr := os.Stat(filepath.Join(filepath.Dir(mediaPath), "clip.srt"))
	require.True(t, os.IsNotExist(statErr))
}

func TestCoordinatorProbeFailureFailsJob(t *testing.T) {
	t.Parallel()

	tracker := jobs.NewTracker(jobs.NewMemoryStore(time.Hour), zap.NewNop())
	ctx := context.Background()

	id, err := tracker.Create(ctx, "", "/media/missing.mp4", "es")
	require.NoError(t, err)

	c := newTestCoordinator(t, &fakeEngine{failAt: -1}, tracker)
	c.Prober = fakeProber{err: errors.New("ffprobe exploded")}

	_, err = c.Run(ctx, id, "/media/missing.mp4", "es")
	require.Error(t, err)

	rec, err := tracker.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, jobs.StatusFailed, rec.Status)
	require.Contains(t, rec.Error, "ffprobe exploded")
}

func TestCoordinatorZeroDurationFailsJob(t *testing.T) {
	t.Parallel()

	tracker := jobs.NewTracker(jobs.NewMemoryStore(time.Hour), zap.NewNop())
	ctx := context.Background()

	id, err := tracker.Create(ctx, "", "/media/empty.mp4", "es")
	require.NoError(t, err)

	c := newTestCoordinator(t, &fakeEngine{failAt: -1}, tracker)
	c.Prober = fakeProber{duration: 0}

	_, err = c.Run(ctx, id, "/media/empty.mp4", "es")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no chunk windows")

	rec, err := tracker.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, jobs.StatusFailed, rec.Status)
}

func TestCoordinatorProgressNeverDecreases(t *testing.T) {
	t.Parallel()

	store := &recordingStore{Store: jobs.NewMemoryStore(time.Hour)}
	tracker := jobs.NewTracker(store, zap.NewNop())
	ctx := context.Background()

	mediaPath := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(mediaPath, []byte("media"), 0o644))

	id, err := tracker.Create(ctx, "", mediaPath, "es")
	require.NoError(t, err)

	eng := &fakeEngine{
		failAt: -1,
		delays: map[int]time.Duration{0: 50 * time.Millisecond},
	}
	c := newTestCoordinator(t, eng, tracker)

	_, err = c.Run(ctx, id, mediaPath, "es")
	require.NoError(t, err)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.NotEmpty(t, store.progress)
	for i := 1; i < len(store.progress); i++ {
		require.GreaterOrEqual(t, store.progress[i], store.progress[i-1])
	}
	require.Equal(t, 100.0, store.progress[len(store.progress)-1])
}
