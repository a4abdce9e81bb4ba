package cli

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/lingoreel/lingoscribe/internal/jobs"
)

type stopFunc func()

// startJobProgress renders a determinate bar that follows the job record in
// the tracker. The pipeline reports progress through the tracker only, so
// polling it keeps the bar honest even with out-of-order chunk completions.
func startJobProgress(enabled bool, tracker *jobs.Tracker, jobID string) stopFunc {
	if !enabled {
		return func() {}
	}

	bar := progressbar.NewOptions(
		100,
		progressbar.OptionSetDescription("Transcribing"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(20),
		progressbar.OptionThrottle(80*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				_ = bar.Finish()
				return
			case <-ticker.C:
				rec, err := tracker.Get(context.Background(), jobID)
				if err != nil || rec == nil {
					continue
				}
				_ = bar.Set(int(rec.Progress))
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stopCh)
			<-doneCh
		})
	}
}
