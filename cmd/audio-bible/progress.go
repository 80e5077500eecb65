package main

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/book-expert/audio-bible/internal/app"
	"github.com/book-expert/audio-bible/internal/fsutil"
	"github.com/book-expert/audio-bible/internal/playback"
)

// progressFeed keeps the latest engine progress. publish is the engine
// listener, so it never blocks.
type progressFeed struct {
	latest atomic.Pointer[playback.Progress]
	ready  chan struct{}
}

func newProgressFeed() *progressFeed {
	return &progressFeed{ready: make(chan struct{}, 1)}
}

func (f *progressFeed) publish(progress playback.Progress) {
	f.latest.Store(&progress)

	select {
	case f.ready <- struct{}{}:
	default:
	}
}

func (f *progressFeed) current() (playback.Progress, bool) {
	progress := f.latest.Load()
	if progress == nil {
		return playback.Progress{}, false
	}

	return *progress, true
}

// waitForPlayback prints published progress until the session stops or ctx
// is cancelled.
func waitForPlayback(ctx context.Context, a *app.App, feed *progressFeed, out io.Writer) {
	var previous string

	for {
		select {
		case <-ctx.Done():
			a.Stop()
			fmt.Fprintln(out)

			return
		case <-feed.ready:
		}

		progress, ok := feed.current()
		if !ok {
			continue
		}

		if !progress.Playing {
			fmt.Fprintln(out)

			return
		}

		line := describeProgress(progress, sessionDuration(a, progress.Reference))
		if line != previous {
			fmt.Fprintf(out, "\r%s", line)
			previous = line
		}
	}
}

func sessionDuration(a *app.App, reference string) float64 {
	playing, ok := a.State().(playback.Playing)
	if !ok || playing.Session.Reference != reference {
		return 0
	}

	return playing.Session.Duration
}

func describeProgress(progress playback.Progress, duration float64) string {
	elapsed := progress.Percent / 100 * duration

	return fmt.Sprintf("%s  %s / %s  %3.0f%%", progress.Reference,
		fsutil.FormatTime(elapsed), fsutil.FormatTime(duration), progress.Percent)
}
