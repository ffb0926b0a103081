package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// StatusReader reads the observable status of a job. *Service implements it;
// remote clients can supply an HTTP-backed implementation.
type StatusReader interface {
	JobStatus(ctx context.Context, id string) (StatusView, error)
}

// PollerConfig contains poller configuration.
type PollerConfig struct {
	// Interval between status reads.
	Interval time.Duration
	// Window bounds how long a poll runs before giving up. Polling must
	// never be unbounded: a job that never terminates would otherwise leak
	// a reader forever.
	Window time.Duration
	// RefreshWindow is the extra window a Refresh call re-arms a disarmed
	// watcher for.
	RefreshWindow time.Duration
}

// DefaultPollerConfig returns default poller configuration.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:      2 * time.Second,
		Window:        2 * time.Minute,
		RefreshWindow: 60 * time.Second,
	}
}

// Poller repeatedly reads job status until a terminal state or the polling
// window elapses.
type Poller struct {
	reader StatusReader
	config PollerConfig
}

// NewPoller creates a poller. Zero config fields fall back to defaults.
func NewPoller(reader StatusReader, config PollerConfig) *Poller {
	defaults := DefaultPollerConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.Window <= 0 {
		config.Window = defaults.Window
	}
	if config.RefreshWindow <= 0 {
		config.RefreshWindow = defaults.RefreshWindow
	}
	return &Poller{reader: reader, config: config}
}

// Await blocks until the job reaches a terminal state, returning its final
// view. When the window elapses first, the last observed view is returned
// together with ErrPollWindowElapsed. No further reads are issued after a
// terminal state is observed.
func (p *Poller) Await(ctx context.Context, jobID string) (StatusView, error) {
	deadline := time.Now().Add(p.config.Window)

	view, err := p.reader.JobStatus(ctx, jobID)
	if err != nil {
		return StatusView{}, err
	}
	if view.Status.Terminal() {
		return view, nil
	}

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return view, ctx.Err()
		case <-ticker.C:
			if time.Now().After(deadline) {
				return view, ErrPollWindowElapsed
			}

			next, err := p.reader.JobStatus(ctx, jobID)
			if err != nil {
				// Transient read errors do not end the poll; the window
				// still bounds the total time spent.
				slog.Debug("status read failed", "job_id", jobID, "error", err)
				continue
			}
			view = next
			if view.Status.Terminal() {
				return view, nil
			}
		}
	}
}

// Watch starts a background poll of the job and returns a Watcher streaming
// status snapshots. The watcher disarms once its window elapses and stops
// for good once a terminal state is observed.
func (p *Poller) Watch(ctx context.Context, jobID string) *Watcher {
	w := &Watcher{
		updates: make(chan StatusView, 1),
		refresh: make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go p.watch(ctx, jobID, w)
	return w
}

// Watcher observes one job. Updates delivers snapshots; the channel closes
// when the watcher stops (terminal state, cancelled context or Stop).
type Watcher struct {
	updates  chan StatusView
	refresh  chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	err      error
}

// Updates returns the snapshot channel.
func (w *Watcher) Updates() <-chan StatusView { return w.updates }

// Refresh re-arms a disarmed watcher for one extra bounded window. Calling
// it on an armed watcher extends the current window to at least the refresh
// window.
func (w *Watcher) Refresh() {
	select {
	case w.refresh <- struct{}{}:
	case <-w.done:
	default:
	}
}

// Stop ends the watch. It is safe to call more than once, including
// concurrently.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// Err reports why the watcher stopped: nil after a terminal state or Stop,
// the context error on cancellation.
func (w *Watcher) Err() error {
	<-w.done
	return w.err
}

func (p *Poller) watch(ctx context.Context, jobID string, w *Watcher) {
	defer close(w.done)
	defer close(w.updates)

	deadline := time.Now().Add(p.config.Window)
	armed := true

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.err = ctx.Err()
			return
		case <-w.stop:
			return
		case <-w.refresh:
			// Re-arm: a disarmed watcher polls again for one bounded
			// extra window, an armed one keeps at least that much.
			next := time.Now().Add(p.config.RefreshWindow)
			if next.After(deadline) {
				deadline = next
			}
			armed = true
		case <-ticker.C:
			if !armed {
				continue
			}
			if time.Now().After(deadline) {
				armed = false
				continue
			}

			view, err := p.reader.JobStatus(ctx, jobID)
			if err != nil {
				slog.Debug("status read failed", "job_id", jobID, "error", err)
				continue
			}

			w.emit(view)
			if view.Status.Terminal() {
				return
			}
		}
	}
}

// emit delivers a snapshot, replacing a stale undelivered one rather than
// blocking the poll loop on a slow consumer.
func (w *Watcher) emit(view StatusView) {
	for {
		select {
		case w.updates <- view:
			return
		default:
			select {
			case <-w.updates:
			default:
			}
		}
	}
}
