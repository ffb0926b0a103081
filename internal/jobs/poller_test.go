package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sequenceReader returns scripted views in order, repeating the last one.
type sequenceReader struct {
	mu    sync.Mutex
	views []StatusView
	errs  []error
	reads int
}

func (r *sequenceReader) JobStatus(_ context.Context, _ string) (StatusView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.reads
	r.reads++

	if i < len(r.errs) && r.errs[i] != nil {
		return StatusView{}, r.errs[i]
	}
	if i >= len(r.views) {
		i = len(r.views) - 1
	}
	return r.views[i], nil
}

func (r *sequenceReader) readCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads
}

func fastPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:      5 * time.Millisecond,
		Window:        250 * time.Millisecond,
		RefreshWindow: 250 * time.Millisecond,
	}
}

func TestPoller_Await_TerminalOnFirstRead(t *testing.T) {
	reader := &sequenceReader{views: []StatusView{
		{JobID: "job-1", Status: StatusDone, Progress: 100},
	}}
	poller := NewPoller(reader, fastPollerConfig())

	view, err := poller.Await(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusDone, view.Status)
	assert.Equal(t, 1, reader.readCount(), "no reads after a terminal state")
}

func TestPoller_Await_PollsUntilTerminal(t *testing.T) {
	reader := &sequenceReader{views: []StatusView{
		{JobID: "job-1", Status: StatusQueued},
		{JobID: "job-1", Status: StatusProcessing, Progress: 40},
		{JobID: "job-1", Status: StatusProcessing, Progress: 90},
		{JobID: "job-1", Status: StatusDone, Progress: 100},
	}}
	poller := NewPoller(reader, fastPollerConfig())

	view, err := poller.Await(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusDone, view.Status)
	assert.Equal(t, 100, view.Progress)
}

func TestPoller_Await_WindowElapses(t *testing.T) {
	reader := &sequenceReader{views: []StatusView{
		{JobID: "job-1", Status: StatusProcessing, Progress: 10},
	}}
	config := fastPollerConfig()
	config.Window = 30 * time.Millisecond
	poller := NewPoller(reader, config)

	start := time.Now()
	view, err := poller.Await(context.Background(), "job-1")
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrPollWindowElapsed)
	assert.Equal(t, StatusProcessing, view.Status, "last observed view is returned")
	assert.Less(t, elapsed, time.Second, "poll must stop once the window elapses")
}

func TestPoller_Await_ToleratesTransientReadErrors(t *testing.T) {
	reader := &sequenceReader{
		errs: []error{nil, errors.New("connection reset"), nil},
		views: []StatusView{
			{JobID: "job-1", Status: StatusProcessing},
			{}, // consumed by the error slot
			{JobID: "job-1", Status: StatusDone, Progress: 100},
		},
	}
	poller := NewPoller(reader, fastPollerConfig())

	view, err := poller.Await(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusDone, view.Status)
}

func TestPoller_Await_FirstReadErrorFails(t *testing.T) {
	reader := &sequenceReader{errs: []error{ErrJobNotFound}, views: []StatusView{{}}}
	poller := NewPoller(reader, fastPollerConfig())

	_, err := poller.Await(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestPoller_Await_ContextCancel(t *testing.T) {
	reader := &sequenceReader{views: []StatusView{
		{JobID: "job-1", Status: StatusProcessing},
	}}
	poller := NewPoller(reader, fastPollerConfig())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := poller.Await(ctx, "job-1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWatcher_StreamsUntilTerminal(t *testing.T) {
	reader := &sequenceReader{views: []StatusView{
		{JobID: "job-1", Status: StatusProcessing, Progress: 20},
		{JobID: "job-1", Status: StatusProcessing, Progress: 70},
		{JobID: "job-1", Status: StatusDone, Progress: 100},
	}}
	poller := NewPoller(reader, fastPollerConfig())

	watcher := poller.Watch(context.Background(), "job-1")

	var last StatusView
	for view := range watcher.Updates() {
		last = view
	}

	assert.Equal(t, StatusDone, last.Status)
	assert.NoError(t, watcher.Err())
}

func TestWatcher_Stop(t *testing.T) {
	reader := &sequenceReader{views: []StatusView{
		{JobID: "job-1", Status: StatusProcessing},
	}}
	poller := NewPoller(reader, fastPollerConfig())

	watcher := poller.Watch(context.Background(), "job-1")
	time.Sleep(20 * time.Millisecond)
	watcher.Stop()
	watcher.Stop() // second call is a no-op

	for range watcher.Updates() {
	}
	assert.NoError(t, watcher.Err())
}

func TestWatcher_ConcurrentStop(t *testing.T) {
	reader := &sequenceReader{views: []StatusView{
		{JobID: "job-1", Status: StatusProcessing},
	}}
	poller := NewPoller(reader, fastPollerConfig())

	watcher := poller.Watch(context.Background(), "job-1")

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			watcher.Stop()
		}()
	}
	close(start)
	wg.Wait()

	for range watcher.Updates() {
	}
	assert.NoError(t, watcher.Err())
}

func TestWatcher_DisarmsAfterWindow(t *testing.T) {
	reader := &sequenceReader{views: []StatusView{
		{JobID: "job-1", Status: StatusProcessing},
	}}
	config := fastPollerConfig()
	config.Window = 30 * time.Millisecond
	poller := NewPoller(reader, config)

	watcher := poller.Watch(context.Background(), "job-1")
	defer watcher.Stop()

	// Let the window elapse, then measure: a disarmed watcher stops reading.
	time.Sleep(60 * time.Millisecond)
	readsAfterDisarm := reader.readCount()
	time.Sleep(40 * time.Millisecond)

	assert.Equal(t, readsAfterDisarm, reader.readCount(), "disarmed watcher must not poll")
}

func TestWatcher_RefreshRearms(t *testing.T) {
	reader := &sequenceReader{views: []StatusView{
		{JobID: "job-1", Status: StatusProcessing},
	}}
	config := fastPollerConfig()
	config.Window = 30 * time.Millisecond
	config.RefreshWindow = 100 * time.Millisecond
	poller := NewPoller(reader, config)

	watcher := poller.Watch(context.Background(), "job-1")
	defer watcher.Stop()

	// Disarm, then re-arm.
	time.Sleep(60 * time.Millisecond)
	disarmedReads := reader.readCount()

	watcher.Refresh()
	time.Sleep(40 * time.Millisecond)

	assert.Greater(t, reader.readCount(), disarmedReads, "refresh must resume polling")
}

func TestWatcher_ContextCancel(t *testing.T) {
	reader := &sequenceReader{views: []StatusView{
		{JobID: "job-1", Status: StatusProcessing},
	}}
	poller := NewPoller(reader, fastPollerConfig())

	ctx, cancel := context.WithCancel(context.Background())
	watcher := poller.Watch(ctx, "job-1")

	time.Sleep(20 * time.Millisecond)
	cancel()

	for range watcher.Updates() {
	}
	assert.ErrorIs(t, watcher.Err(), context.Canceled)
}

func TestNewPoller_ZeroConfigGetsDefaults(t *testing.T) {
	poller := NewPoller(&sequenceReader{views: []StatusView{{}}}, PollerConfig{})

	assert.Equal(t, 2*time.Second, poller.config.Interval)
	assert.Equal(t, 2*time.Minute, poller.config.Window)
	assert.Equal(t, 60*time.Second, poller.config.RefreshWindow)
}
