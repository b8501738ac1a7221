package scanrunner_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgwatch/internal/ports"
	"orgwatch/internal/workers/scanrunner"
)

// memJobs is a queue of jobs keyed by scan id with a mutex-guarded log of
// terminal states.
type memJobs struct {
	mu        sync.Mutex
	queue     []ports.ScanJob
	completed []string
	failed    map[string]string
}

func newMemJobs(scanIDs ...string) *memJobs {
	m := &memJobs{failed: make(map[string]string)}
	for i, id := range scanIDs {
		m.queue = append(m.queue, ports.ScanJob{ID: fmt.Sprintf("job-%d", i), ScanID: id})
	}
	return m
}

func (m *memJobs) ClaimNext(context.Context) (ports.ScanJob, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return ports.ScanJob{}, false, nil
	}
	job := m.queue[0]
	m.queue = m.queue[1:]
	return job, true, nil
}

func (m *memJobs) UpdateScanProgress(context.Context, string, float64) error { return nil }

func (m *memJobs) MarkCompleted(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, jobID)
	return nil
}

func (m *memJobs) MarkFailed(_ context.Context, jobID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[jobID] = reason
	return nil
}

func (m *memJobs) StartJobForScan(_ context.Context, scanID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, j := range m.queue {
		if j.ScanID == scanID {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return j.ID, nil
		}
	}
	return "", ports.ErrNotFound
}

func (m *memJobs) done() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.completed) + len(m.failed)
}

type processorFunc func(ctx context.Context, scanID string) error

func (f processorFunc) Process(ctx context.Context, scanID string) error { return f(ctx, scanID) }

type countingTracker struct {
	mu      sync.Mutex
	started int
	running int
}

func (c *countingTracker) JobStarted() func() {
	c.mu.Lock()
	c.started++
	c.running++
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		c.running--
		c.mu.Unlock()
	}
}

func TestRun_ProcessesQueue(t *testing.T) {
	repo := newMemJobs("s1", "s2", "bad", "s4")
	proc := processorFunc(func(_ context.Context, scanID string) error {
		if scanID == "bad" {
			return errors.New("site exploded")
		}
		return nil
	})
	tracker := &countingTracker{}
	ctx, cancel := context.WithCancel(context.Background())

	done := scanrunner.Run(ctx, repo, proc, scanrunner.Options{Concurrency: 2, PollInterval: 5 * time.Millisecond, Tracker: tracker})

	require.Eventually(t, func() bool { return repo.done() == 4 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not stop")
	}

	assert.Len(t, repo.completed, 3)
	assert.Equal(t, "site exploded", repo.failed["job-2"])
	assert.Equal(t, 4, tracker.started)
	assert.Equal(t, 0, tracker.running)
}

func TestRun_ZeroConcurrency(t *testing.T) {
	done := scanrunner.Run(context.Background(), newMemJobs(), nil, scanrunner.Options{})
	select {
	case <-done:
	default:
		t.Fatal("expected closed channel")
	}
}

func TestProcessInline(t *testing.T) {
	repo := newMemJobs("s1", "s2")
	var processed []string
	proc := processorFunc(func(_ context.Context, scanID string) error {
		processed = append(processed, scanID)
		return nil
	})

	require.NoError(t, scanrunner.ProcessInline(context.Background(), repo, proc, "s2"))

	assert.Equal(t, []string{"s2"}, processed)
	assert.Equal(t, []string{"job-1"}, repo.completed)

	err := scanrunner.ProcessInline(context.Background(), repo, proc, "missing")
	require.ErrorIs(t, err, ports.ErrNotFound)
}
