package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storepulse/internal/testsupport"
)

type countingJob struct {
	name     string
	interval time.Duration
	runs     atomic.Int32
	err      error
}

func (j *countingJob) Name() string            { return j.name }
func (j *countingJob) Interval() time.Duration { return j.interval }

func (j *countingJob) Run(context.Context) error {
	j.runs.Add(1)
	return j.err
}

func TestSchedulerRunsJobsUntilStopped(t *testing.T) {
	fast := &countingJob{name: "fast", interval: 10 * time.Millisecond}
	failing := &countingJob{name: "failing", interval: 10 * time.Millisecond, err: errors.New("boom")}

	s := NewScheduler(testsupport.GetLogger(), fast, failing)
	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())

	require.Eventually(t, func() bool {
		return fast.runs.Load() >= 3 && failing.runs.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond, "failing jobs keep their schedule")

	s.Stop()
	assert.False(t, s.IsRunning())

	stopped := fast.runs.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, fast.runs.Load())
}

func TestSchedulerStartIsIdempotent(t *testing.T) {
	job := &countingJob{name: "once", interval: time.Hour}
	s := NewScheduler(testsupport.GetLogger(), job)

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	s.Stop()
	assert.Equal(t, int32(1), job.runs.Load())
}

func TestExecuteJobSafely(t *testing.T) {
	s := NewScheduler(testsupport.GetLogger())

	t.Run("skips overlapping runs", func(t *testing.T) {
		release := make(chan struct{})
		started := make(chan struct{})
		var runs atomic.Int32

		slow := func(context.Context) error {
			runs.Add(1)
			close(started)
			<-release
			return nil
		}

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.executeJobSafely("slow", slow)
		}()
		<-started

		s.executeJobSafely("slow", slow)
		close(release)
		wg.Wait()

		assert.Equal(t, int32(1), runs.Load())
	})

	t.Run("recovers panics", func(t *testing.T) {
		assert.NotPanics(t, func() {
			s.executeJobSafely("panicky", func(context.Context) error {
				panic("bad job")
			})
		})

		var ran bool
		s.executeJobSafely("panicky", func(context.Context) error {
			ran = true
			return nil
		})
		assert.True(t, ran, "a panicking run releases the job")
	})
}
