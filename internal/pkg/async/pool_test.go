package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolExecute(t *testing.T) {
	pool := NewPool(3)

	var running, peak atomic.Int32
	task := func(name string, value int) Task {
		return Task{Name: name, Execute: func(ctx context.Context) (interface{}, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return value, nil
		}}
	}

	var tasks []Task
	for i, name := range []string{"a", "b", "c", "d", "e", "f"} {
		tasks = append(tasks, task(name, i))
	}

	results := pool.Execute(context.Background(), tasks)
	require.Len(t, results, 6)
	assert.Equal(t, 0, results["a"].Data)
	assert.Equal(t, 5, results["f"].Data)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestPoolIsolatesFailures(t *testing.T) {
	pool := NewPool(2)
	boom := errors.New("boom")

	results := pool.Execute(context.Background(), []Task{
		{Name: "ok", Execute: func(ctx context.Context) (interface{}, error) { return "fine", nil }},
		{Name: "error", Execute: func(ctx context.Context) (interface{}, error) { return nil, boom }},
		{Name: "panic", Execute: func(ctx context.Context) (interface{}, error) { panic("kaboom") }},
	})

	require.Len(t, results, 3)
	assert.NoError(t, results["ok"].Err)
	assert.Equal(t, "fine", results["ok"].Data)
	assert.ErrorIs(t, results["error"].Err, boom)
	require.Error(t, results["panic"].Err)
	assert.Contains(t, results["panic"].Err.Error(), "kaboom")
}

func TestPoolStopsOnCancel(t *testing.T) {
	pool := NewPool(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	results := pool.Execute(ctx, []Task{
		{Name: "slow", Execute: func(ctx context.Context) (interface{}, error) {
			time.Sleep(500 * time.Millisecond)
			return 1, nil
		}},
		{Name: "queued", Execute: func(ctx context.Context) (interface{}, error) { return 2, nil }},
	})

	assert.Less(t, time.Since(start), 400*time.Millisecond)
	assert.Empty(t, results)
}

func TestPoolEmpty(t *testing.T) {
	assert.Empty(t, NewPool(4).Execute(context.Background(), nil))
}
