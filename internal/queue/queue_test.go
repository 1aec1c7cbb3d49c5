package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityOrdering(t *testing.T) {
	q := NewInProcessQueue(0)

	require.NoError(t, q.Enqueue(Task{ProjectID: "p1", TaskType: "low", Priority: PriorityLow}))
	require.NoError(t, q.Enqueue(Task{ProjectID: "p2", TaskType: "high", Priority: PriorityHigh}))
	require.NoError(t, q.Enqueue(Task{ProjectID: "p3", TaskType: "normal", Priority: PriorityNormal}))

	var mu sync.Mutex
	var order []string

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.Process(ctx, 1, func(ctx context.Context, task *Task) error {
			mu.Lock()
			order = append(order, task.TaskType)
			mu.Unlock()
			if len(order) == 3 {
				cancel()
			}
			return nil
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queue did not drain in time")
	}

	assert.Equal(t, []string{"high", "normal", "low"}, order)
}

func TestEnqueueDedupesWithinWindow(t *testing.T) {
	q := NewInProcessQueue(time.Minute)

	require.NoError(t, q.Enqueue(Task{ProjectID: "p1", TaskType: "generate_report"}))
	require.NoError(t, q.Enqueue(Task{ProjectID: "p1", TaskType: "generate_report"}))

	assert.Equal(t, 1, q.Len(), "duplicate {projectId, taskType} within the dedup window must collapse to one task")
}

func TestFailedTaskRetriesThenCallsOnFailed(t *testing.T) {
	q := NewInProcessQueue(0)

	var failedCalls int
	var mu sync.Mutex
	q.OnFailed(func(task Task, err error) {
		mu.Lock()
		failedCalls++
		mu.Unlock()
	})

	require.NoError(t, q.Enqueue(Task{ProjectID: "p1", TaskType: "always_fails", MaxAttempts: 2, Backoff: time.Millisecond}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		q.Process(ctx, 1, func(ctx context.Context, task *Task) error {
			return assert.AnError
		})
		close(done)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return failedCalls > 0
	}, time.Second, time.Millisecond)

	cancel()
	<-done
}

func TestFailedTaskRetriesUnderDedupWindowStillReachesOnFailed(t *testing.T) {
	// A dedup window longer than the retry backoff must not swallow a
	// task's own retry re-enqueue (requeueForRetry bypasses the window).
	q := NewInProcessQueue(time.Minute)

	var failedCalls int
	var handled int32
	var mu sync.Mutex
	q.OnFailed(func(task Task, err error) {
		mu.Lock()
		failedCalls++
		mu.Unlock()
	})

	require.NoError(t, q.Enqueue(Task{ProjectID: "p1", TaskType: "always_fails", MaxAttempts: 3, Backoff: time.Millisecond}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		q.Process(ctx, 1, func(ctx context.Context, task *Task) error {
			atomic.AddInt32(&handled, 1)
			return assert.AnError
		})
		close(done)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return failedCalls > 0
	}, time.Second, time.Millisecond, "retries must reach OnFailed even when the dedup window outlives the retry backoff")

	assert.Equal(t, int32(3), atomic.LoadInt32(&handled), "all 3 attempts must run, none silently dropped by the dedup guard")

	cancel()
	<-done
}
