package queue_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/opsalert/internal/policy"
	"github.com/gyaneshwarpardhi/opsalert/internal/queue"
	"github.com/gyaneshwarpardhi/opsalert/internal/store"
)

func newBroker(t *testing.T, dead *store.Memory, depth int) *queue.Broker {
	t.Helper()
	b := queue.NewBroker(queue.Options{
		Queues:      []string{policy.QueueHigh, policy.QueueLow},
		Workers:     func(string) int { return 1 },
		Depth:       depth,
		JobTimeout:  time.Second,
		Backoff:     queue.Backoff{Base: time.Millisecond, Cap: 2 * time.Millisecond, Factor: 2},
		DeadLetters: dead,
	})
	t.Cleanup(b.Shutdown)
	return b
}

func deadLetters(t *testing.T, m *store.Memory) []store.DeadLetter {
	t.Helper()
	list, err := m.ListDeadLetters(context.Background(), 0)
	require.NoError(t, err)
	return list
}

func TestBrokerRetriesUntilSuccess(t *testing.T) {
	dead := store.NewMemory()
	b := newBroker(t, dead, 10)

	var calls atomic.Int32
	done := make(chan struct{})
	job := &queue.Job{
		Name:  "flaky",
		Queue: policy.QueueHigh,
		Retry: policy.RetryFor("HIGH"),
		Run: func(context.Context) error {
			if calls.Add(1) < 3 {
				return errors.New("temporary failure")
			}
			close(done)
			return nil
		},
	}
	require.NoError(t, b.Enqueue(job))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never succeeded")
	}
	assert.Equal(t, int32(3), calls.Load())
	assert.Empty(t, deadLetters(t, dead))
}

func TestBrokerDeadLettersAfterLastTry(t *testing.T) {
	dead := store.NewMemory()
	b := newBroker(t, dead, 10)

	var calls atomic.Int32
	require.NoError(t, b.Enqueue(&queue.Job{
		ID:        "job-1",
		Name:      "email",
		Queue:     policy.QueueHigh,
		EventType: "business.payment_failed",
		EventID:   "evt-1",
		Target:    "u1",
		Payload:   []byte(`{"type":"business.payment_failed"}`),
		Retry:     policy.Retry{Tries: 2},
		Run: func(context.Context) error {
			calls.Add(1)
			return errors.New("smtp unavailable")
		},
	}))

	require.Eventually(t, func() bool { return len(deadLetters(t, dead)) == 1 }, 2*time.Second, 5*time.Millisecond)
	d := deadLetters(t, dead)[0]
	assert.Equal(t, "job-1", d.ID)
	assert.Equal(t, policy.QueueHigh, d.Queue)
	assert.Equal(t, "email", d.JobName)
	assert.Equal(t, "evt-1", d.EventID)
	assert.Equal(t, "u1", d.Target)
	assert.Equal(t, 2, d.Attempts)
	assert.Equal(t, "smtp unavailable", d.LastError)
	assert.JSONEq(t, `{"type":"business.payment_failed"}`, string(d.Payload))
	assert.Equal(t, int32(2), calls.Load())
}

func TestBrokerPermanentErrorSkipsRetries(t *testing.T) {
	dead := store.NewMemory()
	b := newBroker(t, dead, 10)

	var calls atomic.Int32
	require.NoError(t, b.Enqueue(&queue.Job{
		Name:  "bad",
		Queue: policy.QueueHigh,
		Retry: policy.Retry{Tries: 5},
		Run: func(context.Context) error {
			calls.Add(1)
			return queue.Permanent(errors.New("recipient has no email"))
		},
	}))
	require.Eventually(t, func() bool { return len(deadLetters(t, dead)) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBrokerTimeoutAndPanic(t *testing.T) {
	dead := store.NewMemory()
	b := newBroker(t, dead, 10)

	release := make(chan struct{})
	defer close(release)
	require.NoError(t, b.Enqueue(&queue.Job{
		ID:      "slow",
		Name:    "slow",
		Queue:   policy.QueueLow,
		Timeout: 10 * time.Millisecond,
		Run: func(context.Context) error {
			<-release
			return nil
		},
	}))
	require.NoError(t, b.Enqueue(&queue.Job{
		ID:    "boom",
		Name:  "boom",
		Queue: policy.QueueLow,
		Run:   func(context.Context) error { panic("nil map") },
	}))

	require.Eventually(t, func() bool { return len(deadLetters(t, dead)) == 2 }, 2*time.Second, 5*time.Millisecond)
	byID := map[string]store.DeadLetter{}
	for _, d := range deadLetters(t, dead) {
		byID[d.ID] = d
	}
	assert.Contains(t, byID["slow"].LastError, "timed out")
	assert.Contains(t, byID["boom"].LastError, "panicked")
}

func TestBrokerRejectsUnknownAndFullQueues(t *testing.T) {
	dead := store.NewMemory()
	b := newBroker(t, dead, 1)

	err := b.Enqueue(&queue.Job{Name: "x", Queue: "nope", Run: func(context.Context) error { return nil }})
	assert.ErrorIs(t, err, queue.ErrUnknownQueue)

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, b.Enqueue(&queue.Job{Name: "blocker", Queue: policy.QueueLow, Run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}}))
	<-started
	require.NoError(t, b.Enqueue(&queue.Job{Name: "waiting", Queue: policy.QueueLow, Run: func(context.Context) error { return nil }}))
	err = b.Enqueue(&queue.Job{Name: "overflow", Queue: policy.QueueLow, Run: func(context.Context) error { return nil }})
	assert.ErrorIs(t, err, queue.ErrQueueFull)
	assert.InDelta(t, 1.0, b.Utilization()[policy.QueueLow], 0.001)
	close(release)
}

func TestBrokerShutdownDeadLettersPendingRetries(t *testing.T) {
	dead := store.NewMemory()
	b := queue.NewBroker(queue.Options{
		Queues:      []string{policy.QueueCritical},
		DeadLetters: dead,
	})

	failed := make(chan struct{})
	require.NoError(t, b.Enqueue(&queue.Job{
		ID:    "crit",
		Name:  "dispatch",
		Queue: policy.QueueCritical,
		Retry: policy.RetryFor("CRITICAL"),
		Run: func(context.Context) error {
			defer close(failed)
			return errors.New("database down")
		},
	}))
	<-failed
	require.Eventually(t, func() bool { return b.Pending() == 1 }, time.Second, 5*time.Millisecond)

	b.Shutdown()
	list := deadLetters(t, dead)
	require.Len(t, list, 1)
	assert.Equal(t, "crit", list[0].ID)
	assert.Equal(t, 1, list[0].Attempts)

	err := b.Enqueue(&queue.Job{Name: "late", Queue: policy.QueueCritical, Run: func(context.Context) error { return nil }})
	assert.ErrorIs(t, err, queue.ErrClosed)
}

func TestIsPermanent(t *testing.T) {
	base := errors.New("x")
	assert.True(t, queue.IsPermanent(queue.Permanent(base)))
	assert.ErrorIs(t, queue.Permanent(base), base)
	assert.False(t, queue.IsPermanent(base))
	assert.Nil(t, queue.Permanent(nil))
}
