// Package queue runs jobs on named, bounded queues with per-job retry,
// execution timeouts and a dead-letter store for jobs that keep failing.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/opsalert/internal/metrics"
	"github.com/gyaneshwarpardhi/opsalert/internal/store"
)

// DeadLetterSink receives jobs that exhausted their retries.
type DeadLetterSink interface {
	SaveDeadLetter(ctx context.Context, d *store.DeadLetter) error
}

// Options configure a Broker.
type Options struct {
	Queues      []string
	Workers     func(queue string) int
	Depth       int
	JobTimeout  time.Duration
	Backoff     Backoff
	DeadLetters DeadLetterSink
	Logger      *slog.Logger
}

// Broker owns one worker pool per queue.
type Broker struct {
	pools   map[string]*workerPool[*Job]
	backoff Backoff
	timeout time.Duration
	dead    DeadLetterSink
	logger  *slog.Logger
	cancel  context.CancelFunc

	mu      sync.RWMutex
	closed  bool
	pending map[*Job]*time.Timer
}

// NewBroker starts the worker pools.
func NewBroker(opts Options) *Broker {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Depth < 1 {
		opts.Depth = 1000
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 30 * time.Second
	}
	if opts.Backoff.Base <= 0 {
		opts.Backoff = DefaultBackoff()
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Broker{
		pools:   make(map[string]*workerPool[*Job], len(opts.Queues)),
		backoff: opts.Backoff,
		timeout: opts.JobTimeout,
		dead:    opts.DeadLetters,
		logger:  opts.Logger,
		cancel:  cancel,
		pending: make(map[*Job]*time.Timer),
	}
	for _, q := range opts.Queues {
		n := 1
		if opts.Workers != nil {
			if w := opts.Workers(q); w > 0 {
				n = w
			}
		}
		b.pools[q] = newWorkerPool[*Job](ctx, n, opts.Depth, b.execute)
	}
	return b
}

// Enqueue places a job on its queue without blocking.
func (b *Broker) Enqueue(j *Job) error {
	if j.Run == nil {
		return fmt.Errorf("job %s: nil Run", j.Name)
	}
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return b.submit(j)
}

// submit must be called with b.mu held.
func (b *Broker) submit(j *Job) error {
	p, ok := b.pools[j.Queue]
	if !ok {
		return fmt.Errorf("%q: %w", j.Queue, ErrUnknownQueue)
	}
	if !p.Submit(j) {
		return fmt.Errorf("%q (capacity %d): %w", j.Queue, p.QueueCap(), ErrQueueFull)
	}
	metrics.JobsEnqueued.WithLabelValues(j.Queue).Inc()
	metrics.QueueUtilization.WithLabelValues(j.Queue).Set(utilization(p))
	return nil
}

func (b *Broker) execute(ctx context.Context, j *Job) {
	j.attempts++
	err := b.runOnce(ctx, j)
	if p, ok := b.pools[j.Queue]; ok {
		metrics.QueueUtilization.WithLabelValues(j.Queue).Set(utilization(p))
	}
	if err == nil {
		metrics.JobsProcessed.WithLabelValues(j.Queue, "success").Inc()
		if j.attempts > 1 {
			b.logger.Info("job succeeded after retry", "job", j.Name, "queue", j.Queue, "event_id", j.EventID, "attempt", j.attempts)
		}
		return
	}
	metrics.JobsProcessed.WithLabelValues(j.Queue, "error").Inc()

	if IsPermanent(err) || j.attempts >= j.tries() {
		b.deadLetter(j, err)
		return
	}
	b.scheduleRetry(j, err)
}

// runOnce bounds a single attempt by the job timeout. A job that ignores
// its context is abandoned when the deadline passes.
func (b *Broker) runOnce(ctx context.Context, j *Job) error {
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = b.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("job %s panicked: %v", j.Name, r)
			}
		}()
		done <- j.Run(ctx)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("job %s timed out after %s: %w", j.Name, timeout, ctx.Err())
	}
}

func (b *Broker) scheduleRetry(j *Job, err error) {
	delay := b.delayFor(j, j.attempts)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.deadLetter(j, fmt.Errorf("broker shut down before retry: %w", err))
		return
	}
	b.pending[j] = time.AfterFunc(delay, func() { b.resubmit(j, err) })
	b.mu.Unlock()

	metrics.JobRetries.WithLabelValues(j.Queue).Inc()
	b.logger.Warn("job failed, retrying",
		"job", j.Name,
		"queue", j.Queue,
		"event_type", j.EventType,
		"event_id", j.EventID,
		"attempt", j.attempts,
		"max_attempts", j.tries(),
		"backoff", delay,
		"error", err,
	)
}

func (b *Broker) resubmit(j *Job, lastErr error) {
	b.mu.Lock()
	if _, ok := b.pending[j]; !ok {
		// Shutdown already took ownership of the job.
		b.mu.Unlock()
		return
	}
	delete(b.pending, j)
	err := b.submit(j)
	b.mu.Unlock()

	if err != nil {
		b.deadLetter(j, fmt.Errorf("requeue after %v: %w", lastErr, err))
	}
}

func (b *Broker) deadLetter(j *Job, err error) {
	metrics.DeadLetters.WithLabelValues(j.Queue).Inc()
	d := &store.DeadLetter{
		ID:        j.ID,
		Queue:     j.Queue,
		JobName:   j.Name,
		EventType: j.EventType,
		EventID:   j.EventID,
		Target:    j.Target,
		Payload:   j.Payload,
		Attempts:  j.attempts,
		LastError: err.Error(),
		FailedAt:  time.Now().UTC(),
	}
	b.logger.Error("job moved to dead letters",
		"job", j.Name,
		"queue", j.Queue,
		"event_type", j.EventType,
		"event_id", j.EventID,
		"target", j.Target,
		"attempts", j.attempts,
		"error", err,
	)
	if b.dead == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := b.dead.SaveDeadLetter(ctx, d); serr != nil {
		b.logger.Error("dead letter not persisted", "job_id", j.ID, "job", j.Name, "event_id", j.EventID, "payload", string(j.Payload), "error", serr)
	}
}

// Shutdown stops accepting jobs, dead-letters jobs waiting for a retry and
// waits for running jobs to finish.
func (b *Broker) Shutdown() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	waiting := make([]*Job, 0, len(b.pending))
	for j, t := range b.pending {
		t.Stop()
		waiting = append(waiting, j)
	}
	b.pending = make(map[*Job]*time.Timer)
	b.mu.Unlock()

	for _, j := range waiting {
		b.deadLetter(j, ErrClosed)
	}
	for _, p := range b.pools {
		p.Drain()
	}
	b.cancel()
}

// Queues lists the served queues, sorted.
func (b *Broker) Queues() []string {
	out := make([]string, 0, len(b.pools))
	for q := range b.pools {
		out = append(out, q)
	}
	sort.Strings(out)
	return out
}

// Utilization returns queue used / capacity (0–1) per queue.
func (b *Broker) Utilization() map[string]float64 {
	out := make(map[string]float64, len(b.pools))
	for q, p := range b.pools {
		out[q] = utilization(p)
	}
	return out
}

// Pending returns how many jobs are waiting for a retry.
func (b *Broker) Pending() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.pending)
}

func utilization(p *workerPool[*Job]) float64 {
	if p.QueueCap() == 0 {
		return 0
	}
	return float64(p.QueueLen()) / float64(p.QueueCap())
}
