// Package dispatch fans a fired alert out to its recipients and follow-ups.
// Fire classifies the alert and enqueues it; a queue worker then runs the
// steps in a fixed order: resolve recipients, create notifications, queue
// emails, log, broadcast, run follow-ups, write the tracking row and run
// pattern detection.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gyaneshwarpardhi/opsalert/internal/action"
	"github.com/gyaneshwarpardhi/opsalert/internal/analysis"
	"github.com/gyaneshwarpardhi/opsalert/internal/broadcast"
	"github.com/gyaneshwarpardhi/opsalert/internal/event"
	"github.com/gyaneshwarpardhi/opsalert/internal/mail"
	"github.com/gyaneshwarpardhi/opsalert/internal/metrics"
	"github.com/gyaneshwarpardhi/opsalert/internal/policy"
	"github.com/gyaneshwarpardhi/opsalert/internal/queue"
	"github.com/gyaneshwarpardhi/opsalert/internal/recipient"
	"github.com/gyaneshwarpardhi/opsalert/internal/store"
	"github.com/gyaneshwarpardhi/opsalert/internal/user"
)

// Job names.
const (
	JobDispatch = "dispatch"
	JobEmail    = "email"
)

// Enqueuer accepts jobs. *queue.Broker implements it.
type Enqueuer interface {
	Enqueue(j *queue.Job) error
}

// Resolver finds who to notify. *recipient.Resolver implements it.
type Resolver interface {
	Resolve(ctx context.Context, a event.Alert) (recipient.Result, error)
}

// Mailer sends one alert email. *mail.Mailer implements it.
type Mailer interface {
	Send(ctx context.Context, to user.User, a event.Alert) (string, error)
}

// Store is what the dispatcher persists to.
type Store interface {
	store.NotificationStore
	store.TrackingStore
	store.PatternStore
	store.DeadLetterStore
}

// Config wires a Dispatcher. Mailer and Publisher are optional.
type Config struct {
	Queue        Enqueuer
	Resolver     Resolver
	Store        Store
	Directory    user.Directory
	Detector     *analysis.Detector
	FollowUps    *action.Registry
	Mailer       Mailer
	Publisher    broadcast.Publisher
	EmailTimeout time.Duration
	Logger       *slog.Logger
	Now          func() time.Time
}

// Dispatcher runs the alert pipeline.
type Dispatcher struct {
	queue        Enqueuer
	resolver     Resolver
	store        Store
	dir          user.Directory
	detector     *analysis.Detector
	followUps    *action.Registry
	mailer       Mailer
	publisher    broadcast.Publisher
	emailTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// Receipt is returned to the caller that fired an alert.
type Receipt struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Severity  string `json:"severity"`
	Queue     string `json:"queue"`
}

func New(c Config) (*Dispatcher, error) {
	switch {
	case c.Queue == nil:
		return nil, errors.New("dispatch: queue is required")
	case c.Resolver == nil:
		return nil, errors.New("dispatch: resolver is required")
	case c.Store == nil:
		return nil, errors.New("dispatch: store is required")
	case c.Detector == nil:
		return nil, errors.New("dispatch: detector is required")
	}
	if c.FollowUps == nil {
		c.FollowUps = action.NewRegistry()
	}
	if c.EmailTimeout <= 0 {
		c.EmailTimeout = 60 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return &Dispatcher{
		queue:        c.Queue,
		resolver:     c.Resolver,
		store:        c.Store,
		dir:          c.Directory,
		detector:     c.Detector,
		followUps:    c.FollowUps,
		mailer:       c.Mailer,
		publisher:    c.Publisher,
		emailTimeout: c.EmailTimeout,
		logger:       c.Logger,
		now:          c.Now,
	}, nil
}

// Fire classifies a and queues it for dispatch. It returns as soon as the
// job is queued.
func (d *Dispatcher) Fire(a event.Alert) (Receipt, error) {
	dec := policy.Classify(a)
	payload, err := envelope(a)
	if err != nil {
		return Receipt{}, err
	}
	job := &queue.Job{
		ID:        store.DerivedID(a.ID(), JobDispatch),
		Name:      JobDispatch,
		Queue:     dec.Queue,
		EventType: a.Type(),
		EventID:   a.ID(),
		Payload:   payload,
		Retry:     dec.Retry,
		Run: func(ctx context.Context) error {
			return d.Process(ctx, a, dec)
		},
	}
	if err := d.queue.Enqueue(job); err != nil {
		metrics.AlertsRejected.WithLabelValues("enqueue").Inc()
		return Receipt{}, fmt.Errorf("failed to enqueue %s: %w", a.Type(), err)
	}
	metrics.AlertsFired.WithLabelValues(string(a.Category()), string(a.Severity())).Inc()
	return Receipt{
		EventID:   a.ID(),
		EventType: a.Type(),
		Severity:  string(dec.Severity),
		Queue:     dec.Queue,
	}, nil
}

// Process runs the dispatch steps for a. Recipient resolution and
// notification writes return their errors so the queue retries the job;
// later steps log and swallow theirs.
func (d *Dispatcher) Process(ctx context.Context, a event.Alert, dec policy.Decision) error {
	start := time.Now()
	defer func() {
		metrics.DispatchDuration.Observe(float64(time.Since(start).Milliseconds()))
	}()

	res, err := d.resolver.Resolve(ctx, a)
	if err != nil {
		return fmt.Errorf("failed to resolve recipients: %w", err)
	}

	if err := d.notify(ctx, a, res.Recipients); err != nil {
		return err
	}

	if dec.SendEmail {
		d.queueEmails(a, dec, res.Recipients)
	}

	d.logAlert(ctx, a, dec, res)

	if d.publisher != nil {
		d.runStep(ctx, a, "broadcast", func(ctx context.Context) error {
			return d.publisher.Publish(ctx, broadcast.MessageFor(a))
		})
	}

	for _, exec := range d.followUps.For(a) {
		d.runStep(ctx, a, exec.Name(), func(ctx context.Context) error {
			r, err := exec.Execute(ctx, a)
			if err == nil && r != nil {
				d.logger.Debug("follow-up done", "step", exec.Name(), "event_id", a.ID(), "message", r.Message)
			}
			return err
		})
	}

	as := analysis.Assess(a)
	row := analysis.TrackingFor(a, as)
	d.runStep(ctx, a, "tracking", func(ctx context.Context) error {
		return d.store.InsertTracking(ctx, &row)
	})

	d.runStep(ctx, a, "pattern_detection", func(ctx context.Context) error {
		indicators, detectErr := d.detector.Detect(ctx, row)
		if p := analysis.PatternAnalysisFor(a, as, indicators, d.now().UTC()); p != nil {
			if err := d.store.SavePattern(ctx, p); err != nil {
				return errors.Join(detectErr, fmt.Errorf("failed to save pattern analysis: %w", err))
			}
			d.logger.Warn("concerning pattern detected",
				"event_type", a.Type(),
				"event_id", a.ID(),
				"indicators", indicators,
				"risk_level", p.RiskLevel,
				"score", p.Score,
			)
		}
		return detectErr
	})
	return nil
}

func (d *Dispatcher) notify(ctx context.Context, a event.Alert, recipients []user.User) error {
	now := d.now().UTC()
	data := a.BroadcastWith()
	for _, u := range recipients {
		n := &store.Notification{
			ID:        store.DerivedID(a.ID(), "notification", u.ID),
			UserID:    u.ID,
			EventID:   a.ID(),
			EventType: a.Type(),
			Category:  string(a.Category()),
			Severity:  string(a.Severity()),
			Title:     a.Title(),
			Body:      a.Description(),
			Data:      data,
			CreatedAt: now,
		}
		if err := d.store.CreateNotification(ctx, n); err != nil {
			return fmt.Errorf("failed to create notification for %s: %w", u.ID, err)
		}
		metrics.NotificationsCreated.Inc()
	}
	return nil
}

// queueEmails enqueues one email job per recipient. A job the queue refuses
// goes straight to the dead letters so it can be replayed.
func (d *Dispatcher) queueEmails(a event.Alert, dec policy.Decision, recipients []user.User) {
	if d.mailer == nil {
		d.logger.Warn("email required but no mailer configured", "event_type", a.Type(), "event_id", a.ID())
		return
	}
	payload, err := envelope(a)
	if err != nil {
		d.logger.Error("failed to encode alert for email", "event_id", a.ID(), "error", err)
		return
	}
	for _, u := range recipients {
		job := d.emailJob(a, u, dec.Retry, payload)
		if err := d.queue.Enqueue(job); err != nil {
			d.saveDeadLetter(job, fmt.Errorf("failed to enqueue email: %w", err))
		}
	}
}

func (d *Dispatcher) emailJob(a event.Alert, to user.User, retry policy.Retry, payload json.RawMessage) *queue.Job {
	return &queue.Job{
		ID:        store.DerivedID(a.ID(), JobEmail, to.ID),
		Name:      JobEmail,
		Queue:     policy.QueueMail,
		EventType: a.Type(),
		EventID:   a.ID(),
		Target:    to.ID,
		Payload:   payload,
		Retry:     retry,
		Timeout:   d.emailTimeout,
		Run: func(ctx context.Context) error {
			provider, err := d.mailer.Send(ctx, to, a)
			if err != nil {
				if errors.Is(err, mail.ErrNoProvider) || to.Email == "" {
					return queue.Permanent(err)
				}
				return err
			}
			d.logger.Info("alert email sent", "event_id", a.ID(), "to", to.Email, "provider", provider)
			return nil
		},
	}
}

func (d *Dispatcher) saveDeadLetter(j *queue.Job, err error) {
	metrics.DeadLetters.WithLabelValues(j.Queue).Inc()
	d.logger.Error("job moved to dead letters",
		"job", j.Name,
		"queue", j.Queue,
		"event_id", j.EventID,
		"target", j.Target,
		"error", err,
	)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	dl := &store.DeadLetter{
		ID:        j.ID,
		Queue:     j.Queue,
		JobName:   j.Name,
		EventType: j.EventType,
		EventID:   j.EventID,
		Target:    j.Target,
		Payload:   j.Payload,
		LastError: err.Error(),
		FailedAt:  time.Now().UTC(),
	}
	if serr := d.store.SaveDeadLetter(ctx, dl); serr != nil {
		d.logger.Error("dead letter not persisted", "job_id", j.ID, "error", serr)
	}
}

// runStep runs one swallowed step. Failures and panics are logged with the
// alert context and counted.
func (d *Dispatcher) runStep(ctx context.Context, a event.Alert, step string, fn func(context.Context) error) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn(ctx)
	}()
	if err == nil {
		metrics.FollowUpSteps.WithLabelValues(step, "success").Inc()
		return
	}
	metrics.FollowUpSteps.WithLabelValues(step, "error").Inc()
	d.logger.Error("follow-up step failed",
		"step", step,
		"category", string(a.Category()),
		"event_type", a.Type(),
		"event_id", a.ID(),
		"error", err,
	)
}

func (d *Dispatcher) logAlert(ctx context.Context, a event.Alert, dec policy.Decision, res recipient.Result) {
	level := slog.LevelInfo
	attrs := []any{
		"event_type", a.Type(),
		"event_id", a.ID(),
		"category", string(a.Category()),
		"severity", string(a.Severity()),
		"queue", dec.Queue,
		"recipients", len(res.Recipients),
		"rules", res.Rules,
		"title", a.Title(),
	}
	switch a.Severity() {
	case event.SeverityCritical:
		level = slog.LevelError
		attrs = append(attrs, "alert_level", "critical")
	case event.SeverityHigh:
		level = slog.LevelWarn
	}
	if by := a.InitiatedBy(); by != nil {
		attrs = append(attrs, "initiated_by", by.ID)
	}
	d.logger.Log(ctx, level, "administrative alert", attrs...)
}

func envelope(a event.Alert) (json.RawMessage, error) {
	env, err := event.Encode(a)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return b, nil
}
