package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gyaneshwarpardhi/opsalert/internal/event"
	"github.com/gyaneshwarpardhi/opsalert/internal/policy"
	"github.com/gyaneshwarpardhi/opsalert/internal/store"
)

// ListDeadLetters returns the most recent dead letters.
func (d *Dispatcher) ListDeadLetters(ctx context.Context, limit int) ([]store.DeadLetter, error) {
	return d.store.ListDeadLetters(ctx, limit)
}

// Replay decodes the alert stored with a dead letter and queues it again.
// An email dead letter re-sends only that email; anything else fires the
// whole alert. The dead letter is removed before the job is queued, so a
// replayed job that fails again leaves a fresh dead letter behind. If the
// job cannot be queued the dead letter is put back.
func (d *Dispatcher) Replay(ctx context.Context, id string) (Receipt, error) {
	dl, err := d.store.GetDeadLetter(ctx, id)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to load dead letter %s: %w", id, err)
	}
	var env event.Envelope
	if err := json.Unmarshal(dl.Payload, &env); err != nil {
		return Receipt{}, fmt.Errorf("dead letter %s: decode payload: %w", id, err)
	}
	a, err := event.DecodeEnvelope(env)
	if err != nil {
		return Receipt{}, fmt.Errorf("dead letter %s: %w", id, err)
	}

	// A concurrent replay of the same letter loses here with ErrNotFound.
	if err := d.store.DeleteDeadLetter(ctx, id); err != nil {
		return Receipt{}, fmt.Errorf("failed to claim dead letter %s: %w", id, err)
	}

	var receipt Receipt
	if dl.JobName == JobEmail && dl.Target != "" {
		receipt, err = d.replayEmail(ctx, a, dl)
	} else {
		receipt, err = d.Fire(a)
	}
	if err != nil {
		if serr := d.store.SaveDeadLetter(context.WithoutCancel(ctx), &dl); serr != nil {
			d.logger.Error("dead letter lost after failed replay", "id", id, "event_id", a.ID(), "payload", string(dl.Payload), "error", serr)
		}
		return Receipt{}, err
	}
	d.logger.Info("dead letter replayed", "id", id, "job", dl.JobName, "event_type", a.Type(), "event_id", a.ID())
	return receipt, nil
}

func (d *Dispatcher) replayEmail(ctx context.Context, a event.Alert, dl store.DeadLetter) (Receipt, error) {
	if d.mailer == nil {
		return Receipt{}, fmt.Errorf("no mailer configured")
	}
	if d.dir == nil {
		return Receipt{}, fmt.Errorf("no user directory configured")
	}
	to, err := d.dir.Get(ctx, dl.Target)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to look up recipient %s: %w", dl.Target, err)
	}
	dec := policy.Classify(a)
	job := d.emailJob(a, to, dec.Retry, dl.Payload)
	if err := d.queue.Enqueue(job); err != nil {
		return Receipt{}, fmt.Errorf("failed to enqueue email: %w", err)
	}
	return Receipt{
		EventID:   a.ID(),
		EventType: a.Type(),
		Severity:  string(dec.Severity),
		Queue:     policy.QueueMail,
	}, nil
}
