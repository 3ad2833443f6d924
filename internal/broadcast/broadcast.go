// Package broadcast pushes fired alerts to real-time consumers: websocket
// clients subscribed to a category channel and, when configured, a Kafka
// topic.
package broadcast

import (
	"context"
	"errors"
	"fmt"

	"github.com/gyaneshwarpardhi/opsalert/internal/event"
	"github.com/gyaneshwarpardhi/opsalert/internal/metrics"
)

// Message is one broadcast frame.
type Message struct {
	Channel string         `json:"channel"`
	Event   string         `json:"event"`
	Data    map[string]any `json:"data"`
}

// MessageFor builds the frame for a.
func MessageFor(a event.Alert) Message {
	return Message{Channel: a.BroadcastOn(), Event: a.Type(), Data: a.BroadcastWith()}
}

// Publisher delivers messages to one transport.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, m Message) error
}

// Fanout publishes to every publisher and joins their errors. One failing
// transport does not stop the others.
type Fanout struct {
	publishers []Publisher
}

func NewFanout(ps ...Publisher) *Fanout {
	return &Fanout{publishers: ps}
}

// Add appends a publisher. Not safe to call once publishing has started.
func (f *Fanout) Add(p Publisher) { f.publishers = append(f.publishers, p) }

func (f *Fanout) Name() string { return "fanout" }

func (f *Fanout) Publish(ctx context.Context, m Message) error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.Publish(ctx, m); err != nil {
			metrics.BroadcastsPublished.WithLabelValues(p.Name(), "failed").Inc()
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		metrics.BroadcastsPublished.WithLabelValues(p.Name(), "published").Inc()
	}
	return errors.Join(errs...)
}
