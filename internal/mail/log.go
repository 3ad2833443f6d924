package mail

import (
	"context"
	"log/slog"
)

// LogProvider writes emails to the log instead of sending them. It is the
// last resort when no real provider is configured.
type LogProvider struct{ logger *slog.Logger }

func NewLogProvider(logger *slog.Logger) *LogProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProvider{logger: logger}
}

func (p *LogProvider) Name() string { return "log" }

func (p *LogProvider) Configured() bool { return true }

func (p *LogProvider) Send(_ context.Context, req *Request) error {
	p.logger.Info("email (log provider)",
		"from", req.From,
		"to", req.To,
		"subject", req.Subject,
		"body", req.Text,
	)
	return nil
}
