// Package points keeps the sales leaderboard and the monitoring counters.
package points

import (
	"context"
	"fmt"

	"github.com/gyaneshwarpardhi/opsalert/internal/action"
	"github.com/gyaneshwarpardhi/opsalert/internal/event"
	"github.com/gyaneshwarpardhi/opsalert/internal/leaderboard"
)

const (
	StepLeaderboard = "leaderboard"
	StepMonitoring  = "monitoring_counter"
)

// Leaderboard credits a high value sale to its salesperson for the current
// month and all time.
type Leaderboard struct{ board leaderboard.Board }

func NewLeaderboard(b leaderboard.Board) *Leaderboard { return &Leaderboard{board: b} }

func (l *Leaderboard) Name() string { return StepLeaderboard }

func (l *Leaderboard) Applies(a event.Alert) bool {
	_, ok := a.(*event.BusinessHighValueSaleEvent)
	return ok
}

func (l *Leaderboard) Execute(ctx context.Context, a event.Alert) (*action.Result, error) {
	sale, ok := a.(*event.BusinessHighValueSaleEvent)
	if !ok {
		return nil, fmt.Errorf("leaderboard: unexpected alert %s", a.Type())
	}
	applied, err := l.board.RecordSale(ctx, a.ID(), sale.SalesUser.ID, sale.SaleAmount, a.OccurredAt())
	if err != nil {
		return &action.Result{Step: StepLeaderboard, Message: err.Error()},
			fmt.Errorf("failed to record sale: %w", err)
	}
	if !applied {
		return &action.Result{Step: StepLeaderboard, Success: true, Message: "already credited"}, nil
	}
	return &action.Result{
		Step:    StepLeaderboard,
		Success: true,
		Message: fmt.Sprintf("credited %.2f to %s", sale.SaleAmount, sale.SalesUser.ID),
	}, nil
}

// Monitoring counts every alert by category and severity.
type Monitoring struct{ board leaderboard.Board }

func NewMonitoring(b leaderboard.Board) *Monitoring { return &Monitoring{board: b} }

func (m *Monitoring) Name() string { return StepMonitoring }

func (m *Monitoring) Applies(event.Alert) bool { return true }

func (m *Monitoring) Execute(ctx context.Context, a event.Alert) (*action.Result, error) {
	applied, err := m.board.IncrementMonitoring(ctx, a.ID(), string(a.Category()), string(a.Severity()))
	if err != nil {
		return &action.Result{Step: StepMonitoring, Message: err.Error()},
			fmt.Errorf("failed to increment monitoring counter: %w", err)
	}
	if !applied {
		return &action.Result{Step: StepMonitoring, Success: true, Message: "already counted"}, nil
	}
	return &action.Result{Step: StepMonitoring, Success: true, Message: "counted"}, nil
}
