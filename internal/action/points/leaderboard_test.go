package points_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/opsalert/internal/action/points"
	"github.com/gyaneshwarpardhi/opsalert/internal/event"
	"github.com/gyaneshwarpardhi/opsalert/internal/leaderboard"
	"github.com/gyaneshwarpardhi/opsalert/internal/user"
)

func TestLeaderboardCreditsSeller(t *testing.T) {
	ctx := context.Background()
	board := leaderboard.NewMemory()
	at := time.Date(2026, 5, 14, 12, 0, 0, 0, time.UTC)
	sale, err := event.NewBusinessHighValueSale(event.HighValueSale{
		SalesUser:       user.User{ID: "u_sales"},
		Client:          event.ClientRef{ID: "c1"},
		Sale:            event.SaleRef{ID: "s1"},
		SaleAmount:      25000,
		ThresholdAmount: 10000,
	}, event.Meta{OccurredAt: at})
	require.NoError(t, err)

	lb := points.NewLeaderboard(board)
	require.True(t, lb.Applies(sale))
	_, err = lb.Execute(ctx, sale)
	require.NoError(t, err)

	for _, period := range []string{"2026-05", leaderboard.PeriodAllTime} {
		top, err := board.Top(ctx, period, 10)
		require.NoError(t, err)
		assert.Equal(t, []leaderboard.Entry{{UserID: "u_sales", Total: 25000}}, top, period)
	}

	again, err := lb.Execute(ctx, sale)
	require.NoError(t, err)
	assert.Equal(t, "already credited", again.Message)
	top, err := board.Top(ctx, leaderboard.PeriodAllTime, 10)
	require.NoError(t, err)
	assert.Equal(t, []leaderboard.Entry{{UserID: "u_sales", Total: 25000}}, top)

	mon := points.NewMonitoring(board)
	require.True(t, mon.Applies(sale))
	for i := 0; i < 2; i++ {
		_, err = mon.Execute(ctx, sale)
		require.NoError(t, err)
	}
	counts, err := board.Monitoring(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["Business:MEDIUM"])
}

func TestLeaderboardSkipsOtherAlerts(t *testing.T) {
	a, err := event.NewBusinessPaymentOverdue(event.PaymentOverdue{
		Payment: event.PaymentRef{ID: "p1"}, Client: event.ClientRef{ID: "c1"}, DaysOverdue: 10,
	}, event.Meta{})
	require.NoError(t, err)
	assert.False(t, points.NewLeaderboard(leaderboard.NewMemory()).Applies(a))
}
