package dispatch_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/opsalert/internal/action"
	"github.com/gyaneshwarpardhi/opsalert/internal/action/expense"
	"github.com/gyaneshwarpardhi/opsalert/internal/action/points"
	"github.com/gyaneshwarpardhi/opsalert/internal/action/tasks"
	"github.com/gyaneshwarpardhi/opsalert/internal/analysis"
	"github.com/gyaneshwarpardhi/opsalert/internal/config"
	"github.com/gyaneshwarpardhi/opsalert/internal/dispatch"
	"github.com/gyaneshwarpardhi/opsalert/internal/event"
	"github.com/gyaneshwarpardhi/opsalert/internal/leaderboard"
	"github.com/gyaneshwarpardhi/opsalert/internal/mail"
	"github.com/gyaneshwarpardhi/opsalert/internal/policy"
	"github.com/gyaneshwarpardhi/opsalert/internal/queue"
	"github.com/gyaneshwarpardhi/opsalert/internal/recipient"
	"github.com/gyaneshwarpardhi/opsalert/internal/routing"
	"github.com/gyaneshwarpardhi/opsalert/internal/store"
	"github.com/gyaneshwarpardhi/opsalert/internal/user"
)

// recordingQueue keeps jobs so tests can run them in order.
type recordingQueue struct {
	mu   sync.Mutex
	jobs []*queue.Job
	err  error
}

func (q *recordingQueue) Enqueue(j *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, j)
	return nil
}

// take removes and returns the queued jobs with the given name.
func (q *recordingQueue) take(name string) []*queue.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out, rest []*queue.Job
	for _, j := range q.jobs {
		if j.Name == name {
			out = append(out, j)
		} else {
			rest = append(rest, j)
		}
	}
	q.jobs = rest
	return out
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *recordingMailer) Send(_ context.Context, to user.User, _ event.Alert) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, to.Email)
	return "test", nil
}

type failingTasks struct{}

func (failingTasks) CreateTask(context.Context, *store.Task) error {
	return errors.New("tasks table locked")
}

func (failingTasks) ListTasks(context.Context, string) ([]store.Task, error) { return nil, nil }

type harness struct {
	store  *store.Memory
	board  *leaderboard.Memory
	queue  *recordingQueue
	mailer *recordingMailer
	d      *dispatch.Dispatcher
}

func newHarness(t *testing.T, taskStore store.TaskStore) *harness {
	t.Helper()
	mem := store.NewMemory()
	if taskStore == nil {
		taskStore = mem
	}
	dir := user.NewStaticDirectory(
		user.User{ID: "u_admin", Name: "Ada", Email: "ada@example.com", Role: user.RoleAdmin},
		user.User{ID: "u_mgr", Name: "Max", Email: "max@example.com", Role: user.RoleManager},
		user.User{ID: "u_fin", Name: "Fay", Email: "fay@example.com", Role: user.RoleFinance},
		user.User{ID: "u_sales", Name: "Sam", Email: "sam@example.com", Role: user.RoleSales, ManagerID: "u_mgr"},
		user.User{ID: "u_sales2", Name: "Sue", Email: "sue@example.com", Role: user.RoleSales, ManagerID: "u_mgr"},
	)
	rc, err := config.DefaultRouting()
	require.NoError(t, err)
	router, err := routing.NewRouter(rc)
	require.NoError(t, err)
	detector, err := analysis.NewDetector(mem, nil)
	require.NoError(t, err)

	board := leaderboard.NewMemory()
	reg := action.NewRegistry()
	reg.Register(tasks.Executors(taskStore, dir, nil, nil)...)
	reg.Register(expense.NewBlock(mem), points.NewLeaderboard(board), points.NewMonitoring(board))

	q := &recordingQueue{}
	m := &recordingMailer{}
	d, err := dispatch.New(dispatch.Config{
		Queue:     q,
		Resolver:  recipient.NewResolver(router, dir, nil),
		Store:     mem,
		Directory: dir,
		Detector:  detector,
		FollowUps: reg,
		Mailer:    m,
	})
	require.NoError(t, err)
	return &harness{store: mem, board: board, queue: q, mailer: m, d: d}
}

// drain runs every queued dispatch job and then every queued email job.
func (h *harness) drain(t *testing.T) {
	t.Helper()
	for _, j := range h.queue.take(dispatch.JobDispatch) {
		require.NoError(t, j.Run(context.Background()))
	}
	for _, j := range h.queue.take(dispatch.JobEmail) {
		require.NoError(t, j.Run(context.Background()))
	}
}

func (h *harness) notified(t *testing.T, eventID string) []string {
	t.Helper()
	all, err := h.store.ListNotifications(context.Background(), "", 0)
	require.NoError(t, err)
	var ids []string
	for _, n := range all {
		if n.EventID == eventID {
			ids = append(ids, n.UserID)
		}
	}
	return ids
}

func TestSuspiciousLoginGoesToSecurityQueue(t *testing.T) {
	h := newHarness(t, nil)
	a, err := event.NewSecurityFailedLogin(event.FailedLogin{
		Email: "victim@example.com", IPAddress: "198.51.100.7", Attempts: 15, IsSuspicious: true,
	}, event.Meta{ID: "evt-login"})
	require.NoError(t, err)

	receipt, err := h.d.Fire(a)
	require.NoError(t, err)
	assert.Equal(t, dispatch.Receipt{
		EventID:   "evt-login",
		EventType: event.TypeSecurityFailedLogin,
		Severity:  "HIGH",
		Queue:     policy.QueueSecurityHigh,
	}, receipt)

	h.queue.mu.Lock()
	require.Len(t, h.queue.jobs, 1)
	job := h.queue.jobs[0]
	h.queue.mu.Unlock()
	assert.Equal(t, 3, job.Retry.Tries)
	assert.Equal(t, policy.QueueSecurityHigh, job.Queue)

	require.NoError(t, job.Run(context.Background()))
	h.queue.take(dispatch.JobDispatch)
	emails := h.queue.take(dispatch.JobEmail)
	require.Len(t, emails, 2)
	for _, e := range emails {
		assert.Equal(t, policy.QueueMail, e.Queue)
		assert.Equal(t, 3, e.Retry.Tries)
		require.NoError(t, e.Run(context.Background()))
	}
	assert.ElementsMatch(t, []string{"ada@example.com", "max@example.com"}, h.mailer.sent)
	assert.ElementsMatch(t, []string{"u_admin", "u_mgr"}, h.notified(t, "evt-login"))

	rows := h.store.Tracking(string(event.CategorySecurity))
	require.Len(t, rows, 1)
	assert.Equal(t, "198.51.100.7", rows[0].ActorID)
	assert.Equal(t, "victim@example.com", rows[0].SubjectID)
}

func TestSystemWideDatabaseFailureIsCritical(t *testing.T) {
	h := newHarness(t, nil)
	a, err := event.NewSystemDatabaseFailure(event.DatabaseFailure{
		Connection: "pgsql", ErrorMessage: "connection refused", IsConnectionFailure: true, IsSystemWide: true,
	}, event.Meta{ID: "evt-db"})
	require.NoError(t, err)

	receipt, err := h.d.Fire(a)
	require.NoError(t, err)
	assert.Equal(t, "CRITICAL", receipt.Severity)
	assert.Equal(t, policy.QueueSystemAlerts, receipt.Queue)

	jobs := h.queue.take(dispatch.JobDispatch)
	require.Len(t, jobs, 1)
	assert.Equal(t, 5, jobs[0].Retry.Tries)
	require.NoError(t, jobs[0].Run(context.Background()))

	got, err := h.store.ListTasks(context.Background(), "evt-db")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, tasks.Failover, got[0].Kind)
	assert.Equal(t, store.PriorityUrgent, got[0].Priority)
}

func TestHighValueSaleCelebratesAndRanks(t *testing.T) {
	h := newHarness(t, nil)
	at := time.Date(2026, 6, 3, 15, 0, 0, 0, time.UTC)
	a, err := event.NewBusinessHighValueSale(event.HighValueSale{
		SalesUser:       user.User{ID: "u_sales", Name: "Sam", Email: "sam@example.com", Role: user.RoleSales, ManagerID: "u_mgr"},
		Client:          event.ClientRef{ID: "c1", Name: "Acme"},
		Sale:            event.SaleRef{ID: "s1"},
		SaleAmount:      60000,
		ProfitMargin:    25,
		IsRecordHigh:    true,
		ThresholdAmount: 10000,
	}, event.Meta{ID: "evt-sale", OccurredAt: at})
	require.NoError(t, err)

	receipt, err := h.d.Fire(a)
	require.NoError(t, err)
	assert.Equal(t, policy.QueueBusinessHigh, receipt.Queue)
	h.drain(t)

	assert.ElementsMatch(t, []string{"u_admin", "u_mgr", "u_sales", "u_sales2"}, h.notified(t, "evt-sale"))
	assert.Len(t, h.mailer.sent, 4)

	got, err := h.store.ListTasks(context.Background(), "evt-sale")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, tasks.BonusCalculation, got[0].Kind)
	assert.Equal(t, tasks.Celebration, got[1].Kind)
	assert.Equal(t, "u_mgr", got[1].AssigneeID)

	top, err := h.board.Top(context.Background(), "2026-06", 3)
	require.NoError(t, err)
	assert.Equal(t, []leaderboard.Entry{{UserID: "u_sales", Total: 60000}}, top)
	counts, err := h.board.Monitoring(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["Business:HIGH"])
}

func TestExpenseIsBlockedOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.store.SetExpenseStatus("exp-9", "pending")
	a, err := event.NewBusinessUnusualExpense(event.UnusualExpense{
		Expense:       event.ExpenseRef{ID: "exp-9"},
		Submitter:     user.User{ID: "u_sales", Email: "sam@example.com", Role: user.RoleSales},
		Amount:        5000,
		AverageAmount: 100,
		IsSuspicious:  true,
	}, event.Meta{ID: "evt-exp"})
	require.NoError(t, err)
	dec := policy.Classify(a)
	assert.Equal(t, event.SeverityCritical, dec.Severity)

	require.NoError(t, h.d.Process(context.Background(), a, dec))
	require.NoError(t, h.d.Process(context.Background(), a, dec))

	status, err := h.store.ExpenseStatus(context.Background(), "exp-9")
	require.NoError(t, err)
	assert.Equal(t, store.ExpenseBlocked, status)

	got, err := h.store.ListTasks(context.Background(), "evt-exp")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, tasks.ExpenseFinanceReview, got[0].Kind)
	assert.Len(t, h.store.Tracking(string(event.CategoryBusiness)), 1)
	assert.ElementsMatch(t, []string{"u_admin", "u_fin", "u_mgr", "u_sales"}, h.notified(t, "evt-exp"))
}

func TestFailingTaskStepDoesNotStopDispatch(t *testing.T) {
	h := newHarness(t, failingTasks{})
	a, err := event.NewBusinessPaymentOverdue(event.PaymentOverdue{
		Payment: event.PaymentRef{ID: "p1"}, Client: event.ClientRef{ID: "c1"}, Amount: 800, DaysOverdue: 40,
	}, event.Meta{ID: "evt-late"})
	require.NoError(t, err)

	require.NoError(t, h.d.Process(context.Background(), a, policy.Classify(a)))
	assert.Equal(t, []string{"u_admin"}, h.notified(t, "evt-late"))
	assert.Len(t, h.store.Tracking(string(event.CategoryBusiness)), 1, "tracking row still written")
}

func TestPatternAnalysisPersistedOnRepeatDeletions(t *testing.T) {
	h := newHarness(t, nil)
	base := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"evt-d1", "evt-d2", "evt-d3"} {
		a, err := event.NewBusinessClientDeleted(event.ClientDeleted{
			DeletedClient: event.ClientRef{ID: id + "-client"},
			DeletedBy:     user.User{ID: "u_sales"},
			BackupCreated: true,
		}, event.Meta{ID: id, OccurredAt: base.Add(time.Duration(i) * time.Hour)})
		require.NoError(t, err)
		require.NoError(t, h.d.Process(context.Background(), a, policy.Classify(a)))
	}
	patterns := h.store.Patterns()
	require.Len(t, patterns, 1)
	assert.Equal(t, "evt-d3", patterns[0].EventID)
	assert.Contains(t, patterns[0].Indicators, analysis.MultipleClientDeletions)
}

func TestEnqueueFailureIsReported(t *testing.T) {
	h := newHarness(t, nil)
	h.queue.err = queue.ErrQueueFull
	a, err := event.NewBusinessPaymentOverdue(event.PaymentOverdue{
		Payment: event.PaymentRef{ID: "p1"}, Client: event.ClientRef{ID: "c1"}, DaysOverdue: 3,
	}, event.Meta{})
	require.NoError(t, err)
	_, err = h.d.Fire(a)
	assert.ErrorIs(t, err, queue.ErrQueueFull)
}

func TestEmailWithoutProviderIsPermanent(t *testing.T) {
	h := newHarness(t, nil)
	h.mailer.err = mail.ErrNoProvider
	a, err := event.NewSecurityFailedLogin(event.FailedLogin{
		Email: "v@example.com", IPAddress: "198.51.100.7", Attempts: 12,
	}, event.Meta{ID: "evt-nomail"})
	require.NoError(t, err)
	require.NoError(t, h.d.Process(context.Background(), a, policy.Classify(a)))
	emails := h.queue.take(dispatch.JobEmail)
	require.NotEmpty(t, emails)
	assert.True(t, queue.IsPermanent(emails[0].Run(context.Background())))
}

func TestReplayDeadLetters(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	a, err := event.NewSecurityFailedLogin(event.FailedLogin{
		Email: "v@example.com", IPAddress: "198.51.100.7", Attempts: 12,
	}, event.Meta{ID: "evt-replay"})
	require.NoError(t, err)
	require.NoError(t, h.d.Process(ctx, a, policy.Classify(a)))
	emails := h.queue.take(dispatch.JobEmail)
	require.NotEmpty(t, emails)
	failed := emails[0]

	require.NoError(t, h.store.SaveDeadLetter(ctx, &store.DeadLetter{
		ID: "dl-email", Queue: failed.Queue, JobName: failed.Name, EventType: failed.EventType,
		EventID: failed.EventID, Target: failed.Target, Payload: failed.Payload, Attempts: 3,
	}))
	receipt, err := h.d.Replay(ctx, "dl-email")
	require.NoError(t, err)
	assert.Equal(t, policy.QueueMail, receipt.Queue)
	replayed := h.queue.take(dispatch.JobEmail)
	require.Len(t, replayed, 1)
	assert.Equal(t, failed.Target, replayed[0].Target)
	require.NoError(t, replayed[0].Run(ctx))

	require.NoError(t, h.store.SaveDeadLetter(ctx, &store.DeadLetter{
		ID: "dl-dispatch", Queue: policy.QueueSecurityHigh, JobName: dispatch.JobDispatch,
		EventType: a.Type(), EventID: a.ID(), Payload: failed.Payload,
	}))
	receipt, err = h.d.Replay(ctx, "dl-dispatch")
	require.NoError(t, err)
	assert.Equal(t, "evt-replay", receipt.EventID)
	assert.Len(t, h.queue.take(dispatch.JobDispatch), 1)

	left, err := h.d.ListDeadLetters(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, left)

	_, err = h.d.Replay(ctx, "dl-missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// offlineNotifications fails every notification write and deletes dead
// letters slowly, the way a remote database would.
type offlineNotifications struct{ *store.Memory }

func (offlineNotifications) CreateNotification(context.Context, *store.Notification) error {
	return errors.New("notifications table offline")
}

func (s offlineNotifications) DeleteDeadLetter(ctx context.Context, id string) error {
	time.Sleep(50 * time.Millisecond)
	return s.Memory.DeleteDeadLetter(ctx, id)
}

func TestReplayThatFailsAgainKeepsItsDeadLetter(t *testing.T) {
	st := offlineNotifications{store.NewMemory()}
	dir := user.NewStaticDirectory(user.User{ID: "u_admin", Name: "Ada", Email: "ada@example.com", Role: user.RoleAdmin})
	rc, err := config.DefaultRouting()
	require.NoError(t, err)
	router, err := routing.NewRouter(rc)
	require.NoError(t, err)
	detector, err := analysis.NewDetector(st, nil)
	require.NoError(t, err)

	broker := queue.NewBroker(queue.Options{
		Queues:      policy.Queues,
		JobTimeout:  time.Second,
		Backoff:     queue.Backoff{Base: time.Millisecond, Cap: 2 * time.Millisecond, Factor: 2},
		DeadLetters: st,
	})
	t.Cleanup(broker.Shutdown)
	d, err := dispatch.New(dispatch.Config{
		Queue:     broker,
		Resolver:  recipient.NewResolver(router, dir, nil),
		Store:     st,
		Directory: dir,
		Detector:  detector,
		FollowUps: action.NewRegistry(),
	})
	require.NoError(t, err)

	ctx := context.Background()
	count := func() int {
		list, _ := st.ListDeadLetters(ctx, 0)
		return len(list)
	}

	a, err := event.NewSecurityFailedLogin(event.FailedLogin{
		Email: "low@example.com", IPAddress: "203.0.113.9", Attempts: 1,
	}, event.Meta{ID: "evt-offline"})
	require.NoError(t, err)
	require.Equal(t, event.SeverityLow, a.Severity())
	_, err = d.Fire(a)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return count() == 1 }, 2*time.Second, 5*time.Millisecond)

	letters, err := st.ListDeadLetters(ctx, 0)
	require.NoError(t, err)
	_, err = d.Replay(ctx, letters[0].ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return count() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return count() == 0 }, 200*time.Millisecond, 10*time.Millisecond)
}

func TestReplayRestoresDeadLetterWhenQueueIsFull(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	a, err := event.NewSecurityFailedLogin(event.FailedLogin{
		Email: "v@example.com", IPAddress: "198.51.100.7", Attempts: 12,
	}, event.Meta{ID: "evt-full"})
	require.NoError(t, err)
	payload, err := event.Encode(a)
	require.NoError(t, err)
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, h.store.SaveDeadLetter(ctx, &store.DeadLetter{
		ID: "dl-full", Queue: policy.QueueSecurityHigh, JobName: dispatch.JobDispatch,
		EventType: a.Type(), EventID: a.ID(), Payload: raw, Attempts: 3,
	}))

	h.queue.err = queue.ErrQueueFull
	_, err = h.d.Replay(ctx, "dl-full")
	assert.ErrorIs(t, err, queue.ErrQueueFull)

	kept, err := h.store.GetDeadLetter(ctx, "dl-full")
	require.NoError(t, err)
	assert.Equal(t, 3, kept.Attempts)
}
