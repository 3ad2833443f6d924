package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AlertsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opsalert_alerts_fired_total",
		Help: "Total number of alerts accepted for dispatch, labelled by category and severity.",
	}, []string{"category", "severity"})

	AlertsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opsalert_alerts_rejected_total",
		Help: "Total number of alerts rejected before dispatch, labelled by reason.",
	}, []string{"reason"})

	JobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opsalert_jobs_enqueued_total",
		Help: "Total number of jobs placed on a queue.",
	}, []string{"queue"})

	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opsalert_jobs_processed_total",
		Help: "Total number of job attempts, labelled by queue and status.",
	}, []string{"queue", "status"})

	JobRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opsalert_job_retries_total",
		Help: "Total number of job retries scheduled.",
	}, []string{"queue"})

	DeadLetters = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opsalert_dead_letters_total",
		Help: "Total number of jobs moved to the dead-letter store.",
	}, []string{"queue"})

	NotificationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "opsalert_notifications_created_total",
		Help: "Total number of in-app notifications written.",
	})

	EmailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opsalert_emails_sent_total",
		Help: "Total number of email send attempts, labelled by provider and status.",
	}, []string{"provider", "status"})

	FollowUpSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opsalert_follow_up_steps_total",
		Help: "Total number of follow-up steps run, labelled by step and status.",
	}, []string{"step", "status"})

	BroadcastsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opsalert_broadcasts_published_total",
		Help: "Total number of broadcast publishes, labelled by publisher and status.",
	}, []string{"publisher", "status"})

	DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "opsalert_dispatch_duration_ms",
		Help:    "Time to run the dispatch steps for one alert in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	})

	QueueUtilization = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "opsalert_queue_utilization_ratio",
		Help: "Current queue utilization (0–1), labelled by queue.",
	}, []string{"queue"})
)
