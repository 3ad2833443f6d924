package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gyaneshwarpardhi/opsalert/internal/action"
	"github.com/gyaneshwarpardhi/opsalert/internal/action/expense"
	"github.com/gyaneshwarpardhi/opsalert/internal/action/points"
	"github.com/gyaneshwarpardhi/opsalert/internal/action/tasks"
	"github.com/gyaneshwarpardhi/opsalert/internal/analysis"
	"github.com/gyaneshwarpardhi/opsalert/internal/api"
	"github.com/gyaneshwarpardhi/opsalert/internal/broadcast"
	"github.com/gyaneshwarpardhi/opsalert/internal/config"
	"github.com/gyaneshwarpardhi/opsalert/internal/database"
	"github.com/gyaneshwarpardhi/opsalert/internal/dispatch"
	"github.com/gyaneshwarpardhi/opsalert/internal/leaderboard"
	"github.com/gyaneshwarpardhi/opsalert/internal/mail"
	"github.com/gyaneshwarpardhi/opsalert/internal/policy"
	"github.com/gyaneshwarpardhi/opsalert/internal/queue"
	"github.com/gyaneshwarpardhi/opsalert/internal/recipient"
	"github.com/gyaneshwarpardhi/opsalert/internal/routing"
	"github.com/gyaneshwarpardhi/opsalert/internal/store"
	"github.com/gyaneshwarpardhi/opsalert/internal/user"
)

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to read environment", "err", err)
		os.Exit(1)
	}
	addr := flag.String("addr", env.HTTPAddr, "HTTP listen address")
	cfgPath := flag.String("config", env.ConfigPath, "Path to YAML config")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(env.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(*cfgPath, logger)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	mailFrom := cfg.Mail.From
	if env.MailFrom != "" {
		mailFrom = env.MailFrom
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Storage ──────────────────────────────────────────────────────────────
	var (
		st  store.Store
		dir user.Directory
		db  *database.DB
	)
	if env.DatabaseURL != "" {
		if err := database.Migrate(env.DatabaseURL); err != nil {
			slog.Error("database migration failed", "err", err)
			os.Exit(1)
		}
		db, err = database.Open(ctx, env.DatabaseURL)
		if err != nil {
			slog.Error("failed to open database", "err", err)
			os.Exit(1)
		}
		if err := db.UpsertUsers(ctx, cfg.Users); err != nil {
			slog.Error("failed to seed users", "err", err)
			os.Exit(1)
		}
		st, dir = db, db
		slog.Info("using PostgreSQL stores")
	} else {
		static := user.NewStaticDirectory(cfg.Users...)
		loader.OnChange(func(c *config.Config) { static.Replace(c.Users) })
		st, dir = store.NewMemory(), static
		slog.Warn("DATABASE_URL not set, using in-memory stores")
	}

	var board leaderboard.Board = leaderboard.NewMemory()
	if env.RedisAddr != "" {
		client, err := leaderboard.Connect(ctx, env.RedisAddr, env.RedisPassword)
		if err != nil {
			slog.Error("failed to connect to Redis", "err", err)
			os.Exit(1)
		}
		defer client.Close()
		board = leaderboard.NewRedis(client, leaderboard.DefaultPrefix)
		slog.Info("using Redis leaderboard", "addr", env.RedisAddr)
	}

	// ── Routing ──────────────────────────────────────────────────────────────
	router, err := routing.NewRouter(cfg.Routing)
	if err != nil {
		slog.Error("failed to build routing graph", "err", err)
		os.Exit(1)
	}
	slog.Info("routing graph built", "nodes", router.Graph().NodeCount(), "scenarios", len(cfg.Routing.Scenarios))

	detector, err := analysis.NewDetector(st, cfg.Thresholds.Patterns)
	if err != nil {
		slog.Error("invalid pattern thresholds", "err", err)
		os.Exit(1)
	}

	// ── Mail ─────────────────────────────────────────────────────────────────
	providers := mail.NewRegistry(logger)
	providers.Register(mail.NewResendProvider(env.ResendAPIKey, logger))
	ses, err := mail.NewSESProvider(ctx, env.AWSRegion, logger)
	if err != nil {
		slog.Warn("SES provider unavailable", "err", err)
	} else {
		providers.Register(ses)
	}
	providers.Register(mail.NewLogProvider(logger))
	if err := providers.SetOrder(registered(providers, cfg.Mail.Providers)...); err != nil {
		slog.Error("invalid mail provider order", "err", err)
		os.Exit(1)
	}
	mailer := mail.NewMailer(providers, mailFrom, cfg.Mail.DashboardURL)

	// ── Broadcast ────────────────────────────────────────────────────────────
	hub := broadcast.NewHub(nil, logger)
	fanout := broadcast.NewFanout(hub)
	var kafka *broadcast.KafkaPublisher
	if len(env.KafkaBrokers) > 0 {
		kafka, err = broadcast.NewKafkaPublisher(env.KafkaBrokers, env.KafkaTopic, logger)
		if err != nil {
			slog.Error("failed to create Kafka publisher", "err", err)
			os.Exit(1)
		}
		fanout.Add(kafka)
		slog.Info("publishing alerts to Kafka", "brokers", strings.Join(env.KafkaBrokers, ","), "topic", env.KafkaTopic)
	}

	// ── Follow-ups ───────────────────────────────────────────────────────────
	followUps := action.NewRegistry()
	followUps.Register(tasks.Executors(st, dir, nil, nil)...)
	followUps.Register(
		expense.NewBlock(st),
		points.NewLeaderboard(board),
		points.NewMonitoring(board),
	)

	// ── Queue + dispatcher ───────────────────────────────────────────────────
	broker := queue.NewBroker(queue.Options{
		Queues:     policy.Queues,
		Workers:    cfg.Engine.WorkersFor,
		Depth:      cfg.Engine.QueueDepth,
		JobTimeout: cfg.Engine.JobTimeout(),
		Backoff: queue.Backoff{
			Base:   time.Duration(cfg.Engine.BackoffBaseMs) * time.Millisecond,
			Cap:    time.Duration(cfg.Engine.BackoffCapMs) * time.Millisecond,
			Factor: 2,
			Jitter: 0.25,
		},
		DeadLetters: st,
		Logger:      logger,
	})

	dispatcher, err := dispatch.New(dispatch.Config{
		Queue:        broker,
		Resolver:     recipient.NewResolver(router, dir, logger),
		Store:        st,
		Directory:    dir,
		Detector:     detector,
		FollowUps:    followUps,
		Mailer:       mailer,
		Publisher:    fanout,
		EmailTimeout: cfg.Engine.EmailTimeout(),
		Logger:       logger,
	})
	if err != nil {
		slog.Error("failed to build dispatcher", "err", err)
		os.Exit(1)
	}

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	loader.Gate(func(c *config.Config) error {
		_, err := routing.Build(c.Routing)
		return err
	})
	loader.OnChange(func(newCfg *config.Config) {
		if err := router.Swap(newCfg.Routing); err != nil {
			slog.Warn("hot-reload skipped: routing graph build failed", "err", err)
			return
		}
		slog.Info("routing hot-reloaded", "nodes", router.Graph().NodeCount())
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	handler := api.New(api.Options{
		Dispatcher:  dispatcher,
		Router:      router,
		Loader:      loader,
		Hub:         hub,
		Utilization: broker.Utilization,
		Logger:      logger,
	})
	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	broker.Shutdown() // drain queued jobs; pending retries go to dead letters
	_ = hub.Shutdown(shutCtx)
	if kafka != nil {
		if err := kafka.Close(); err != nil {
			slog.Warn("kafka writer close failed", "err", err)
		}
	}
	if db != nil {
		_ = db.Close()
	}
	cancel()
	slog.Info("goodbye")
}

// registered keeps the configured provider names that were registered, so a
// provider that failed to initialise drops out of the rotation.
func registered(r *mail.Registry, names []string) []string {
	have := make(map[string]bool)
	for _, n := range r.Order() {
		have[n] = true
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if have[n] {
			out = append(out, n)
		} else {
			slog.Warn("mail provider not available", "name", n)
		}
	}
	return out
}
