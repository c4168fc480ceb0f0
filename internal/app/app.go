package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/careflow-api/internal/config"
	"github.com/jwalitptl/careflow-api/internal/email"
	authhandler "github.com/jwalitptl/careflow-api/internal/handler/auth"
	clerkhandler "github.com/jwalitptl/careflow-api/internal/handler/clerk"
	doctorhandler "github.com/jwalitptl/careflow-api/internal/handler/doctor"
	healthhandler "github.com/jwalitptl/careflow-api/internal/handler/health"
	patienthandler "github.com/jwalitptl/careflow-api/internal/handler/patient"
	prometheushandler "github.com/jwalitptl/careflow-api/internal/handler/prometheus"
	"github.com/jwalitptl/careflow-api/internal/middleware"
	"github.com/jwalitptl/careflow-api/internal/repository"
	"github.com/jwalitptl/careflow-api/internal/repository/memory"
	"github.com/jwalitptl/careflow-api/internal/repository/postgres"
	"github.com/jwalitptl/careflow-api/internal/router"
	"github.com/jwalitptl/careflow-api/internal/service/audit"
	authservice "github.com/jwalitptl/careflow-api/internal/service/auth"
	"github.com/jwalitptl/careflow-api/internal/service/dispense"
	"github.com/jwalitptl/careflow-api/internal/service/inbox"
	"github.com/jwalitptl/careflow-api/internal/service/queue"
	"github.com/jwalitptl/careflow-api/internal/service/review"
	"github.com/jwalitptl/careflow-api/internal/service/submission"
	"github.com/jwalitptl/careflow-api/pkg/auth"
	"github.com/jwalitptl/careflow-api/pkg/logger"
	"github.com/jwalitptl/careflow-api/pkg/messaging"
	"github.com/jwalitptl/careflow-api/pkg/messaging/redis"
	"github.com/jwalitptl/careflow-api/pkg/metrics"
	"github.com/jwalitptl/careflow-api/pkg/realtime"
	"github.com/jwalitptl/careflow-api/pkg/security"
	"github.com/jwalitptl/careflow-api/pkg/worker"
)

const metricsNamespace = "careflow"

// Options tweak how the application is assembled
type Options struct {
	// Migrate applies pending migrations before serving (postgres only)
	Migrate bool
	// Registry receives the application metrics, a fresh one when nil
	Registry *prometheus.Registry
}

// stores groups the repositories of one storage driver
type stores struct {
	users         repository.UserRepository
	records       repository.MedicalRecordRepository
	prescriptions repository.PrescriptionRepository
	messages      repository.MessageRepository
	notifications repository.NotificationRepository
	workflow      repository.WorkflowRepository
	outbox        repository.OutboxRepository
	pinger        repository.Pinger
}

// App is the assembled service: HTTP surface plus its background workers
type App struct {
	cfg       *config.Config
	logger    *logger.Logger
	engine    http.Handler
	hub       *realtime.Hub
	relay     *realtime.Relay
	processor *worker.OutboxProcessor
	reaper    *worker.StaleClaimReaper
	auditLog  *zap.Logger
	closers   []func() error
}

func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (*App, error) {
	a := &App{cfg: cfg, logger: log}

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	m := metrics.New(metricsNamespace, reg)

	st, err := a.openStores(ctx, opts)
	if err != nil {
		a.Close()
		return nil, err
	}

	broker, brokerPinger, err := a.openBroker(ctx, m)
	if err != nil {
		a.Close()
		return nil, err
	}

	auditLog, err := audit.NewLogger(cfg.Audit)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to build audit logger: %w", err)
	}
	a.auditLog = auditLog

	tokens := auth.NewTokenService(auth.Config{
		Secret: cfg.JWT.Secret,
		Expiry: cfg.JWT.Expiry(),
		Issuer: cfg.JWT.Issuer,
	}, auth.NewDenylist(time.Minute))
	hasher := security.NewBcryptHasher(cfg.Security.BcryptCost)

	authSvc := authservice.NewService(st.users, tokens, hasher, m)
	submissionSvc := submission.NewService(st.records, m)
	reviewSvc := review.NewService(st.records, st.users, st.workflow, m)
	dispenseSvc := dispense.NewService(st.prescriptions, st.users, st.workflow, m)
	inboxSvc := inbox.NewService(st.users, st.messages, st.notifications, st.workflow, m)
	queueSvc := queue.NewService(st.records, st.prescriptions)

	a.hub = realtime.NewHub(m)
	a.relay = realtime.NewRelay(a.hub, broker, cfg.Redis.Channel)

	if cfg.Outbox.Enabled {
		a.processor, err = worker.NewOutboxProcessor(st.outbox, broker, email.NewSender(cfg.SMTP), worker.OutboxProcessorConfig{
			Channel:      cfg.Redis.Channel,
			BatchSize:    cfg.Outbox.BatchSize,
			PollInterval: cfg.Outbox.PollInterval,
			MaxAttempts:  cfg.Outbox.MaxAttempts,
			RetryDelay:   cfg.Outbox.RetryDelay,
			MaxRetryTime: cfg.Outbox.MaxRetryTime,
		}, log, m)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.reaper = worker.NewStaleClaimReaper(st.outbox, cfg.Outbox.StaleAfter, cfg.Outbox.StaleAfter, log)
	}

	checks := map[string]repository.Pinger{"database": st.pinger}
	if brokerPinger != nil {
		checks["redis"] = brokerPinger
	}

	r, err := router.NewRouter(
		middleware.NewAuthMiddleware(authSvc),
		middleware.NewAuditMiddleware(audit.NewService(auditLog)),
		router.Handlers{
			Auth:    authhandler.NewHandler(authSvc),
			Patient: patienthandler.NewHandler(submissionSvc, inboxSvc, queueSvc, a.hub, realtime.NewUpgrader(cfg.Security.AllowedOrigins)),
			Doctor:  doctorhandler.NewHandler(reviewSvc, inboxSvc, queueSvc),
			Clerk:   clerkhandler.NewHandler(dispenseSvc, inboxSvc, queueSvc),
			Health:  healthhandler.NewHandler(checks),
			Metrics: prometheushandler.New(reg).Handler(),
		},
		m,
		router.RouterConfig{
			Mode:           cfg.Server.Mode,
			BasePath:       cfg.Server.BasePath,
			RateEnabled:    cfg.RateLimit.Enabled,
			RateLimit:      rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:      cfg.RateLimit.Burst,
			CORSConfig:     middleware.DefaultCORSConfig(cfg.Security.AllowedOrigins),
			MaxBodyBytes:   cfg.Server.MaxBodyBytes,
			RequestTimeout: cfg.Server.WriteTimeout,
		},
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to build router: %w", err)
	}
	a.engine = r.Engine()

	return a, nil
}

func (a *App) openStores(ctx context.Context, opts Options) (*stores, error) {
	if a.cfg.Database.Driver == "memory" {
		a.logger.Warn("Using in-memory storage, data is lost on restart")
		s := memory.NewStore()
		return &stores{
			users:         s.Users(),
			records:       s.Records(),
			prescriptions: s.Prescriptions(),
			messages:      s.Messages(),
			notifications: s.Notifications(),
			workflow:      s.Workflow(),
			outbox:        s.Outbox(),
			pinger:        s,
		}, nil
	}

	db, err := postgres.NewDB(ctx, a.cfg.Database)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)

	if opts.Migrate {
		if err := migrate(ctx, db, a.logger); err != nil {
			return nil, err
		}
	}

	base := postgres.NewBaseRepository(db)
	return &stores{
		users:         postgres.NewUserRepository(base),
		records:       postgres.NewMedicalRecordRepository(base),
		prescriptions: postgres.NewPrescriptionRepository(base),
		messages:      postgres.NewMessageRepository(base),
		notifications: postgres.NewNotificationRepository(base),
		workflow:      postgres.NewWorkflowRepository(base),
		outbox:        postgres.NewOutboxRepository(base),
		pinger:        &base,
	}, nil
}

func migrate(ctx context.Context, db *sqlx.DB, log *logger.Logger) error {
	applied, err := postgres.NewMigrator(db).Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	log.Info("Migrations applied", "count", applied)
	return nil
}

// openBroker connects to redis when a URL is configured and falls back to the in-process broker
func (a *App) openBroker(ctx context.Context, m *metrics.Metrics) (messaging.Broker, repository.Pinger, error) {
	if a.cfg.Redis.URL == "" {
		a.logger.Warn("No redis url configured, events stay in process")
		b := messaging.NewMemoryBroker()
		a.closers = append(a.closers, b.Close)
		return b, nil, nil
	}

	b, err := redis.NewRedisBroker(ctx, redis.Config{
		URL:              a.cfg.Redis.URL,
		MaxRetries:       a.cfg.Redis.MaxRetries,
		RetryBackoff:     a.cfg.Redis.RetryBackoff,
		PoolSize:         a.cfg.Redis.PoolSize,
		MinIdleConns:     a.cfg.Redis.MinIdleConns,
		BreakerThreshold: a.cfg.Redis.BreakerThreshold,
		BreakerTimeout:   a.cfg.Redis.BreakerTimeout,
	}, a.logger.Zerolog(), m)
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, b.Close)
	return b, b, nil
}

func (a *App) Handler() http.Handler {
	return a.engine
}

// Start launches the hub, the relay and the outbox workers. They stop when ctx is done.
func (a *App) Start(ctx context.Context) *sync.WaitGroup {
	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
			a.logger.Debug("Background task stopped", "task", name)
		}()
	}

	run("hub", a.hub.Run)
	run("relay", func(ctx context.Context) {
		if err := a.relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error(err, "Realtime relay stopped")
		}
	})
	if a.processor != nil {
		run("outbox", a.processor.Start)
		run("reaper", a.reaper.Start)
	}
	return &wg
}

// Serve runs the HTTP server and the workers until ctx is cancelled, then drains both
func (a *App) Serve(ctx context.Context) error {
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	wg := a.Start(workerCtx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:      a.engine,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Starting server", "port", a.cfg.Server.Port, "base_path", a.cfg.Server.BasePath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	stopWorkers()
	wg.Wait()
	a.logger.Info("Server exited properly")
	return nil
}

// Close releases connections in reverse order of opening
func (a *App) Close() error {
	var errs []error
	if a.auditLog != nil {
		// stdout cannot be synced on most platforms
		_ = a.auditLog.Sync()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
