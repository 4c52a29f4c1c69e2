package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kislikjeka/coopledger/internal/events"
	"github.com/kislikjeka/coopledger/internal/infra/postgres"
	infraRedis "github.com/kislikjeka/coopledger/internal/infra/redis"
	"github.com/kislikjeka/coopledger/internal/ledger"
	"github.com/kislikjeka/coopledger/internal/module/loan"
	"github.com/kislikjeka/coopledger/internal/module/meeting"
	"github.com/kislikjeka/coopledger/internal/module/member"
	"github.com/kislikjeka/coopledger/internal/module/payroll"
	"github.com/kislikjeka/coopledger/internal/module/savings"
	"github.com/kislikjeka/coopledger/internal/module/share"
	"github.com/kislikjeka/coopledger/internal/sequence"
	"github.com/kislikjeka/coopledger/internal/shared/retry"
	"github.com/kislikjeka/coopledger/internal/shared/txn"
	"github.com/kislikjeka/coopledger/internal/transport/httpapi"
	"github.com/kislikjeka/coopledger/internal/transport/httpapi/handler"
	"github.com/kislikjeka/coopledger/internal/workflow"
	"github.com/kislikjeka/coopledger/pkg/config"
	"github.com/kislikjeka/coopledger/pkg/logger"
	"github.com/kislikjeka/coopledger/pkg/metrics"
)

// App holds the wired ledger services and the connections they share
type App struct {
	Chart    *ledger.Chart
	Ledger   *ledger.Service
	Shares   *share.Service
	Savings  *savings.Service
	Loans    *loan.Service
	Payroll  *payroll.Service
	Meetings *meeting.Service
	Members  *member.Service
	Workflow *workflow.Engine
	Bus      *events.Bus

	db       *postgres.DB
	redis    *goredis.Client
	registry *prometheus.Registry
	logger   *logger.Logger
}

// newApp connects to Postgres and Redis and wires every service
func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	if cfg.AutoMigrate {
		if err := postgres.Migrate(cfg.DatabaseURL, cfg.MigrationsPath, log); err != nil {
			return nil, err
		}
	}

	db, err := postgres.NewPool(ctx, postgres.Config{URL: cfg.DatabaseURL, MaxConns: int32(cfg.DBMaxConns)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("Database connection established")

	redisClient, err := infraRedis.NewClient(ctx, cfg.RedisURL, cfg.RedisPassword)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info("Redis connection established")

	app := &App{
		db:       db,
		redis:    redisClient,
		registry: prometheus.NewRegistry(),
		logger:   log,
	}
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewLedgerMetrics(app.registry)

	// Transactions and the retrying operation runner
	txManager := postgres.NewTxManager(db.Pool, log)
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = cfg.RetryMaxAttempts
	policy.InitialInterval = cfg.RetryInitialInterval
	runner := txn.NewRunner(txManager, policy, log, m)

	// Sequence numbers. Redis counters are seeded from the database.
	sequenceRepo := postgres.NewSequenceRepository(db.Pool)
	var allocator sequence.Allocator = sequenceRepo
	if cfg.SequenceBackend == config.SequenceBackendRedis {
		allocator = infraRedis.NewSequenceAllocator(redisClient, sequenceRepo, log)
	}
	numbers := sequence.NewGenerator(allocator, log, m)

	// Domain events go to in-process subscribers and Redis pub/sub
	app.Bus = events.NewBus()
	app.Bus.SubscribeAll(func(ctx context.Context, e events.Event) error {
		log.WithContext(ctx).Debug("domain event",
			"type", e.Type,
			"tenant_id", e.TenantID,
			"transaction_no", e.TransactionNo,
		)
		return nil
	})
	publisher := events.Fanout{app.Bus, infraRedis.NewEventPublisher(redisClient, cfg.EventChannel)}
	emitter := events.NewEmitter(txManager, publisher, cfg.DefaultCurrency, log, m)

	// Ledger core
	ledgerRepo := postgres.NewLedgerRepository(db.Pool)
	cache := infraRedis.NewAccountCacheWithTTL(redisClient, cfg.CacheTTL, log)
	app.Chart = ledger.NewChart(ledgerRepo, cache, log)
	app.Ledger = ledger.NewService(ledgerRepo, txManager, numbers, log, m)

	// Domain services
	loanRepo := postgres.NewLoanRepository(db.Pool)
	memberRepo := postgres.NewMemberRepository(db.Pool)
	app.Shares = share.NewService(postgres.NewShareRepository(db.Pool), app.Ledger, app.Chart, numbers, emitter, runner, log)
	app.Savings = savings.NewService(postgres.NewSavingsRepository(db.Pool), app.Ledger, app.Chart, numbers, emitter, runner, log)
	app.Loans = loan.NewService(loanRepo, app.Ledger, app.Chart, numbers, emitter, runner, log)
	app.Payroll = payroll.NewService(postgres.NewPayrollRepository(db.Pool), app.Ledger, app.Chart, emitter, runner, log)
	app.Meetings = meeting.NewService(postgres.NewMeetingRepository(db.Pool), app.Ledger, app.Chart, numbers, emitter, runner, log)
	app.Members = member.NewService(memberRepo, app.Ledger, app.Chart, numbers, emitter, runner, log)

	// Workflows and their hooks
	hooks := workflow.NewHookRegistry()
	if err := loan.RegisterHooks(hooks, app.Loans); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to register loan hooks: %w", err)
	}
	if err := member.RegisterHooks(hooks, app.Members, app.Shares); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to register member hooks: %w", err)
	}

	workflows := workflow.NewRegistry(hooks)
	for _, def := range workflow.Defaults() {
		if err := workflows.Register(def); err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to register workflow %s: %w", def.Name, err)
		}
	}

	app.Workflow = workflow.NewEngine(workflows, hooks, postgres.NewWorkflowHistoryRepository(db.Pool), runner, log, m)
	app.Workflow.RegisterStore(loan.NewWorkflowStore(loanRepo))
	app.Workflow.RegisterStore(member.NewWorkflowStore(memberRepo))

	log.Info("Services initialized", "workflows", len(workflow.Defaults()))
	return app, nil
}

// Handler returns the operational HTTP surface
func (a *App) Handler() http.Handler {
	health := handler.NewHealthHandler(map[string]handler.Pinger{
		"postgres": a.db,
		"redis": handler.PingFunc(func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		}),
	})

	return httpapi.NewRouter(httpapi.Config{
		Logger:         a.logger,
		HealthHandler:  health,
		MetricsHandler: promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
	})
}

// Close releases the Redis client and the database pool
func (a *App) Close() {
	if err := a.redis.Close(); err != nil {
		a.logger.Warn("failed to close redis client", "error", err)
	}
	a.db.Close()
}
