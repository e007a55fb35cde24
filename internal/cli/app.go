package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/aretw0/errand/internal/agents"
	"github.com/aretw0/errand/internal/config"
	"github.com/aretw0/errand/internal/graphcache"
	"github.com/aretw0/errand/internal/metrics"
	"github.com/aretw0/errand/internal/nodes"
	"github.com/aretw0/errand/internal/orchestrator"
	"github.com/aretw0/errand/internal/runtime"
	"github.com/aretw0/errand/internal/steps"
	"github.com/aretw0/errand/internal/tools"
	httpAdapter "github.com/aretw0/errand/pkg/adapters/http"
	"github.com/aretw0/errand/pkg/adapters/memory"
	natsAdapter "github.com/aretw0/errand/pkg/adapters/nats"
	"github.com/aretw0/errand/pkg/adapters/openai"
	redisAdapter "github.com/aretw0/errand/pkg/adapters/redis"
	"github.com/aretw0/errand/pkg/adapters/sqlstore"
	"github.com/aretw0/errand/pkg/domain"
	"github.com/aretw0/errand/pkg/llm"
	"github.com/aretw0/errand/pkg/persistence/middleware"
	"github.com/aretw0/errand/pkg/ports"
	"github.com/aretw0/errand/pkg/registry"
	"go.opentelemetry.io/otel"
)

// TracerName names the spans emitted by the engine.
const TracerName = "github.com/aretw0/errand"

// App is the wired process: stores, model client, tools, machines and the
// orchestrator on top of them.
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Orchestrator *orchestrator.Orchestrator
	Factory      *agents.Factory
	Cache        *graphcache.Cache
	Metrics      *metrics.Metrics
	Streams      *httpAdapter.StreamManager
	Store        ports.CheckpointStore
	Repository   ports.TaskRepository
	Registry     *registry.Registry

	closers []func() error
}

// AppOption overrides a collaborator NewApp would otherwise build from config.
type AppOption func(*appOptions)

type appOptions struct {
	llm   llm.Client
	debug bool
}

// WithLLM replaces the configured model client. The client is still wrapped
// in the retry and rate-limit layer.
func WithLLM(c llm.Client) AppOption {
	return func(o *appOptions) { o.llm = c }
}

// WithDebugHooks logs every node and tool event at debug level.
func WithDebugHooks(debug bool) AppOption {
	return func(o *appOptions) { o.debug = debug }
}

// NewApp wires every component described by cfg. Close releases what it
// opened.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...AppOption) (_ *App, err error) {
	o := &appOptions{}
	for _, opt := range opts {
		opt(o)
	}

	app := &App{Config: cfg, Logger: logger, Metrics: metrics.New()}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	store, repo, locker, err := app.openStores(ctx)
	if err != nil {
		return nil, err
	}
	if store, err = secureStore(store, cfg.Security); err != nil {
		return nil, err
	}
	app.Store, app.Repository = store, repo

	reg := registry.New()
	sim := tools.NewSimulated(tools.WithLatency(cfg.Runner.ToolLatency))
	if err := sim.Register(reg); err != nil {
		return nil, fmt.Errorf("register simulated tools: %w", err)
	}
	agents.Scope(reg)
	cat, err := tools.LoadCatalog(cfg.Tools.Catalog)
	if err != nil {
		return nil, err
	}
	if err := tools.NewProcess(tools.WithBaseDir(filepath.Dir(cfg.Tools.Catalog))).Register(reg, cat); err != nil {
		return nil, fmt.Errorf("register process tools: %w", err)
	}
	app.Registry = reg

	client := app.model(o.llm)

	hooks := app.Metrics.Hooks()
	if o.debug {
		hooks = domain.ChainHooks(hooks, debugHooks(logger))
	}

	runner := steps.NewRunner(reg,
		steps.WithBatchCap(cfg.Runner.BatchCap),
		steps.WithToolTimeout(cfg.Runner.ToolTimeout),
		steps.WithLogger(logger),
		steps.WithLifecycleHooks(hooks),
		steps.WithBatchObserver(app.Metrics.ObserveBatch),
	)
	factory := agents.NewFactory(nodes.Deps{
		LLM:             client,
		Registry:        reg,
		Runner:          runner,
		Logger:          logger,
		MaxPayloadChars: cfg.Validation.MaxPayloadChars,
		MaxRefinements:  cfg.Validation.MaxRefinements,
	},
		runtime.WithLogger(logger),
		runtime.WithLifecycleHooks(hooks),
		runtime.WithMaxSteps(cfg.Engine.MaxSteps),
		runtime.WithTracer(otel.Tracer(TracerName)),
	)
	app.Factory = factory
	app.Cache = graphcache.New(factory,
		graphcache.WithTTL(cfg.Cache.TTL),
		graphcache.WithLogger(logger),
		graphcache.WithSizeObserver(app.Metrics.SetCacheEntries),
	)

	app.Streams = httpAdapter.NewStreamManager(logger)
	orchOpts := []orchestrator.Option{
		orchestrator.WithLocator(tools.NewLocator(sim)),
		orchestrator.WithPublisher(app.Streams),
		orchestrator.WithLogger(logger),
		orchestrator.WithProduction(cfg.IsProduction()),
		orchestrator.WithMaxInputSize(cfg.Input.MaxSize),
		orchestrator.WithCheckpointFailureObserver(app.Metrics.CheckpointFailed),
	}
	if locker != nil && cfg.Store.LockTTL > 0 {
		orchOpts = append(orchOpts, orchestrator.WithLocker(locker, cfg.Store.LockTTL))
	}
	if cfg.NATS.URL != "" {
		pub, err := natsAdapter.Connect(cfg.NATS.URL, natsAdapter.WithSubjectPrefix(cfg.NATS.Subject))
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, pub.Close)
		orchOpts = append(orchOpts, orchestrator.WithPublisher(pub))
		logger.Info("publishing task events", "url", cfg.NATS.URL, "subject", cfg.NATS.Subject)
	}
	app.Orchestrator = orchestrator.New(repo, store, app.Cache, client, orchOpts...)
	return app, nil
}

// openStores picks the checkpoint store, task repository and optional locker
// for the configured driver. Redis holds checkpoints and locks only; task
// records then live in process memory.
func (a *App) openStores(ctx context.Context) (ports.CheckpointStore, ports.TaskRepository, ports.DistributedLocker, error) {
	sc := a.Config.Store
	switch sc.Driver {
	case "memory":
		return memory.NewStore(), memory.NewRepository(), nil, nil
	case "redis":
		rs := redisAdapter.New(sc.RedisAddr, sc.RedisPassword, sc.RedisDB,
			redisAdapter.WithPrefix(sc.Prefix+":checkpoint:"),
			redisAdapter.WithTTL(sc.TTL),
		)
		a.closers = append(a.closers, rs.Close)
		if err := rs.Client().Ping(ctx).Err(); err != nil {
			return nil, nil, nil, fmt.Errorf("connect redis %s: %w", sc.RedisAddr, err)
		}
		return rs, memory.NewRepository(), redisAdapter.NewLocker(rs.Client(), sc.Prefix+":"), nil
	case "sqlite", "postgres":
		d, err := sqlstore.ParseDialect(sc.Driver)
		if err != nil {
			return nil, nil, nil, err
		}
		db, err := sqlstore.Open(ctx, d, sc.DSN)
		if err != nil {
			return nil, nil, nil, err
		}
		a.closers = append(a.closers, db.Close)
		return sqlstore.NewStore(db, d), sqlstore.NewRepository(db, d), nil, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown store driver %q", sc.Driver)
}

// secureStore layers PII masking under encryption, so masked values are
// what gets sealed.
func secureStore(store ports.CheckpointStore, sec config.SecurityConfig) (ports.CheckpointStore, error) {
	var mws []middleware.Middleware
	if len(sec.PIIKeys) > 0 {
		pii, err := middleware.NewPIIMiddleware(sec.PIIKeys)
		if err != nil {
			return nil, fmt.Errorf("pii middleware: %w", err)
		}
		mws = append(mws, pii)
	}
	primary, fallbacks, err := sec.Keys()
	if err != nil {
		return nil, err
	}
	if primary != nil {
		enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: primary, FallbackKeys: fallbacks})
		if err != nil {
			return nil, fmt.Errorf("encryption middleware: %w", err)
		}
		mws = append(mws, enc)
	}
	return middleware.Chain(store, mws...), nil
}

func (a *App) model(override llm.Client) llm.Client {
	lc := a.Config.LLM
	client := override
	if client == nil {
		var opts []openai.Option
		if lc.APIKey != "" {
			opts = append(opts, openai.WithAPIKey(lc.APIKey))
		}
		if lc.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(lc.BaseURL))
		}
		client = openai.New(lc.Model, opts...)
	}

	policy := llm.DefaultRetryPolicy()
	policy.MaxAttempts = lc.MaxAttempts
	resilientOpts := []llm.Option{
		llm.WithRetryPolicy(policy),
		llm.WithTimeout(lc.Timeout),
		llm.WithLogger(a.Logger),
	}
	if lc.RequestsPerSecond > 0 {
		resilientOpts = append(resilientOpts, llm.WithRateLimit(lc.RequestsPerSecond, lc.Burst))
	}
	return llm.NewResilient(client, resilientOpts...)
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && !errors.Is(err, sql.ErrConnDone) {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
