package server

import (
	"context"
	"fmt"
	"slices"
	"time"

	"task-prioritizer/backend/internal/cache"
	"task-prioritizer/backend/internal/config"
	"task-prioritizer/backend/internal/handlers"
	"task-prioritizer/backend/internal/logger"
	"task-prioritizer/backend/internal/middleware"
	"task-prioritizer/backend/internal/monitoring"
	"task-prioritizer/backend/internal/repositories"
	"task-prioritizer/backend/internal/services"
	"task-prioritizer/backend/internal/worker"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Deps struct {
	Config *config.Config
	DB     *gorm.DB
	// Redis may be nil; model caching then stays in process and
	// asynchronous training is disabled.
	Redis  *redis.Client
	Logger *zap.Logger
}

// App is the assembled HTTP service plus its background workers.
type App struct {
	Router    *gin.Engine
	Service   *services.PrioritizationServiceImpl
	Worker    *worker.Worker
	Jobs      *worker.JobQueue
	Scheduler *worker.RetrainScheduler
	Limiter   *middleware.RateLimiter
	Health    *monitoring.HealthChecker

	cfg    *config.Config
	log    *zap.Logger
	cancel context.CancelFunc
}

func New(deps Deps) (*App, error) {
	if deps.Config == nil || deps.DB == nil {
		return nil, fmt.Errorf("server requires a config and a database")
	}
	cfg := deps.Config
	log := logger.OrNop(deps.Logger)

	var (
		l2         cache.BlobCache
		redisCache *cache.RedisCache
	)
	if deps.Redis != nil {
		redisCache = cache.NewRedisCache(deps.Redis, cache.DefaultCacheConfig().KeyPrefix)
		l2 = redisCache
	}
	blobs := cache.NewMultiLevelCache(l2, cache.DefaultMultiLevelConfig(), log.Named("cache"))

	app := &App{
		Service: services.NewEngineService(deps.DB, cfg.Engine, blobs, log),
		Health:  monitoring.NewHealthChecker(5 * time.Second),
		cfg:     cfg,
		log:     log,
	}

	app.Health.Register("database", func(ctx context.Context) error {
		sqlDB, err := deps.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})

	var jobs handlers.RetrainQueue
	queueName := worker.DefaultQueue
	if len(cfg.Worker.Queues) > 0 {
		queueName = cfg.Worker.Queues[0]
	}
	if deps.Redis != nil {
		app.Health.Register("redis", redisCache.Health)

		app.Jobs = worker.NewJobQueue(deps.Redis, cfg.Worker.MaxJobAttempts)
		jobs = app.Jobs

		app.Worker = worker.NewWorker(worker.WorkerConfig{
			RedisClient:  deps.Redis,
			Queues:       cfg.Worker.Queues,
			PollInterval: cfg.Worker.PollInterval,
			JobTimeout:   cfg.Worker.JobTimeout,
			Logger:       log.Named("worker"),
		})
		app.Worker.RegisterHandler(worker.JobTypeRetrainModel, worker.RetrainHandler(app.Service, log.Named("retrain")))

		if cfg.Worker.RetrainEvery > 0 {
			app.Scheduler = worker.NewRetrainScheduler(
				repositories.NewTaskRepository(deps.DB),
				app.Jobs,
				queueName,
				cfg.Worker.RetrainEvery,
				log.Named("scheduler"),
			)
		}
	}

	if cfg.RateLimit.Enabled {
		app.Limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerMin:  cfg.RateLimit.RequestsPerMin,
			BurstSize:       cfg.RateLimit.BurstSize,
			CleanupInterval: cfg.RateLimit.CleanupInterval,
		})
	}

	app.Router = app.routes(handlers.NewPriorityHandler(app.Service, jobs, queueName, log.Named("handlers")))
	return app, nil
}

func (a *App) routes(priorities *handlers.PriorityHandler) *gin.Engine {
	if a.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		middleware.RecoveryWithLog(a.log),
		middleware.RequestLogger(a.log.Named("http")),
		monitoring.MetricsMiddleware(),
		cors.New(corsConfig(a.cfg.Server.CORSOrigins)),
	)

	router.GET("/health", a.Health.HealthHandler())
	router.GET("/health/live", a.Health.LivenessHandler())
	router.GET("/health/ready", a.Health.ReadinessHandler())
	router.GET("/metrics", monitoring.MetricsHandler())

	api := router.Group("/api/v1")
	api.Use(middleware.AuthzMiddleware(middleware.AuthzConfig{
		Secret: a.cfg.Auth.JWTSecret,
		Issuer: a.cfg.Auth.Issuer,
	}))
	if a.Limiter != nil {
		api.Use(a.Limiter.Middleware())
	}

	var trainGuard []gin.HandlerFunc
	if a.cfg.Auth.TrainPermission != "" {
		trainGuard = append(trainGuard, middleware.RequirePermission(a.cfg.Auth.TrainPermission))
	}
	priorities.RegisterRoutes(api, trainGuard...)

	return router
}

func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	c.AllowHeaders = append(c.AllowHeaders, "Authorization")
	if len(origins) == 0 || slices.Contains(origins, "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}

// Start launches the background workers. They stop on Stop or when ctx is
// done.
func (a *App) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)

	if a.Worker != nil {
		a.Worker.Start(a.cfg.Worker.Concurrency)
	}
	if a.Scheduler != nil {
		go a.Scheduler.Run(ctx)
	}
	if a.Limiter != nil {
		go a.Limiter.Run(ctx)
	}
}

func (a *App) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.Worker != nil {
		a.Worker.Stop()
	}
}
