package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/trannm/healthpulse/internal/config"
	"github.com/trannm/healthpulse/internal/engine"
	"github.com/trannm/healthpulse/internal/gate"
	"github.com/trannm/healthpulse/internal/handler"
	"github.com/trannm/healthpulse/internal/middleware"
	"github.com/trannm/healthpulse/internal/model"
	"github.com/trannm/healthpulse/internal/repository"
	"github.com/trannm/healthpulse/internal/syncqueue"
	"github.com/trannm/healthpulse/internal/ws"
	"github.com/trannm/healthpulse/migrations"
	"github.com/trannm/healthpulse/pkg/auth"
	"github.com/trannm/healthpulse/pkg/logger"
	"github.com/trannm/healthpulse/pkg/push"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	// ==================== Load Config ====================
	cfg := config.Load()
	log := logger.New(cfg.App.Env)
	defer log.Sync()
	log.Info("🚀 Starting HealthPulse notification engine", zap.String("env", cfg.App.Env))

	// ==================== Database (PostgreSQL) ====================
	gormLogger := gormlogger.Default.LogMode(gormlogger.Info)
	if cfg.App.Env == "production" {
		gormLogger = gormlogger.Default.LogMode(gormlogger.Warn)
	}

	db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		log.Fatal("❌ Failed to connect to database", zap.Error(err))
	}
	log.Info("✅ Connected to PostgreSQL")

	// ==================== Run Migrations ====================
	if err := migrations.Run(cfg.DB.URL(), log); err != nil {
		log.Warn("⚠️ Migration warning, falling back to GORM AutoMigrate", zap.Error(err))
		if err := db.AutoMigrate(
			&model.Template{},
			&model.Schedule{},
			&model.QueueEntry{},
			&model.DeliveryLogEntry{},
			&model.DeviceRegistration{},
			&model.OnboardingStatus{},
			&model.HealthSample{},
		); err != nil {
			log.Fatal("❌ Failed to migrate database", zap.Error(err))
		}
	}
	log.Info("✅ Database migrated successfully")

	// ==================== Redis ====================
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Fatal("❌ Failed to connect to Redis", zap.Error(err))
	}
	log.Info("✅ Connected to Redis")

	// ==================== Repositories ====================
	scheduleRepo := repository.NewScheduleRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	queueRepo := repository.NewQueueRepository(db)
	deliveryLogRepo := repository.NewDeliveryLogRepository(db)
	deviceRepo := repository.NewDeviceRepository(db)
	onboardingRepo := repository.NewOnboardingRepository(db)
	baselineRepo := repository.NewBaselineRepository(db)

	// ==================== Eligibility Gate ====================
	invalidator := gate.NewInvalidator(rdb, log)
	eligibility := gate.New(gate.Config{
		BackfillCooldown: cfg.Engine.BackfillCooldown,
		SourceRecency:    cfg.Engine.SourceRecency,
		BaselineMinDays:  cfg.Engine.BaselineMinDays,
		BaselineMinCount: cfg.Engine.BaselineMinCount,
		BaselineWindow:   cfg.Engine.BaselineWindow,
		CacheTTL:         cfg.Engine.GateCacheTTL,
	}, onboardingRepo, baselineRepo, deviceRepo, queueRepo, invalidator, log)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()
	go invalidator.Run(rootCtx)

	// ==================== Push Adapter ====================
	pusher := push.New(push.Config{
		CredentialsFile: cfg.Push.CredentialsFile,
		Timeout:         cfg.Push.Timeout,
	}, deviceRepo, log)
	if cfg.Push.CredentialsFile == "" {
		log.Warn("⚠️ Push provider not configured; dispatches will retry until configured")
	}

	// ==================== Delivery Feed ====================
	hub := ws.NewHub(rdb, log)
	go hub.Run(rootCtx)

	// ==================== Engine ====================
	clock := engine.SystemClock()
	populator := engine.NewPopulator(engine.PopulatorConfig{
		Lookahead:    cfg.Engine.Lookahead,
		DefaultGrace: cfg.Engine.DefaultGrace,
		MaxAttempts:  cfg.Engine.MaxAttempts,
	}, scheduleRepo, templateRepo, queueRepo, clock, log)

	worker := engine.NewWorker(engine.WorkerConfig{
		BatchSize: cfg.Engine.BatchSize,
	}, queueRepo, deliveryLogRepo, deviceRepo, eligibility, pusher, hub, clock, log)

	svc := engine.NewService(engine.ServiceConfig{
		PopulateInterval: cfg.Engine.PopulateInterval,
		WorkerInterval:   cfg.Engine.WorkerInterval,
	}, engine.NewCronTickSource(), populator, worker, log)
	if err := svc.Start(); err != nil {
		log.Fatal("❌ Failed to start engine", zap.Error(err))
	}

	// ==================== Sync Queue ====================
	syncQueue := syncqueue.New(syncqueue.Config{
		MaxConcurrent: cfg.Sync.MaxConcurrent,
		MinInterval:   cfg.Sync.MinInterval,
	}, syncqueue.DispatcherFunc(func(ctx context.Context, userID uuid.UUID) error {
		// Provider refresh hook; sample ingestion lands in health_samples
		// through the sync pipeline's own writer.
		log.Info("🔄 Sync dispatched", zap.String("user", userID.String()))
		return nil
	}), log)

	// ==================== Handlers ====================
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiry)
	authHandler := handler.NewAuthHandler(jwtManager, rdb, cfg.Admin, log)
	scheduleHandler := handler.NewScheduleHandler(scheduleRepo, deviceRepo, onboardingRepo, eligibility, log)
	adminHandler := handler.NewAdminHandler(queueRepo, deliveryLogRepo, templateRepo, populator, eligibility, syncQueue, pusher, log)
	wsHandler := handler.NewWSHandler(hub, jwtManager, log)

	// ==================== Gin Router ====================
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	router.Use(middleware.CORSMiddleware(cfg.CORS.Origins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "healthpulse-engine",
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		api.POST("/auth/login", authHandler.Login)

		protected := api.Group("")
		protected.Use(middleware.AdminAuth(jwtManager, rdb))
		{
			protected.POST("/auth/logout", authHandler.Logout)

			// Schedules & devices
			protected.POST("/schedules", scheduleHandler.UpsertSchedule)
			protected.GET("/schedules/:user_id", scheduleHandler.ListSchedules)
			protected.POST("/schedules/:user_id/:type/disable", scheduleHandler.DisableSchedule)
			protected.POST("/devices", scheduleHandler.RegisterDevice)
			protected.POST("/devices/:user_id/deactivate", scheduleHandler.DeactivateDevice)
			protected.POST("/onboarding/backfill-complete", scheduleHandler.CompleteBackfill)

			// Ops
			protected.GET("/admin/queue/stats", adminHandler.QueueStats)
			protected.GET("/admin/queue/:id/history", adminHandler.EntryHistory)
			protected.POST("/admin/queue/trigger", adminHandler.TriggerUser)
			protected.POST("/admin/queue/retry", adminHandler.BulkRetry)
			protected.POST("/admin/queue/:user_id/flush", adminHandler.FlushPending)
			protected.POST("/admin/templates", adminHandler.UpsertTemplate)
			protected.GET("/admin/templates", adminHandler.ListTemplates)
			protected.POST("/admin/sync", adminHandler.EnqueueSync)
			protected.POST("/admin/push/reinitialize", adminHandler.ReinitializePush)
		}
	}

	// Delivery feed (auth via query parameter)
	router.GET("/ws/deliveries", wsHandler.HandleWebSocket)

	// ==================== Start Server ====================
	srv := &http.Server{
		Addr:    ":" + cfg.App.Port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("❌ Server failed", zap.Error(err))
		}
	}()

	log.Info("🌐 HealthPulse engine running",
		zap.String("addr", "http://0.0.0.0:"+cfg.App.Port),
		zap.String("feed", "ws://0.0.0.0:"+cfg.App.Port+"/ws/deliveries?token=<jwt>"))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("🛑 Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("❌ Server forced to shutdown", zap.Error(err))
	}

	svc.Stop()
	syncQueue.Stop()
	rootCancel()
	log.Info("✅ Engine exited gracefully")
}
