package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/cert-reminder-api/internal/handler"
	"github.com/noah-isme/cert-reminder-api/internal/middleware"
	"github.com/noah-isme/cert-reminder-api/internal/notify"
	"github.com/noah-isme/cert-reminder-api/internal/repository"
	"github.com/noah-isme/cert-reminder-api/internal/scheduler"
	"github.com/noah-isme/cert-reminder-api/internal/service"
	"github.com/noah-isme/cert-reminder-api/internal/store"
	"github.com/noah-isme/cert-reminder-api/pkg/cache"
	"github.com/noah-isme/cert-reminder-api/pkg/config"
	"github.com/noah-isme/cert-reminder-api/pkg/database"
	"github.com/noah-isme/cert-reminder-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/cert-reminder-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/cert-reminder-api/pkg/middleware/requestid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	// Session storage backend. Memory is the single-process default; Redis
	// keeps sessions across restarts and instances.
	var sessions store.SessionStore
	var sessionCount func() int
	switch cfg.Verification.StoreBackend {
	case "redis":
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		defer redisClient.Close()
		sessions = store.NewRedisStore(redisClient, cfg.Verification.SessionTTL)
	default:
		memStore := store.NewMemoryStore()
		sessions = memStore
		sessionCount = memStore.Len
	}

	reminderRepo := repository.NewReminderRepository(db)
	ledgerRepo := repository.NewDeliveryLogRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	studentRepo := repository.NewStudentRepository(db)

	emailSender := notify.NewSMTPSender(cfg.SMTP, cfg.Dispatch.ChannelTimeout, logr)
	smsSender := notify.NewGatewaySMSSender(cfg.SMS, logr)

	validate := validator.New()
	metricsSvc := service.NewMetricsService(sessionCount)
	templateSvc := service.NewTemplateService(templateRepo, logr)
	dispatchSvc := service.NewDispatchService(reminderRepo, ledgerRepo, templateSvc, emailSender, smsSender, metricsSvc, logr, cfg.Dispatch)
	verificationSvc := service.NewVerificationService(sessions, emailSender, smsSender, metricsSvc, logr, cfg.Verification, cfg.Handoff)
	registrationSvc := service.NewRegistrationService(verificationSvc, studentRepo, reminderRepo, validate, logr)
	optOutSvc := service.NewOptOutService(verificationSvc, studentRepo, cfg.Verification.SessionTTL, logr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper := store.NewSweeper(sessions, cfg.Verification.SessionTTL, cfg.Verification.SweepInterval, logr)
	sweeper.Start(ctx)

	if cfg.Scheduler.Enabled {
		sched, err := scheduler.New(cfg.Scheduler.CronSpec, dispatchSvc, cfg.Scheduler.RunTimeout, logr)
		if err != nil {
			logr.Sugar().Fatalw("failed to configure scheduler", "error", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	metricsHandler := handler.NewMetricsHandler(metricsSvc)
	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	api := r.Group(cfg.APIPrefix)

	registrationHandler := handler.NewRegistrationHandler(registrationSvc, verificationSvc)
	registrations := api.Group("/registrations")
	registrations.POST("/start", registrationHandler.Start)
	registrations.POST("/verify", registrationHandler.Verify)
	registrations.POST("/resend", registrationHandler.Resend)
	registrations.POST("/complete", registrationHandler.Complete)

	optOutHandler := handler.NewOptOutHandler(optOutSvc, verificationSvc)
	optOut := api.Group("/opt-out")
	optOut.POST("/start", optOutHandler.Start)
	optOut.POST("/verify", optOutHandler.Verify)
	optOut.POST("/resend", registrationHandler.Resend)
	optOut.POST("/complete", optOutHandler.Complete)

	reminderHandler := handler.NewReminderHandler(dispatchSvc)
	templateHandler := handler.NewTemplateHandler(templateSvc)
	admin := api.Group("/admin", middleware.AdminJWT(cfg.AdminJWT.Secret))
	admin.POST("/reminders/run-due", reminderHandler.RunDue)
	admin.POST("/reminders/:id/send", reminderHandler.Send)
	admin.PATCH("/reminders/:id/reschedule", reminderHandler.Reschedule)
	admin.POST("/reminders/:id/reset", reminderHandler.Reset)
	admin.GET("/reminders/:id/deliveries", reminderHandler.DeliveryDetails)
	admin.PUT("/templates", templateHandler.Upsert)
	admin.GET("/templates/preview", templateHandler.Preview)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil && err != http.ErrServerClosed {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
