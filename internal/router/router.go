package router

import (
	"net/http"
	"time"

	"eduhub/config"
	"eduhub/internal/handler"
	"eduhub/internal/metrics"
	"eduhub/internal/middleware"
	"eduhub/internal/repository"
	"eduhub/internal/service"
	"eduhub/internal/ws"
	"eduhub/pkg/kvstore"
	"eduhub/pkg/payment"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Deps are the process-level resources built in main.
type Deps struct {
	Config  *config.Config
	DB      *gorm.DB
	KV      kvstore.Store
	Gateway payment.Gateway
	Push    service.Pusher // nil disables FCM
	Log     *logrus.Logger
}

// App exposes what main needs besides the HTTP engine.
type App struct {
	Engine       *gin.Engine
	Payments     *service.PaymentService
	LoginLimiter *middleware.LoginLimiter
}

func Setup(d Deps) *App {
	cfg := d.Config
	log := d.Log
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.Observe(log.WithField("component", "http")))

	// Repositories
	store := repository.NewGormStore(d.DB)
	userRepo := repository.NewUserRepository(d.DB)
	notificationRepo := repository.NewNotificationRepository(d.DB)
	auditRepo := repository.NewAuditLogRepository(d.DB)

	hub := ws.NewHub()

	// Services
	bus := service.NewEventBus(log.WithField("component", "events"))
	notifSvc := service.NewNotificationService(notificationRepo, userRepo, d.Push, hub, log)
	bus.Subscribe(notifSvc.HandleEvent)

	authSvc := service.NewAuthService(cfg, userRepo)
	enrollSvc := service.NewEnrollmentService(store, bus, log)
	paySvc := service.NewPaymentService(store, d.Gateway, enrollSvc, bus, cfg.Payment, log)
	enrollSvc.SetPayments(paySvc)
	ingestor := service.NewWebhookIngestor(store, paySvc, cfg.Webhook, log)
	catalog := service.NewCatalogService(store, d.KV, cfg.RateLimit.ClassCacheTTL, log)

	// Handlers
	authHandler := handler.NewAuthHandler(authSvc, auditRepo, log)
	meHandler := handler.NewMeHandler(userRepo, log)
	classHandler := handler.NewClassHandler(catalog, enrollSvc, log)
	enrollHandler := handler.NewEnrollmentHandler(enrollSvc, auditRepo, log)
	payHandler := handler.NewPaymentHandler(paySvc, log)
	webhookHandler := handler.NewWebhookHandler(ingestor, cfg.Webhook, log)
	adminHandler := handler.NewAdminHandler(enrollSvc, catalog, auditRepo, log)
	notificationHandler := handler.NewNotificationHandler(notificationRepo, log)

	authMw := middleware.AuthRequired(&cfg.JWT)
	publicLimit := middleware.RateLimit(d.KV, cfg.RateLimit.PublicLimit, cfg.RateLimit.PublicWindow, "public", log)
	webhookLimit := middleware.RateLimit(d.KV, cfg.RateLimit.WebhookLimit, cfg.RateLimit.WebhookWindow, "webhook", log)
	loginLimiter := middleware.NewLoginLimiter(cfg.RateLimit.LoginPerMin, cfg.RateLimit.LoginBurst)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api/v1")
	{
		// Providers retry aggressively; they get their own, looser budget.
		api.POST("/webhooks/:provider", webhookLimit, webhookHandler.Handle)

		public := api.Group("", publicLimit)
		authGroup := public.Group("/auth")
		{
			authGroup.POST("/register", loginLimiter.Middleware(), authHandler.Register)
			authGroup.POST("/login", loginLimiter.Middleware(), authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.PATCH("/change-password", authMw, authHandler.ChangePassword)
		}

		public.GET("/classes/:id", classHandler.Get)

		authed := public.Group("", authMw)
		{
			authed.GET("/classes/:id/eligibility", classHandler.Eligibility)
			authed.POST("/enrollments", enrollHandler.Create)
			authed.GET("/enrollments/:id", enrollHandler.Get)
			authed.POST("/enrollments/:id/cancel", enrollHandler.Cancel)
			authed.POST("/enrollments/:id/payment", payHandler.Create)
			authed.GET("/payments/:id", payHandler.Get)
			authed.POST("/payments/:id/check", payHandler.Check)
		}

		me := public.Group("/me", authMw)
		{
			me.GET("/profile", meHandler.GetProfile)
			me.POST("/fcm-token", meHandler.RegisterFCMToken)
			me.GET("/enrollments", enrollHandler.ListMine)
			me.GET("/notifications", notificationHandler.List)
			me.PUT("/notifications/:id/read", notificationHandler.MarkRead)
		}

		admin := api.Group("/admin", authMw, middleware.AdminRequired())
		{
			admin.POST("/classes/:id/complete", adminHandler.CompleteClass)
			admin.GET("/audit", adminHandler.ListAudit)
		}
	}

	r.GET("/ws/events", ws.ServeEvents(&cfg.JWT, hub, log.WithField("component", "ws")))

	return &App{Engine: r, Payments: paySvc, LoginLimiter: loginLimiter}
}
