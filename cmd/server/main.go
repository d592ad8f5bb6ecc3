package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eduhub/config"
	"eduhub/internal/database"
	"eduhub/internal/logging"
	"eduhub/internal/router"
	"eduhub/internal/scheduler"
	"eduhub/internal/service"
	"eduhub/pkg/kvstore"
	"eduhub/pkg/payment"

	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.Server.Env, cfg.Log.Level)

	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("database")
	}
	if err := database.AutoMigrate(db); err != nil {
		log.WithError(err).Fatal("migrate")
	}
	if err := database.SeedAdmin(db, cfg.Seed, log); err != nil {
		log.WithError(err).Error("[Seed] admin")
	}
	if cfg.Server.Env != "production" {
		if err := database.SeedSampleClass(db, log); err != nil {
			log.WithError(err).Error("[Seed] sample class")
		}
	}

	ctx := context.Background()
	kv := newKVStore(ctx, cfg.Redis, log)
	gateway := newGateway(cfg, log)

	var push service.Pusher
	if fcm := service.NewFCMService(ctx, cfg.Firebase.ServiceAccountPath, log); fcm != nil {
		log.Info("[FCM] push notifications enabled")
		push = fcm
	}
	if cfg.Webhook.CallbackToken == "" {
		log.Warn("[Webhook] XENDIT_CALLBACK_TOKEN is empty, every callback will be rejected")
	}

	app := router.Setup(router.Deps{Config: cfg, DB: db, KV: kv, Gateway: gateway, Push: push, Log: log})

	sched := scheduler.New(log)
	if cfg.Scheduler.Enabled {
		if err := sched.AddReconcile(cfg.Scheduler, app.Payments); err != nil {
			log.WithError(err).Fatal("scheduler")
		}
		sched.Start()
	}
	pruneDone := make(chan struct{})
	go func() {
		t := time.NewTicker(10 * time.Minute)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				app.LoginLimiter.Prune(30 * time.Minute)
			case <-pruneDone:
				return
			}
		}
	}()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      app.Engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.WithField("port", cfg.Server.Port).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("listen")
		}
	}()
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	close(pruneDone)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown")
	}
	sched.Stop(shutdownCtx)
	if closer, ok := kv.(interface{ Close() }); ok {
		closer.Close()
	}
	log.Info("server stopped")
}

// newKVStore prefers Redis and falls back to process memory, which is only
// correct for a single replica.
func newKVStore(ctx context.Context, cfg config.RedisConfig, log logrus.FieldLogger) kvstore.Store {
	if cfg.Addr == "" {
		log.Info("[KV] REDIS_ADDR not set, using in-memory counters and cache")
		return kvstore.NewMemoryStore()
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	client, err := kvstore.NewRedisClient(pingCtx, cfg.Addr, cfg.Password, cfg.DB)
	if err != nil {
		log.WithError(err).Warn("[KV] redis unreachable, using in-memory counters and cache")
		return kvstore.NewMemoryStore()
	}
	log.WithField("addr", cfg.Addr).Info("[KV] redis connected")
	return kvstore.NewRedisStore(client, cfg.Prefix)
}

func newGateway(cfg *config.Config, log logrus.FieldLogger) payment.Gateway {
	if cfg.Payment.Provider == "xendit" {
		if cfg.Xendit.SecretKey == "" {
			log.Fatal("[Payment] PAYMENT_PROVIDER=xendit requires XENDIT_SECRET_KEY")
		}
		return payment.NewXenditGateway(cfg.Xendit.BaseURL, cfg.Xendit.SecretKey, cfg.Xendit.Timeout, log)
	}
	log.Warn("[Payment] using the stub gateway, invoices are not real")
	return payment.NewStubGateway()
}
