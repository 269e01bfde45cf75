package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/shellsale/internal/bootstrap"
	"github.com/mamadbah2/shellsale/internal/config"
	"github.com/mamadbah2/shellsale/internal/metrics"
	"github.com/mamadbah2/shellsale/internal/scheduler"
	"github.com/mamadbah2/shellsale/internal/server/handlers"
	"github.com/mamadbah2/shellsale/internal/server/router"
	documentsvc "github.com/mamadbah2/shellsale/internal/service/documents"
	reportingsvc "github.com/mamadbah2/shellsale/internal/service/reporting"
	salessvc "github.com/mamadbah2/shellsale/internal/service/sales"
	"github.com/mamadbah2/shellsale/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.LogLevel))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := bootstrap.OpenStore(ctx, cfg.Store, baseLogger)
	if err != nil {
		baseLogger.Fatal("failed to open sale store", zap.Error(err), zap.String("driver", cfg.Store.Driver))
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			baseLogger.Error("failed to close sale store", zap.Error(err))
		}
	}()

	recorder := metrics.NewRecorder()
	salesSvc := salessvc.NewService(store, recorder, baseLogger.Named("svc.sales"))

	archive, err := bootstrap.OpenBlobStore(ctx, cfg.Documents)
	if err != nil {
		baseLogger.Fatal("failed to open document archive", zap.Error(err))
	}
	exporter := documentsvc.NewExporter(salesSvc, archive, nil, cfg.Documents.Prefix, baseLogger.Named("svc.documents"))

	integrations, err := bootstrap.OpenIntegrations(ctx, cfg, baseLogger)
	if err != nil {
		baseLogger.Fatal("failed to open integrations", zap.Error(err))
	}
	defer integrations.Close()

	var webhookHandler *handlers.WebhookHandler
	if notifier := integrations.Notifier; notifier != nil {
		webhookHandler = handlers.NewWebhookHandler(notifier, baseLogger.Named("handlers.whatsapp"))

		loc, _ := time.LoadLocation(cfg.Reporting.Timezone)
		reportingSvc := reportingsvc.NewService(salesSvc, loc, baseLogger.Named("svc.reporting"))
		sched, err := scheduler.NewScheduler(cfg.Reporting, reportingSvc, notifier, baseLogger.Named("scheduler"))
		if err != nil {
			baseLogger.Fatal("failed to init scheduler", zap.Error(err))
		}
		if err := sched.Start(); err != nil {
			baseLogger.Fatal("failed to start scheduler", zap.Error(err))
		}
		defer sched.Stop()
	} else {
		baseLogger.Warn("weekly digest disabled without whatsapp recipients")
	}

	salesHandler := handlers.NewSalesHandler(salesSvc, exporter, integrations.Dispatcher(cfg.Events), baseLogger.Named("handlers.sales"))
	engine := router.New(router.Options{
		Sales:   salesHandler,
		Webhook: webhookHandler,
		Metrics: recorder,
		Logger:  baseLogger.Named("router"),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
	salesHandler.Wait()
}
