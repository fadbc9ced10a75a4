package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"murmur/internal/config"
	"murmur/internal/db"
	"murmur/internal/router"
	"murmur/internal/services"
	"murmur/internal/store"
	"murmur/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	cfg := config.MustLoad()

	logger, err := utils.NewLogger(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	gateway, err := openStore(cfg, logger)
	if err != nil {
		return err
	}

	codec, err := services.NewModerationCodec(cfg.Tokens.Secret)
	if err != nil {
		return err
	}
	authors, err := services.NewAuthorVerifier(cfg.Tokens.AuthorKey, cfg.Tokens.AuthorIssuer)
	if err != nil {
		return err
	}
	tmpl, err := services.LoadReportTemplate(cfg.Moderation.TemplatesDir)
	if err != nil {
		return err
	}
	cache, err := utils.NewViewCache[*services.ThreadView](cfg.Cache.Size, cfg.Cache.TTL)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mailer := services.NewMailService(services.MailConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.User,
		Password: cfg.SMTP.Pass,
		From:     cfg.SMTP.From,
		Timeout:  cfg.SMTP.Timeout,
	}, logger)
	if !mailer.Enabled() {
		logger.Warn("Mail is disabled: missing SMTP_HOST or SMTP_FROM, reports will fail")
	}
	if len(cfg.Moderation.AdminEmails) == 0 {
		logger.Warn("ADMIN_EMAILS is empty, reports will fail")
	}

	engine, err := services.NewEngine(services.Deps{
		Store:  gateway,
		Codec:  codec,
		Mailer: mailer,
		Moderation: services.ModerationConfig{
			MaxAge:        cfg.Moderation.MaxAge,
			AdminEmails:   cfg.Moderation.AdminEmails,
			SenderName:    cfg.Moderation.SenderName,
			HostedAddress: cfg.Moderation.HostedAddress,
			Template:      tmpl,
		},
		Cache:   cache,
		Metrics: services.NewMetrics(reg),
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	r, err := router.New(router.Options{
		Engine:     engine,
		Authors:    authors,
		Logger:     logger,
		CORSOrigin: cfg.HTTP.CORSOrigin,
		Registry:   reg,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.SMTP.Timeout + 20*time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("murmur server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env),
			zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(cfg *config.Config, logger *zap.Logger) (store.Gateway, error) {
	if cfg.Store.Driver == "memory" {
		logger.Warn("Using the in-memory store, data is lost on restart")
		return store.NewMemory(), nil
	}
	gdb, err := db.Open(cfg.Store.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	return store.NewGorm(gdb), nil
}
