package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.io/infrasutra/mailroom/internal/api"
	"github.io/infrasutra/mailroom/internal/config"
	"github.io/infrasutra/mailroom/internal/delivery"
	"github.io/infrasutra/mailroom/internal/runtime"
	"github.io/infrasutra/mailroom/internal/smtpsink"
	"github.io/infrasutra/mailroom/internal/sse"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := runtime.NewLogger(cfg)

	ctx := context.Background()
	db, err := runtime.OpenStore(ctx, cfg)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	mail, err := runtime.SelectMail(cfg, logger)
	if err != nil {
		logger.Error("select mail transport", "error", err)
		os.Exit(1)
	}
	switch mail.Mode {
	case runtime.ModeLocalOnly:
		logger.Warn("GMAIL_USER or GMAIL_APP_PASSWORD not set; emails are saved locally without sending")
	case runtime.ModeSink:
		logger.Warn("no mail credentials; outgoing mail goes to the local capture sink", "port", cfg.SinkPort)
	default:
		logger.Info("mail transport selected", "mode", mail.Mode, "sender", mail.Delivery.Sender)
	}

	var sink *smtpsink.Server
	if cfg.SinkEnabled {
		sinkAuth := smtpsink.AuthConfig{
			Enabled:  cfg.SinkUsername != "",
			Username: cfg.SinkUsername,
			Password: cfg.SinkPassword,
		}
		sinkAddr := fmt.Sprintf("127.0.0.1:%d", cfg.SinkPort)
		listener, err := net.Listen("tcp", sinkAddr)
		if err != nil {
			logger.Error("listen smtp sink", "addr", sinkAddr, "error", err)
			os.Exit(1)
		}
		sink = smtpsink.New(logger, sinkAddr, sinkAuth)
		go func() {
			if err := sink.Serve(listener); err != nil {
				logger.Error("smtp sink stopped", "error", err)
			}
		}()
	}

	coordinator := delivery.New(db, mail.Transport, mail.Delivery, logger)
	hub := sse.NewHub()
	apiServer := api.NewServer(cfg, db, coordinator, hub, logger)

	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           apiServer,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "addr", httpAddr, "frontend", cfg.FrontendURL)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
		}
	}()

	// Startup check only logs; the server keeps running in local-only mode.
	go func(parent context.Context) {
		verifyCtx, cancel := context.WithTimeout(parent, cfg.SMTPTimeout)
		defer cancel()
		coordinator.VerifyConnection(verifyCtx)
	}(ctx)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown http", "error", err)
	}
	if sink != nil {
		if err := sink.Close(); err != nil {
			logger.Error("shutdown smtp sink", "error", err)
		}
	}
}
