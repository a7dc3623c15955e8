// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/askatlas/navigation-assistant/internal/config"
	"github.com/askatlas/navigation-assistant/internal/events"
	"github.com/askatlas/navigation-assistant/internal/flow"
	"github.com/askatlas/navigation-assistant/internal/handler"
	"github.com/askatlas/navigation-assistant/internal/llm"
	natsclient "github.com/askatlas/navigation-assistant/internal/nats"
	"github.com/askatlas/navigation-assistant/internal/service"
	"github.com/askatlas/navigation-assistant/internal/session"
	"github.com/askatlas/navigation-assistant/pkg/logger"
	"github.com/askatlas/navigation-assistant/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting API server")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "askatlas-navigation-assistant", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Without a provider every flow fails and sessions greet with the fallback text.
	var provider llm.Client
	if client, err := llm.FromKeys(llm.Provider(cfg.DefaultLLM), cfg.AnthropicAPIKey, cfg.OpenAIAPIKey); err != nil {
		log.Warn("LLM provider unavailable, flows disabled", zap.Error(err))
	} else {
		provider = client
		log.Info("LLM provider configured", zap.String("provider", client.Name()))
	}

	registry, err := flow.DefaultRegistry()
	if err != nil {
		log.Fatal("failed to load flow definitions", zap.Error(err))
	}

	flowOpts, err := flow.ProviderOptions(provider, cfg.LLMModel, cfg.LLMMaxTokens)
	if err != nil {
		log.Warn("configured model ignored", zap.String("model", cfg.LLMModel), zap.Error(err))
	}
	invoker := flow.NewInvoker(provider, registry, log, flowOpts...)

	// With NATS configured, session events reach this process's streams through the broker.
	var (
		bus        events.Bus
		natsClient *natsclient.Client
	)
	if cfg.NATSURL != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		natsClient, err = natsclient.Connect(connectCtx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		cancel()
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()
		bus = natsclient.NewEventBus(natsClient, log)
	} else {
		bus = events.NewLocalBus()
	}
	defer bus.Close()

	sessionSvc := service.NewSessionService(
		invoker,
		session.NewEchoResponder(cfg.ResponseDelay),
		bus,
		service.SessionOptions{
			PendingTimeout:    cfg.PendingTimeout,
			OnboardingTimeout: cfg.OnboardingTimeout,
		},
		log,
	)
	defer sessionSvc.Shutdown()

	router := handler.NewRouter(handler.Deps{
		Config:     cfg,
		Logger:     log,
		Sessions:   sessionSvc,
		Accounts:   service.NewAccountService(log),
		Navigation: service.NewNavigationService(invoker),
		NATS:       natsClient,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Streams stay open until their sessions close, so end sessions first.
	sessionSvc.Shutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
