// Package main is an interactive terminal client that runs a conversation
// session in process.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/askatlas/navigation-assistant/internal/config"
	"github.com/askatlas/navigation-assistant/internal/flow"
	"github.com/askatlas/navigation-assistant/internal/llm"
	"github.com/askatlas/navigation-assistant/internal/model"
	"github.com/askatlas/navigation-assistant/internal/session"
	"github.com/askatlas/navigation-assistant/pkg/logger"
)

var (
	assistantColor = color.New(color.FgCyan)
	userColor      = color.New(color.FgGreen, color.Bold)
	pendingColor   = color.New(color.Faint)
	errorColor     = color.New(color.FgRed)
	hintColor      = color.New(color.FgYellow)
)

var commands = map[string]session.QuickAction{
	"/home": session.QuickActionGoHome,
	"/work": session.QuickActionGoToWork,
}

func main() {
	cfg := config.Load()

	log, err := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile, DisableStdout: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var provider llm.Client
	if client, err := llm.FromKeys(llm.Provider(cfg.DefaultLLM), cfg.AnthropicAPIKey, cfg.OpenAIAPIKey); err == nil {
		provider = client
	} else {
		log.Warn("LLM provider unavailable", zap.Error(err))
	}

	registry, err := flow.DefaultRegistry()
	if err != nil {
		errorColor.Fprintf(os.Stderr, "failed to load flows: %v\n", err)
		os.Exit(1)
	}

	flowOpts, err := flow.ProviderOptions(provider, cfg.LLMModel, cfg.LLMMaxTokens)
	if err != nil {
		log.Warn("configured model ignored", zap.String("model", cfg.LLMModel), zap.Error(err))
	}

	sess := session.New("", session.Config{
		Onboarding:     flow.NewInvoker(provider, registry, log, flowOpts...),
		Responder:      session.NewEchoResponder(cfg.ResponseDelay),
		PendingTimeout: cfg.PendingTimeout,
		Logger:         log,
	})
	defer sess.Close()
	sess.Subscribe(render)

	pendingColor.Println("Starting AskAtlas...")
	startCtx, cancel := context.WithTimeout(ctx, cfg.OnboardingTimeout)
	err = sess.Start(startCtx)
	cancel()
	if err != nil {
		errorColor.Fprintf(os.Stderr, "failed to start session: %v\n", err)
		os.Exit(1)
	}
	hintColor.Println("Type a request, /home or /work for quick directions, exit to quit.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		userColor.Print("> ")

		var line string
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case l, ok := <-lines:
			if !ok {
				return
			}
			line = l
		}

		input := strings.TrimSpace(line)
		if input == "exit" {
			return
		}

		if action, ok := commands[input]; ok {
			err = sess.QuickAction(action)
		} else {
			err = sess.Submit(line)
		}
		switch {
		case errors.Is(err, session.ErrEmptyInput):
			continue
		case err != nil:
			errorColor.Println(err)
			continue
		}

		if err := sess.WaitReady(ctx); err != nil {
			return
		}
	}
}

// render prints assistant messages as they settle.
func render(ev model.SessionEvent) {
	if ev.Message == nil || ev.Message.Role != model.RoleAssistant {
		return
	}

	switch {
	case ev.Message.IsPending():
		pendingColor.Println("...")
	default:
		assistantColor.Println(ev.Message.Content)
	}
}
