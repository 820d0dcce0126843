// Package main provides the entry point for the standin conversation daemon.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Veraticus/standin/internal/config"
	"github.com/Veraticus/standin/internal/router"
	"github.com/Veraticus/standin/internal/scanner"
	signalpkg "github.com/Veraticus/standin/internal/signal"
	"github.com/Veraticus/standin/internal/store"
	"github.com/Veraticus/standin/internal/styler"
	"github.com/Veraticus/standin/internal/takeover"
)

// ShutdownTimeout is the maximum time to wait for graceful shutdown.
const ShutdownTimeout = 30 * time.Second

func main() {
	os.Exit(runMain())
}

func runMain() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Shutting down gracefully...")
		cancel()
	}()

	if err := run(ctx); err != nil {
		log.Printf("Error: %v", err)
		return 1
	}
	return 0
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
		log.Println("Debug logging enabled")
	}

	log.Printf("standin starting for %s...", cfg.SelfNumber)

	components, err := initializeComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := components.client.Close(); closeErr != nil {
			log.Printf("Failed to close signal client: %v", closeErr)
		}
	}()

	startComponents(ctx, components)

	log.Println("standin started successfully. Watching conversations.")

	<-ctx.Done()

	// The parent context is already done; graceful shutdown needs its own.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer shutdownCancel()

	shutdown(shutdownCtx, components)
	return nil
}

// components holds all initialized components.
type components struct {
	client       signalpkg.Client
	eventRouter  *router.Router
	inactivity   *scanner.Scanner
	wg           sync.WaitGroup
}

func initializeComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	// 1. Transport and messenger
	transport, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}

	client := signalpkg.NewClient(transport)
	messenger := signalpkg.NewMessenger(client, cfg.SelfNumber)

	// 2. Generation collaborator
	generator, err := styler.New(ctx, cfg.GeminiAPIKey, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}

	// 3. Conversation store
	conversations := store.New(cfg.StyleSampleCap, cfg.ExchangeCap)

	// 4. Takeover orchestrator
	orchestrator, err := takeover.New(conversations, messenger, messenger, generator, takeover.Config{
		SelfNumber:        cfg.SelfNumber,
		MaxTurns:          cfg.MaxTurns,
		ExchangeDepth:     cfg.ExchangeCap,
		SampleDepth:       cfg.StyleSampleCap,
		CooldownGrace:     cfg.CooldownGrace,
		ReactivationDelay: cfg.ReactivationDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	// 5. Event router
	eventRouter, err := router.New(conversations, orchestrator, messenger, cfg.SelfNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to create event router: %w", err)
	}

	// 6. Inactivity scanner
	inactivity, err := scanner.New(conversations, orchestrator, scanner.Config{
		Interval:                cfg.ScanInterval,
		InactivityThreshold:     cfg.InactivityThreshold,
		MaxInactivity:           cfg.MaxInactivity,
		RecentCounterpartWindow: cfg.RecentCounterpartWindow,
		CooldownGrace:           cfg.CooldownGrace,
		SelfThreadID:            cfg.SelfNumber,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create scanner: %w", err)
	}

	return &components{
		client:      client,
		eventRouter: eventRouter,
		inactivity:  inactivity,
	}, nil
}

func newTransport(cfg *config.Config) (signalpkg.Transport, error) {
	if cfg.WebSocketURL != "" {
		transport, err := signalpkg.NewWebSocketTransport(cfg.WebSocketURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create websocket transport: %w", err)
		}
		return transport, nil
	}

	transport, err := signalpkg.NewUnixSocketTransport(cfg.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create unix socket transport: %w", err)
	}
	return transport, nil
}

func startComponents(ctx context.Context, c *components) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		log.Println("Starting event router...")
		if err := c.eventRouter.Start(ctx); err != nil {
			log.Printf("Event router error: %v", err)
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		log.Println("Starting inactivity scanner...")
		if err := c.inactivity.Start(ctx); err != nil {
			log.Printf("Inactivity scanner error: %v", err)
		}
	}()
}

func shutdown(ctx context.Context, c *components) {
	log.Println("Shutting down components...")

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("All components stopped successfully")
	case <-ctx.Done():
		log.Println("Shutdown timeout exceeded")
	}

	log.Println("Shutdown complete")
}
