package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/sajagshrestha/autofin-BE/internal/config"
	"github.com/sajagshrestha/autofin-BE/internal/extract"
	"github.com/sajagshrestha/autofin-BE/internal/gmail"
	"github.com/sajagshrestha/autofin-BE/internal/ingest"
	"github.com/sajagshrestha/autofin-BE/internal/llm"
	"github.com/sajagshrestha/autofin-BE/internal/notify"
	"github.com/sajagshrestha/autofin-BE/internal/resync"
	"github.com/sajagshrestha/autofin-BE/internal/server"
	"github.com/sajagshrestha/autofin-BE/internal/storage"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and ingestion pipeline",
		Long: `Start the HTTP server that receives Gmail push notifications and
serves the transactions API, along with the background resync loops and
watch renewal sweep.`,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "listen address (overrides config)")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	llmClient, err := llm.NewClient(llm.Config{
		Provider:    cfg.LLM.Provider,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes: []string{
			"https://www.googleapis.com/auth/gmail.readonly",
			"https://www.googleapis.com/auth/gmail.modify",
		},
	}

	logger := slog.Default()

	var notifier ingest.Notifier = notify.NopNotifier{}
	if cfg.Discord.WebhookURL != "" {
		notifier = notify.NewDiscordNotifier(cfg.Discord.WebhookURL, logger)
	}

	providers := gmail.NewProviderFactory(oauthCfg, store, logger)
	extractor := extract.NewExtractor(llmClient, logger)
	controller := ingest.NewController(store, providers, extractor, notifier, logger)

	scheduler := resync.NewScheduler(store, providers, controller, cfg.Google.PubSubTopic, cfg.Resync.Interval, logger)
	if err := scheduler.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start resync loops: %w", err)
	}
	defer scheduler.Shutdown()

	go scheduler.RunWatchRenewalLoop(ctx, cfg.Resync.WatchRenewalPeriod)

	handler := server.New(store, controller, cfg.Server.AllowedOrigins, logger)
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("autofin API listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
