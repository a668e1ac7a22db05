package main

import (
	"fmt"
	"log/slog"

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
	"github.com/sajagshrestha/autofin-BE/internal/storage"
)

func resyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resync <user-id>",
		Short: "Run one catch-up pass for a mailbox",
		Long: `Reconcile a mailbox from its stored history cursor without waiting
for a push notification. Useful after downtime or to verify a link.`,
		Args: cobra.ExactArgs(1),
		RunE: runResync,
	}
}

func runResync(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(cmd.Context()); err != nil {
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
	}

	logger := slog.Default()
	providers := gmail.NewProviderFactory(oauthCfg, store, logger)
	extractor := extract.NewExtractor(llmClient, logger)
	controller := ingest.NewController(store, providers, extractor, notify.NopNotifier{}, logger)

	result, err := controller.ResyncMailbox(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("resync failed: %w", err)
	}

	fmt.Printf("Resync complete: %d processed, %d skipped, %d failed\n",
		result.ProcessedCount, result.SkippedCount, result.FailedCount)
	for _, msgErr := range result.Errors {
		fmt.Printf("  message %s: %v\n", msgErr.MessageID, msgErr.Err)
	}
	return nil
}
