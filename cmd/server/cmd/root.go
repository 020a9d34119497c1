package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"email-triage/internal/cache"
	"email-triage/internal/config"
	"email-triage/internal/gemini"
	"email-triage/internal/gmail"
	"email-triage/internal/handlers"
	"email-triage/internal/server"
)

const (
	// Version information
	Version   = "1.0.0"
	BuildDate = "development"
)

var configFile string

// rootCmd represents the base command when called without any
// subcommands.
var rootCmd = &cobra.Command{
	Use:   "triage-server",
	Short: "Email triage API server",
	Long: `Email Triage Server v1.0.0

DESCRIPTION:
    Serves the email triage API: lists and batch-fetches Gmail messages
    on behalf of an authenticated session, classifies and summarizes
    them through the Gemini API, and caches validated analyses locally.

CONFIGURATION:
    Configuration is done via environment variables or a YAML file:

    Server:
        EMAIL_TRIAGE_SERVER_HOST          - Bind host (default: localhost)
        EMAIL_TRIAGE_SERVER_PORT          - Bind port (default: 8080)

    Gmail:
        EMAIL_TRIAGE_GMAIL_METADATA_MAX   - Max messages per metadata batch (default: 50)
        EMAIL_TRIAGE_GMAIL_FULL_CHUNK_SIZE - Full fetch sub-batch size (default: 20)
        EMAIL_TRIAGE_GMAIL_CHUNK_PAUSE    - Pause between sub-batches (default: 100ms)

    Gemini:
        EMAIL_TRIAGE_GEMINI_API_KEY       - Generative language API key
        EMAIL_TRIAGE_GEMINI_MODEL         - Model name (default: gemini-2.5-flash-lite)
        EMAIL_TRIAGE_GEMINI_TIMEOUT       - Request timeout (default: 60s)

    Cache:
        EMAIL_TRIAGE_CACHE_PATH           - Analysis cache path (default: ./analysis-cache.db)

EXAMPLES:
    # Basic usage
    export EMAIL_TRIAGE_GEMINI_API_KEY="your-api-key"
    triage-server

    # With a config file
    triage-server --config=email-triage.yaml`,
	Version: Version,
	RunE:    runServer,
}

// Execute runs the root command through fang.
func Execute() {
	fang.Execute(context.Background(), rootCmd)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./email-triage.yaml)")
}

// runServer wires the dependency graph and runs the HTTP server until
// a shutdown signal arrives.
func runServer(cmd *cobra.Command, args []string) error {
	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = config.LoadWithFile(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("Starting email triage server",
		"version", Version,
		"build_date", BuildDate)

	store, err := cache.Open(cfg.Cache.Path)
	if err != nil {
		logger.Error("Failed to open analysis cache", "error", err, "path", cfg.Cache.Path)
		return fmt.Errorf("failed to open analysis cache: %w", err)
	}
	defer store.Close()

	logger.Info("Analysis cache initialized", "path", cfg.Cache.Path)

	analyzer := gemini.NewClient(&gemini.Config{
		APIKey:      cfg.Gemini.APIKey,
		Model:       cfg.Gemini.Model,
		Endpoint:    cfg.Gemini.Endpoint,
		MaxTokens:   cfg.Gemini.MaxTokens,
		Temperature: cfg.Gemini.Temperature,
		Timeout:     cfg.Gemini.Timeout,
	})

	gmailConfig := &gmail.Config{
		MetadataMax:   cfg.Gmail.MetadataMax,
		FullChunkSize: cfg.Gmail.FullChunkSize,
		ChunkPause:    cfg.Gmail.ChunkPause,
	}
	newMailbox := func(ctx context.Context, token string) (handlers.Mailbox, error) {
		return gmail.NewClient(ctx, token, gmailConfig)
	}

	emailHandler := handlers.NewEmailHandler(newMailbox)
	analyzeHandler := handlers.NewAnalyzeHandler(analyzer, store)
	healthHandler := handlers.NewHealthHandler(store)

	router := server.NewRouter(server.Handlers{
		Health: healthHandler.HealthCheck,
		Emails: server.EmailRoutes{
			GetMetadata:   emailHandler.GetMetadata,
			GetEmails:     emailHandler.GetEmails,
			GetEmailsByID: emailHandler.GetEmailsByIDs,
		},
		Analyze: analyzeHandler.Analyze,
	})

	srv := &http.Server{
		Addr:    cfg.Address(),
		Handler: router,

		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.HandleSignals(logger, srv, cfg.Server.ShutdownTimeout)
}
