package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/snaplist/snaplist/internal/api"
	"github.com/snaplist/snaplist/internal/dialog"
	"github.com/snaplist/snaplist/internal/genai"
	"github.com/snaplist/snaplist/internal/identify"
	"github.com/snaplist/snaplist/internal/messaging"
	"github.com/snaplist/snaplist/internal/store"
	"github.com/snaplist/snaplist/internal/twiliowhatsapp"
	"github.com/snaplist/snaplist/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for SnapList state data
	DefaultStateDir = "/var/lib/snaplist"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "snaplist.db"
	// DefaultBackend is the messaging channel used when none is configured
	DefaultBackend = "twilio"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping SnapList with configured modules")
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr, "backend", *flags.backend)

	st, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	engine := dialog.NewEngine(st, buildEngineOptions(flags)...)

	svc, twilioSvc, err := buildMessagingService(flags)
	if err != nil {
		slog.Error("Failed to initialize messaging service", "error", err)
		os.Exit(1)
	}
	if svc != nil {
		if err := svc.Start(ctx); err != nil {
			slog.Error("Failed to start messaging service", "error", err)
			os.Exit(1)
		}
		defer svc.Stop()

		dispatcher := messaging.NewDispatcher(svc, engine)
		go dispatcher.Run(ctx)
	}

	srv := api.NewServer(engine, st, twilioSvc, buildAPIOptions(flags)...)
	if err := srv.Run(ctx); err != nil {
		slog.Error("SnapList failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("SnapList exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseDSN    string
	StateDir       string
	OpenAIKey      string
	IdentifyAPIKey string
	APIAddr        string
	Backend        string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput    *string
	numeric     *bool
	stateDir    *string
	dbDSN       *string
	openaiKey   *string
	identifyKey *string
	apiAddr     *string
	backend     *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseDSN:    os.Getenv("DATABASE_DSN"),
		StateDir:       os.Getenv("SNAPLIST_STATE_DIR"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		IdentifyAPIKey: os.Getenv("IDENTIFY_API_KEY"),
		APIAddr:        os.Getenv("API_ADDR"),
		Backend:        os.Getenv("MESSAGING_BACKEND"),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No SNAPLIST_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database DSN is provided, default to SQLite in the state directory
	if config.DatabaseDSN == "" {
		config.DatabaseDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseDSN)
	}

	if config.Backend == "" {
		config.Backend = DefaultBackend
	}

	slog.Debug("environment variables loaded",
		"DATABASE_DSN_SET", config.DatabaseDSN != "",
		"SNAPLIST_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"IDENTIFY_API_KEY_SET", config.IdentifyAPIKey != "",
		"API_ADDR", config.APIAddr,
		"MESSAGING_BACKEND", config.Backend)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:    flag.String("qr-output", "", "path to write WhatsApp login QR code (whatsmeow backend)"),
		numeric:     flag.Bool("numeric-code", false, "use numeric login code instead of QR code (whatsmeow backend)"),
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for SnapList data (overrides $SNAPLIST_STATE_DIR)"),
		dbDSN:       flag.String("db-dsn", config.DatabaseDSN, "database DSN for the draft store (overrides $DATABASE_DSN)"),
		openaiKey:   flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		identifyKey: flag.String("identify-api-key", config.IdentifyAPIKey, "product identification API key (overrides $IDENTIFY_API_KEY)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		backend:     flag.String("backend", config.Backend, "messaging backend: twilio, whatsmeow, or none (overrides $MESSAGING_BACKEND)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"identifyKeySet", *flags.identifyKey != "",
		"apiAddr", *flags.apiAddr,
		"backend", *flags.backend)

	// Follow a state-dir override when the DSN is still the derived SQLite default
	if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}

// buildStore selects the store backend from the DSN.
func buildStore(flags Flags) (store.Store, error) {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
}

// buildEngineOptions wires the optional external services into the dialogue
// engine. Each one degrades gracefully when its credentials are absent: the
// engine falls back to label-photo prompts and raw seller text.
func buildEngineOptions(flags Flags) []dialog.EngineOption {
	var engOpts []dialog.EngineOption

	var identifyOpts []identify.Option
	if *flags.identifyKey != "" {
		identifyOpts = append(identifyOpts, identify.WithAPIKey(*flags.identifyKey))
	}
	identifier, err := identify.NewClient(identifyOpts...)
	if err != nil {
		slog.Warn("Product identification disabled", "error", err)
	} else {
		engOpts = append(engOpts, dialog.WithIdentifier(identifier))
	}

	comparables, err := identify.NewEbayClient()
	if err != nil {
		slog.Warn("Comparable search disabled", "error", err)
	} else {
		engOpts = append(engOpts, dialog.WithComparables(comparables))
	}

	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	resolver, err := genai.NewClient(genaiOpts...)
	if err != nil {
		slog.Warn("Freeform name resolution disabled", "error", err)
	} else {
		engOpts = append(engOpts, dialog.WithResolver(resolver))
	}

	return engOpts
}

// buildMessagingService constructs the configured messaging backend. The
// Twilio service is also returned concretely so the API server can mount its
// inbound webhook.
func buildMessagingService(flags Flags) (messaging.Service, *messaging.TwilioService, error) {
	switch *flags.backend {
	case "twilio":
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, nil, err
		}
		svc := messaging.NewTwilioService(client)
		return svc, svc, nil
	case "whatsmeow":
		waOpts := []whatsapp.Option{whatsapp.WithDBDSN(filepath.Join(*flags.stateDir, "whatsmeow.db"))}
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, nil, err
		}
		return messaging.NewWhatsAppService(client), nil, nil
	case "none":
		slog.Info("No messaging backend configured, serving HTTP API only")
		return nil, nil, nil
	default:
		slog.Warn("Unknown messaging backend, serving HTTP API only", "backend", *flags.backend)
		return nil, nil, nil
	}
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	return apiOpts
}
