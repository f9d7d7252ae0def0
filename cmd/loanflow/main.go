package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/quickrupee/loanflow/internal/api"
	"github.com/quickrupee/loanflow/internal/decision"
	"github.com/quickrupee/loanflow/internal/flow"
	"github.com/quickrupee/loanflow/internal/genai"
	"github.com/quickrupee/loanflow/internal/lockfile"
	"github.com/quickrupee/loanflow/internal/messaging"
	"github.com/quickrupee/loanflow/internal/scheduler"
	"github.com/quickrupee/loanflow/internal/store"
	"github.com/quickrupee/loanflow/internal/twiliowhatsapp"
	"github.com/quickrupee/loanflow/internal/util"
	"github.com/quickrupee/loanflow/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for loanflow state data
	DefaultStateDir = "/var/lib/loanflow"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "loanflow.db"
	// DefaultWhatsmeowDBFileName is the default whatsmeow SQLite database filename
	DefaultWhatsmeowDBFileName = "whatsmeow.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	slog.Info("Bootstrapping loanflow with configured modules")
	if err := run(flags); err != nil {
		slog.Error("loanflow failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("loanflow exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	WhatsAppDSN string
	StateDir    string
	OpenAIKey   string
	APIAddr     string
	Channel     string
	DecisionURL string
	SweepCron   string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput    *string
	numeric     *bool
	stateDir    *string
	dbDSN       *string
	waDSN       *string
	openaiKey   *string
	apiAddr     *string
	channel     *string
	decisionURL *string
	sweepCron   *string
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
		DatabaseURL: os.Getenv("DATABASE_URL"),
		WhatsAppDSN: os.Getenv("WHATSAPP_DB_DSN"),
		StateDir:    os.Getenv("LOANFLOW_STATE_DIR"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		APIAddr:     os.Getenv("API_ADDR"),
		Channel:     os.Getenv("MESSAGING_CHANNEL"),
		DecisionURL: os.Getenv("BACKEND_DECISION_URL"),
		SweepCron:   os.Getenv("SWEEP_SCHEDULE"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No LOANFLOW_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, DefaultWhatsmeowDBFileName)
	}
	if config.Channel == "" {
		config.Channel = "whatsapp"
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"LOANFLOW_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"MESSAGING_CHANNEL", config.Channel,
		"BACKEND_DECISION_URL_SET", config.DecisionURL != "",
		"SWEEP_SCHEDULE", config.SweepCron)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:    flag.String("qr-output", "", "path to write WhatsApp login QR code"),
		numeric:     flag.Bool("numeric-code", util.ParseBoolEnv("WHATSAPP_NUMERIC_CODE", false), "use numeric login code instead of QR code (overrides $WHATSAPP_NUMERIC_CODE)"),
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for loanflow data (overrides $LOANFLOW_STATE_DIR)"),
		dbDSN:       flag.String("db-dsn", config.DatabaseURL, "database DSN for the session store (overrides $DATABASE_URL)"),
		waDSN:       flag.String("whatsapp-db-dsn", config.WhatsAppDSN, "database DSN for the whatsmeow store (overrides $WHATSAPP_DB_DSN)"),
		openaiKey:   flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key for the support responder (overrides $OPENAI_API_KEY)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		channel:     flag.String("channel", config.Channel, "messaging channel: whatsapp or twilio (overrides $MESSAGING_CHANNEL)"),
		decisionURL: flag.String("decision-url", config.DecisionURL, "remote decision backend URL; empty uses local rules (overrides $BACKEND_DECISION_URL)"),
		sweepCron:   flag.String("sweep-cron", config.SweepCron, "cron schedule for the stale session sweep (overrides $SWEEP_SCHEDULE)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"waDSN_set", *flags.waDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"channel", *flags.channel,
		"decisionURL_set", *flags.decisionURL != "",
		"sweepCron", *flags.sweepCron)

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) != "postgres" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// buildStore constructs the session store from the DSN.
func buildStore(flags Flags) (store.Store, error) {
	if *flags.dbDSN == "" {
		slog.Debug("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
}

// buildMessagingService constructs the configured channel adapter.
func buildMessagingService(flags Flags) (messaging.Service, error) {
	switch strings.ToLower(*flags.channel) {
	case "twilio":
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, err
		}
		return messaging.NewTwilioService(client), nil
	default:
		waOpts := []whatsapp.Option{whatsapp.WithDBDSN(*flags.waDSN)}
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, err
		}
		return messaging.NewWhatsAppService(client), nil
	}
}

// buildEngineOptions assembles the engine's gateways and tuning.
func buildEngineOptions(flags Flags) []flow.EngineOption {
	var opts []flow.EngineOption

	if *flags.decisionURL != "" {
		client, err := decision.NewHTTPClient(decision.WithBaseURL(*flags.decisionURL))
		if err != nil {
			slog.Error("Failed to configure remote decision backend, falling back to local rules", "error", err)
		} else {
			opts = append(opts, flow.WithDecisionClient(client))
		}
	}

	if *flags.openaiKey != "" {
		responder, err := genai.NewClient(genai.WithAPIKey(*flags.openaiKey))
		if err != nil {
			slog.Error("Failed to configure GenAI support responder, continuing without it", "error", err)
		} else {
			opts = append(opts, flow.WithSupportResponder(responder))
		}
	} else {
		slog.Info("No OpenAI API key configured, support degrades to the knowledge base")
	}

	threshold := util.ParseDurationEnv("SESSION_INACTIVITY_THRESHOLD", flow.DefaultInactivityThreshold)
	opts = append(opts, flow.WithInactivityThreshold(threshold))

	return opts
}

// run wires the modules together and blocks until shutdown.
func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	msgService, err := buildMessagingService(flags)
	if err != nil {
		return err
	}

	engine := flow.NewEngine(st, msgService, buildEngineOptions(flags)...)

	if err := msgService.Start(ctx); err != nil {
		return err
	}
	defer msgService.Stop()

	// Pump inbound channel events through the engine. Each event gets its own
	// goroutine; the engine serializes per phone internally.
	go func() {
		for ev := range msgService.Events() {
			ev := ev
			go func() {
				if err := engine.HandleEvent(ctx, ev); err != nil {
					slog.Error("Engine failed to process inbound event", "error", err, "from", ev.From)
				}
			}()
		}
	}()

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	threshold := util.ParseDurationEnv("SESSION_INACTIVITY_THRESHOLD", flow.DefaultInactivityThreshold)
	if err := sched.ScheduleStaleSweep(st, threshold, *flags.sweepCron); err != nil {
		slog.Error("Failed to schedule stale session sweep", "error", err)
	}

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server := api.NewServer(engine, st, msgService, apiOpts...)
	return server.Run(ctx)
}
