package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BTreeMap/PromptForge/internal/flow"
	"github.com/BTreeMap/PromptForge/internal/genai"
	"github.com/BTreeMap/PromptForge/internal/scheduler"
	"github.com/BTreeMap/PromptForge/internal/store"
	"github.com/BTreeMap/PromptForge/internal/twiliowhatsapp"
	"github.com/BTreeMap/PromptForge/internal/util"
	"github.com/BTreeMap/PromptForge/internal/whatsapp"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for PromptForge state data
	DefaultStateDir = "/var/lib/promptforge"
	// DefaultAppDBFileName is the default SQLite database filename for conversations and templates
	DefaultAppDBFileName = "promptforge.db"
	// DefaultWhatsAppDBFileName is the default SQLite database filename for the WhatsApp device store
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultTemplatesDirName is the templates directory inside the state directory
	DefaultTemplatesDirName = "templates"
	// DefaultLogLevel matches the verbosity PromptForge has always logged at
	DefaultLogLevel = "debug"
)

// Config holds environment configuration. Flags declared in bindFlags override it.
type Config struct {
	StateDir         string
	ApplicationDBDSN string
	WhatsAppDBDSN    string
	APIAddr          string
	LogLevel         string

	LLMProvider    string
	LLMModel       string
	LLMBaseURL     string
	LLMTemperature float64
	LLMMaxTokens   int
	OpenAIKey      string
	AnthropicKey   string

	TemplatesDir   string
	WatchTemplates bool
	CacheSize      int

	ConversationRetention time.Duration // zero keeps conversations forever
	RetentionSchedule     string

	WhatsAppEnabled bool
	QROutput        string
	NumericCode     bool

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
	TwilioWebhookURL string

	// set when the matching value came from the environment rather than the state dir default
	appDSNExplicit       bool
	whatsAppDSNExplicit  bool
	templatesDirExplicit bool
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:         util.GetenvDefault(DefaultStateDir, "PROMPTFORGE_STATE_DIR"),
		ApplicationDBDSN: util.GetenvDefault("", "DATABASE_DSN", "DATABASE_URL"),
		WhatsAppDBDSN:    util.GetenvDefault("", "WHATSAPP_DB_DSN"),
		APIAddr:          util.GetenvDefault("", "API_ADDR"),
		LogLevel:         util.GetenvDefault(DefaultLogLevel, "LOG_LEVEL"),

		LLMProvider:    strings.ToLower(util.GetenvDefault("", "LLM_PROVIDER")),
		LLMModel:       util.GetenvDefault("", "LLM_MODEL"),
		LLMBaseURL:     util.GetenvDefault("", "LLM_BASE_URL"),
		LLMTemperature: util.ParseFloatEnv("LLM_TEMPERATURE", genai.DefaultTemperature),
		LLMMaxTokens:   util.ParseIntEnv("LLM_MAX_TOKENS", genai.DefaultMaxTokens),
		OpenAIKey:      util.GetenvDefault("", "OPENAI_API_KEY"),
		AnthropicKey:   util.GetenvDefault("", "ANTHROPIC_API_KEY"),

		TemplatesDir:   util.GetenvDefault("", "TEMPLATES_DIR"),
		WatchTemplates: util.ParseBoolEnv("WATCH_TEMPLATES", true),
		CacheSize:      util.ParseIntEnv("CONVERSATION_CACHE_SIZE", flow.DefaultConversationCacheSize),

		ConversationRetention: util.ParseDurationEnv("CONVERSATION_RETENTION", 0),
		RetentionSchedule:     util.GetenvDefault(scheduler.DefaultRetentionSchedule, "RETENTION_SCHEDULE"),

		WhatsAppEnabled: util.ParseBoolEnv("WHATSAPP_ENABLED", false),

		TwilioAccountSID: util.GetenvDefault("", "TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  util.GetenvDefault("", "TWILIO_AUTH_TOKEN"),
		TwilioFrom:       util.GetenvDefault("", "TWILIO_FROM_NUMBER"),
		TwilioWebhookURL: util.GetenvDefault("", "TWILIO_WEBHOOK_URL"),
	}
	config.appDSNExplicit = config.ApplicationDBDSN != ""
	config.whatsAppDSNExplicit = config.WhatsAppDBDSN != ""
	config.templatesDirExplicit = config.TemplatesDir != ""
	config.applyStateDirDefaults()

	slog.Debug("environment variables loaded",
		"PROMPTFORGE_STATE_DIR", config.StateDir,
		"DATABASE_DSN_SET", config.appDSNExplicit,
		"WHATSAPP_DB_DSN_SET", config.whatsAppDSNExplicit,
		"API_ADDR", config.APIAddr,
		"LLM_PROVIDER", config.LLMProvider,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"ANTHROPIC_API_KEY_SET", config.AnthropicKey != "",
		"TEMPLATES_DIR", config.TemplatesDir,
		"CONVERSATION_RETENTION", config.ConversationRetention,
		"WHATSAPP_ENABLED", config.WhatsAppEnabled,
		"TWILIO_ENABLED", config.twilioEnabled())

	return config
}

// applyStateDirDefaults derives unset paths from the state directory.
func (c *Config) applyStateDirDefaults() {
	if !c.appDSNExplicit {
		c.ApplicationDBDSN = filepath.Join(c.StateDir, DefaultAppDBFileName)
	}
	if !c.whatsAppDSNExplicit {
		c.WhatsAppDBDSN = "file:" + filepath.Join(c.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	}
	if !c.templatesDirExplicit {
		c.TemplatesDir = filepath.Join(c.StateDir, DefaultTemplatesDirName)
	}
}

// bindFlags declares the persistent flags, defaulting to the environment values.
func (c *Config) bindFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&c.StateDir, "state-dir", c.StateDir, "state directory for PromptForge data (overrides $PROMPTFORGE_STATE_DIR)")
	f.StringVar(&c.ApplicationDBDSN, "db-dsn", c.ApplicationDBDSN, "database DSN or SQLite path for conversations (overrides $DATABASE_DSN)")
	f.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn or error (overrides $LOG_LEVEL)")
	f.StringVar(&c.LLMProvider, "llm-provider", c.LLMProvider, "openai, anthropic or offline; empty picks by available API key (overrides $LLM_PROVIDER)")
	f.StringVar(&c.LLMModel, "llm-model", c.LLMModel, "model name (overrides $LLM_MODEL)")
	f.Float64Var(&c.LLMTemperature, "llm-temperature", c.LLMTemperature, "sampling temperature (overrides $LLM_TEMPERATURE)")
	f.IntVar(&c.LLMMaxTokens, "llm-max-tokens", c.LLMMaxTokens, "completion token limit (overrides $LLM_MAX_TOKENS)")
	f.StringVar(&c.TemplatesDir, "templates-dir", c.TemplatesDir, "directory of custom template definitions (overrides $TEMPLATES_DIR)")
}

// bindServeFlags declares the flags only the server uses.
func (c *Config) bindServeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&c.APIAddr, "api-addr", c.APIAddr, "API server address (overrides $API_ADDR)")
	f.StringVar(&c.WhatsAppDBDSN, "whatsapp-db-dsn", c.WhatsAppDBDSN, "WhatsApp device store DSN (overrides $WHATSAPP_DB_DSN)")
	f.BoolVar(&c.WatchTemplates, "watch-templates", c.WatchTemplates, "register template files added while running (overrides $WATCH_TEMPLATES)")
	f.IntVar(&c.CacheSize, "conversation-cache-size", c.CacheSize, "conversations kept in memory (overrides $CONVERSATION_CACHE_SIZE)")
	f.DurationVar(&c.ConversationRetention, "conversation-retention", c.ConversationRetention, "delete conversations idle this long, 0 disables (overrides $CONVERSATION_RETENTION)")
	f.StringVar(&c.RetentionSchedule, "retention-schedule", c.RetentionSchedule, "cron expression for the idle conversation sweep (overrides $RETENTION_SCHEDULE)")
	f.BoolVar(&c.WhatsAppEnabled, "whatsapp", c.WhatsAppEnabled, "connect the WhatsApp channel (overrides $WHATSAPP_ENABLED)")
	f.StringVar(&c.QROutput, "qr-output", "", "path to write login QR code")
	f.BoolVar(&c.NumericCode, "numeric-code", false, "use numeric login code instead of QR code")
	f.StringVar(&c.TwilioWebhookURL, "twilio-webhook-url", c.TwilioWebhookURL, "public URL of /webhooks/twilio used for signature checks (overrides $TWILIO_WEBHOOK_URL)")
}

// reconcile re-derives state dir defaults when --state-dir changed and the paths were not set explicitly.
func (c *Config) reconcile(cmd *cobra.Command, envStateDir string) {
	if c.StateDir == envStateDir {
		return
	}
	flagSet := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}
	c.appDSNExplicit = c.appDSNExplicit || flagSet("db-dsn")
	c.whatsAppDSNExplicit = c.whatsAppDSNExplicit || flagSet("whatsapp-db-dsn")
	c.templatesDirExplicit = c.templatesDirExplicit || flagSet("templates-dir")
	c.applyStateDirDefaults()
	slog.Debug("Config.reconcile: paths derived from --state-dir", "state_dir", c.StateDir)
}

// provider resolves an empty provider from the available API keys.
func (c Config) provider() string {
	switch {
	case c.LLMProvider != "":
		return c.LLMProvider
	case c.OpenAIKey != "":
		return genai.ProviderOpenAI
	case c.AnthropicKey != "":
		return genai.ProviderAnthropic
	default:
		return genai.ProviderOffline
	}
}

// buildGenAIOptions constructs GenAI configuration options
func (c Config) buildGenAIOptions() []genai.Option {
	provider := c.provider()
	opts := []genai.Option{
		genai.WithProvider(provider),
		genai.WithTemperature(c.LLMTemperature),
		genai.WithMaxTokens(c.LLMMaxTokens),
	}
	switch provider {
	case genai.ProviderOpenAI:
		opts = append(opts, genai.WithAPIKey(c.OpenAIKey))
	case genai.ProviderAnthropic:
		opts = append(opts, genai.WithAPIKey(c.AnthropicKey))
	}
	if c.LLMModel != "" {
		opts = append(opts, genai.WithModel(c.LLMModel))
	}
	if c.LLMBaseURL != "" {
		opts = append(opts, genai.WithBaseURL(c.LLMBaseURL))
	}
	return opts
}

// buildStoreOptions constructs store configuration options
func (c Config) buildStoreOptions() []store.Option {
	if c.ApplicationDBDSN == "" {
		slog.Debug("No database DSN provided, will use in-memory store")
		return nil
	}
	if store.DetectDSNType(c.ApplicationDBDSN) == "postgres" {
		return []store.Option{store.WithPostgresDSN(c.ApplicationDBDSN)}
	}
	return []store.Option{store.WithSQLiteDSN(c.ApplicationDBDSN)}
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func (c Config) buildWhatsAppOptions() []whatsapp.Option {
	opts := []whatsapp.Option{whatsapp.WithDBDSN(c.WhatsAppDBDSN)}
	if c.QROutput != "" {
		opts = append(opts, whatsapp.WithQRCodeOutput(c.QROutput))
	}
	if c.NumericCode {
		opts = append(opts, whatsapp.WithNumericCode())
	}
	return opts
}

// buildTwilioOptions constructs Twilio configuration options
func (c Config) buildTwilioOptions() []twiliowhatsapp.Option {
	return []twiliowhatsapp.Option{
		twiliowhatsapp.WithAccountSID(c.TwilioAccountSID),
		twiliowhatsapp.WithAuthToken(c.TwilioAuthToken),
		twiliowhatsapp.WithFromWhats(c.TwilioFrom),
	}
}

func (c Config) twilioEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFrom != ""
}

// ensureDirectoriesExist creates the state and templates directories, and the parent of a file-based database
func (c Config) ensureDirectoriesExist() error {
	dirs := []string{c.StateDir, c.TemplatesDir}
	if c.ApplicationDBDSN != "" && store.DetectDSNType(c.ApplicationDBDSN) == "sqlite3" {
		dirs = append(dirs, filepath.Dir(strings.TrimPrefix(c.ApplicationDBDSN, "file:")))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// parseLogLevel accepts the slog level names, case-insensitively.
func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelDebug, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// initializeLogger sets up structured text logging on stdout at level
func initializeLogger(level slog.Level) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}
