package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/v2"

	"github.com/DefensEye/cmmc12/analysis"
	"github.com/DefensEye/cmmc12/chatbot"
	"github.com/DefensEye/cmmc12/distributor"
	"github.com/DefensEye/cmmc12/distributor/factory"
	"github.com/DefensEye/cmmc12/finding"
	"github.com/DefensEye/cmmc12/history"
	"github.com/DefensEye/cmmc12/internal/metrics"
	"github.com/DefensEye/cmmc12/source"
)

// Chatbot providers.
const (
	ProviderCanned = "canned"
	ProviderGemini = "gemini"
)

type Config struct {
	Port        string          `json:"port"`
	Log         LogConfig       `json:"log"`
	Database    DatabaseConfig  `json:"database"`
	Alternate   AlternateConfig `json:"alternate"`
	Analysis    AnalysisConfig  `json:"analysis"`
	History     HistoryConfig   `json:"history"`
	Chatbot     ChatbotConfig   `json:"chatbot"`
	CORS        CORSConfig      `json:"cors"`
	Certificate CertConfig      `json:"certConfig"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// DatabaseConfig points at the Supabase REST endpoint holding findings.
type DatabaseConfig struct {
	URL     string `json:"url"`
	Key     string `json:"key"`
	Schema  string `json:"schema"`
	Table   string `json:"table"`
	OrderBy string `json:"order_by"`
	Limit   int    `json:"limit"`
}

// AlternateConfig is the stored function queried when the table query
// fails. An empty URL reuses the database URL.
type AlternateConfig struct {
	URL      string `json:"url"`
	Function string `json:"function"`
}

type AnalysisConfig struct {
	DomainMode string `json:"domain_mode"`
	Fixture    string `json:"fixture"`
}

// HistoryConfig enables the analysis history when Path is set.
type HistoryConfig struct {
	Path string `json:"path"`
}

type ChatbotConfig struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	APIKey   string `json:"api_key"`
}

type CORSConfig struct {
	AllowedOrigins []string `json:"allowed_origins"`
}

type CertConfig struct {
	PublicKey  string `json:"cert"`
	PrivateKey string `json:"key"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		Port: "3000",
		Log:  LogConfig{Level: "info", Format: "json"},
		Database: DatabaseConfig{
			Schema:  source.DefaultSchema,
			Table:   source.DefaultTable,
			OrderBy: source.DefaultOrderBy,
			Limit:   source.DefaultLimit,
		},
		Alternate: AlternateConfig{Function: source.DefaultFunction},
		Analysis:  AnalysisConfig{DomainMode: "weighted"},
		Chatbot:   ChatbotConfig{Provider: ProviderCanned, Model: chatbot.DefaultGeminiModel},
		CORS: CORSConfig{AllowedOrigins: []string{
			"http://localhost:5173",
			"http://localhost:3000",
			"http://localhost:8080",
		}},
	}
}

// LoadConfig reads the YAML file at path over the defaults and applies the
// environment overlay. A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	content, err := os.ReadFile(filepath.Clean(path))
	switch {
	case errors.Is(err, os.ErrNotExist):
		slog.Info("config file not found, using defaults", slog.String("path", path))
	case err != nil:
		return Config{}, fmt.Errorf("error reading config: %w", err)
	default:
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return Config{}, fmt.Errorf("error unmarshaling config: %w", err)
		}
	}

	layer, err := loadEnv(os.Environ)
	if err != nil {
		return Config{}, fmt.Errorf("error reading environment: %w", err)
	}
	cfg.applyEnv(layer)
	return cfg, nil
}

// envGroups lists the environment variables read for each setting. Within a
// group the first non-empty variable wins over the file value.
var envGroups = [][]string{
	{"SUPABASE_URL", "VITE_SUPABASE_URL"},
	{"SUPABASE_KEY", "VITE_SUPABASE_KEY", "SUPABASE_SERVICE_KEY"},
	{"PORT"},
	{"GEMINI_API_KEY"},
	{"DEFENSEYE_ALTERNATE_URL"},
}

// loadEnv reads the known, non-empty environment variables into a koanf
// layer keyed by variable name.
func loadEnv(environ func() []string) (*koanf.Koanf, error) {
	known := make(map[string]bool)
	for _, group := range envGroups {
		for _, name := range group {
			known[name] = true
		}
	}

	k := koanf.New(".")
	err := k.Load(env.Provider(".", env.Opt{
		EnvironFunc: environ,
		TransformFunc: func(key, value string) (string, any) {
			if !known[key] || value == "" {
				return "", nil
			}
			return key, value
		},
	}), nil)
	if err != nil {
		return nil, err
	}
	return k, nil
}

func (c *Config) applyEnv(k *koanf.Koanf) {
	first := func(keys ...string) (string, bool) {
		for _, key := range keys {
			if v := k.String(key); v != "" {
				return v, true
			}
		}
		return "", false
	}

	targets := []*string{&c.Database.URL, &c.Database.Key, &c.Port, &c.Chatbot.APIKey, &c.Alternate.URL}
	for i, group := range envGroups {
		if v, ok := first(group...); ok {
			*targets[i] = v
		}
	}
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate(skipTLS bool) error {
	var errs []error

	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %q", c.Port))
	}
	if !factory.Known(distributor.ID(c.Analysis.DomainMode)) {
		errs = append(errs, fmt.Errorf("unknown analysis.domain_mode %q", c.Analysis.DomainMode))
	}
	switch c.Chatbot.Provider {
	case ProviderCanned:
	case ProviderGemini:
		if c.Chatbot.APIKey == "" {
			errs = append(errs, errors.New("chatbot.provider gemini requires chatbot.api_key or GEMINI_API_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown chatbot.provider %q", c.Chatbot.Provider))
	}
	for _, origin := range c.CORS.AllowedOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			errs = append(errs, fmt.Errorf("invalid cors origin %q", origin))
		}
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if !skipTLS {
		if c.Certificate.PublicKey == "" {
			errs = append(errs, errors.New("invalid certification configuration: please add certConfig.cert to the configuration"))
		}
		if c.Certificate.PrivateKey == "" {
			errs = append(errs, errors.New("invalid certification configuration: please add certConfig.key to the configuration"))
		}
	}
	return errors.Join(errs...)
}

// NewLogger builds the process logger from the log section.
func NewLogger(cfg LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log.level %q: %w", s, err)
	}
	return level, nil
}

// NewSourceChain wires the database sources described by cfg. Sources are
// left unset when the database is not configured.
func NewSourceChain(cfg Config, observer *metrics.AnalysisObserver) *source.Chain {
	chain := &source.Chain{
		Parser:   finding.NewParser(),
		Observer: observer,
	}

	primary := source.NewPostgREST(cfg.Database.URL, cfg.Database.Key, source.WithSchema(cfg.Database.Schema))
	if !primary.Configured() {
		return chain
	}
	chain.Primary = primary.Table(cfg.Database.Table, cfg.Database.OrderBy, cfg.Database.Limit)

	alternate := primary
	if cfg.Alternate.URL != "" {
		alternate = source.NewPostgREST(cfg.Alternate.URL, cfg.Database.Key, source.WithSchema(cfg.Database.Schema))
	}
	if cfg.Alternate.Function != "" {
		chain.Alternate = alternate.RPC(cfg.Alternate.Function, cfg.Database.Limit)
	}
	return chain
}

// NewComposer builds the report composer with the configured fixture and
// domain mode.
func NewComposer(cfg AnalysisConfig) (*analysis.Composer, error) {
	fixture, err := analysis.DefaultFixture()
	if cfg.Fixture != "" {
		fixture, err = analysis.LoadFixture(cfg.Fixture)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to load report fixture: %w", err)
	}
	d := factory.DistributorByID(distributor.ID(cfg.DomainMode))
	return analysis.NewComposer(fixture, analysis.WithDistributor(d)), nil
}

// NewResponder returns the configured chatbot and a function releasing it.
func NewResponder(ctx context.Context, cfg ChatbotConfig) (chatbot.Responder, func() error, error) {
	if cfg.Provider != ProviderGemini {
		return chatbot.NewCanned(), func() error { return nil }, nil
	}
	g, err := chatbot.NewGemini(ctx, cfg.APIKey, cfg.Model)
	if err != nil {
		return nil, nil, err
	}
	return g, g.Close, nil
}

// NewHistory opens the analysis history, or returns nil when disabled.
func NewHistory(cfg HistoryConfig) (*history.Store, error) {
	if cfg.Path == "" {
		return nil, nil
	}
	return history.Open(cfg.Path)
}
