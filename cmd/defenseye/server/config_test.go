package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DefensEye/cmmc12/chatbot"
	"github.com/DefensEye/cmmc12/distributor/plugins/tagged"
	"github.com/DefensEye/cmmc12/source"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"SUPABASE_URL", "VITE_SUPABASE_URL", "SUPABASE_KEY", "VITE_SUPABASE_KEY", "SUPABASE_SERVICE_KEY", "PORT", "GEMINI_API_KEY", "DEFENSEYE_ALTERNATE_URL"} {
		t.Setenv(k, "")
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		clearEnv(t)

		cfg, err := LoadConfig("/non/existent/config.yaml")

		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("returns error for malformed file", func(t *testing.T) {
		clearEnv(t)

		_, err := LoadConfig(writeConfig(t, "database:\n  limit: lots\n"))

		assert.Error(t, err)
	})

	t.Run("file values over defaults", func(t *testing.T) {
		clearEnv(t)
		path := writeConfig(t, `
port: "8443"
database:
  url: https://example.supabase.co
  key: file-key
  schema: private
analysis:
  domain_mode: tagged
history:
  path: /tmp/history.db
certConfig:
  cert: server.crt
  key: server.key
`)

		cfg, err := LoadConfig(path)

		require.NoError(t, err)
		assert.Equal(t, "8443", cfg.Port)
		assert.Equal(t, "https://example.supabase.co", cfg.Database.URL)
		assert.Equal(t, "private", cfg.Database.Schema)
		assert.Equal(t, source.DefaultTable, cfg.Database.Table)
		assert.Equal(t, source.DefaultLimit, cfg.Database.Limit)
		assert.Equal(t, "tagged", cfg.Analysis.DomainMode)
		assert.Equal(t, "/tmp/history.db", cfg.History.Path)
		assert.Equal(t, "server.crt", cfg.Certificate.PublicKey)
		assert.Equal(t, "server.key", cfg.Certificate.PrivateKey)
	})

	t.Run("environment over file", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("VITE_SUPABASE_URL", "https://vite.supabase.co")
		t.Setenv("SUPABASE_SERVICE_KEY", "service-key")
		t.Setenv("PORT", "4000")
		t.Setenv("GEMINI_API_KEY", "gemini-key")
		t.Setenv("DEFENSEYE_ALTERNATE_URL", "https://replica.supabase.co")

		cfg, err := LoadConfig(writeConfig(t, "database:\n  url: https://file.supabase.co\n"))

		require.NoError(t, err)
		assert.Equal(t, "https://vite.supabase.co", cfg.Database.URL)
		assert.Equal(t, "service-key", cfg.Database.Key)
		assert.Equal(t, "4000", cfg.Port)
		assert.Equal(t, "gemini-key", cfg.Chatbot.APIKey)
		assert.Equal(t, "https://replica.supabase.co", cfg.Alternate.URL)
	})
}

func TestApplyEnv_FirstNonEmptyWins(t *testing.T) {
	env := map[string]string{
		"SUPABASE_URL":      "",
		"VITE_SUPABASE_URL": "https://second.supabase.co",
		"SUPABASE_KEY":      "primary-key",
		"VITE_SUPABASE_KEY": "ignored",
	}
	environ := func() []string {
		var out []string
		for k, v := range env {
			out = append(out, k+"="+v)
		}
		return append(out, "UNRELATED=value")
	}
	layer, err := loadEnv(environ)
	require.NoError(t, err)
	assert.False(t, layer.Exists("UNRELATED"))
	assert.False(t, layer.Exists("SUPABASE_URL"))

	cfg := DefaultConfig()
	cfg.applyEnv(layer)

	assert.Equal(t, "https://second.supabase.co", cfg.Database.URL)
	assert.Equal(t, "primary-key", cfg.Database.Key)
	assert.Equal(t, "3000", cfg.Port)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		skipTLS bool
		wantErr string
	}{
		{name: "defaults without tls", skipTLS: true},
		{
			name:    "missing certificate",
			wantErr: "certConfig.cert",
		},
		{
			name: "certificate present",
			mutate: func(c *Config) {
				c.Certificate = CertConfig{PublicKey: "a.crt", PrivateKey: "a.key"}
			},
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Port = "http" },
			skipTLS: true,
			wantErr: "invalid port",
		},
		{
			name:    "unknown domain mode",
			mutate:  func(c *Config) { c.Analysis.DomainMode = "random" },
			skipTLS: true,
			wantErr: "domain_mode",
		},
		{
			name:    "gemini without key",
			mutate:  func(c *Config) { c.Chatbot.Provider = ProviderGemini },
			skipTLS: true,
			wantErr: "api_key",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Chatbot.Provider = "parrot" },
			skipTLS: true,
			wantErr: "chatbot.provider",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "loud" },
			skipTLS: true,
			wantErr: "log.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}

			err := cfg.Validate(tt.skipTLS)

			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LogConfig{Level: "warn", Format: "text"}, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")

	buf.Reset()
	logger, err = NewLogger(LogConfig{}, &buf)
	require.NoError(t, err)
	logger.Info("json")
	assert.Contains(t, buf.String(), `"msg":"json"`)
}

func TestNewSourceChain(t *testing.T) {
	t.Run("no database", func(t *testing.T) {
		chain := NewSourceChain(DefaultConfig(), nil)

		assert.Nil(t, chain.Primary)
		assert.Nil(t, chain.Alternate)
		assert.NotNil(t, chain.Parser)
	})

	t.Run("database with stored function on a replica", func(t *testing.T) {
		var paths []string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			paths = append(paths, r.URL.Path)
			if r.URL.Path == "/rest/v1/security_findings" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`[{"finding_id":"rpc-1"}]`))
		}))
		defer srv.Close()

		cfg := DefaultConfig()
		cfg.Database.URL = srv.URL
		cfg.Database.Key = "key"
		cfg.Alternate.URL = srv.URL + "/"

		chain := NewSourceChain(cfg, nil)
		require.NotNil(t, chain.Primary)
		require.NotNil(t, chain.Alternate)

		records, name, err := chain.Collect(context.Background(), "")
		require.NoError(t, err)
		assert.Equal(t, source.NameAlternate, name)
		assert.Len(t, records, 1)
		assert.Equal(t, []string{"/rest/v1/security_findings", "/rest/v1/rpc/get_security_findings"}, paths)
	})
}

func TestNewComposer(t *testing.T) {
	t.Run("default fixture and tagged mode", func(t *testing.T) {
		composer, err := NewComposer(AnalysisConfig{DomainMode: "tagged"})

		require.NoError(t, err)
		assert.Equal(t, tagged.ID, composer.Distributor().PluginName())
	})

	t.Run("returns error for non-existent fixture", func(t *testing.T) {
		composer, err := NewComposer(AnalysisConfig{Fixture: "/non/existent/fixture.yaml"})

		assert.Error(t, err)
		assert.Nil(t, composer)
	})
}

func TestNewResponder(t *testing.T) {
	responder, closeFn, err := NewResponder(context.Background(), ChatbotConfig{Provider: ProviderCanned})

	require.NoError(t, err)
	assert.IsType(t, &chatbot.Canned{}, responder)
	assert.NoError(t, closeFn())
}

func TestNewHistory(t *testing.T) {
	store, err := NewHistory(HistoryConfig{})
	require.NoError(t, err)
	assert.Nil(t, store)

	store, err = NewHistory(HistoryConfig{Path: filepath.Join(t.TempDir(), "history.db")})
	require.NoError(t, err)
	require.NotNil(t, store)
	assert.NoError(t, store.Close())
}

func TestLoadConfig_ExampleFile(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(filepath.Join("..", "..", "..", "docs", "config.yaml"))

	require.NoError(t, err)
	assert.Equal(t, "private", cfg.Database.Schema)
	assert.Equal(t, "./data/history.db", cfg.History.Path)
	assert.NoError(t, cfg.Validate(true))
}
