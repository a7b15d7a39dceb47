package config

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// clearEnv blanks every variable Load reads so host settings do not leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"TWITCH_BOT_USERNAME", "TWITCH_OAUTH_TOKEN", "TWITCH_ACCESS_TOKEN", "TWITCH_CHANNELS", "TARGET_CHANNELS",
		"TWITCH_CLIENT_ID", "TWITCH_APP_ID", "TWITCH_CLIENT_SECRET", "TWITCH_APP_SECRET", "TWITCH_REFRESH_TOKEN",
		"TOKEN_REFRESH_INTERVAL", "TOKEN_REFRESH_WINDOW", "DB_DSN", "DATABASE_URL", "AUTO_MIGRATE",
		"GEMINI_API_KEY", "GEMINI_MODEL", "GEMINI_BASE_URL", "GENERATION_TIMEOUT", "PROMPT_TEMPLATE_PATH",
		"COMMAND_PREFIX", "RESET_CLEARS_SEEN_COMMANDS", "RESTORE_HISTORY",
		"PERSIST_BATCH_SIZE", "PERSIST_FLUSH_INTERVAL", "PERSIST_QUEUE_SIZE",
		"HTTP_ADDR", "ADMIN_TOKEN", "ADMIN_USERNAME", "ADMIN_PASSWORD",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.CommandPrefix != "!" || cfg.GeminiModel != "gemini-2.0-flash" || cfg.HTTPAddr != ":8080" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.GenerationTimeout != 20*time.Second || cfg.TokenRefreshInterval != 5*time.Minute || cfg.TokenRefreshWindow != 15*time.Minute {
		t.Errorf("unexpected duration defaults: %+v", cfg)
	}
	if !cfg.RestoreHistory || cfg.AutoMigrate || cfg.ResetClearsSeenCommands {
		t.Errorf("unexpected bool defaults: %+v", cfg)
	}
	if cfg.PersistBatchSize != 50 || cfg.PersistQueueSize != 1024 || cfg.PersistFlushInterval != 2*time.Second {
		t.Errorf("unexpected persist defaults: %+v", cfg)
	}
	if !strings.HasPrefix(cfg.DBDsn, "postgres://") {
		t.Errorf("DBDsn = %q", cfg.DBDsn)
	}
}

func TestLoadAliases(t *testing.T) {
	clearEnv(t)
	t.Setenv("TARGET_CHANNELS", "#Demo, other ,,")
	t.Setenv("TWITCH_ACCESS_TOKEN", "tok")
	t.Setenv("TWITCH_APP_ID", "cid")
	t.Setenv("TWITCH_APP_SECRET", "sec")
	t.Setenv("DATABASE_URL", "postgres://x")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"#Demo", "other"}, cfg.TwitchChannels); diff != "" {
		t.Errorf("channels mismatch (-want +got):\n%s", diff)
	}
	if cfg.TwitchOAuthToken != "tok" || cfg.TwitchClientID != "cid" || cfg.TwitchClientSecret != "sec" || cfg.DBDsn != "postgres://x" {
		t.Errorf("aliases not applied: %+v", cfg)
	}

	// primary names win over aliases
	t.Setenv("TWITCH_CHANNELS", "primary")
	cfg, _ = Load()
	if diff := cmp.Diff([]string{"primary"}, cfg.TwitchChannels); diff != "" {
		t.Errorf("primary channels mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	tests := map[string]string{
		"GENERATION_TIMEOUT": "soon",
		"AUTO_MIGRATE":       "maybe",
		"PERSIST_BATCH_SIZE": "-1",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, val)
			if _, err := Load(); err == nil || !strings.Contains(err.Error(), key) {
				t.Errorf("Load() error = %v, want one naming %s", err, key)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			TwitchBotUsername: "chroniclebot",
			TwitchChannels:    []string{"demo"},
			GeminiAPIKey:      "key",
			TwitchOAuthToken:  "oauth:tok",
		}
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no username", func(c *Config) { c.TwitchBotUsername = "" }, "TWITCH_BOT_USERNAME"},
		{"no channels", func(c *Config) { c.TwitchChannels = nil }, "TWITCH_CHANNELS"},
		{"no gemini key", func(c *Config) { c.GeminiAPIKey = "" }, "GEMINI_API_KEY"},
		{"no token", func(c *Config) { c.TwitchOAuthToken = "" }, "TWITCH_OAUTH_TOKEN"},
		{"partial refresh triple", func(c *Config) {
			c.TwitchOAuthToken = ""
			c.TwitchRefreshToken = "r"
			c.TwitchClientID = "id"
		}, "TWITCH_OAUTH_TOKEN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error naming %s", err, tt.want)
			}
		})
	}

	c := base()
	c.TwitchOAuthToken = ""
	c.TwitchRefreshToken, c.TwitchClientID, c.TwitchClientSecret = "r", "id", "secret"
	if err := c.Validate(); err != nil {
		t.Errorf("refresh triple should satisfy token requirement: %v", err)
	}
}
