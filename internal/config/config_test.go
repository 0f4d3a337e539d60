package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/pac-chat/backend/internal/service/ai/deepseek"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "CORS_ALLOWED_ORIGINS",
		"STORE_DRIVER", "STORE_DSN", "POSTGREST_URL", "POSTGREST_API_KEY", "STORE_TIMEOUT", "STORE_SLOW_THRESHOLD",
		"COMPLETION_PROVIDER", "COMPLETION_BASE_URL", "COMPLETION_MODEL", "COMPLETION_API_KEY",
		"COMPLETION_TEMPERATURE", "COMPLETION_MAX_TOKENS",
		"ARK_API_KEY", "ARK_ACCESS_KEY", "ARK_SECRET_KEY", "ARK_MODEL", "Model",
		"ARK_BASE_URL", "ARK_REGION", "ARK_TEMPERATURE", "ARK_TOP_P", "ARK_MAX_TOKENS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Empty(t, cfg.Server.AllowedOrigins)
	require.Equal(t, StoreMemory, cfg.Store.Driver)
	require.Equal(t, 30*time.Second, cfg.Store.Timeout)
	require.Equal(t, 200*time.Millisecond, cfg.Store.SlowThreshold)
	require.Equal(t, ProviderDeepSeek, cfg.AI.Provider)
	require.Equal(t, deepseek.DefaultBaseURL, cfg.AI.BaseURL)
	require.Equal(t, deepseek.DefaultModel, cfg.AI.Model)
	require.False(t, cfg.AI.Enabled())
}

func TestLoadServerAddr(t *testing.T) {
	clearEnv(t)

	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:8081, https://app.example.com ,")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	require.Equal(t, []string{"http://localhost:8081", "https://app.example.com"}, cfg.Server.AllowedOrigins)

	t.Setenv("PORT", "80 80")
	_, err = Load()
	require.Error(t, err)
}

func TestLoadStoreConfig(t *testing.T) {
	clearEnv(t)

	t.Setenv("STORE_DRIVER", "postgrest")
	_, err := Load()
	require.ErrorContains(t, err, "POSTGREST_URL")

	t.Setenv("POSTGREST_URL", "https://xyz.supabase.co")
	t.Setenv("POSTGREST_API_KEY", "anon")
	t.Setenv("STORE_TIMEOUT", "5")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://xyz.supabase.co", cfg.Store.PostgRESTURL)
	require.Equal(t, 5*time.Second, cfg.Store.Timeout)

	t.Setenv("STORE_TIMEOUT", "1500ms")
	cfg, err = Load()
	require.NoError(t, err)
	require.Equal(t, 1500*time.Millisecond, cfg.Store.Timeout)

	t.Setenv("STORE_TIMEOUT", "0")
	t.Setenv("STORE_SLOW_THRESHOLD", "1s")
	cfg, err = Load()
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, cfg.Store.Timeout)
	require.Equal(t, time.Second, cfg.Store.SlowThreshold)

	t.Setenv("STORE_DRIVER", "postgres")
	_, err = Load()
	require.ErrorContains(t, err, "STORE_DSN")

	t.Setenv("STORE_DRIVER", "mongo")
	_, err = Load()
	require.Error(t, err)
}

func TestLoadCompletionConfig(t *testing.T) {
	clearEnv(t)

	t.Setenv("COMPLETION_API_KEY", "sk-test")
	t.Setenv("COMPLETION_TEMPERATURE", "0.7")
	t.Setenv("COMPLETION_MAX_TOKENS", "512")
	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.AI.Enabled())
	require.InDelta(t, 0.7, *cfg.AI.Temperature, 1e-9)
	require.Equal(t, 512, *cfg.AI.MaxTokens)

	chatModel, err := cfg.AI.NewChatModel(context.Background())
	require.NoError(t, err)
	require.IsType(t, &deepseek.ChatModel{}, chatModel)

	t.Setenv("COMPLETION_MAX_TOKENS", "lots")
	_, err = Load()
	require.Error(t, err)
}

func TestLoadArkConfig(t *testing.T) {
	clearEnv(t)

	t.Setenv("COMPLETION_PROVIDER", "ark")
	t.Setenv("ARK_API_KEY", "ark-key")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ProviderArk, cfg.AI.Provider)
	require.Equal(t, "cn-beijing", cfg.AI.Region)
	require.False(t, cfg.AI.Enabled())

	_, err = cfg.AI.NewChatModel(context.Background())
	require.Error(t, err)

	t.Setenv("Model", "doubao-pro")
	cfg, err = Load()
	require.NoError(t, err)
	require.Equal(t, "doubao-pro", cfg.AI.Model)
	require.True(t, cfg.AI.Enabled())

	t.Setenv("COMPLETION_PROVIDER", "gpt")
	_, err = Load()
	require.Error(t, err)
}
