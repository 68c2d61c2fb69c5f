package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "config.json5"))
	require.NoError(t, err)
	require.Equal(t, "https://banner.usask.ca", cfg.Portal.BaseUrl)
	require.Equal(t, 20, cfg.Poll.IntervalSeconds)
	require.Equal(t, 300, cfg.Portal.RefreshIntervalSeconds)
	require.Equal(t, "file://state/seatwatch.json", cfg.Store.Url)
	require.Equal(t, 8000, cfg.Api.Port)
	require.Equal(t, 20*time.Second, seconds(cfg.Portal.TimeoutSeconds))
}

func TestLoadConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "config.json5"), []byte(`{
		portal: {base_url: "HTTPS://Banner.Example.edu/", result_cache_seconds: -1},
		poll: {interval_seconds: 60},
		notify: {webhook: {destinations: {"1234": "https://hooks.example.com/a"}}},
		operators: ["op"],
	}`), 0600)
	require.NoError(t, err)

	t.Setenv("SEATWATCH_API_TOKEN", "secret")
	t.Setenv("SEATWATCH_COOKIES", "JSESSIONID=abc; BIGipServer=pool")

	cfg, err := LoadConfig(filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, "https://banner.example.edu", cfg.Portal.BaseUrl)
	require.Equal(t, -1, cfg.Portal.ResultCacheSeconds)
	require.Equal(t, 60, cfg.Poll.IntervalSeconds)
	require.Equal(t, []string{"op"}, cfg.Operators)
	require.Equal(t, "secret", cfg.Api.AccessToken)
	require.Equal(t, map[string]string{"JSESSIONID": "abc", "BIGipServer": "pool"}, cfg.Portal.SeedCookies)
	require.True(t, cfg.Notify.Webhook.enabled())
	require.False(t, cfg.Notify.Email.enabled())
}

func TestLoadConfigInvalid(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "config.json5"), []byte(`{
		notify: {email: {server: "smtp.example.com", to: ["not an email"]}},
	}`), 0600)
	require.NoError(t, err)

	_, err = LoadConfig(filepath.Join(dir, "config.json5"))
	require.Error(t, err)
}

func TestCreateDispatcher(t *testing.T) {
	require.NotNil(t, createDispatcher(NotifyConfig{}))

	dispatcher := createDispatcher(NotifyConfig{
		Log:     true,
		Webhook: WebhookConfig{DefaultUrl: "https://hooks.example.com/default"},
	})
	require.Len(t, dispatcher, 2)
}
