package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Name      string            `json:"name" validate:"required"`
	Port      int               `json:"port" validate:"min=1"`
	Operators []string          `json:"operators"`
	Cookies   map[string]string `json:"cookies"`
}

func TestReadConfig(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "config.json5"), []byte(`{
		// comments are allowed
		name: "seatwatch",
		port: 8000,
	}`), 0600)
	require.NoError(t, err)
	err = os.WriteFile(filepath.Join(dir, "config.local.json5"), []byte(`{port: 9000}`), 0600)
	require.NoError(t, err)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, "seatwatch", cfg.Name)
	require.Equal(t, 9000, cfg.Port)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "config.json5"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestWithDefaultsAndValidate(t *testing.T) {
	cfg, err := WithDefaults(testConfig{Name: "custom"}, testConfig{Name: "default", Port: 8000})
	require.NoError(t, err)
	require.Equal(t, "custom", cfg.Name)
	require.Equal(t, 8000, cfg.Port)
	require.NoError(t, Validate(cfg))

	require.Error(t, Validate(testConfig{Port: 1}))
}

func TestNormalizeBaseUrl(t *testing.T) {
	table := []struct {
		input    string
		expected string
	}{
		{input: "https://banner.usask.ca/", expected: "https://banner.usask.ca"},
		{input: "  HTTPS://Banner.USask.ca:443/ ", expected: "https://banner.usask.ca"},
		{input: "http://127.0.0.1:8080/", expected: "http://127.0.0.1:8080"},
	}
	for _, row := range table {
		result, err := NormalizeBaseUrl(row.input)
		require.NoError(t, err)
		require.Equal(t, row.expected, result)
	}
}

func TestParseCookieHeader(t *testing.T) {
	cookies := ParseCookieHeader("JSESSIONID=abc; BIGipServer=1.2.3; broken; =x")
	require.Equal(t, map[string]string{
		"JSESSIONID":  "abc",
		"BIGipServer": "1.2.3",
	}, cookies)
}
