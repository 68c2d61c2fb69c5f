package main

import (
	"os"
	"seatwatch-backend/lib/configutil"
	"seatwatch-backend/lib/telemetry"
	"strings"
	"time"
)

type PortalConfig struct {
	BaseUrl                string            `json:"base_url" validate:"required,url"`
	TimeoutSeconds         int               `json:"timeout_seconds" validate:"min=1"`
	RefreshIntervalSeconds int               `json:"refresh_interval_seconds" validate:"min=1"`
	RequestsPerSecond      float64           `json:"requests_per_second" validate:"gt=0"`
	CloudflareBypass       bool              `json:"cloudflare_bypass"`
	ResultCacheSeconds     int               `json:"result_cache_seconds" validate:"min=-1"`
	PageSize               int               `json:"page_size" validate:"min=1,max=500"`
	SeedCookies            map[string]string `json:"seed_cookies"`
	DumpDir                string            `json:"dump_dir"`
}

type PollConfig struct {
	IntervalSeconds int `json:"interval_seconds" validate:"min=1"`
}

type StoreConfig struct {
	Url string `json:"url" validate:"required"`
}

type WebhookConfig struct {
	DefaultUrl   string            `json:"default_url" validate:"omitempty,url"`
	Destinations map[string]string `json:"destinations" validate:"dive,url"`
	Username     string            `json:"username"`
}

func (c WebhookConfig) enabled() bool {
	return c.DefaultUrl != "" || len(c.Destinations) > 0
}

type EmailConfig struct {
	Server   string   `json:"server"`
	Port     int      `json:"port" validate:"omitempty,min=1,max=65535"`
	Address  string   `json:"address" validate:"omitempty,email"`
	Password string   `json:"password"`
	To       []string `json:"to" validate:"dive,email"`
}

func (c EmailConfig) enabled() bool {
	return c.Server != "" && len(c.To) > 0
}

type NotifyConfig struct {
	Log     bool          `json:"log"`
	Webhook WebhookConfig `json:"webhook"`
	Email   EmailConfig   `json:"email"`
}

type ApiConfig struct {
	Port        int    `json:"port" validate:"min=1,max=65535"`
	AccessToken string `json:"access_token"`
}

type Config struct {
	Portal    PortalConfig     `json:"portal"`
	Poll      PollConfig       `json:"poll"`
	Store     StoreConfig      `json:"store"`
	Notify    NotifyConfig     `json:"notify"`
	Api       ApiConfig        `json:"api"`
	Operators []string         `json:"operators"`
	Telemetry telemetry.Config `json:"telemetry"`
}

var defaultConfig = Config{
	Portal: PortalConfig{
		BaseUrl:                "https://banner.usask.ca",
		TimeoutSeconds:         20,
		RefreshIntervalSeconds: 300,
		RequestsPerSecond:      2,
		ResultCacheSeconds:     15,
		PageSize:               10,
	},
	Poll: PollConfig{
		IntervalSeconds: 20,
	},
	Store: StoreConfig{
		Url: "file://state/seatwatch.json",
	},
	Api: ApiConfig{
		Port: 8000,
	},
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// LoadConfig reads the config file, fills in defaults, applies environment
// overrides and validates the result.
func LoadConfig(path string) (Config, error) {
	configutil.LoadEnv()

	cfg, err := configutil.ReadConfig[Config](path)
	if err != nil && !os.IsNotExist(err) {
		return Config{}, err
	}
	cfg, err = configutil.WithDefaults(cfg, defaultConfig)
	if err != nil {
		return Config{}, err
	}
	applyEnv(&cfg)

	cfg.Portal.BaseUrl, err = configutil.NormalizeBaseUrl(cfg.Portal.BaseUrl)
	if err != nil {
		return Config{}, err
	}
	err = configutil.Validate(cfg)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	token, ok := os.LookupEnv("SEATWATCH_API_TOKEN")
	if ok {
		cfg.Api.AccessToken = token
	}
	webhook, ok := os.LookupEnv("SEATWATCH_WEBHOOK_URL")
	if ok {
		cfg.Notify.Webhook.DefaultUrl = webhook
	}
	password, ok := os.LookupEnv("SEATWATCH_SMTP_PASSWORD")
	if ok {
		cfg.Notify.Email.Password = password
	}
	cookies, ok := os.LookupEnv("SEATWATCH_COOKIES")
	if ok && strings.TrimSpace(cookies) != "" {
		cfg.Portal.SeedCookies = configutil.ParseCookieHeader(cookies)
	}
}
