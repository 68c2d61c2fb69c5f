package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"seatwatch-backend/internal/api"
	"seatwatch-backend/internal/banner"
	"seatwatch-backend/internal/notify"
	"seatwatch-backend/internal/poller"
	"seatwatch-backend/internal/registry"
	"seatwatch-backend/internal/seatwatch"
	"seatwatch-backend/internal/store"
	"seatwatch-backend/lib/restyutil"
	"seatwatch-backend/lib/serviceutil"
	"seatwatch-backend/lib/telemetry"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mazen160/go-random"
)

func InitTelemetry(ctx context.Context, verbose bool, cfg telemetry.Config) telemetry.Telemetry {
	telemetry.InitSlog(verbose)
	if verbose {
		slog.DebugContext(ctx, "verbose logging enabled")
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	tel, err := telemetry.Setup(ctx, "seatwatchd", cfg)
	if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	}
	telemetry.InstrumentPerfStats(ctx)
	return tel
}

func createDispatcher(cfg NotifyConfig) notify.Dispatcher {
	var dispatchers notify.Multi
	if cfg.Log {
		dispatchers = append(dispatchers, notify.Log{})
	}
	if cfg.Webhook.enabled() {
		dispatchers = append(dispatchers, notify.NewWebhook(notify.WebhookOptions{
			DefaultUrl:   cfg.Webhook.DefaultUrl,
			Destinations: cfg.Webhook.Destinations,
			Username:     cfg.Webhook.Username,
		}))
	}
	if cfg.Email.enabled() {
		dispatchers = append(dispatchers, notify.NewEmail(notify.EmailOptions{
			Server:   cfg.Email.Server,
			Port:     cfg.Email.Port,
			Address:  cfg.Email.Address,
			Password: cfg.Email.Password,
			To:       cfg.Email.To,
		}))
	}
	if len(dispatchers) == 0 {
		slog.Warn("no notification channel configured, falling back to logging")
		return notify.Log{}
	}
	return dispatchers
}

func main() {
	verbose := flag.Bool("v", false, "enable verbose logging")
	configPath := flag.String("config", "config.json5", "path to the config file")
	genToken := flag.Bool("gen-token", false, "print a random api access token and exit")
	flag.Parse()

	if *genToken {
		token, err := random.String(32)
		if err != nil {
			serviceutil.Fatal("generate token", err)
		}
		fmt.Println(token)
		return
	}

	ctx := serviceutil.SignalContext()

	config, err := LoadConfig(*configPath)
	if err != nil {
		telemetry.InitSlog(*verbose)
		serviceutil.Fatal("failed to read config", err)
	}

	tel := InitTelemetry(ctx, *verbose, config.Telemetry)
	defer func() {
		err := tel.Shutdown(context.Background())
		if err != nil {
			slog.Warn("shutdown telemetry", "err", err)
		}
	}()

	state, err := store.Open(ctx, config.Store.Url)
	if err != nil {
		serviceutil.Fatal("open store", err)
	}
	defer state.Close()

	var dump restyutil.Output
	if config.Portal.DumpDir != "" {
		output, err := restyutil.NewFilesystemOutput(config.Portal.DumpDir)
		if err != nil {
			serviceutil.Fatal("create portal dump directory", err)
		}
		slog.Warn("dumping portal exchanges", "dir", config.Portal.DumpDir)
		dump = output
	}

	session, err := banner.NewSession(banner.SessionOptions{
		BaseUrl:           config.Portal.BaseUrl,
		RefreshInterval:   seconds(config.Portal.RefreshIntervalSeconds),
		Timeout:           seconds(config.Portal.TimeoutSeconds),
		RequestsPerSecond: config.Portal.RequestsPerSecond,
		CloudflareBypass:  config.Portal.CloudflareBypass,
		Dump:              dump,
	})
	if err != nil {
		serviceutil.Fatal("create portal session", err)
	}
	seats := banner.NewClient(session, banner.ClientOptions{
		PageSize: config.Portal.PageSize,
		CacheTTL: seconds(config.Portal.ResultCacheSeconds),
	})

	reg := registry.New()
	service := seatwatch.NewService(seatwatch.Options{
		Registry:  reg,
		Seats:     seats,
		Store:     state,
		Operators: config.Operators,
	})
	err = service.Restore(ctx, config.Portal.SeedCookies)
	if err != nil {
		serviceutil.Fatal("restore state", err)
	}

	p := poller.New(poller.Options{
		Registry:   reg,
		Seats:      seats,
		Dispatcher: createDispatcher(config.Notify),
		Persister:  service,
		Interval:   seconds(config.Poll.IntervalSeconds),
	})
	service.SetPoller(p)

	if config.Api.AccessToken == "" {
		slog.Warn("api access token is empty, the command api is unauthenticated")
	}

	wg := sync.WaitGroup{}
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		err := serviceutil.StartHttpServer(
			ctx,
			config.Api.Port,
			api.NewRouter(service, api.Options{AccessToken: config.Api.AccessToken}),
		)
		if err != nil {
			serviceutil.Fatal("http server", err)
		}
	}()

	<-ctx.Done()
	wg.Wait()

	persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = service.Persist(persistCtx)
	if err != nil {
		slog.Error("final persist", "err", err)
		return
	}
	slog.Info("state saved, exiting")
}
