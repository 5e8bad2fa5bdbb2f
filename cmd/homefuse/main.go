package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/homefuse/homefuse/pkg/config"
	"github.com/homefuse/homefuse/pkg/log"
	"github.com/homefuse/homefuse/pkg/metrics"
	"github.com/homefuse/homefuse/pkg/provider"
	"github.com/homefuse/homefuse/pkg/provider/bosch"
	"github.com/homefuse/homefuse/pkg/provider/homeconnect"
	"github.com/homefuse/homefuse/pkg/provider/smartthings"
	"github.com/homefuse/homefuse/pkg/server"
	"github.com/homefuse/homefuse/pkg/solar"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
)

func main() {
	creds := config.Load()

	// init providers
	st := smartthings.New(smartthings.Config{
		ClientID:     creds.SmartThingsClientID,
		ClientSecret: creds.SmartThingsClientSecret,
	})
	hc := homeconnect.New(homeconnect.Config{
		ClientID:     creds.HomeConnectClientID,
		ClientSecret: creds.HomeConnectClientSecret,
	})
	bo := bosch.New(bosch.Config{
		ControllerIP: creds.BoschControllerIP,
		HubURL:       creds.BoschIoTHubURL,
		APIKey:       creds.BoschAPIKey,
	})

	providers := provider.NewMap()
	providers.Register(st)
	providers.Register(hc)
	providers.Register(bo)

	sol := solar.New(solar.Config{
		Email:     creds.SolarmanEmail,
		Password:  creds.SolarmanPassword,
		AppID:     creds.SolarmanAppID,
		AppSecret: creds.SolarmanAppSecret,
	})

	oauth := map[string]server.OAuthTarget{
		"smartthings": {Session: st.Session(), Scopes: smartthings.DefaultScopes},
		"homeconnect": {Session: hc.Session(), Scopes: homeconnect.DefaultScopes},
	}

	// init server
	srv := server.Configured(providers, sol, oauth)

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	slog.Debug("logger configured", slog.String("level", level.String()))

	metrics.Init()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Run will block until context is canceled or error happens
	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
