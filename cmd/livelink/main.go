package main

import (
	"context"
	goflag "flag"
	"time"

	"github.com/oceanpulse/livelink/pkg/auth"
	"github.com/oceanpulse/livelink/pkg/config"
	"github.com/oceanpulse/livelink/pkg/logger"
	"github.com/oceanpulse/livelink/pkg/monitoring"
	"github.com/oceanpulse/livelink/pkg/network/httpx"
	"github.com/oceanpulse/livelink/pkg/os"
	"github.com/oceanpulse/livelink/pkg/rest"
	"github.com/oceanpulse/livelink/pkg/service"
	"github.com/oceanpulse/livelink/pkg/signaling"
	"github.com/oceanpulse/livelink/pkg/store"
	flag "github.com/spf13/pflag"
)

var Version = "?"

func main() {
	conf, err := config.NewConfig()
	if err != nil {
		panic(err)
	}
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	conf.ParseFlags()

	log := logger.NewConsole(conf.Livelink.Debug, "ll", false)

	log.Info().Msgf("version %s", Version)
	if log.GetLevel() < logger.InfoLevel {
		log.Debug().Msgf("config: %+v", conf)
	}

	history := newHistory(conf.Livelink.Store, log)
	verifier := auth.NewVerifier(conf.Livelink.Auth.Secret, conf.Livelink.Auth.Issuer)

	hub := signaling.NewHub(conf.Livelink, history, verifier, log)
	api := rest.New(hub, history, verifier, conf.Livelink.Store, log)

	server, err := httpx.NewServer(
		conf.Livelink.Server.GetAddr(),
		func(*httpx.Server) httpx.Handler { return api.Routes() },
		httpx.WithServerConfig(conf.Livelink.Server),
		httpx.WithLogger(log),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("server init")
	}

	services := service.Group{}
	services.Add(hub, server)
	if conf.Livelink.Monitoring.IsEnabled() {
		mon, err := monitoring.New(conf.Livelink.Monitoring, log)
		if err != nil {
			log.Fatal().Err(err).Msg("monitoring init")
		}
		services.Add(mon)
	}
	services.Start()

	<-os.ExpectTermination()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := services.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("service shutdown errors")
	}
}

func newHistory(conf config.Store, log *logger.Logger) signaling.History {
	if conf.PostgresDsn == "" {
		log.Info().Msg("session history kept in memory")
		return store.NewMemory()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pg, err := store.NewPostgres(ctx, conf.PostgresDsn, log)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres init")
	}
	log.Info().Msg("session history kept in postgres")
	return pg
}
