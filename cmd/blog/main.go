package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TokDenis/awblog/config"
	"github.com/TokDenis/awblog/gitsync"
	"github.com/TokDenis/awblog/services"
	"github.com/TokDenis/awblog/storage"
	"github.com/rs/zerolog/log"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	config.SetupLogging(cfg.Log)

	store, err := storage.Open(cfg.Storage.Backend, cfg.Storage.PostsDir, cfg.Storage.Driver, cfg.Storage.DSN,
		storage.Defaults{Author: cfg.Blog.DefaultAuthor})
	if err != nil {
		log.Fatal().Err(err).Msg("open post store")
	}
	defer store.Close()

	var syncer *gitsync.Syncer
	switch {
	case cfg.Sync.RepoUrl == "":
		log.Info().Msg("no posts repository configured, serving posts on disk")
	case cfg.Storage.Backend != config.BackendFile:
		log.Warn().Msg("posts repository sync only applies to the file backend")
	default:
		repo := gitsync.NewGitRepo(gitsync.GitOptions{
			Dir:     cfg.Sync.WorkDir,
			URL:     cfg.Sync.RepoUrl,
			Branch:  cfg.Sync.Branch,
			Token:   cfg.Sync.Token,
			Timeout: cfg.Sync.Timeout,
			Merge:   storage.CarryViews,
		})
		syncer = gitsync.NewSyncer(repo, gitsync.NewFileStamp(cfg.Sync.StampFile), cfg.Sync.Interval)

		res := syncer.Sync(context.Background(), false)
		log.Info().Bool("success", res.Success).Str("message", res.Message).Msg("startup sync")
	}

	assistant := services.NewAssistant(cfg.Assistant.Url, cfg.Assistant.ApiKey, cfg.Assistant.User)
	if !assistant.Enabled() {
		log.Info().Msg("assistant not configured, chat endpoints will report errors")
	}

	auth := services.NewAuth(cfg.Session.Secret, cfg.Session.AdminPassword, cfg.Session.TTL)

	api, err := services.NewApi(services.Options{
		Store:         store,
		Syncer:        syncer,
		Assistant:     assistant,
		Sessions:      auth,
		CheckPassword: auth.CheckPassword,
		BaseUrl:       cfg.Server.BaseUrl,
		StaticDir:     cfg.Server.StaticDir,
		PageSize:      cfg.Blog.PageSize,
		CorsOrigins:   cfg.Server.CorsOrigins,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("build api")
	}

	s := api.Server()

	go func() {
		log.Info().Msgf("awblog listening on %s", cfg.Addr())
		if err := s.ListenAndServe(cfg.Addr()); err != nil {
			log.Fatal().Err(err).Send()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err = s.ShutdownWithContext(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}
