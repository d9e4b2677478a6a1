// Package main runs the card game simulator server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/cgs/internal/auth"
	"github.com/jason-s-yu/cgs/internal/cache"
	"github.com/jason-s-yu/cgs/internal/cardimport"
	"github.com/jason-s-yu/cgs/internal/config"
	"github.com/jason-s-yu/cgs/internal/database"
	"github.com/jason-s-yu/cgs/internal/gamedef"
	"github.com/jason-s-yu/cgs/internal/imagecache"
	"github.com/jason-s-yu/cgs/internal/server"
	"github.com/jason-s-yu/cgs/internal/transport"
	log "github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	cfg.ConfigureLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("server: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	lib := gamedef.NewLibrary(cfg.DataDir)
	n, err := lib.LoadDir(cfg.GamesDir)
	if err != nil {
		log.Warnf("Loading games from %s: %v", cfg.GamesDir, err)
	}
	log.Infof("Loaded %d game definitions from %s.", n, cfg.GamesDir)

	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}

	fetcher := imagecache.DefaultFetcher{Client: &http.Client{Timeout: 30 * time.Second}}
	opts := server.Options{
		Library:  lib,
		Hub:      transport.NewHub(cfg.OriginAllowlist),
		Issuer:   issuer,
		Importer: cardimport.New(fetcher),
		Images:   imagecache.New(fetcher, nil),
		TickRate: cfg.TickRate,
	}

	if cfg.DatabaseURL != "" {
		store, err := database.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		opts.Store = store
		log.Info("Connected to database.")
	}

	if cfg.RedisURL != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		opts.Actions = cache.NewHistorian(rdb)
		log.Info("Connected to redis.")
	}

	srv := server.New(opts)
	if n, err := srv.LoadCustomCards(ctx); err != nil {
		log.Warnf("Loading imported cards: %v", err)
	} else if n > 0 {
		log.Infof("Restored %d imported cards.", n)
	}

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("Listening on %s", httpSrv.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	log.Info("Shutting down.")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = httpSrv.Shutdown(shutdownCtx)
	srv.Shutdown()
	return err
}
