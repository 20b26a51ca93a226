package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PandakiraDev/song-guess/internal/archive"
	"github.com/PandakiraDev/song-guess/internal/httpapi"
	"github.com/PandakiraDev/song-guess/internal/session"
	"github.com/PandakiraDev/song-guess/internal/store"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load() // .env is optional, real env wins

	log, err := buildLogger()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := store.NewRegistry(ctx, log)

	var arch session.Archiver
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		a, err := archive.Open(dsn, log)
		if err != nil {
			log.Fatal("opening archive", zap.Error(err))
		}
		arch = a
	} else {
		log.Info("DATABASE_URL not set, finished games will not be archived")
	}

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	baseURL := os.Getenv("PUBLIC_BASE_URL")

	srv := &http.Server{
		Addr:    addr,
		Handler: httpapi.SetupRoutes(reg, arch, baseURL, log),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		reg.Inbox() <- store.ShutdownRegistry{}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func buildLogger() (*zap.Logger, error) {
	if os.Getenv("ENV") == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
