package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kapu/stream-chess-vote-go/internal/archive"
	appcfg "github.com/kapu/stream-chess-vote-go/internal/config"
	"github.com/kapu/stream-chess-vote-go/internal/eval"
	"github.com/kapu/stream-chess-vote-go/internal/game"
	"github.com/kapu/stream-chess-vote-go/internal/obslog"
	"github.com/kapu/stream-chess-vote-go/internal/server"
	"github.com/kapu/stream-chess-vote-go/internal/telemetry"
)

func main() {
	_ = godotenv.Load()

	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	telemetry.Init()

	cfg, err := appcfg.Load()
	if err != nil {
		obslog.L().Fatal("config_error", zap.Error(err))
	}

	settings := appcfg.DefaultSettings()
	if cfg.SettingsFile != "" {
		settings, err = appcfg.LoadSettings(cfg.SettingsFile)
		if err != nil {
			obslog.L().Fatal("settings_error", zap.String("file", cfg.SettingsFile), zap.Error(err))
		}
	}

	arc, err := archive.New(cfg.RedisURL, cfg.DatabaseURL)
	if err != nil {
		obslog.L().Fatal("archive_init_error", zap.Error(err))
	}
	defer func() { _ = arc.Close() }()

	var gameOpts []game.Option
	if arc != nil {
		gameOpts = append(gameOpts, game.WithArchiver(arc))
	}
	mgr, err := game.New(settings, gameOpts...)
	if err != nil {
		obslog.L().Fatal("game_init_error", zap.Error(err))
	}
	defer mgr.Close()

	srvOpts := []server.Option{server.WithEvalClient(eval.NewClient())}
	if arc != nil {
		srvOpts = append(srvOpts, server.WithArchive(arc))
	}
	srv := server.New(cfg, mgr, srvOpts...)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv.StartVotePumps(rootCtx)

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		obslog.L().Info("server_listen", zap.String("addr", cfg.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		obslog.L().Info("server_shutdown_signal")
	case err := <-errCh:
		obslog.L().Error("server_listen_error", zap.Error(err))
	}

	srv.StopVotePumps()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSec)*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		obslog.L().Warn("server_shutdown_error", zap.Error(err))
	}
	obslog.L().Info("server_stopped")
}
