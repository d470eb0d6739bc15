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

    "go.uber.org/zap"

    "github.com/park285/typing-arena/internal/arenabuilder"
    appcfg "github.com/park285/typing-arena/internal/config"
    "github.com/park285/typing-arena/internal/obslog"
)

func main() {
    if err := obslog.InitFromEnv(); err != nil {
        log.Fatalf("logger init error: %v", err)
    }
    defer obslog.Sync()
    logger := obslog.L()

    cfg, err := appcfg.Load()
    if err != nil {
        logger.Fatal("config_error", zap.Error(err))
    }

    deps, err := arenabuilder.New(cfg, logger)
    if err != nil {
        logger.Fatal("init_error", zap.Error(err))
    }

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    wsSrv := &http.Server{
        Addr:              cfg.WSAddr,
        Handler:           deps.Mux(),
        ReadHeaderTimeout: 10 * time.Second,
    }
    errCh := make(chan error, 2)
    go func() {
        logger.Info("ws_listen", zap.String("addr", cfg.WSAddr))
        if err := wsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            errCh <- err
        }
    }()
    go func() {
        logger.Info("api_listen", zap.String("addr", cfg.APIAddr))
        if err := deps.API.ListenAndServe(ctx, cfg.APIAddr); err != nil {
            errCh <- err
        }
    }()
    deps.Sweeper.Start()

    select {
    case <-ctx.Done():
        logger.Info("shutdown_signal")
    case err := <-errCh:
        logger.Error("listener_failed", zap.Error(err))
    }
    stop()

    sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
    defer cancel()
    if err := wsSrv.Shutdown(sctx); err != nil {
        logger.Warn("ws_shutdown", zap.Error(err))
    }
    if err := deps.Close(); err != nil {
        logger.Warn("deps_close", zap.Error(err))
    }
    logger.Info("stopped")
}
