package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"historydb/internal/retention"
	"historydb/pkg/banner"
	"historydb/pkg/config"
	"historydb/pkg/logger"
	"historydb/pkg/shutdown"
	"historydb/pkg/state"
	"historydb/pkg/store"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	fl := config.ParseCommandFlags()
	cfg, source, err := config.LoadEffective(fl)
	if err != nil {
		shutdown.Abort("config load failed", err, "")
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		shutdown.Abort("logger init failed", err, "")
	}
	defer logger.Sync()

	banner.Print(cfg.Storage.DBPath, cfg.Ops.Addr, source, version)

	if err := state.Init(cfg.Storage.DBPath); err != nil {
		shutdown.Abort("state layout init failed", err, cfg.Storage.DBPath)
	}
	if err := store.Open(state.PathsVar.Store); err != nil {
		shutdown.Abort("store open failed", err, cfg.Storage.DBPath)
	}
	defer store.Close()
	store.SetPolicy(cfg.Retention.Policy())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cancelRetention, err := retention.Start(ctx, cfg.Retention)
	if err != nil {
		shutdown.Abort("retention scheduler failed", err, cfg.Storage.DBPath)
	}
	defer cancelRetention()

	var ops *http.Server
	if cfg.Ops.Addr != "" {
		ops = opsServer(cfg.Ops.Addr)
		go func() {
			logger.Info("ops_listener_starting", zap.String("addr", cfg.Ops.Addr))
			if err := ops.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("ops_listener_failed", zap.Error(err))
			}
		}()
	}

	logger.Info("historydb_started",
		zap.String("db_path", cfg.Storage.DBPath),
		zap.String("config_source", source),
		zap.String("version", version))

	<-ctx.Done()
	logger.Info("shutdown_signal_received")

	if ops != nil {
		shctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ops.Shutdown(shctx); err != nil {
			logger.Warn("ops_shutdown_error", zap.Error(err))
		}
	}
	logger.Info("historydb_stopped")
}

func opsServer(addr string) *http.Server {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !store.Ready() {
			http.Error(w, "store not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/buildinfo", func(w http.ResponseWriter, _ *http.Request) {
		info := map[string]string{"version": version}
		if bi, ok := debug.ReadBuildInfo(); ok {
			info["go"] = bi.GoVersion
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(info)
	}).Methods(http.MethodGet)
	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func init() {
	if v := os.Getenv("HISTORYDB_VERSION"); v != "" {
		version = v
	}
}
