package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcclellann/imarisha/pkg/config"
	"github.com/mcclellann/imarisha/pkg/store"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	st, err := store.Open(cfg.DBDriver, cfg.DBConn, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	server, err := NewServer(st, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize server: %v", err)
	}

	watch, err := startInventoryWatch(cfg.InventoryWatchSchedule, server.inventory, logger)
	if err != nil {
		logger.Fatalf("Failed to start inventory watch: %v", err)
	}
	defer watch.Stop()

	addr := fmt.Sprintf(":%s", cfg.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Graceful shutdown failed")
		}
	}()

	logger.Infof("Starting server on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("Server failed: %v", err)
	}
	logger.Info("Server stopped")
}
