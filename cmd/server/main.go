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

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"cloud-connect/infrastructure/httpapi"
	"cloud-connect/infrastructure/ws"
	"cloud-connect/internal"
	"cloud-connect/observability"
	"cloud-connect/repositories"
	"cloud-connect/runtime"
	"cloud-connect/runtime/workers"
	"cloud-connect/search"
	"cloud-connect/services"
)

// Exit codes to provide meaningful status to the operating system or service
// manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper. Its only responsibility is
	// to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting so every defer executes before the process
// exits.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	// 2. Storage (BadgerDB + Bluge)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	index, err := search.NewMessageIndex(config.BlugeFilepath, logger)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open message index: %w", err)
	}
	defer func() {
		logger.Info("Closing message index...")
		_ = index.Close()
	}()

	// 3. Core wiring: registry, dispatcher, coordinator
	roomRepository := repositories.NewRoomRepository(db)
	userRepository := repositories.NewUserRepository(db)
	messageRepository := repositories.NewMessageRepository(db)

	registry := runtime.NewRegistry()
	monitoring := observability.NewManager()
	dispatcher := runtime.NewDispatcher(logger, registry, monitoring, config.DeliveryTimeout)

	sessionService := services.NewSessionService(logger, roomRepository, userRepository,
		messageRepository, registry, dispatcher, index)
	adminService := services.NewAdminService(logger, roomRepository, userRepository,
		messageRepository, index)

	// 4. Background workers under supervision
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	supervisor := workers.NewSupervisor(logger, config.RestartInterval).
		Add(workers.NewMonitorWorker(logger, registry, monitoring, config.MetricInterval)).
		Add(workers.NewStorageGCWorker(db, logger, config.StorageGCInterval))
	supervisorDone := make(chan struct{})
	go func() {
		supervisor.Run(ctx)
		close(supervisorDone)
	}()

	// 5. HTTP + WebSocket surface
	router := gin.New()
	router.Use(gin.Recovery())
	httpapi.RegisterRoutes(router, logger, adminService, sessionService, monitoring, config.SearchLimit)
	router.GET("/ws", ws.NewHandler(logger, sessionService,
		config.ConnectionBufferSize, config.MaxContentLength).Handle())

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "addr", server.Addr)
		serverErr <- server.ListenAndServe()
	}()

	// 6. Shutdown on signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("Shutting down...", "signal", sig.String())
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return exitRuntime, fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}

	supervisor.Stop()
	<-supervisorDone
	return exitOK, nil
}
