// Command tbwo runs the Time-Budgeted Work-Order execution engine: an HTTP/
// WebSocket server that accepts WorkOrders, drives them through pods to
// completion inside their time budget, and exposes live progress over the
// update stream. Grounded on the teacher's cmd/tarsy/main.go wiring order
// (flags -> .env -> config -> database -> services -> router -> serve),
// adapted to TBWO's engine/API/storage packages and slog instead of log.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/tbwo/engine/pkg/api"
	"github.com/tbwo/engine/pkg/bus"
	"github.com/tbwo/engine/pkg/clock"
	"github.com/tbwo/engine/pkg/config"
	"github.com/tbwo/engine/pkg/contract"
	"github.com/tbwo/engine/pkg/engine"
	"github.com/tbwo/engine/pkg/modelclient"
	"github.com/tbwo/engine/pkg/podpool"
	"github.com/tbwo/engine/pkg/storage"
	"github.com/tbwo/engine/pkg/tbworder"
	"github.com/tbwo/engine/pkg/tooldispatch"
	"github.com/tbwo/engine/pkg/updatestream"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "path to configuration directory")
	flag.Parse()

	log := slog.Default()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Warn("could not load .env file, continuing with existing environment", "path", envPath, "error", err)
	} else {
		log.Info("loaded environment file", "path", envPath)
	}

	gin.SetMode(getEnv("GIN_MODE", gin.ReleaseMode))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Initialize(filepath.Join(*configDir, "tbwo.yaml"))
	if err != nil {
		log.Error("failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	dbConfig, err := storage.LoadConfigFromEnv()
	if err != nil {
		log.Error("failed to load storage config", "error", err)
		os.Exit(1)
	}

	dbClient, err := storage.NewClient(ctx, dbConfig)
	if err != nil {
		log.Error("failed to connect to storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.Error("error closing storage client", "error", err)
		}
	}()
	log.Info("connected to storage")

	store := tbworder.NewStore()
	persistor := storage.NewPersistor(dbClient)
	syncer := storage.NewSyncer(store, persistor, log.With("component", "syncer"))

	if err := syncer.LoadAll(ctx); err != nil {
		log.Error("failed to load persisted work orders", "error", err)
		os.Exit(1)
	}
	go syncer.Run(ctx)

	contracts := contract.NewService()
	messageBus := bus.New()
	updates := updatestream.New()
	pool := podpool.New()

	modelBaseURL := getEnv("MODEL_SERVICE_URL", "http://localhost:8081")
	toolBaseURL := getEnv("TOOL_SERVICE_URL", "http://localhost:8082")
	httpClient := &http.Client{Timeout: 2 * time.Minute}

	model := modelclient.NewHTTPClient(modelBaseURL, httpClient)
	tools := tooldispatch.NewHTTPDispatcher(toolBaseURL, httpClient)

	e := engine.New(store, contracts, messageBus, updates, pool, model, tools, clock.Real{})

	server := api.NewServer(e, store, updates)

	log.Info("starting tbwo", "addr", cfg.Server.Addr)
	if err := server.Run(ctx, api.RunOptions{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}
