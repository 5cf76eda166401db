package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pomfarm/farmsystem/farmsystem"
	"github.com/pomfarm/farmsystem/farmsystem/database"
	"github.com/pomfarm/farmsystem/farmsystem/logger"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	path := flag.String("config", "config.toml", "path to config")
	sweepOnce := flag.Bool("sweep-once", false, "run a single settlement sweep and exit")
	flag.Parse()

	cfg, err := farmsystem.LoadConfig(*path)
	if err != nil {
		logger.LogError("Failed to load configuration", err)
		os.Exit(-1)
	}

	customHandler := logger.NewHandler(cfg.Log.Level)
	slog.SetDefault(slog.New(customHandler))

	logger.LogSystem("Starting farm system service",
		slog.String("version", version),
		slog.String("commit", commit))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dbStartTime := time.Now()
	db, err := database.New(ctx, cfg.DB)
	if err != nil {
		logger.LogError("Database connection failed", err,
			slog.Duration("attempted_for", time.Since(dbStartTime)))
		os.Exit(-1)
	}

	logger.LogSystem("Database connected successfully",
		slog.String("database", cfg.DB.Database),
		slog.Duration("took", time.Since(dbStartTime)))

	if err := db.InitializeSchema(ctx); err != nil {
		logger.LogError("Failed to initialize database schema", err)
		os.Exit(-1)
	}
	logger.LogSystem("Database schema initialized successfully")

	app := farmsystem.New(*cfg, version, commit)
	app.DB = db
	if err := app.Setup(nil); err != nil {
		logger.LogError("Failed to set up service", err)
		os.Exit(-1)
	}
	defer app.Shutdown()

	if *sweepOnce {
		n, err := app.Scheduler.RunOnce(ctx)
		if err != nil {
			logger.LogError("Manual sweep failed", err)
			os.Exit(-1)
		}
		logger.LogSystem("Manual sweep finished", slog.Int("completed", n))
		return
	}

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	app.Start(runCtx)

	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM)
	<-s
	logger.LogSystem("Shutting down farm system service...")
}
