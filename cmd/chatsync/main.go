package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/app"
	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/config"
	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/logger"
)

var (
	buildVersion string
	buildDate    string
	buildCommit  string
)

func main() {
	printBuildInfo()

	cfg, err := config.GetConfig()
	if err != nil {
		logger.NewLogger("chatsync", "info").Fatal().Err(err).Msg("error getting configs")
	}
	log := logger.NewLogger("chatsync", cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init sync engine error")
	}

	if err = engine.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("sync engine run error")
	}
}

func printBuildInfo() {
	if buildVersion == "" {
		buildVersion = "N/A"
	}
	if buildDate == "" {
		buildDate = "N/A"
	}
	if buildCommit == "" {
		buildCommit = "N/A"
	}

	fmt.Printf("Build version: %s\n", buildVersion)
	fmt.Printf("Build date: %s\n", buildDate)
	fmt.Printf("Build commit: %s\n", buildCommit)
}
