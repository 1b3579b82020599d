package main

import (
	"flag"
	"log"

	"go.uber.org/zap"

	"github.com/gptkong/ip-quality-dashboard/internal/config"
	"github.com/gptkong/ip-quality-dashboard/internal/logger"
	"github.com/gptkong/ip-quality-dashboard/internal/server"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	defer zl.Sync()

	zl.Info("ip-quality-dashboard starting", zap.String("version", version))

	if err := server.Start(cfg, zl, version); err != nil {
		zl.Fatal("server error", zap.Error(err))
	}
}
