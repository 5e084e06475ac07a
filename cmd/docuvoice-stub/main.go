package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	platformconfig "docuvoice-client-go/internal/platform/config"
	platformlogging "docuvoice-client-go/internal/platform/logging"
	"docuvoice-client-go/internal/stub"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	loader := platformconfig.NewLoader()
	if *configPath != "" {
		loader = loader.WithPath(*configPath)
	}
	result, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "docuvoice-stub: %v\n", err)
		os.Exit(1)
	}
	cfg := result.Config

	logger, err := platformlogging.NewLogger(&platformlogging.LogCfg{
		LogLevel: cfg.Log.Level,
		LogDir:   cfg.Log.Dir,
		LogFile:  "stub.log",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "docuvoice-stub: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := stub.NewServer(cfg.Stub, logger).Run(ctx); err != nil {
		logger.ErrorTag("STUB", "server failed: %v", err)
		os.Exit(1)
	}
}
