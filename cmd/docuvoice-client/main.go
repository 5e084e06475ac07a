package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"docuvoice-client-go/internal/bootstrap"
	platformconfig "docuvoice-client-go/internal/platform/config"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	doctor := flag.Bool("doctor", false, "print a host readiness report and exit")
	flag.Parse()

	if *doctor {
		loader := platformconfig.NewLoader()
		if *configPath != "" {
			loader = loader.WithPath(*configPath)
		}
		result, err := loader.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "docuvoice-client: %v\n", err)
			os.Exit(1)
		}
		bootstrap.Doctor(os.Stdout, result.Config)
		return
	}

	if err := bootstrap.Run(context.Background(), bootstrap.Options{ConfigPath: *configPath}); err != nil {
		fmt.Fprintf(os.Stderr, "docuvoice-client: %v\n", err)
		os.Exit(1)
	}
}
