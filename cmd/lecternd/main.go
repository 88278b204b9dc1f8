package main

import (
	"context"
	"errors"
	"flag"
	"log"

	"lectern/internal/config"
	"lectern/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "Configuration file path")
	logLevel := flag.String("log-level", "", "Override logging.level")
	development := flag.Bool("dev", false, "Include source locations in log output")
	flag.Parse()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	err = daemonrun.Run(context.Background(), cfg, daemonrun.Options{
		LogLevel:    *logLevel,
		Development: *development,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("lecternd: %v", err)
	}
}
