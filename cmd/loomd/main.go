package main

import (
	"context"
	"flag"
	"log"

	"loom/internal/config"
	"loom/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	socketPath := flag.String("socket", "", "IPC socket path override")
	logLevel := flag.String("log-level", "", "log level override (debug|info|warn|error)")
	diagnostic := flag.Bool("diagnostic", false, "force debug logging with source locations")
	flag.Parse()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{
		SocketPath: *socketPath,
		LogLevel:   *logLevel,
		Diagnostic: *diagnostic,
	}); err != nil {
		log.Fatalf("loomd: %v", err)
	}
}
