// Command treadmarkd runs the treadmark daemon in the foreground, for
// systemd-style deployments that do not go through the CLI launcher.
package main

import (
	"context"
	"flag"
	"log"

	"treadmark/internal/config"
	"treadmark/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	diagnostic := flag.Bool("diagnostic", false, "enable verbose diagnostic logging")
	flag.Parse()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("ensure directories: %v", err)
	}

	opts := daemonrun.Options{
		LogLevel:   resolveLogLevel(cfg, *diagnostic),
		Diagnostic: *diagnostic,
	}
	if err := daemonrun.Run(context.Background(), cfg, opts); err != nil {
		log.Fatalf("daemon exited: %v", err)
	}
}
