// Package main implements the wormhole tunnel server.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/nyxwell/wormhole/internal/config"
	"github.com/nyxwell/wormhole/internal/server"
	"github.com/nyxwell/wormhole/internal/version"
)

func main() {
	controlAddr := flag.String("control", "", "Control port address for tunnel client connections (overrides CONTROL_ADDR)")
	visitorAddr := flag.String("visitor", "", "Visitor port address for public traffic (overrides VISITOR_ADDR)")
	domain := flag.String("domain", "", "Base domain for tunnels; enables automatic TLS (overrides DOMAIN)")
	certDir := flag.String("certs", "", "Directory to cache TLS certificates (overrides CERT_CACHE_DIR)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("wormhole-server " + version.Full())
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *controlAddr != "" {
		cfg.ControlAddr = *controlAddr
	}
	if *visitorAddr != "" {
		cfg.VisitorAddr = *visitorAddr
	}
	if *domain != "" {
		cfg.Domain = *domain
	}
	if *certDir != "" {
		cfg.CertCacheDir = *certDir
	}

	if config.StandaloneMode() {
		slog.Warn("SECRET_KEY not set, running in standalone mode with a generated key",
			"note", "clients must be configured with this process's key out-of-band")
	}

	srv := server.New(cfg)
	if err := srv.Run(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
