// Package main implements the wormhole reference client.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nyxwell/wormhole/internal/client"
	"github.com/nyxwell/wormhole/internal/protocol"
	"github.com/nyxwell/wormhole/internal/version"
)

var (
	configPath  string
	serverAddr  string
	subdomain   string
	anonymous   bool
	secretKey   string
	debug       bool
	noReconnect bool
	maxRetries  int
)

// Config represents the client configuration file.
type Config struct {
	Server     string `yaml:"server"`
	SecretKey  string `yaml:"secret_key"`
	Subdomain  string `yaml:"subdomain"`
	Anonymous  *bool  `yaml:"anonymous"`
	Debug      *bool  `yaml:"debug"`
	Reconnect  *bool  `yaml:"reconnect"`
	MaxRetries *int   `yaml:"max_retries"`
}

// loadConfig loads configuration from the config file.
// Returns nil if no config file exists.
func loadConfig(path string) (*Config, error) {
	// If no explicit path, use default ~/.wormhole.yaml
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, nil
		}
		path = filepath.Join(home, ".wormhole.yaml")
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return &cfg, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "wormhole",
		Short: "Expose local services to the internet",
		Long:  `wormhole is a lightweight tunnel that exposes local services to the public internet.`,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("wormhole " + version.Full())
		},
	}

	httpCmd := &cobra.Command{
		Use:   "http <port> or http <host:port>",
		Short: "Expose a local HTTP service",
		Long: `Expose a local HTTP service to the internet.

Examples:
  wormhole http 3000                      # Expose localhost:3000
  wormhole http 8080 -s myapp             # Expose localhost:8080 with subdomain "myapp"
  wormhole http localhost:8080            # Expose localhost:8080
  wormhole http 192.168.1.10:3000         # Expose a service on your network`,
		Args: cobra.ExactArgs(1),
		Run:  runHTTP,
	}

	httpCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ~/.wormhole.yaml)")
	httpCmd.Flags().StringVarP(&serverAddr, "server", "S", "tunnel.example.com:5000", "Tunnel server control address")
	httpCmd.Flags().StringVarP(&subdomain, "subdomain", "s", "", "Preferred subdomain (random if not specified)")
	httpCmd.Flags().BoolVar(&anonymous, "anonymous", false, "Treat the subdomain as a prefix hint instead of an exclusive claim")
	httpCmd.Flags().StringVarP(&secretKey, "secret-key", "k", "", "Shared secret used to sign the client hello")
	httpCmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	httpCmd.Flags().BoolVar(&noReconnect, "no-reconnect", false, "Disable automatic reconnection")
	httpCmd.Flags().IntVar(&maxRetries, "max-retries", 0, "Maximum reconnection attempts (0 = unlimited)")

	rootCmd.AddCommand(httpCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runHTTP(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	if cfg != nil {
		if cfg.Server != "" && !cmd.Flags().Changed("server") {
			serverAddr = cfg.Server
		}
		if cfg.SecretKey != "" && !cmd.Flags().Changed("secret-key") {
			secretKey = cfg.SecretKey
		}
		if cfg.Subdomain != "" && !cmd.Flags().Changed("subdomain") {
			subdomain = cfg.Subdomain
		}
		if cfg.Anonymous != nil && !cmd.Flags().Changed("anonymous") {
			anonymous = *cfg.Anonymous
		}
		if cfg.Debug != nil && !cmd.Flags().Changed("debug") {
			debug = *cfg.Debug
		}
		if cfg.Reconnect != nil && !cmd.Flags().Changed("no-reconnect") {
			noReconnect = !*cfg.Reconnect
		}
		if cfg.MaxRetries != nil && !cmd.Flags().Changed("max-retries") {
			maxRetries = *cfg.MaxRetries
		}
	}

	if debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}

	if secretKey == "" {
		fmt.Fprintln(os.Stderr, "Error: a secret key is required (--secret-key or secret_key in the config file)")
		os.Exit(1)
	}

	localAddr := args[0]
	if !strings.Contains(localAddr, ":") {
		localAddr = "localhost:" + localAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := client.New(serverAddr, localAddr, protocol.SecretKey(secretKey)).
		WithReconnect(!noReconnect).
		WithMaxRetries(maxRetries).
		WithAnonymous(anonymous)

	if subdomain != "" {
		c = c.WithSubdomain(subdomain)
	}

	err = c.RunWithReconnect(ctx)

	if errors.Is(err, client.ErrShutdown) {
		log.Info("Shutting down...")
		return
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
