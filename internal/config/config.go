// Package config loads server-side settings from the environment,
// following the getenv-with-default convention used throughout the
// example corpus rather than a config file (a client-facing YAML config
// lives alongside the reference CLI client instead).
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/nyxwell/wormhole/internal/protocol"
)

// Config holds the server's environment-derived settings.
type Config struct {
	ControlAddr         string
	VisitorAddr         string
	ACMEHTTPAddr        string
	Domain              string
	CertCacheDir        string
	SecretKey           protocol.SecretKey
	AllowedHosts        []string
	AllowUnknownClients bool
}

// Load reads Config from the environment. When SECRET_KEY is unset, a
// random key is generated for the lifetime of the process and a warning
// is logged by the caller — this is "standalone mode", useful for local
// development but unable to validate clients across restarts.
func Load() (Config, error) {
	cfg := Config{
		ControlAddr:  getEnv("CONTROL_ADDR", ":5000"),
		VisitorAddr:  getEnv("VISITOR_ADDR", ":8080"),
		ACMEHTTPAddr: getEnv("ACME_HTTP_ADDR", ":80"),
		Domain:       getEnv("DOMAIN", ""),
		CertCacheDir: getEnv("CERT_CACHE_DIR", "./cert-cache"),
		AllowedHosts: splitAndTrim(getEnv("ALLOWED_HOSTS", "")),
		AllowUnknownClients: getEnvBool("ALLOW_UNKNOWN_CLIENTS", false),
	}

	if raw := os.Getenv("SECRET_KEY"); raw != "" {
		cfg.SecretKey = protocol.SecretKey(raw)
		return cfg, nil
	}

	key, err := protocol.GenerateSecretKey()
	if err != nil {
		return Config{}, err
	}
	cfg.SecretKey = key
	return cfg, nil
}

// StandaloneMode reports whether SECRET_KEY was absent from the
// environment, meaning cfg.SecretKey was generated for this process run
// only.
func StandaloneMode() bool {
	return os.Getenv("SECRET_KEY") == ""
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
