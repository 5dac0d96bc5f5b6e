package config

import (
	"os"
	"testing"
)

func withEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if had {
			os.Setenv(key, old)
		} else {
			os.Unsetenv(key)
		}
	})
}

func TestLoadDefaults(t *testing.T) {
	withEnv(t, "SECRET_KEY", "")
	os.Unsetenv("SECRET_KEY")
	withEnv(t, "ALLOWED_HOSTS", "")
	os.Unsetenv("ALLOWED_HOSTS")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ControlAddr != ":5000" {
		t.Errorf("unexpected default control addr: %q", cfg.ControlAddr)
	}
	if cfg.VisitorAddr != ":8080" {
		t.Errorf("unexpected default visitor addr: %q", cfg.VisitorAddr)
	}
	if len(cfg.SecretKey) == 0 {
		t.Errorf("expected a generated secret key in standalone mode")
	}
	if !StandaloneMode() {
		t.Errorf("expected standalone mode when SECRET_KEY is unset")
	}
}

func TestLoadParsesAllowedHostsAndSecret(t *testing.T) {
	withEnv(t, "SECRET_KEY", "shared-secret")
	withEnv(t, "ALLOWED_HOSTS", " foo.com, bar.com ,")
	withEnv(t, "ALLOW_UNKNOWN_CLIENTS", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(cfg.SecretKey) != "shared-secret" {
		t.Errorf("expected configured secret key to be used")
	}
	if StandaloneMode() {
		t.Errorf("should not be standalone mode when SECRET_KEY is set")
	}
	want := []string{"foo.com", "bar.com"}
	if len(cfg.AllowedHosts) != len(want) {
		t.Fatalf("got %v, want %v", cfg.AllowedHosts, want)
	}
	for i := range want {
		if cfg.AllowedHosts[i] != want[i] {
			t.Errorf("got %v, want %v", cfg.AllowedHosts, want)
		}
	}
	if !cfg.AllowUnknownClients {
		t.Errorf("expected ALLOW_UNKNOWN_CLIENTS=true to be parsed")
	}
}
