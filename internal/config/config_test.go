package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BUDDY_CONFIG", t.TempDir())
	t.Setenv("BUDDY_ENV", "")
	t.Setenv("PAGE_SIZE", "")
	t.Setenv("HTTP_TIMEOUT", "")
	t.Setenv("CREDENTIAL_STORE_URL", "")

	cfg := Load()
	if !cfg.IsDevelopment() {
		t.Fatalf("expected development env, got %q", cfg.Env)
	}
	if cfg.PageSize != 10 {
		t.Fatalf("expected page size 10, got %d", cfg.PageSize)
	}
	if cfg.HTTPTimeout != 0 {
		t.Fatalf("expected no HTTP timeout by default, got %s", cfg.HTTPTimeout)
	}
	if cfg.ReconnectDelay != time.Second || cfg.ReconnectAttempts != 5 {
		t.Fatalf("unexpected reconnect policy: %s x%d", cfg.ReconnectDelay, cfg.ReconnectAttempts)
	}
	if cfg.CredentialStoreURL[:7] != "file://" {
		t.Fatalf("expected file credential store, got %q", cfg.CredentialStoreURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BUDDY_CONFIG", t.TempDir())
	t.Setenv("BUDDY_API_URL", "http://localhost:9000/api/v1/")
	t.Setenv("RECONNECT_DELAY", "250ms")
	t.Setenv("PAGE_SIZE", "-3")

	cfg := Load()
	if cfg.APIURL != "http://localhost:9000/api/v1" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.APIURL)
	}
	if cfg.PageSize != 10 {
		t.Fatalf("expected invalid page size to fall back to 10, got %d", cfg.PageSize)
	}
	if cfg.ReconnectDelay != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %s", cfg.ReconnectDelay)
	}
}

func TestLoadProductionRequiresKey(t *testing.T) {
	t.Setenv("BUDDY_CONFIG", t.TempDir())
	t.Setenv("BUDDY_ENV", "production")
	t.Setenv("CREDENTIAL_STORE_URL", "")
	t.Setenv("CREDENTIAL_KEY", "")

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic without CREDENTIAL_KEY in production")
		}
	}()
	Load()
}
