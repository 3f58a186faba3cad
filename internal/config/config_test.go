package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DISPATCH_TIMEOUT", "DISPATCH_CALL_TIMEOUT", "SESSION_TTL", "HISTORY_SIZE", "OPENAI_API_KEY"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Fatalf("expected :8080, got %s", cfg.Server.Addr)
	}
	if cfg.Dispatch.GlobalTimeout != 60*time.Second {
		t.Fatalf("unexpected global timeout %s", cfg.Dispatch.GlobalTimeout)
	}
	if cfg.Dispatch.CallTimeout != 45*time.Second {
		t.Fatalf("unexpected call timeout %s", cfg.Dispatch.CallTimeout)
	}
	if cfg.Session.TTL != 30*time.Minute {
		t.Fatalf("unexpected session ttl %s", cfg.Session.TTL)
	}
	if cfg.Providers.OpenAI.Enabled() {
		t.Fatalf("openai should be disabled without an API key")
	}
}

func TestLoadDurations(t *testing.T) {
	t.Setenv("DISPATCH_TIMEOUT", "20")
	t.Setenv("DISPATCH_CALL_TIMEOUT", "1m")
	t.Setenv("SESSION_TTL", "90s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Dispatch.GlobalTimeout != 20*time.Second {
		t.Fatalf("unexpected global timeout %s", cfg.Dispatch.GlobalTimeout)
	}
	if cfg.Dispatch.CallTimeout != 20*time.Second {
		t.Fatalf("call timeout should be clamped to the global timeout, got %s", cfg.Dispatch.CallTimeout)
	}
	if cfg.Session.TTL != 90*time.Second {
		t.Fatalf("unexpected session ttl %s", cfg.Session.TTL)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"PORT":             "80 80",
		"DISPATCH_TIMEOUT": "soon",
		"SESSION_TTL":      "-5s",
		"SESSION_PREWARM":  "maybe",
		"HISTORY_SIZE":     "many",
	}

	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", key, value)
			}
		})
	}
}

func TestServerAddrAcceptsHostPort(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Fatalf("unexpected addr %s", cfg.Server.Addr)
	}
}
