package config

import (
	"os"
	"strings"
	"testing"
)

func TestLoadFromReaderAppliesDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(`server:
  listen_addr: ":9999"
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":9999" {
		t.Fatalf("got %q, want :9999", cfg.Server.ListenAddr)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Fatalf("got %d, want default 16000 preserved", cfg.Audio.SampleRate)
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("totally_unknown_key: 1\n"))
	if err == nil {
		t.Fatal("expected error for unknown top-level field")
	}
}

func TestExpandEnvResolvesAPIKey(t *testing.T) {
	os.Setenv("HALO_TEST_KEY", "secret-value")
	defer os.Unsetenv("HALO_TEST_KEY")

	cfg, err := LoadFromReader(strings.NewReader(`providers:
  llm:
    name: openai
    api_key: "${HALO_TEST_KEY}"
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.LLM.APIKey != "secret-value" {
		t.Fatalf("got %q, want secret-value", cfg.Providers.LLM.APIKey)
	}
}

func TestValidateRejectsRedisBackendWithoutAddr(t *testing.T) {
	cfg := Defaults()
	cfg.Server.InterruptBackend = "redis"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("defaults must validate cleanly: %v", err)
	}
}
