package llm

import (
	"os"
	"testing"

	"github.com/loopr-dev/loopr/internal/config"
)

func TestResolveAuthDirectAPIKey(t *testing.T) {
	cfg := config.ProviderConfig{Driver: "anthropic", Auth: config.AuthConfig{APIKey: "sk-direct"}}
	auth, err := ResolveAuth(cfg)
	if err != nil {
		t.Fatalf("ResolveAuth: %v", err)
	}
	if auth.Kind != AuthAPIKey || auth.Value != "sk-direct" {
		t.Fatalf("unexpected auth: %+v", auth)
	}
}

func TestResolveAuthDirectToken(t *testing.T) {
	cfg := config.ProviderConfig{Driver: "openai", Auth: config.AuthConfig{Token: "tok-direct"}}
	auth, err := ResolveAuth(cfg)
	if err != nil {
		t.Fatalf("ResolveAuth: %v", err)
	}
	if auth.Kind != AuthBearerToken || auth.Value != "tok-direct" {
		t.Fatalf("unexpected auth: %+v", auth)
	}
}

func TestResolveAuthEnvTemplate(t *testing.T) {
	os.Setenv("MY_CUSTOM_KEY", "expanded-value")
	defer os.Unsetenv("MY_CUSTOM_KEY")

	cfg := config.ProviderConfig{Driver: "openai", Auth: config.AuthConfig{APIKey: "${MY_CUSTOM_KEY}"}}
	auth, err := ResolveAuth(cfg)
	if err != nil {
		t.Fatalf("ResolveAuth: %v", err)
	}
	if auth.Value != "expanded-value" {
		t.Fatalf("expected expanded value, got %q", auth.Value)
	}
}

func TestResolveAuthDriverDefaultEnv(t *testing.T) {
	os.Setenv("ANTHROPIC_API_KEY", "default-env-key")
	defer os.Unsetenv("ANTHROPIC_API_KEY")

	cfg := config.ProviderConfig{Driver: "anthropic"}
	auth, err := ResolveAuth(cfg)
	if err != nil {
		t.Fatalf("ResolveAuth: %v", err)
	}
	if auth.Kind != AuthAPIKey || auth.Value != "default-env-key" {
		t.Fatalf("unexpected auth: %+v", auth)
	}
}

func TestResolveAuthUnresolvable(t *testing.T) {
	os.Unsetenv("OPENAI_API_KEY")
	cfg := config.ProviderConfig{Driver: "openai"}
	if _, err := ResolveAuth(cfg); err == nil {
		t.Fatal("expected error when no auth is resolvable")
	}
}

func TestResolveAuthUnknownDriver(t *testing.T) {
	cfg := config.ProviderConfig{Driver: "unknown-driver"}
	if _, err := ResolveAuth(cfg); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
