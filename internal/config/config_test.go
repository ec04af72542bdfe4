package config

import (
	"testing"

	"github.com/spf13/viper"
)

func setEnvWithCleanup(t *testing.T, key, value string) {
	t.Helper()
	t.Setenv(key, value)
}

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadConfigDefaults(t *testing.T) {
	resetViper(t)
	setEnvWithCleanup(t, "DATABASE_URL", "postgres://localhost/rentspot")
	setEnvWithCleanup(t, "GATEWAY_API_KEY", "key")
	setEnvWithCleanup(t, "GATEWAY_WEBHOOK_SECRET", "secret")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.ServerPort != "8080" {
		t.Errorf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if cfg.UpgradeFeeMZN != 200 {
		t.Errorf("expected default upgrade fee 200, got %d", cfg.UpgradeFeeMZN)
	}
	if cfg.UpgradeQuotaCredit != 3 {
		t.Errorf("expected default quota credit 3, got %d", cfg.UpgradeQuotaCredit)
	}
	if cfg.DefaultListingQuota != 1 {
		t.Errorf("expected default listing quota 1, got %d", cfg.DefaultListingQuota)
	}
	if cfg.RedisRateLimitPrefix != "rentspot:rate_limit" {
		t.Errorf("unexpected rate limit prefix %q", cfg.RedisRateLimitPrefix)
	}
	if err := cfg.ValidateGateway(); err != nil {
		t.Errorf("expected gateway config to validate, got %v", err)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	resetViper(t)
	setEnvWithCleanup(t, "SERVER_PORT", "9090")
	setEnvWithCleanup(t, "UPGRADE_FEE_MZN", "350")
	setEnvWithCleanup(t, "UPGRADE_QUOTA_CREDIT", "5")
	setEnvWithCleanup(t, "GATEWAY_API_BASE_URL", "https://gateway.example.com/")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.ServerPort != "9090" {
		t.Errorf("expected port 9090, got %q", cfg.ServerPort)
	}
	if cfg.UpgradeFeeMZN != 350 {
		t.Errorf("expected upgrade fee 350, got %d", cfg.UpgradeFeeMZN)
	}
	if cfg.UpgradeQuotaCredit != 5 {
		t.Errorf("expected quota credit 5, got %d", cfg.UpgradeQuotaCredit)
	}
	if cfg.GatewayAPIBaseURL != "https://gateway.example.com" {
		t.Errorf("expected trailing slash trimmed, got %q", cfg.GatewayAPIBaseURL)
	}
}

func TestLoadConfigCoercesInvalidValues(t *testing.T) {
	resetViper(t)
	setEnvWithCleanup(t, "UPGRADE_FEE_MZN", "-10")
	setEnvWithCleanup(t, "UPGRADE_QUOTA_CREDIT", "0")
	setEnvWithCleanup(t, "DEFAULT_LISTING_QUOTA", "-1")
	setEnvWithCleanup(t, "IDENTITY_SYNC_INTERVAL_MINUTES", "0")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.UpgradeFeeMZN != 200 {
		t.Errorf("expected fee coerced to 200, got %d", cfg.UpgradeFeeMZN)
	}
	if cfg.UpgradeQuotaCredit != 3 {
		t.Errorf("expected credit coerced to 3, got %d", cfg.UpgradeQuotaCredit)
	}
	if cfg.DefaultListingQuota != 1 {
		t.Errorf("expected default quota coerced to 1, got %d", cfg.DefaultListingQuota)
	}
	if cfg.IdentitySyncIntervalMin != 30 {
		t.Errorf("expected sync interval coerced to 30, got %d", cfg.IdentitySyncIntervalMin)
	}
}

func TestValidateGatewayFailsClosed(t *testing.T) {
	cfg := Config{GatewayAPIBaseURL: "https://gateway.example.com", GatewayAPIKey: "", GatewayWebhookSecret: "secret"}
	if err := cfg.ValidateGateway(); err == nil {
		t.Fatal("expected missing api key to fail validation")
	}

	cfg = Config{GatewayAPIBaseURL: "https://gateway.example.com", GatewayAPIKey: "key", GatewayWebhookSecret: ""}
	if err := cfg.ValidateGateway(); err == nil {
		t.Fatal("expected missing webhook secret to fail validation")
	}
}
