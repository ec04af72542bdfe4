/**
 * @description
 * This package handles the configuration management for the service. It uses
 * the Viper library to read configuration from environment variables,
 * providing a centralized and straightforward way to manage application
 * settings. Secrets for the payment gateway are checked at bootstrap: running
 * without them would mean unauthenticated gateway calls or an unverifiable
 * webhook, so their absence is a fatal configuration error.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"errors"
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the listings-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	EventExchange        string `mapstructure:"ENTITLEMENT_EVENT_EXCHANGE"`

	GatewayAPIBaseURL    string `mapstructure:"GATEWAY_API_BASE_URL"`
	GatewayAPIKey        string `mapstructure:"GATEWAY_API_KEY"`
	GatewayWebhookSecret string `mapstructure:"GATEWAY_WEBHOOK_SECRET"`

	IdentityJWKSURL         string `mapstructure:"IDENTITY_JWKS_URL"`
	IdentityAPIBaseURL      string `mapstructure:"IDENTITY_API_BASE_URL"`
	IdentityAPIKey          string `mapstructure:"IDENTITY_API_KEY"`
	IdentitySyncIntervalMin int    `mapstructure:"IDENTITY_SYNC_INTERVAL_MINUTES"`

	UpgradeFeeMZN             int64 `mapstructure:"UPGRADE_FEE_MZN"`
	UpgradeQuotaCredit        int   `mapstructure:"UPGRADE_QUOTA_CREDIT"`
	DefaultListingQuota       int   `mapstructure:"DEFAULT_LISTING_QUOTA"`
	UpgradeRateLimitPerMinute int   `mapstructure:"UPGRADE_RATE_LIMIT_PER_MINUTE"`
}

// ErrMissingGatewayConfig is returned when a gateway credential is absent.
// The service must fail closed rather than run unauthenticated.
var ErrMissingGatewayConfig = errors.New("gateway api key, base url and webhook secret must be configured")

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "rentspot:rate_limit")
	viper.SetDefault("ENTITLEMENT_EVENT_EXCHANGE", "rentspot.events")
	viper.SetDefault("GATEWAY_API_BASE_URL", "https://nhonga.net")
	viper.SetDefault("IDENTITY_SYNC_INTERVAL_MINUTES", 30)
	viper.SetDefault("UPGRADE_FEE_MZN", 200)
	viper.SetDefault("UPGRADE_QUOTA_CREDIT", 3)
	viper.SetDefault("DEFAULT_LISTING_QUOTA", 1)
	viper.SetDefault("UPGRADE_RATE_LIMIT_PER_MINUTE", 5)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("ENTITLEMENT_EVENT_EXCHANGE")
	_ = viper.BindEnv("GATEWAY_API_BASE_URL")
	_ = viper.BindEnv("GATEWAY_API_KEY", "GATEWAY_API_KEY", "NHONGA_API_KEY")
	_ = viper.BindEnv("GATEWAY_WEBHOOK_SECRET", "GATEWAY_WEBHOOK_SECRET", "NHONGA_SECRET_KEY")
	_ = viper.BindEnv("IDENTITY_JWKS_URL")
	_ = viper.BindEnv("IDENTITY_API_BASE_URL")
	_ = viper.BindEnv("IDENTITY_API_KEY")
	_ = viper.BindEnv("IDENTITY_SYNC_INTERVAL_MINUTES")
	_ = viper.BindEnv("UPGRADE_FEE_MZN")
	_ = viper.BindEnv("UPGRADE_QUOTA_CREDIT")
	_ = viper.BindEnv("DEFAULT_LISTING_QUOTA")
	_ = viper.BindEnv("UPGRADE_RATE_LIMIT_PER_MINUTE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.GatewayAPIKey = strings.TrimSpace(config.GatewayAPIKey)
	config.GatewayWebhookSecret = strings.TrimSpace(config.GatewayWebhookSecret)
	config.GatewayAPIBaseURL = strings.TrimRight(strings.TrimSpace(config.GatewayAPIBaseURL), "/")
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "rentspot:rate_limit"
	}

	if config.UpgradeFeeMZN <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive upgrade fee configured; using default\" fee_mzn=%d", config.UpgradeFeeMZN)
		config.UpgradeFeeMZN = 200
	}
	if config.UpgradeQuotaCredit <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive quota credit configured; using default\" credit=%d", config.UpgradeQuotaCredit)
		config.UpgradeQuotaCredit = 3
	}
	if config.DefaultListingQuota <= 0 {
		config.DefaultListingQuota = 1
	}
	if config.IdentitySyncIntervalMin <= 0 {
		config.IdentitySyncIntervalMin = 30
	}

	return
}

// ValidateGateway reports whether the gateway credentials are present. Called
// from main so the service refuses to boot into an unauthenticated state.
func (c Config) ValidateGateway() error {
	if c.GatewayAPIKey == "" || c.GatewayWebhookSecret == "" || c.GatewayAPIBaseURL == "" {
		return ErrMissingGatewayConfig
	}
	return nil
}
