package carrier

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// FedexProductionAPIURL is the production API endpoint
	FedexProductionAPIURL = "https://apis.fedex.com"
	// FedexSandboxAPIURL is the sandbox API endpoint
	FedexSandboxAPIURL = "https://apis-sandbox.fedex.com"

	// tokenSkew is subtracted from the server-reported token lifetime
	tokenSkew = 60 * time.Second
)

// Errors for FedEx configuration
var (
	ErrFedexConfigMissingAPIKey        = errors.New("fedex: api key is required")
	ErrFedexConfigMissingSecretKey     = errors.New("fedex: secret key is required")
	ErrFedexConfigMissingAccountNumber = errors.New("fedex: account number is required")
	ErrFedexConfigInvalidEnvironment   = errors.New("fedex: environment must be sandbox or production")
)

// FedexConfig holds the credentials for the FedEx REST API
type FedexConfig struct {
	APIKey        string
	SecretKey     string
	AccountNumber string
	// BaseURL overrides the environment default
	BaseURL     string
	Environment string
	Timeout     time.Duration
}

// LoadFedexConfigFromEnv reads FEDEX_* variables. The bool result is false
// when any required credential is missing.
func LoadFedexConfigFromEnv() (*FedexConfig, bool) {
	v := viper.New()
	v.SetEnvPrefix("FEDEX")
	for _, key := range []string{"api_key", "secret_key", "account_number", "base_url", "environment", "timeout"} {
		_ = v.BindEnv(key)
	}
	v.SetDefault("environment", "sandbox")
	v.SetDefault("timeout", "15s")

	cfg := &FedexConfig{
		APIKey:        strings.TrimSpace(v.GetString("api_key")),
		SecretKey:     strings.TrimSpace(v.GetString("secret_key")),
		AccountNumber: strings.TrimSpace(v.GetString("account_number")),
		BaseURL:       strings.TrimRight(strings.TrimSpace(v.GetString("base_url")), "/"),
		Environment:   strings.ToLower(strings.TrimSpace(v.GetString("environment"))),
		Timeout:       v.GetDuration("timeout"),
	}
	if err := cfg.Validate(); err != nil {
		return cfg, false
	}
	return cfg, true
}

// Validate validates the configuration and fills defaults
func (c *FedexConfig) Validate() error {
	if c.APIKey == "" {
		return ErrFedexConfigMissingAPIKey
	}
	if c.SecretKey == "" {
		return ErrFedexConfigMissingSecretKey
	}
	if c.AccountNumber == "" {
		return ErrFedexConfigMissingAccountNumber
	}
	switch c.Environment {
	case "", "sandbox":
		c.Environment = "sandbox"
	case "production":
	default:
		return ErrFedexConfigInvalidEnvironment
	}
	if c.BaseURL == "" {
		if c.Environment == "production" {
			c.BaseURL = FedexProductionAPIURL
		} else {
			c.BaseURL = FedexSandboxAPIURL
		}
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	return nil
}
