package core

import (
	"fmt"
	"strings"
)

// OAuthClientConfig holds the registered app credentials for one provider.
type OAuthClientConfig struct {
	ClientID     string `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret string `koanf:"client_secret" mapstructure:"client_secret"`
	RedirectURI  string `koanf:"redirect_uri" mapstructure:"redirect_uri"`
	// LoginURL is the authorization host. Salesforce uses it for both the
	// authorize and token endpoints; QuickBooks ignores it.
	LoginURL string `koanf:"login_url" mapstructure:"login_url"`
}

type SecurityConfig struct {
	EncryptionKey string `koanf:"encryption_key" mapstructure:"encryption_key"`
	Environment   string `koanf:"environment" mapstructure:"environment"`
}

type StorageConfig struct {
	TokenFilePath string `koanf:"token_file_path" mapstructure:"token_file_path"`
}

type SchedulerConfig struct {
	ReconcileCron string `koanf:"reconcile_cron" mapstructure:"reconcile_cron"`
}

type Config struct {
	ServiceName string            `koanf:"service_name" mapstructure:"service_name"`
	Salesforce  OAuthClientConfig `koanf:"salesforce" mapstructure:"salesforce"`
	QuickBooks  OAuthClientConfig `koanf:"quickbooks" mapstructure:"quickbooks"`
	Security    SecurityConfig    `koanf:"security" mapstructure:"security"`
	Storage     StorageConfig     `koanf:"storage" mapstructure:"storage"`
	Scheduler   SchedulerConfig   `koanf:"scheduler" mapstructure:"scheduler"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "credentials",
		Salesforce: OAuthClientConfig{
			LoginURL: "https://login.salesforce.com",
		},
		Security: SecurityConfig{
			Environment: "development",
		},
		Storage: StorageConfig{
			TokenFilePath: "tokens.enc",
		},
		Scheduler: SchedulerConfig{
			ReconcileCron: "0 */2 * * *",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.Storage.TokenFilePath) == "" {
		return fmt.Errorf("core: storage.token_file_path is required")
	}
	if isProductionEnvironment(c.Security.Environment) && strings.TrimSpace(c.Security.EncryptionKey) == "" {
		return fmt.Errorf("core: security.encryption_key is required in production")
	}
	return nil
}

func isProductionEnvironment(environment string) bool {
	switch strings.ToLower(strings.TrimSpace(environment)) {
	case "production", "prod":
		return true
	default:
		return false
	}
}
