package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-webhook-lifecycle/core"
	sqlstore "github.com/goliatone/go-webhook-lifecycle/store/sql"

	"gopkg.in/yaml.v3"
)

const (
	defaultConfigPath = "webhooks.yaml"
	defaultListenAddr = ":8080"

	envAccessToken   = "WEBHOOKS_ACCESS_TOKEN"
	envWebhookSecret = "WEBHOOKS_SECRET"
	envDatabaseDSN   = "WEBHOOKS_DATABASE_DSN"
)

// Config is the operator configuration read from the YAML file passed with
// --config.
type Config struct {
	ServiceName   string             `yaml:"service_name"`
	AppURL        string             `yaml:"app_url"`
	APIVersion    string             `yaml:"api_version"`
	AdminBaseURL  string             `yaml:"admin_base_url"`
	Shop          string             `yaml:"shop"`
	AccessToken   string             `yaml:"access_token"`
	WebhookSecret string             `yaml:"webhook_secret"`
	Listen        string             `yaml:"listen"`
	LogLevel      string             `yaml:"log_level"`
	Database      sqlstore.Config    `yaml:"database"`
	Cache         CacheConfig        `yaml:"cache"`
	Webhooks      []core.Declaration `yaml:"webhooks"`
}

type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "webhooks",
		Listen:      defaultListenAddr,
		LogLevel:    "info",
		Database: sqlstore.Config{
			Driver: "sqlite",
			DSN:    "file:webhooks.db?_fk=1",
		},
	}
}

// LoadConfig reads path on top of DefaultConfig. Secrets may come from the
// environment instead of the file; the environment wins.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	path = strings.TrimSpace(path)
	if path == "" {
		path = defaultConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config file %s not found", path)
		}
		return Config{}, fmt.Errorf("error reading config from %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("error loading config from %s: %w", path, err)
	}

	if value := strings.TrimSpace(os.Getenv(envAccessToken)); value != "" {
		config.AccessToken = value
	}
	if value := strings.TrimSpace(os.Getenv(envWebhookSecret)); value != "" {
		config.WebhookSecret = value
	}
	if value := strings.TrimSpace(os.Getenv(envDatabaseDSN)); value != "" {
		config.Database.DSN = value
	}

	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

func (c Config) Validate() error {
	appURL := strings.TrimSpace(c.AppURL)
	if appURL == "" {
		return fmt.Errorf("app_url is required")
	}
	parsed, err := url.Parse(appURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("app_url must be an absolute URL: %q", appURL)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	seen := make(map[string]struct{}, len(c.Webhooks))
	for index, declaration := range c.Webhooks {
		topic := strings.ToLower(strings.TrimSpace(declaration.Topic))
		if topic == "" {
			return fmt.Errorf("webhooks[%d]: topic is required", index)
		}
		if _, ok := seen[topic]; ok {
			return fmt.Errorf("webhooks[%d]: duplicate topic %q", index, declaration.Topic)
		}
		seen[topic] = struct{}{}
	}
	return nil
}

// Session builds the shop session for remote calls. A non-empty shop
// overrides the configured one.
func (c Config) Session(shop string) (core.Session, error) {
	if strings.TrimSpace(shop) == "" {
		shop = c.Shop
	}
	session := core.Session{
		Shop:        strings.TrimSpace(shop),
		AccessToken: strings.TrimSpace(c.AccessToken),
	}
	if session.Shop == "" {
		return core.Session{}, fmt.Errorf("a shop is required: set shop in the config or pass --shop")
	}
	return session, nil
}
