package core

import (
	"fmt"
	"net/url"
	"strings"
)

type Config struct {
	ServiceName string        `koanf:"service_name" mapstructure:"service_name" yaml:"service_name"`
	AppURL      string        `koanf:"app_url" mapstructure:"app_url" yaml:"app_url"`
	Webhooks    []Declaration `koanf:"webhooks" mapstructure:"webhooks" yaml:"webhooks"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "webhooks",
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if appURL := strings.TrimSpace(c.AppURL); appURL != "" {
		parsed, err := url.Parse(appURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("core: app_url is invalid: %q", appURL)
		}
	}
	return nil
}

func (c Config) Clone() Config {
	out := c
	out.Webhooks = cloneDeclarations(c.Webhooks)
	return out
}
