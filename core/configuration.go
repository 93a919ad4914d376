package core

import (
	"context"
	"sync"
)

// StaticConfigurationProvider holds declarations in memory. Configure
// replaces the set atomically; readers always see a copy.
type StaticConfigurationProvider struct {
	mu     sync.RWMutex
	config Config
}

func NewStaticConfigurationProvider(declarations ...Declaration) *StaticConfigurationProvider {
	cfg := DefaultConfig()
	cfg.Webhooks = cloneDeclarations(declarations)
	return &StaticConfigurationProvider{config: cfg}
}

func (p *StaticConfigurationProvider) Configure(fn func(cfg *Config)) {
	if p == nil || fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	next := p.config.Clone()
	fn(&next)
	p.config = next.Clone()
}

func (p *StaticConfigurationProvider) Config() Config {
	if p == nil {
		return Config{}
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config.Clone()
}

func (p *StaticConfigurationProvider) CurrentWebhookDeclarations(context.Context) ([]Declaration, error) {
	if p == nil {
		return nil, nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneDeclarations(p.config.Webhooks), nil
}

func (p *StaticConfigurationProvider) HasWebhooks(context.Context) (bool, error) {
	if p == nil {
		return false, nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.config.Webhooks) > 0, nil
}

// CfgxConfigurationProvider rebuilds the Config from its loader on every
// call, so edits to the underlying source are picked up without a restart.
type CfgxConfigurationProvider struct {
	Loader   RawConfigLoader
	Defaults Config
}

func NewCfgxConfigurationProvider(loader RawConfigLoader) *CfgxConfigurationProvider {
	return &CfgxConfigurationProvider{Loader: loader, Defaults: DefaultConfig()}
}

func (p *CfgxConfigurationProvider) CurrentWebhookDeclarations(ctx context.Context) ([]Declaration, error) {
	cfg, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	return cfg.Webhooks, nil
}

func (p *CfgxConfigurationProvider) HasWebhooks(ctx context.Context) (bool, error) {
	cfg, err := p.load(ctx)
	if err != nil {
		return false, err
	}
	return len(cfg.Webhooks) > 0, nil
}

func (p *CfgxConfigurationProvider) load(ctx context.Context) (Config, error) {
	if p == nil {
		return DefaultConfig(), nil
	}
	defaults := p.Defaults
	if defaults.ServiceName == "" {
		defaults = DefaultConfig()
	}
	return NewCfgxConfigProvider(p.Loader).Load(ctx, defaults)
}

var (
	_ ConfigurationProvider = (*StaticConfigurationProvider)(nil)
	_ ConfigurationProvider = (*CfgxConfigurationProvider)(nil)
)
