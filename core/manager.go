package core

import (
	"context"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Manager is the webhook lifecycle controller. It is built once at startup
// and holds no per-call state.
type Manager struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configuration   ConfigurationProvider
	registryClient  RegistryClient
	handlerResolver HandlerResolver
	bootstrapHook   BootstrapHook
	stateListener   StateListener
	reconciler      *Reconciler
}

type ManagerDependencies struct {
	Logger                LoggerProvider
	MetricsRecorder       MetricsRecorder
	ConfigurationProvider ConfigurationProvider
	RegistryClient        RegistryClient
	HandlerResolver       HandlerResolver
	BootstrapHook         BootstrapHook
}

func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	builder := defaultManagerBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("webhooks", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("webhooks"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.handlerResolver == nil {
		builder.handlerResolver = NewHandlerRegistry()
	}
	if builder.registryClient == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: registry client is required"))
	}
	if builder.bootstrapHook == nil {
		if hook, ok := builder.registryClient.(BootstrapHook); ok {
			builder.bootstrapHook = hook
		}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	if builder.configuration == nil {
		builder.configuration = NewStaticConfigurationProvider(finalConfig.Webhooks...)
	}

	reconciler, err := NewReconciler(builder.registryClient, builder.handlerResolver)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	return &Manager{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		configuration:   builder.configuration,
		registryClient:  builder.registryClient,
		handlerResolver: builder.handlerResolver,
		bootstrapHook:   builder.bootstrapHook,
		stateListener:   builder.stateListener,
		reconciler:      reconciler,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Manager, error) {
	return NewManager(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (m *Manager) Config() Config {
	if m == nil {
		return Config{}
	}
	return m.config.Clone()
}

func (m *Manager) Dependencies() ManagerDependencies {
	if m == nil {
		return ManagerDependencies{}
	}
	return ManagerDependencies{
		Logger:                m.loggerProvider,
		MetricsRecorder:       m.metricsRecorder,
		ConfigurationProvider: m.configuration,
		RegistryClient:        m.registryClient,
		HandlerResolver:       m.handlerResolver,
		BootstrapHook:         m.bootstrapHook,
	}
}

func (m *Manager) Reconciler() *Reconciler {
	if m == nil {
		return nil
	}
	return m.reconciler
}

// CurrentDeclarations returns the declared set as the next operation would
// see it.
func (m *Manager) CurrentDeclarations(ctx context.Context) ([]Declaration, error) {
	if m == nil {
		return nil, fmt.Errorf("core: manager is nil")
	}
	declarations, err := m.currentDeclarations(ctx)
	if err != nil {
		return nil, m.mapError(err)
	}
	return declarations, nil
}

// PlanRegistrations derives the registration specs for the current
// declarations without calling the registry client.
func (m *Manager) PlanRegistrations(ctx context.Context) ([]RegistrationSpec, error) {
	if m == nil || m.reconciler == nil {
		return nil, fmt.Errorf("core: manager is not initialized")
	}
	declarations, err := m.currentDeclarations(ctx)
	if err != nil {
		return nil, m.mapError(err)
	}
	specs, err := m.reconciler.Plan(declarations)
	if err != nil {
		return nil, m.mapError(err)
	}
	return specs, nil
}

// AddRegistrations registers every currently declared webhook.
func (m *Manager) AddRegistrations(ctx context.Context) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		m.observeOperation(ctx, startedAt, "add_registrations", err, fields)
	}()
	if m == nil || m.reconciler == nil {
		return fmt.Errorf("core: manager is not initialized")
	}

	declarations, err := m.currentDeclarations(ctx)
	if err != nil {
		return m.mapError(err)
	}
	fields["declarations"] = len(declarations)
	if err = m.reconciler.AddAll(ctx, declarations); err != nil {
		return m.mapError(err)
	}
	return nil
}

// DestroyWebhooks unregisters every currently declared topic for session.
func (m *Manager) DestroyWebhooks(ctx context.Context, session Session) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"shop": session.Shop}
	defer func() {
		m.observeOperation(ctx, startedAt, "destroy_webhooks", err, fields)
	}()
	if m == nil || m.reconciler == nil {
		return fmt.Errorf("core: manager is not initialized")
	}

	declarations, err := m.currentDeclarations(ctx)
	if err != nil {
		return m.mapError(err)
	}
	fields["declarations"] = len(declarations)
	if err = m.reconciler.DestroyAll(ctx, declarations, session); err != nil {
		return m.mapError(err)
	}
	return nil
}

// RecreateWebhooks destroys, re-adds and bootstraps the declared set for
// session, strictly in that order. It does nothing when no webhooks are
// declared. A failing step stops the sequence; completed steps are not
// rolled back.
//
// The bootstrap hook is called once per run. A manager built without one,
// and whose registry client is not a BootstrapHook, passes through the
// Bootstrapping state without a remote call.
func (m *Manager) RecreateWebhooks(ctx context.Context, session Session) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"shop": session.Shop}
	defer func() {
		m.observeOperation(ctx, startedAt, "recreate_webhooks", err, fields)
	}()
	if m == nil || m.reconciler == nil {
		return fmt.Errorf("core: manager is not initialized")
	}

	hasWebhooks, err := m.hasWebhooks(ctx)
	if err != nil {
		return m.mapError(err)
	}
	if !hasWebhooks {
		fields["skipped"] = true
		return nil
	}

	run := &recreateRun{manager: m, state: RecreateStateIdle, shop: session.Shop}
	defer func() {
		if err != nil {
			run.transition(ctx, RecreateStateFailed)
		}
		fields["state"] = string(run.state)
	}()

	run.transition(ctx, RecreateStateDestroying)
	if err = m.DestroyWebhooks(ctx, session); err != nil {
		return err
	}

	run.transition(ctx, RecreateStateRegistering)
	if err = m.AddRegistrations(ctx); err != nil {
		return err
	}

	run.transition(ctx, RecreateStateBootstrapping)
	if m.bootstrapHook == nil {
		m.logger.Debug("webhook bootstrap skipped, no hook configured", "shop", session.Shop)
	} else if hookErr := m.bootstrapHook.CreateWebhooks(ctx, session); hookErr != nil {
		err = m.mapError(bootstrapError(hookErr, session.Shop))
		return err
	}

	run.transition(ctx, RecreateStateIdle)
	return nil
}

func (m *Manager) currentDeclarations(ctx context.Context) ([]Declaration, error) {
	if m.configuration == nil {
		return nil, nil
	}
	declarations, err := m.configuration.CurrentWebhookDeclarations(ctx)
	if err != nil {
		return nil, configurationError(err)
	}
	return declarations, nil
}

func (m *Manager) hasWebhooks(ctx context.Context) (bool, error) {
	if m.configuration == nil {
		return false, nil
	}
	ok, err := m.configuration.HasWebhooks(ctx)
	if err != nil {
		return false, configurationError(err)
	}
	return ok, nil
}

func (m *Manager) mapError(err error) error {
	if err == nil {
		return nil
	}
	if m == nil || m.errorMapper == nil {
		return err
	}
	mapped := m.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

type recreateRun struct {
	manager *Manager
	state   RecreateState
	shop    string
}

func (r *recreateRun) transition(ctx context.Context, next RecreateState) {
	from := r.state
	if from == next {
		return
	}
	r.state = next
	r.manager.logDebug(ctx, "recreate_webhooks state changed", map[string]any{
		"shop": r.shop,
		"from": string(from),
		"to":   string(next),
	})
	if r.manager.stateListener != nil {
		r.manager.stateListener(ctx, from, next)
	}
}
