// Package lifecycle keeps a shop's webhook subscriptions in line with the
// webhooks an application declares, and routes inbound deliveries to the
// handler registered for their topic.
package lifecycle

import "github.com/goliatone/go-webhook-lifecycle/core"

type Config = core.Config

type Option = core.Option

type Manager = core.Manager

type ManagerDependencies = core.ManagerDependencies

type Declaration = core.Declaration
type RegistrationSpec = core.RegistrationSpec
type RegistrationRecord = core.RegistrationRecord
type Session = core.Session
type Delivery = core.Delivery
type DeliveryMethod = core.DeliveryMethod
type RecreateState = core.RecreateState

type WebhookHandler = core.WebhookHandler
type WebhookHandlerFunc = core.WebhookHandlerFunc
type HandlerResolver = core.HandlerResolver
type HandlerRegistry = core.HandlerRegistry
type RegistryClient = core.RegistryClient
type BootstrapHook = core.BootstrapHook
type ConfigurationProvider = core.ConfigurationProvider
type RegistrationStore = core.RegistrationStore
type MetricsRecorder = core.MetricsRecorder
type StateListener = core.StateListener

var (
	WithLogger                = core.WithLogger
	WithLoggerProvider        = core.WithLoggerProvider
	WithMetricsRecorder       = core.WithMetricsRecorder
	WithErrorMapper           = core.WithErrorMapper
	WithConfigProvider        = core.WithConfigProvider
	WithOptionsResolver       = core.WithOptionsResolver
	WithConfigurationProvider = core.WithConfigurationProvider
	WithRegistryClient        = core.WithRegistryClient
	WithHandlerResolver       = core.WithHandlerResolver
	WithBootstrapHook         = core.WithBootstrapHook
	WithStateListener         = core.WithStateListener
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	return core.NewManager(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Manager, error) {
	return core.Setup(cfg, opts...)
}

func NewHandlerRegistry() *HandlerRegistry {
	return core.NewHandlerRegistry()
}

func NewMemoryRegistrationStore() *core.MemoryRegistrationStore {
	return core.NewMemoryRegistrationStore()
}
