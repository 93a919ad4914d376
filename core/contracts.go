package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// WebhookHandler processes one inbound delivery for the topic it was
// registered under.
type WebhookHandler interface {
	HandleWebhook(ctx context.Context, delivery Delivery) error
}

type WebhookHandlerFunc func(ctx context.Context, delivery Delivery) error

func (f WebhookHandlerFunc) HandleWebhook(ctx context.Context, delivery Delivery) error {
	return f(ctx, delivery)
}

// HandlerResolver maps a topic to its handler. A missing handler is reported
// with ok=false, never with a nil handler and ok=true.
type HandlerResolver interface {
	Resolve(topic string) (WebhookHandler, bool)
}

// RegistryClient is the remote (or in-process) webhook registry.
type RegistryClient interface {
	AddRegistration(ctx context.Context, spec RegistrationSpec) error
	Unregister(ctx context.Context, topic string, session Session) error
}

// RegistrationResetter is implemented by registry clients that keep a table
// of added specs. The reconciler clears it once per non-empty add cycle,
// after planning and before the first AddRegistration.
type RegistrationResetter interface {
	ResetRegistrations(ctx context.Context) error
}

// BootstrapHook pushes the currently registered set to the platform for a shop.
type BootstrapHook interface {
	CreateWebhooks(ctx context.Context, session Session) error
}

type BootstrapHookFunc func(ctx context.Context, session Session) error

func (f BootstrapHookFunc) CreateWebhooks(ctx context.Context, session Session) error {
	return f(ctx, session)
}

// ConfigurationProvider supplies the declared webhook set. Implementations
// must return the current set on every call.
type ConfigurationProvider interface {
	CurrentWebhookDeclarations(ctx context.Context) ([]Declaration, error)
	HasWebhooks(ctx context.Context) (bool, error)
}

type StateListener func(ctx context.Context, from RecreateState, to RecreateState)

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type InboundRequest struct {
	ProviderID string
	Path       string
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type InboundResult struct {
	Accepted   bool
	StatusCode int
	Metadata   map[string]any
}

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Metadata             map[string]any
	Timeout              time.Duration
	Idempotency          string
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

// RegistrationRecord is the persisted view of a remote subscription created
// for a shop.
type RegistrationRecord struct {
	ID             string
	Shop           string
	Topic          string
	Path           string
	CallbackURL    string
	RemoteID       string
	DeliveryMethod DeliveryMethod
	Status         string
	Metadata       map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

const (
	RegistrationStatusActive  = "active"
	RegistrationStatusRemoved = "removed"
)

type RegistrationStore interface {
	Upsert(ctx context.Context, record RegistrationRecord) (RegistrationRecord, error)
	Get(ctx context.Context, shop string, topic string) (RegistrationRecord, error)
	ListByShop(ctx context.Context, shop string) ([]RegistrationRecord, error)
	MarkRemoved(ctx context.Context, shop string, topic string) error
}
