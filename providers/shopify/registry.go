package shopify

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-webhook-lifecycle/core"
	"github.com/goliatone/go-webhook-lifecycle/transport"
)

const (
	RegisterOperationCreate = "create"
	RegisterOperationUpdate = "update"
	RegisterOperationNoop   = "noop"
	RegisterOperationDelete = "delete"
)

const webhookSubscriptionsQuery = `query webhookSubscriptions($topics: [WebhookSubscriptionTopic!]) {
  webhookSubscriptions(first: 25, topics: $topics) {
    edges {
      node {
        id
        topic
        filter
        includeFields
        metafieldNamespaces
        endpoint {
          __typename
          ... on WebhookHttpEndpoint {
            callbackUrl
          }
        }
      }
    }
  }
}`

const webhookSubscriptionCreateMutation = `mutation webhookSubscriptionCreate($topic: WebhookSubscriptionTopic!, $webhookSubscription: WebhookSubscriptionInput!) {
  webhookSubscriptionCreate(topic: $topic, webhookSubscription: $webhookSubscription) {
    webhookSubscription {
      id
    }
    userErrors {
      field
      message
    }
  }
}`

const webhookSubscriptionUpdateMutation = `mutation webhookSubscriptionUpdate($id: ID!, $webhookSubscription: WebhookSubscriptionInput!) {
  webhookSubscriptionUpdate(id: $id, webhookSubscription: $webhookSubscription) {
    webhookSubscription {
      id
    }
    userErrors {
      field
      message
    }
  }
}`

const webhookSubscriptionDeleteMutation = `mutation webhookSubscriptionDelete($id: ID!) {
  webhookSubscriptionDelete(id: $id) {
    deletedWebhookSubscriptionId
    userErrors {
      field
      message
    }
  }
}`

type RegistryConfig struct {
	AppURL     string
	APIVersion string
	// AdminBaseURL overrides the https://<shop> origin of the Admin API.
	AdminBaseURL string
	Client       transport.HTTPDoer
	Store        core.RegistrationStore
	Logger       core.Logger
}

// RegisterResult reports what RegisterAll did for one topic.
type RegisterResult struct {
	Topic     string
	Operation string
	RemoteID  string
	Success   bool
	Err       error
}

// Registry records registration specs locally and mirrors them as Admin API
// webhook subscriptions. It is both the RegistryClient and the BootstrapHook
// of a lifecycle Manager.
type Registry struct {
	appURL       string
	apiVersion   string
	adminBaseURL string
	graphql      *transport.GraphQLAdapter
	store        core.RegistrationStore
	logger       core.Logger

	mu     sync.RWMutex
	specs  map[string]core.RegistrationSpec
	topics []string
}

func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	appURL := strings.TrimSpace(cfg.AppURL)
	parsed, err := url.Parse(appURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, goerrors.New("providers/shopify: registry requires an absolute app_url", goerrors.CategoryValidation).
			WithCode(http.StatusBadRequest).
			WithTextCode(core.WebhookErrorBadInput).
			WithMetadata(map[string]any{"app_url": appURL})
	}
	apiVersion := strings.TrimSpace(cfg.APIVersion)
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	logger := cfg.Logger
	if logger == nil {
		logger = glog.Nop()
	}
	return &Registry{
		appURL:       strings.TrimRight(appURL, "/"),
		apiVersion:   apiVersion,
		adminBaseURL: strings.TrimSpace(cfg.AdminBaseURL),
		graphql:      transport.NewGraphQLAdapter("", cfg.Client),
		store:        cfg.Store,
		logger:       logger,
		specs:        map[string]core.RegistrationSpec{},
	}, nil
}

// AddRegistration records spec under its topic. Re-adding a topic replaces
// the previous spec and keeps its position.
func (r *Registry) AddRegistration(_ context.Context, spec core.RegistrationSpec) error {
	topic := strings.TrimSpace(spec.Topic)
	if topic == "" || strings.TrimSpace(spec.Path) == "" {
		return goerrors.New("providers/shopify: registration requires topic and path", goerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).
			WithTextCode(core.WebhookErrorBadInput).
			WithMetadata(map[string]any{"topic": spec.Topic, "path": spec.Path})
	}
	spec = spec.Clone()
	spec.Topic = topic

	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(topic)
	if _, exists := r.specs[key]; !exists {
		r.topics = append(r.topics, key)
	}
	r.specs[key] = spec
	return nil
}

// ResetRegistrations clears the recorded specs. The reconciler calls it before
// each add cycle so the table only holds currently declared topics.
func (r *Registry) ResetRegistrations(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.specs = map[string]core.RegistrationSpec{}
	r.topics = nil
	return nil
}

func (r *Registry) dropRegistration(topic string) {
	key := strings.ToLower(strings.TrimSpace(topic))

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.specs[key]; !exists {
		return
	}
	delete(r.specs, key)
	for i, existing := range r.topics {
		if existing == key {
			r.topics = append(r.topics[:i], r.topics[i+1:]...)
			break
		}
	}
}

// Registrations returns the recorded specs in first-added order.
func (r *Registry) Registrations() []core.RegistrationSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]core.RegistrationSpec, 0, len(r.topics))
	for _, key := range r.topics {
		out = append(out, r.specs[key].Clone())
	}
	return out
}

// RegistrationStore returns the store remote ids are recorded in, or nil.
func (r *Registry) RegistrationStore() core.RegistrationStore {
	if r == nil {
		return nil
	}
	return r.store
}

// CreateWebhooks registers every recorded spec for the session's shop.
func (r *Registry) CreateWebhooks(ctx context.Context, session core.Session) error {
	_, err := r.RegisterAll(ctx, session)
	return err
}

// RegisterAll creates or updates one remote subscription per recorded spec,
// then deletes stored active subscriptions whose topic is no longer recorded.
// Every topic is attempted and the returned error aggregates the failures.
func (r *Registry) RegisterAll(ctx context.Context, session core.Session) ([]RegisterResult, error) {
	if err := session.Validate(); err != nil {
		return nil, err
	}
	endpoint, err := r.endpoint(session.Shop)
	if err != nil {
		return nil, err
	}

	specs := r.Registrations()
	results := make([]RegisterResult, 0, len(specs))
	var failures []error
	var failedTopics []string
	for _, spec := range specs {
		result := r.register(ctx, endpoint, session, spec)
		results = append(results, result)
		if result.Err != nil {
			failures = append(failures, result.Err)
			failedTopics = append(failedTopics, spec.Topic)
			r.logger.Error("shopify webhook registration failed", "shop", session.Shop, "topic", spec.Topic, "error", result.Err)
			continue
		}
		r.logger.Info("shopify webhook registered", "shop", session.Shop, "topic", spec.Topic, "operation", result.Operation)
	}
	for _, result := range r.pruneStale(ctx, session, specs) {
		results = append(results, result)
		if result.Err != nil {
			failures = append(failures, result.Err)
			failedTopics = append(failedTopics, result.Topic)
		}
	}
	if len(failures) > 0 {
		return results, goerrors.Wrap(errors.Join(failures...), goerrors.CategoryExternal, "providers/shopify: webhook registration failed").
			WithCode(http.StatusBadGateway).
			WithTextCode(core.WebhookErrorExternalFailure).
			WithMetadata(map[string]any{"shop": session.Shop, "failed_topics": failedTopics})
	}
	return results, nil
}

// pruneStale unregisters stored active subscriptions for topics missing from
// specs. An empty table prunes nothing.
func (r *Registry) pruneStale(ctx context.Context, session core.Session, specs []core.RegistrationSpec) []RegisterResult {
	if r.store == nil || len(specs) == 0 {
		return nil
	}
	records, err := r.store.ListByShop(ctx, session.Shop)
	if err != nil {
		r.logger.Error("shopify webhook records not listed", "shop", session.Shop, "error", err)
		return nil
	}
	declared := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		declared[strings.ToLower(spec.Topic)] = struct{}{}
	}

	var results []RegisterResult
	for _, record := range records {
		if record.Status != core.RegistrationStatusActive {
			continue
		}
		if _, ok := declared[strings.ToLower(strings.TrimSpace(record.Topic))]; ok {
			continue
		}
		result := RegisterResult{Topic: record.Topic, Operation: RegisterOperationDelete, RemoteID: record.RemoteID}
		if err := r.Unregister(ctx, record.Topic, session); err != nil {
			result.Err = err
			r.logger.Error("shopify stale webhook not deleted", "shop", session.Shop, "topic", record.Topic, "error", err)
		} else {
			result.Success = true
		}
		results = append(results, result)
	}
	return results
}

// Unregister deletes the remote subscription for topic and drops the topic
// from the recorded specs. A subscription that does not exist remotely is not
// an error.
func (r *Registry) Unregister(ctx context.Context, topic string, session core.Session) error {
	if err := session.Validate(); err != nil {
		return err
	}
	topic = strings.TrimSpace(topic)
	endpoint, err := r.endpoint(session.Shop)
	if err != nil {
		return err
	}
	r.dropRegistration(topic)

	remoteID := r.storedRemoteID(ctx, session.Shop, topic)
	if remoteID == "" {
		existing, found, err := r.lookup(ctx, endpoint, session, topic)
		if err != nil {
			return err
		}
		if !found {
			r.logger.Debug("shopify webhook not registered, nothing to delete", "shop", session.Shop, "topic", topic)
			r.markRemoved(ctx, session.Shop, topic)
			return nil
		}
		remoteID = existing.ID
	}

	var payload struct {
		WebhookSubscriptionDelete struct {
			DeletedWebhookSubscriptionID string                `json:"deletedWebhookSubscriptionId"`
			UserErrors                   []transport.UserError `json:"userErrors"`
		} `json:"webhookSubscriptionDelete"`
	}
	if err := r.graphql.Execute(ctx, transport.GraphQLRequest{
		Endpoint:      endpoint,
		Query:         webhookSubscriptionDeleteMutation,
		OperationName: "webhookSubscriptionDelete",
		Variables:     map[string]any{"id": remoteID},
		Headers:       authHeaders(session),
	}, &payload); err != nil {
		return err
	}
	if err := transport.UserErrorsError("webhookSubscriptionDelete", payload.WebhookSubscriptionDelete.UserErrors); err != nil {
		return err
	}
	r.markRemoved(ctx, session.Shop, topic)
	r.logger.Info("shopify webhook deleted", "shop", session.Shop, "topic", topic, "remote_id", remoteID)
	return nil
}

type subscriptionNode struct {
	ID                  string   `json:"id"`
	Topic               string   `json:"topic"`
	Filter              string   `json:"filter"`
	IncludeFields       []string `json:"includeFields"`
	MetafieldNamespaces []string `json:"metafieldNamespaces"`
	Endpoint            struct {
		TypeName    string `json:"__typename"`
		CallbackURL string `json:"callbackUrl"`
	} `json:"endpoint"`
}

type subscriptionMutationPayload struct {
	WebhookSubscription *struct {
		ID string `json:"id"`
	} `json:"webhookSubscription"`
	UserErrors []transport.UserError `json:"userErrors"`
}

func (r *Registry) register(ctx context.Context, endpoint string, session core.Session, spec core.RegistrationSpec) RegisterResult {
	result := RegisterResult{Topic: spec.Topic}
	callback := CallbackURL(r.appURL, spec.Path)

	existing, found, err := r.lookup(ctx, endpoint, session, spec.Topic)
	if err != nil {
		result.Err = err
		return result
	}

	var remoteID string
	switch {
	case found && subscriptionMatches(existing, spec, callback):
		result.Operation = RegisterOperationNoop
		remoteID = existing.ID
	case found:
		result.Operation = RegisterOperationUpdate
		remoteID, err = r.mutate(ctx, endpoint, session, "webhookSubscriptionUpdate", webhookSubscriptionUpdateMutation, map[string]any{
			"id":                  existing.ID,
			"webhookSubscription": subscriptionUpdateInput(spec, callback),
		})
	default:
		result.Operation = RegisterOperationCreate
		remoteID, err = r.mutate(ctx, endpoint, session, "webhookSubscriptionCreate", webhookSubscriptionCreateMutation, map[string]any{
			"topic":               TopicToGraphQL(spec.Topic),
			"webhookSubscription": subscriptionInput(spec, callback),
		})
	}
	if err != nil {
		result.Err = err
		return result
	}

	result.RemoteID = remoteID
	result.Success = true
	if r.store != nil {
		if _, err := r.store.Upsert(ctx, core.RegistrationRecord{
			Shop:           session.Shop,
			Topic:          spec.Topic,
			Path:           spec.Path,
			CallbackURL:    callback,
			RemoteID:       remoteID,
			DeliveryMethod: spec.DeliveryMethod,
			Status:         core.RegistrationStatusActive,
			Metadata:       map[string]any{"api_version": r.apiVersion, "operation": result.Operation},
		}); err != nil {
			r.logger.Error("shopify webhook record not saved", "shop", session.Shop, "topic", spec.Topic, "error", err)
		}
	}
	return result
}

func (r *Registry) mutate(
	ctx context.Context,
	endpoint string,
	session core.Session,
	operation string,
	query string,
	variables map[string]any,
) (string, error) {
	payload := map[string]subscriptionMutationPayload{}
	if err := r.graphql.Execute(ctx, transport.GraphQLRequest{
		Endpoint:      endpoint,
		Query:         query,
		OperationName: operation,
		Variables:     variables,
		Headers:       authHeaders(session),
	}, &payload); err != nil {
		return "", err
	}
	result := payload[operation]
	if err := transport.UserErrorsError(operation, result.UserErrors); err != nil {
		return "", err
	}
	if result.WebhookSubscription == nil || strings.TrimSpace(result.WebhookSubscription.ID) == "" {
		return "", goerrors.New("providers/shopify: "+operation+" returned no subscription", goerrors.CategoryExternal).
			WithCode(http.StatusBadGateway).
			WithTextCode(core.WebhookErrorExternalFailure)
	}
	return result.WebhookSubscription.ID, nil
}

func (r *Registry) lookup(ctx context.Context, endpoint string, session core.Session, topic string) (subscriptionNode, bool, error) {
	var payload struct {
		WebhookSubscriptions struct {
			Edges []struct {
				Node subscriptionNode `json:"node"`
			} `json:"edges"`
		} `json:"webhookSubscriptions"`
	}
	enum := TopicToGraphQL(topic)
	if err := r.graphql.Execute(ctx, transport.GraphQLRequest{
		Endpoint:      endpoint,
		Query:         webhookSubscriptionsQuery,
		OperationName: "webhookSubscriptions",
		Variables:     map[string]any{"topics": []string{enum}},
		Headers:       authHeaders(session),
	}, &payload); err != nil {
		return subscriptionNode{}, false, err
	}
	for _, edge := range payload.WebhookSubscriptions.Edges {
		if strings.EqualFold(edge.Node.Topic, enum) {
			return edge.Node, true, nil
		}
	}
	return subscriptionNode{}, false, nil
}

func (r *Registry) storedRemoteID(ctx context.Context, shop string, topic string) string {
	if r.store == nil {
		return ""
	}
	record, err := r.store.Get(ctx, shop, topic)
	if err != nil {
		if !core.IsNotFound(err) {
			r.logger.Error("shopify webhook record lookup failed", "shop", shop, "topic", topic, "error", err)
		}
		return ""
	}
	if record.Status != core.RegistrationStatusActive {
		return ""
	}
	return strings.TrimSpace(record.RemoteID)
}

func (r *Registry) markRemoved(ctx context.Context, shop string, topic string) {
	if r.store == nil {
		return
	}
	if err := r.store.MarkRemoved(ctx, shop, topic); err != nil && !core.IsNotFound(err) {
		r.logger.Error("shopify webhook record not updated", "shop", shop, "topic", topic, "error", err)
	}
}

func (r *Registry) endpoint(shop string) (string, error) {
	endpoint, err := AdminGraphQLEndpoint(r.adminBaseURL, shop, r.apiVersion)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryBadInput, "providers/shopify: resolve admin endpoint").
			WithCode(http.StatusBadRequest).
			WithTextCode(core.WebhookErrorBadInput).
			WithMetadata(map[string]any{"shop": shop})
	}
	return endpoint, nil
}

// subscriptionInput omits unset optional fields so Shopify keeps its defaults.
func subscriptionInput(spec core.RegistrationSpec, callback string) map[string]any {
	input := map[string]any{
		"callbackUrl": callback,
		"format":      "JSON",
	}
	if spec.Fields != nil {
		input["includeFields"] = append([]string{}, spec.Fields...)
	}
	if spec.MetafieldNamespaces != nil {
		input["metafieldNamespaces"] = append([]string{}, spec.MetafieldNamespaces...)
	}
	if spec.Filter != nil {
		input["filter"] = *spec.Filter
	}
	return input
}

// subscriptionMatches reports whether the remote subscription already carries
// the spec's callback, filter, fields and metafield namespaces. An unset
// filter matches an empty one and list order is ignored.
func subscriptionMatches(node subscriptionNode, spec core.RegistrationSpec, callback string) bool {
	if node.Endpoint.CallbackURL != callback {
		return false
	}
	filter := ""
	if spec.Filter != nil {
		filter = *spec.Filter
	}
	if strings.TrimSpace(node.Filter) != strings.TrimSpace(filter) {
		return false
	}
	return sameStringSet(node.IncludeFields, spec.Fields) &&
		sameStringSet(node.MetafieldNamespaces, spec.MetafieldNamespaces)
}

func sameStringSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, value := range a {
		counts[value]++
	}
	for _, value := range b {
		if counts[value] == 0 {
			return false
		}
		counts[value]--
	}
	return true
}

// subscriptionUpdateInput sends every optional field so values cleared from
// the spec are cleared remotely too.
func subscriptionUpdateInput(spec core.RegistrationSpec, callback string) map[string]any {
	input := subscriptionInput(spec, callback)
	if _, ok := input["includeFields"]; !ok {
		input["includeFields"] = []string{}
	}
	if _, ok := input["metafieldNamespaces"]; !ok {
		input["metafieldNamespaces"] = []string{}
	}
	if _, ok := input["filter"]; !ok {
		input["filter"] = ""
	}
	return input
}

func authHeaders(session core.Session) map[string]string {
	return map[string]string{HeaderAccessToken: session.AccessToken}
}

var (
	_ core.RegistryClient       = (*Registry)(nil)
	_ core.RegistrationResetter = (*Registry)(nil)
	_ core.BootstrapHook        = (*Registry)(nil)
)
