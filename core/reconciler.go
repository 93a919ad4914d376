package core

import (
	"context"
	"fmt"
	"strings"
)

// Reconciler translates a declared webhook set into registry client calls.
// It keeps no state between calls, so replaying the same set replays the
// same sequence of remote calls.
type Reconciler struct {
	client   RegistryClient
	resolver HandlerResolver
}

func NewReconciler(client RegistryClient, resolver HandlerResolver) (*Reconciler, error) {
	if client == nil {
		return nil, fmt.Errorf("core: registry client is required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("core: handler resolver is required")
	}
	return &Reconciler{client: client, resolver: resolver}, nil
}

// Plan derives every spec up front. Any invalid declaration, or a topic
// declared twice, fails the whole plan.
func (r *Reconciler) Plan(declarations []Declaration) ([]RegistrationSpec, error) {
	if len(declarations) == 0 {
		return nil, nil
	}
	specs := make([]RegistrationSpec, 0, len(declarations))
	seen := make(map[string]int, len(declarations))
	for index, declaration := range declarations {
		spec, err := DeriveSpec(declaration, r.resolver)
		if err != nil {
			return nil, err
		}
		key := normalizeTopic(spec.Topic)
		if first, exists := seen[key]; exists {
			return nil, duplicateTopicError(spec.Topic, first, index)
		}
		seen[key] = index
		specs = append(specs, spec)
	}
	return specs, nil
}

// AddAll registers every declaration in order, stopping at the first remote
// failure. Nothing is sent when the plan fails. Clients implementing
// RegistrationResetter are reset first, so topics dropped from the declared
// set do not linger.
func (r *Reconciler) AddAll(ctx context.Context, declarations []Declaration) error {
	if len(declarations) == 0 {
		return nil
	}
	specs, err := r.Plan(declarations)
	if err != nil {
		return err
	}
	if resetter, ok := r.client.(RegistrationResetter); ok {
		if err := resetter.ResetRegistrations(ctx); err != nil {
			return remoteRegistrationError(err, "reset_registrations", "", -1)
		}
	}
	for index, spec := range specs {
		if err := r.client.AddRegistration(ctx, spec); err != nil {
			return remoteRegistrationError(err, "add_registration", spec.Topic, index)
		}
	}
	return nil
}

// DestroyAll unregisters every declared topic in order for session. Topics
// are not deduplicated.
func (r *Reconciler) DestroyAll(ctx context.Context, declarations []Declaration, session Session) error {
	if len(declarations) == 0 {
		return nil
	}
	topics := make([]string, 0, len(declarations))
	for index, declaration := range declarations {
		topic := strings.TrimSpace(declaration.Topic)
		if topic == "" {
			return invalidDeclarationError("core: webhook topic is required", map[string]any{"index": index})
		}
		topics = append(topics, topic)
	}
	for index, topic := range topics {
		if err := r.client.Unregister(ctx, topic, session); err != nil {
			return remoteRegistrationError(err, "unregister", topic, index)
		}
	}
	return nil
}
