package webhooks

import (
	"context"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-lifecycle/core"
)

// DeliveryDecoder turns a verified inbound request into a typed delivery.
type DeliveryDecoder func(req core.InboundRequest) (core.Delivery, error)

// TopicRouter dispatches a delivery to the handler registered for its topic.
type TopicRouter struct {
	Resolver core.HandlerResolver
	Decode   DeliveryDecoder
}

func NewTopicRouter(resolver core.HandlerResolver, decode DeliveryDecoder) *TopicRouter {
	return &TopicRouter{Resolver: resolver, Decode: decode}
}

func (r *TopicRouter) Handle(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if r == nil || r.Resolver == nil {
		return core.InboundResult{}, webhookInternal("webhooks: topic router requires a handler resolver", nil)
	}
	decode := r.Decode
	if decode == nil {
		decode = DefaultDeliveryDecoder
	}
	delivery, err := decode(req)
	if err != nil {
		return core.InboundResult{}, webhookWrapError(
			err,
			goerrors.CategoryBadInput,
			"webhooks: decode delivery",
			http.StatusBadRequest,
			core.WebhookErrorBadInput,
			map[string]any{"provider_id": req.ProviderID},
		)
	}

	handler, ok := r.Resolver.Resolve(delivery.Topic)
	if !ok || handler == nil {
		return core.InboundResult{}, webhookError(
			"webhooks: no handler registered for delivery topic",
			goerrors.CategoryNotFound,
			http.StatusNotFound,
			core.WebhookErrorNotFound,
			map[string]any{"topic": delivery.Topic, "shop": delivery.ShopDomain},
		)
	}
	if err := handler.HandleWebhook(ctx, delivery); err != nil {
		return core.InboundResult{}, err
	}
	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata: map[string]any{
			"topic": delivery.Topic,
			"shop":  delivery.ShopDomain,
		},
	}, nil
}

// DefaultDeliveryDecoder reads the topic and shop from request metadata.
func DefaultDeliveryDecoder(req core.InboundRequest) (core.Delivery, error) {
	topic := metadataString(req.Metadata, "topic")
	if topic == "" {
		return core.Delivery{}, webhookBadInput("webhooks: delivery topic is required", nil)
	}
	deliveryID, _ := DefaultDeliveryIDExtractor(req)
	return core.Delivery{
		Topic:      topic,
		ShopDomain: metadataString(req.Metadata, "shop"),
		WebhookID:  deliveryID,
		Body:       req.Body,
		Headers:    req.Headers,
	}, nil
}

func metadataString(metadata map[string]any, key string) string {
	if len(metadata) == 0 {
		return ""
	}
	value, ok := metadata[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

var _ Handler = (*TopicRouter)(nil)
