package shopify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-webhook-lifecycle/core"
	"github.com/goliatone/go-webhook-lifecycle/webhooks"
)

const defaultWebhookReplayWindow = 5 * time.Minute

type WebhookConfig struct {
	Secret             string
	ReplayWindow       time.Duration
	Now                func() time.Time
	RequireTriggeredAt bool
}

func DefaultWebhookConfig(secret string) WebhookConfig {
	return WebhookConfig{
		Secret:       strings.TrimSpace(secret),
		ReplayWindow: defaultWebhookReplayWindow,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func NewWebhookTemplate(cfg WebhookConfig) webhooks.ProviderWebhookTemplate {
	return webhooks.ProviderWebhookTemplate{
		ProviderID: ProviderID,
		Verifier: WebhookVerifier{
			Secret:             strings.TrimSpace(cfg.Secret),
			ReplayWindow:       cfg.ReplayWindow,
			Now:                cfg.Now,
			RequireTriggeredAt: cfg.RequireTriggeredAt,
		},
		Extractor: ExtractDeliveryID,
		Decoder:   DecodeDelivery,
	}
}

// NewProcessor wires a delivery processor that verifies Shopify signatures
// and routes deliveries to the handlers resolver knows about.
func NewProcessor(cfg WebhookConfig, ledger webhooks.DeliveryLedger, resolver core.HandlerResolver) *webhooks.Processor {
	template := NewWebhookTemplate(cfg)
	processor := webhooks.NewProcessor(
		template.Verifier,
		ledger,
		webhooks.NewTopicRouter(resolver, template.Decoder),
	)
	processor.ExtractID = template.Extractor
	return processor
}

type WebhookVerifier struct {
	Secret             string
	ReplayWindow       time.Duration
	Now                func() time.Time
	RequireTriggeredAt bool
}

func (v WebhookVerifier) Verify(ctx context.Context, req core.InboundRequest) error {
	sigVerifier := webhooks.HeaderHMACVerifier{
		Header:   HeaderHMAC,
		Secret:   strings.TrimSpace(v.Secret),
		Encoding: "base64",
	}
	if err := sigVerifier.Verify(ctx, req); err != nil {
		return err
	}

	if _, err := ExtractDeliveryID(req); err != nil {
		return err
	}

	triggered := headerValue(req.Headers, HeaderTriggeredAt)
	if triggered == "" {
		if v.RequireTriggeredAt {
			return fmt.Errorf("providers/shopify: %s header is required", HeaderTriggeredAt)
		}
		return nil
	}
	triggeredAt, err := time.Parse(time.RFC3339Nano, triggered)
	if err != nil {
		return fmt.Errorf("providers/shopify: parse %s: %w", HeaderTriggeredAt, err)
	}

	now := time.Now().UTC()
	if v.Now != nil {
		now = v.Now().UTC()
	}
	window := v.ReplayWindow
	if window <= 0 {
		window = defaultWebhookReplayWindow
	}
	delta := now.Sub(triggeredAt.UTC())
	if delta < 0 {
		delta = -delta
	}
	if delta > window {
		return fmt.Errorf("providers/shopify: webhook trigger time outside replay window")
	}
	return nil
}

func ExtractDeliveryID(req core.InboundRequest) (string, error) {
	deliveryID := headerValue(req.Headers, HeaderWebhookID)
	if deliveryID == "" {
		return "", fmt.Errorf("providers/shopify: %s header is required for dedupe", HeaderWebhookID)
	}
	return deliveryID, nil
}

// DecodeDelivery reads the delivery envelope from Shopify's headers.
func DecodeDelivery(req core.InboundRequest) (core.Delivery, error) {
	topic := strings.ToLower(headerValue(req.Headers, HeaderTopic))
	if topic == "" {
		return core.Delivery{}, fmt.Errorf("providers/shopify: %s header is required", HeaderTopic)
	}
	return core.Delivery{
		Topic:      topic,
		ShopDomain: headerValue(req.Headers, HeaderShopDomain),
		WebhookID:  headerValue(req.Headers, HeaderWebhookID),
		APIVersion: headerValue(req.Headers, HeaderAPIVersion),
		Body:       req.Body,
		Headers:    req.Headers,
	}, nil
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
