package shopify

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	ProviderID        = "shopify"
	DefaultAPIVersion = "2025-07"

	defaultDomainSuffix = ".myshopify.com"
	adminGraphQLPath    = "/admin/api/%s/graphql.json"
)

const (
	HeaderAccessToken = "X-Shopify-Access-Token"
	HeaderHMAC        = "X-Shopify-Hmac-Sha256"
	HeaderWebhookID   = "X-Shopify-Webhook-Id"
	HeaderTopic       = "X-Shopify-Topic"
	HeaderShopDomain  = "X-Shopify-Shop-Domain"
	HeaderAPIVersion  = "X-Shopify-API-Version"
	HeaderTriggeredAt = "X-Shopify-Triggered-At"
)

// TopicToGraphQL converts a REST style topic such as "orders/updated" into
// the Admin API enum value ORDERS_UPDATED.
func TopicToGraphQL(topic string) string {
	replacer := strings.NewReplacer("/", "_", ".", "_", "-", "_")
	return strings.ToUpper(replacer.Replace(strings.TrimSpace(topic)))
}

// AdminGraphQLEndpoint returns the Admin API GraphQL endpoint for shop. A
// non-empty baseURL replaces the shop origin.
func AdminGraphQLEndpoint(baseURL string, shop string, apiVersion string) (string, error) {
	apiVersion = strings.TrimSpace(apiVersion)
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	path := fmt.Sprintf(adminGraphQLPath, apiVersion)
	if base := strings.TrimRight(strings.TrimSpace(baseURL), "/"); base != "" {
		return base + path, nil
	}
	domain, err := NormalizeShopDomain(shop)
	if err != nil {
		return "", err
	}
	return (&url.URL{Scheme: "https", Host: domain, Path: path}).String(), nil
}

// NormalizeShopDomain lowercases shop, strips any scheme and appends the
// myshopify.com suffix to bare shop names.
func NormalizeShopDomain(value string) (string, error) {
	trimmed := strings.TrimSpace(strings.ToLower(value))
	if trimmed == "" {
		return "", fmt.Errorf("providers/shopify: shop_domain is required")
	}
	if strings.Contains(trimmed, "://") {
		parsed, err := url.Parse(trimmed)
		if err != nil {
			return "", fmt.Errorf("providers/shopify: parse shop_domain: %w", err)
		}
		trimmed = strings.TrimSpace(strings.ToLower(parsed.Hostname()))
	}
	trimmed = strings.TrimSuffix(trimmed, "/")
	if trimmed == "" || strings.Contains(trimmed, "/") {
		return "", fmt.Errorf("providers/shopify: invalid shop_domain")
	}
	if !strings.Contains(trimmed, ".") {
		trimmed += defaultDomainSuffix
	}
	if !strings.HasSuffix(trimmed, defaultDomainSuffix) {
		return "", fmt.Errorf("providers/shopify: shop_domain must end with %q", defaultDomainSuffix)
	}
	return trimmed, nil
}

// CallbackURL joins the application URL and a derived webhook path. The path
// gains a leading slash when it lacks one.
func CallbackURL(appURL string, path string) string {
	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimRight(strings.TrimSpace(appURL), "/") + path
}
