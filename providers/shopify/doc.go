// Package shopify registers webhook subscriptions through the Shopify Admin
// GraphQL API and verifies the deliveries Shopify sends back.
package shopify
