// Package core contains the webhook lifecycle domain: declarations, canonical
// registration specs, the handler registry, the reconciler and the lifecycle
// manager. Adapters depend on core; core must not depend on provider-specific
// or transport-specific packages.
//
// Every manager operation re-reads the declared webhook set from its
// ConfigurationProvider and issues remote calls sequentially in declaration
// order. Nothing derived from a declaration outlives the call that derived it.
package core
