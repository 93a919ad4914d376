package core

import "strings"

type DeliveryMethod string

const (
	DeliveryMethodHTTP DeliveryMethod = "http"
)

// Declaration is one desired webhook subscription as written in configuration.
// Nil Fields, MetafieldNamespaces and Filter mean "not set" and are kept
// distinct from empty values all the way to the registry client.
type Declaration struct {
	Topic               string   `koanf:"topic" mapstructure:"topic" yaml:"topic"`
	Address             string   `koanf:"address" mapstructure:"address" yaml:"address,omitempty"`
	Path                string   `koanf:"path" mapstructure:"path" yaml:"path,omitempty"`
	Fields              []string `koanf:"fields" mapstructure:"fields" yaml:"fields,omitempty"`
	MetafieldNamespaces []string `koanf:"metafield_namespaces" mapstructure:"metafield_namespaces" yaml:"metafield_namespaces,omitempty"`
	Filter              *string  `koanf:"filter" mapstructure:"filter" yaml:"filter,omitempty"`
}

// RegistrationSpec is the canonical form of a Declaration, ready for the
// registry client. Path is never empty and Handler is always resolved.
type RegistrationSpec struct {
	Topic               string
	DeliveryMethod      DeliveryMethod
	Path                string
	Handler             WebhookHandler
	Fields              []string
	MetafieldNamespaces []string
	Filter              *string
}

// Session is the shop-scoped credential context handed to remote calls.
// The core never stores it.
type Session struct {
	Shop        string
	AccessToken string
}

// Delivery is an inbound webhook payload routed to a WebhookHandler.
type Delivery struct {
	Topic      string
	ShopDomain string
	WebhookID  string
	APIVersion string
	Body       []byte
	Headers    map[string]string
}

type RecreateState string

const (
	RecreateStateIdle          RecreateState = "idle"
	RecreateStateDestroying    RecreateState = "destroying"
	RecreateStateRegistering   RecreateState = "registering"
	RecreateStateBootstrapping RecreateState = "bootstrapping"
	RecreateStateFailed        RecreateState = "failed"
)

// StringPtr returns a pointer to value, handy for Declaration.Filter literals.
func StringPtr(value string) *string {
	return &value
}

func (d Declaration) Clone() Declaration {
	out := d
	out.Fields = cloneStrings(d.Fields)
	out.MetafieldNamespaces = cloneStrings(d.MetafieldNamespaces)
	out.Filter = cloneStringPtr(d.Filter)
	return out
}

func (s RegistrationSpec) Clone() RegistrationSpec {
	out := s
	out.Fields = cloneStrings(s.Fields)
	out.MetafieldNamespaces = cloneStrings(s.MetafieldNamespaces)
	out.Filter = cloneStringPtr(s.Filter)
	return out
}

func (s Session) Validate() error {
	if strings.TrimSpace(s.Shop) == "" {
		return badInputError("core: session shop is required", nil)
	}
	return nil
}

func cloneDeclarations(in []Declaration) []Declaration {
	if in == nil {
		return nil
	}
	out := make([]Declaration, 0, len(in))
	for _, declaration := range in {
		out = append(out, declaration.Clone())
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneStringPtr(in *string) *string {
	if in == nil {
		return nil
	}
	value := *in
	return &value
}
