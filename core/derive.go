package core

import (
	"net/url"
	"strings"
)

// DeriveSpec turns one declaration into a canonical RegistrationSpec.
//
// An explicit Path wins and is used verbatim. Otherwise the path component
// of Address is used as-is, including its leading slash. The handler is
// resolved after the path so a declaration missing both reports the path.
func DeriveSpec(declaration Declaration, resolver HandlerResolver) (RegistrationSpec, error) {
	topic := strings.TrimSpace(declaration.Topic)
	if topic == "" {
		return RegistrationSpec{}, invalidDeclarationError("core: webhook topic is required", nil)
	}

	path, err := derivePath(declaration)
	if err != nil {
		return RegistrationSpec{}, err
	}

	if resolver == nil {
		return RegistrationSpec{}, missingWebhookHandlerError(topic)
	}
	handler, ok := resolver.Resolve(topic)
	if !ok || handler == nil {
		return RegistrationSpec{}, missingWebhookHandlerError(topic)
	}

	return RegistrationSpec{
		Topic:               topic,
		DeliveryMethod:      DeliveryMethodHTTP,
		Path:                path,
		Handler:             handler,
		Fields:              cloneStrings(declaration.Fields),
		MetafieldNamespaces: cloneStrings(declaration.MetafieldNamespaces),
		Filter:              cloneStringPtr(declaration.Filter),
	}, nil
}

func derivePath(declaration Declaration) (string, error) {
	if strings.TrimSpace(declaration.Path) != "" {
		return declaration.Path, nil
	}
	address := strings.TrimSpace(declaration.Address)
	if address == "" {
		return "", missingWebhookPathError(declaration.Topic)
	}
	parsed, err := url.Parse(address)
	if err != nil {
		return "", invalidDeclarationError("core: webhook address is not a valid url", map[string]any{
			"topic":   declaration.Topic,
			"address": address,
		})
	}
	if parsed.Path == "" {
		return "", missingWebhookPathError(declaration.Topic)
	}
	return parsed.Path, nil
}
