package webhooks

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-lifecycle/core"
)

func webhookError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func webhookWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	if source == nil {
		return webhookError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func webhookBadInput(message string, metadata map[string]any) error {
	return webhookError(
		message,
		goerrors.CategoryBadInput,
		http.StatusBadRequest,
		core.WebhookErrorBadInput,
		metadata,
	)
}

func webhookUnauthorized(source error, metadata map[string]any) error {
	return webhookWrapError(
		source,
		goerrors.CategoryAuth,
		"webhooks: delivery verification failed",
		http.StatusUnauthorized,
		core.WebhookErrorUnauthorized,
		metadata,
	)
}

func webhookInternal(message string, metadata map[string]any) error {
	return webhookError(
		message,
		goerrors.CategoryInternal,
		http.StatusInternalServerError,
		core.WebhookErrorInternal,
		metadata,
	)
}

func ledgerFailError(source error, providerID string, deliveryID string) error {
	return webhookWrapError(
		source,
		goerrors.CategoryInternal,
		"webhooks: delivery failure not recorded",
		http.StatusInternalServerError,
		core.WebhookErrorInternal,
		map[string]any{"provider_id": providerID, "delivery_id": deliveryID},
	)
}

// statusFromError picks the HTTP status to answer a rejected delivery with.
func statusFromError(err error) int {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr != nil && richErr.Code > 0 {
		return richErr.Code
	}
	return http.StatusInternalServerError
}
