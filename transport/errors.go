package transport

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-lifecycle/core"
)

func transportError(
	message string,
	category goerrors.Category,
	code int,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	metadata map[string]any,
) error {
	if source == nil {
		return transportError(message, category, code, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.WebhookErrorBadInput
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return core.WebhookErrorUnauthorized
	case goerrors.CategoryNotFound:
		return core.WebhookErrorNotFound
	case goerrors.CategoryExternal, goerrors.CategoryRateLimit:
		return core.WebhookErrorExternalFailure
	default:
		return core.WebhookErrorInternal
	}
}

// statusCategory classifies a non-2xx upstream status.
func statusCategory(status int) goerrors.Category {
	switch {
	case status == http.StatusUnauthorized:
		return goerrors.CategoryAuth
	case status == http.StatusForbidden:
		return goerrors.CategoryAuthz
	case status == http.StatusNotFound:
		return goerrors.CategoryNotFound
	case status == http.StatusTooManyRequests:
		return goerrors.CategoryRateLimit
	case status >= http.StatusBadRequest && status < http.StatusInternalServerError:
		return goerrors.CategoryBadInput
	default:
		return goerrors.CategoryExternal
	}
}

// StatusError converts a non-2xx response into a rich error. It returns nil
// for 2xx responses.
func StatusError(response core.TransportResponse, message string) error {
	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return nil
	}
	category := statusCategory(response.StatusCode)
	code := response.StatusCode
	if category == goerrors.CategoryExternal {
		code = http.StatusBadGateway
	}
	return transportError(message, category, code, map[string]any{
		"status_code": response.StatusCode,
		"body":        truncateBody(response.Body, 512),
	})
}

func truncateBody(body []byte, limit int) string {
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "..."
}
