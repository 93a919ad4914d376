package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	WebhookErrorMissingPath              = "WEBHOOK_MISSING_PATH"
	WebhookErrorMissingHandler           = "WEBHOOK_MISSING_HANDLER"
	WebhookErrorDuplicateTopic           = "WEBHOOK_DUPLICATE_TOPIC"
	WebhookErrorInvalidDeclaration       = "WEBHOOK_INVALID_DECLARATION"
	WebhookErrorRemoteRegistrationFailed = "WEBHOOK_REMOTE_REGISTRATION_FAILED"
	WebhookErrorBootstrapFailed          = "WEBHOOK_BOOTSTRAP_FAILED"
	WebhookErrorConfigurationFailed      = "WEBHOOK_CONFIGURATION_FAILED"
	WebhookErrorBadInput                 = "WEBHOOK_BAD_INPUT"
	WebhookErrorUnauthorized             = "WEBHOOK_UNAUTHORIZED"
	WebhookErrorNotFound                 = "WEBHOOK_NOT_FOUND"
	WebhookErrorExternalFailure          = "WEBHOOK_EXTERNAL_FAILURE"
	WebhookErrorInternal                 = "WEBHOOK_INTERNAL_ERROR"
)

func missingWebhookPathError(topic string) *goerrors.Error {
	return newWebhookError(
		"core: webhook declaration has no path and no address to derive one from",
		goerrors.CategoryValidation,
		WebhookErrorMissingPath,
	).WithMetadata(map[string]any{"topic": topic})
}

func missingWebhookHandlerError(topic string) *goerrors.Error {
	return newWebhookError(
		"core: no webhook handler registered for topic",
		goerrors.CategoryNotFound,
		WebhookErrorMissingHandler,
	).WithMetadata(map[string]any{"topic": topic})
}

func duplicateTopicError(topic string, first int, second int) *goerrors.Error {
	return newWebhookError(
		"core: webhook topic declared more than once",
		goerrors.CategoryValidation,
		WebhookErrorDuplicateTopic,
	).WithMetadata(map[string]any{
		"topic":        topic,
		"first_index":  first,
		"second_index": second,
	})
}

func invalidDeclarationError(message string, metadata map[string]any) *goerrors.Error {
	err := newWebhookError(message, goerrors.CategoryValidation, WebhookErrorInvalidDeclaration)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

func remoteRegistrationError(err error, operation string, topic string, index int) *goerrors.Error {
	wrapped := goerrors.Wrap(err, goerrors.CategoryExternal, "core: remote webhook "+operation+" failed").
		WithTextCode(WebhookErrorRemoteRegistrationFailed).
		WithMetadata(map[string]any{
			"operation": operation,
			"topic":     topic,
			"index":     index,
		})
	return ensureWebhookErrorEnvelope(wrapped)
}

func bootstrapError(err error, shop string) *goerrors.Error {
	wrapped := goerrors.Wrap(err, goerrors.CategoryExternal, "core: webhook bootstrap failed").
		WithTextCode(WebhookErrorBootstrapFailed).
		WithMetadata(map[string]any{"shop": shop})
	return ensureWebhookErrorEnvelope(wrapped)
}

func configurationError(err error) *goerrors.Error {
	wrapped := goerrors.Wrap(err, goerrors.CategoryInternal, "core: webhook configuration unavailable").
		WithTextCode(WebhookErrorConfigurationFailed)
	return ensureWebhookErrorEnvelope(wrapped)
}

func badInputError(message string, metadata map[string]any) *goerrors.Error {
	err := newWebhookError(message, goerrors.CategoryBadInput, WebhookErrorBadInput)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// RegistrationNotFoundError is returned by RegistrationStore lookups that
// match no record.
func RegistrationNotFoundError(shop string, topic string) error {
	return newWebhookError(
		"webhooks: registration not found",
		goerrors.CategoryNotFound,
		WebhookErrorNotFound,
	).WithMetadata(map[string]any{"shop": shop, "topic": topic})
}

// InvalidRegistrationRecordError reports a record that cannot be keyed.
func InvalidRegistrationRecordError(shop string, topic string) error {
	return badInputError(
		"webhooks: registration record requires shop and topic",
		map[string]any{"shop": shop, "topic": topic},
	)
}

// HasTextCode reports whether err, or any error it wraps or joins, carries
// textCode.
func HasTextCode(err error, textCode string) bool {
	textCode = strings.TrimSpace(textCode)
	for current := err; current != nil; current = errors.Unwrap(current) {
		richErr, ok := current.(*goerrors.Error)
		if ok && richErr != nil && strings.EqualFold(strings.TrimSpace(richErr.TextCode), textCode) {
			return true
		}
		if joined, ok := current.(interface{ Unwrap() []error }); ok {
			for _, inner := range joined.Unwrap() {
				if HasTextCode(inner, textCode) {
					return true
				}
			}
			return false
		}
	}
	return false
}

func IsMissingWebhookPath(err error) bool {
	return HasTextCode(err, WebhookErrorMissingPath)
}

func IsMissingWebhookHandler(err error) bool {
	return HasTextCode(err, WebhookErrorMissingHandler)
}

func IsDuplicateTopic(err error) bool {
	return HasTextCode(err, WebhookErrorDuplicateTopic)
}

func IsInvalidDeclaration(err error) bool {
	return HasTextCode(err, WebhookErrorInvalidDeclaration)
}

func IsRemoteRegistrationError(err error) bool {
	return HasTextCode(err, WebhookErrorRemoteRegistrationFailed)
}

func IsBootstrapError(err error) bool {
	return HasTextCode(err, WebhookErrorBootstrapFailed)
}

func IsConfigurationError(err error) bool {
	return HasTextCode(err, WebhookErrorConfigurationFailed)
}

func IsNotFound(err error) bool {
	return HasTextCode(err, WebhookErrorNotFound)
}

func webhookErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureWebhookErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "signature"):
		return newWebhookError(err.Error(), goerrors.CategoryAuth, WebhookErrorUnauthorized)
	case strings.Contains(msg, "not found"), strings.Contains(msg, "not registered"):
		return newWebhookError(err.Error(), goerrors.CategoryNotFound, WebhookErrorNotFound)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newWebhookError(err.Error(), goerrors.CategoryBadInput, WebhookErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureWebhookErrorEnvelope(mapped)
}

func newWebhookError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureWebhookErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureWebhookErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = webhookHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultWebhookTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultWebhookTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return WebhookErrorBadInput
	case goerrors.CategoryNotFound:
		return WebhookErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return WebhookErrorUnauthorized
	case goerrors.CategoryExternal:
		return WebhookErrorExternalFailure
	default:
		return WebhookErrorInternal
	}
}

func webhookHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
