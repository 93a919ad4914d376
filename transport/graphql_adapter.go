package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-lifecycle/core"
)

const KindGraphQL = "graphql"

type GraphQLAdapter struct {
	Endpoint string
	REST     *RESTAdapter
}

func NewGraphQLAdapter(endpoint string, client HTTPDoer) *GraphQLAdapter {
	return &GraphQLAdapter{
		Endpoint: strings.TrimSpace(endpoint),
		REST:     NewRESTAdapter(client),
	}
}

func (*GraphQLAdapter) Kind() string {
	return KindGraphQL
}

func (a *GraphQLAdapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil || a.REST == nil {
		return core.TransportResponse{}, transportError(
			"transport: graphql adapter requires a rest adapter",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			map[string]any{"adapter": KindGraphQL},
		)
	}

	endpoint := strings.TrimSpace(req.URL)
	if endpoint == "" {
		endpoint = a.Endpoint
	}
	if endpoint == "" {
		return core.TransportResponse{}, transportError(
			"transport: graphql endpoint is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{"adapter": KindGraphQL},
		)
	}

	query, ok := readGraphQLQuery(req)
	if !ok {
		return core.TransportResponse{}, transportError(
			"transport: graphql query is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{"adapter": KindGraphQL, "endpoint": endpoint},
		)
	}
	payload := map[string]any{"query": query}
	if operationName := readGraphQLOperationName(req.Metadata); operationName != "" {
		payload["operationName"] = operationName
	}
	if variables, ok := readGraphQLVariables(req.Metadata); ok {
		payload["variables"] = variables
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return core.TransportResponse{}, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: marshal graphql payload",
			http.StatusBadRequest,
			map[string]any{"adapter": KindGraphQL, "endpoint": endpoint},
		)
	}

	headers := map[string]string{"Content-Type": "application/json"}
	for key, value := range req.Headers {
		headers[key] = value
	}

	response, err := a.REST.Do(ctx, core.TransportRequest{
		Method:               "POST",
		URL:                  endpoint,
		Headers:              headers,
		Body:                 body,
		Metadata:             req.Metadata,
		Timeout:              req.Timeout,
		MaxResponseBodyBytes: req.MaxResponseBodyBytes,
	})
	if err != nil {
		return core.TransportResponse{}, transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: graphql request failed",
			http.StatusBadGateway,
			map[string]any{"adapter": KindGraphQL, "endpoint": endpoint},
		)
	}
	response.Metadata = ensureMetadata(response.Metadata)
	response.Metadata["kind"] = KindGraphQL
	return response, nil
}

// GraphQLRequest is a single operation sent through Execute.
type GraphQLRequest struct {
	Endpoint      string
	Query         string
	OperationName string
	Variables     map[string]any
	Headers       map[string]string
}

type GraphQLError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// UserError is the mutation-level validation error shape returned in a
// payload's userErrors list.
type UserError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

type graphQLEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors"`
}

// Execute runs one operation and decodes its data member into out. Non-2xx
// statuses and top-level GraphQL errors are returned as rich errors.
func (a *GraphQLAdapter) Execute(ctx context.Context, req GraphQLRequest, out any) error {
	metadata := map[string]any{"query": req.Query}
	if req.OperationName != "" {
		metadata["operation_name"] = req.OperationName
	}
	if req.Variables != nil {
		metadata["variables"] = req.Variables
	}
	response, err := a.Do(ctx, core.TransportRequest{
		URL:      req.Endpoint,
		Headers:  req.Headers,
		Metadata: metadata,
	})
	if err != nil {
		return err
	}
	if statusErr := StatusError(response, "transport: graphql endpoint returned error status"); statusErr != nil {
		return statusErr
	}

	var envelope graphQLEnvelope
	if err := json.Unmarshal(response.Body, &envelope); err != nil {
		return transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: decode graphql response",
			http.StatusBadGateway,
			map[string]any{"adapter": KindGraphQL, "operation_name": req.OperationName},
		)
	}
	if len(envelope.Errors) > 0 {
		messages := make([]string, 0, len(envelope.Errors))
		for _, item := range envelope.Errors {
			messages = append(messages, item.Message)
		}
		category := goerrors.CategoryExternal
		if graphQLThrottled(envelope.Errors) {
			category = goerrors.CategoryRateLimit
		}
		return transportError(
			"transport: graphql errors: "+strings.Join(messages, "; "),
			category,
			http.StatusBadGateway,
			map[string]any{"adapter": KindGraphQL, "operation_name": req.OperationName, "errors": messages},
		)
	}
	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: decode graphql data",
			http.StatusBadGateway,
			map[string]any{"adapter": KindGraphQL, "operation_name": req.OperationName},
		)
	}
	return nil
}

// UserErrorsError reports mutation userErrors as a bad input error, or nil
// when the list is empty.
func UserErrorsError(operation string, userErrors []UserError) error {
	if len(userErrors) == 0 {
		return nil
	}
	messages := make([]string, 0, len(userErrors))
	for _, item := range userErrors {
		message := strings.TrimSpace(item.Message)
		if len(item.Field) > 0 {
			message = strings.Join(item.Field, ".") + ": " + message
		}
		messages = append(messages, message)
	}
	return transportError(
		fmt.Sprintf("transport: %s rejected: %s", operation, strings.Join(messages, "; ")),
		goerrors.CategoryBadInput,
		http.StatusUnprocessableEntity,
		map[string]any{"adapter": KindGraphQL, "operation_name": operation, "user_errors": messages},
	)
}

func graphQLThrottled(errs []GraphQLError) bool {
	for _, item := range errs {
		if strings.Contains(strings.ToLower(item.Message), "throttled") {
			return true
		}
	}
	return false
}

func readGraphQLQuery(req core.TransportRequest) (string, bool) {
	if req.Metadata != nil {
		if query := strings.TrimSpace(fmt.Sprint(req.Metadata["query"])); query != "" && query != "<nil>" {
			return query, true
		}
	}
	if len(req.Body) == 0 {
		return "", false
	}
	query := strings.TrimSpace(string(req.Body))
	if query == "" {
		return "", false
	}
	return query, true
}

func readGraphQLOperationName(metadata map[string]any) string {
	if len(metadata) == 0 {
		return ""
	}
	value := strings.TrimSpace(fmt.Sprint(metadata["operation_name"]))
	if value == "" || value == "<nil>" {
		return ""
	}
	return value
}

func readGraphQLVariables(metadata map[string]any) (map[string]any, bool) {
	if len(metadata) == 0 {
		return nil, false
	}
	value, ok := metadata["variables"]
	if !ok || value == nil {
		return nil, false
	}
	if typed, ok := value.(map[string]any); ok {
		if len(typed) == 0 {
			return map[string]any{}, true
		}
		cloned := make(map[string]any, len(typed))
		for key, item := range typed {
			cloned[key] = item
		}
		return cloned, true
	}
	return nil, false
}

func ensureMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return metadata
}

var _ core.TransportAdapter = (*GraphQLAdapter)(nil)
