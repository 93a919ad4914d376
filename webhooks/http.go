package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goliatone/go-webhook-lifecycle/core"
)

const defaultMaxDeliveryBodyBytes int64 = 5 << 20

type Processable interface {
	Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error)
}

// HTTPHandler adapts a Processor to net/http.
type HTTPHandler struct {
	ProviderID   string
	Processor    Processable
	MaxBodyBytes int64
}

func NewHTTPHandler(providerID string, processor Processable) *HTTPHandler {
	return &HTTPHandler{
		ProviderID:   strings.TrimSpace(providerID),
		Processor:    processor,
		MaxBodyBytes: defaultMaxDeliveryBodyBytes,
	}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxDeliveryBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		writeResult(w, http.StatusBadRequest, map[string]any{"error": "unreadable body"})
		return
	}
	if int64(len(body)) > limit {
		writeResult(w, http.StatusRequestEntityTooLarge, map[string]any{"error": "body too large"})
		return
	}

	headers := make(map[string]string, len(r.Header))
	for key, values := range r.Header {
		headers[key] = strings.Join(values, ",")
	}
	result, err := h.Processor.Process(r.Context(), core.InboundRequest{
		ProviderID: h.ProviderID,
		Path:       r.URL.Path,
		Headers:    headers,
		Body:       body,
	})
	if err != nil {
		status := result.StatusCode
		if status == 0 {
			status = statusFromError(err)
		}
		writeResult(w, status, map[string]any{"error": err.Error()})
		return
	}
	status := result.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	writeResult(w, status, result.Metadata)
}

// Mount registers handler for POST requests on each path.
func Mount(router chi.Router, handler http.Handler, paths ...string) {
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		router.Method(http.MethodPost, path, handler)
	}
}

func writeResult(w http.ResponseWriter, status int, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if len(payload) == 0 {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
