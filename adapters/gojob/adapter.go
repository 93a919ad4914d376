package gojob

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-webhook-lifecycle/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const JobIDDeliver = "webhooks.deliver"

const (
	ParamTopic      = "topic"
	ParamShopDomain = "shop_domain"
	ParamWebhook    = "webhook"
	ParamWebhookID  = "webhook_id"
	ParamAPIVersion = "api_version"
)

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NackFor builds the nack options for a failed attempt.
func (p RetryPolicy) NackFor(attempt int, reason string) queue.NackOptions {
	out := queue.NackOptions{
		Requeue: true,
		Reason:  strings.TrimSpace(reason),
	}
	if p.BaseDelay > 0 {
		out.Delay = p.BaseDelay
		for i := 1; i < attempt; i++ {
			out.Delay *= 2
			if p.MaxDelay > 0 && out.Delay >= p.MaxDelay {
				break
			}
		}
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		out.DeadLetter = p.DeadLetterOnMax
	}
	return out
}

// ToExecutionMessage maps a core job message to go-job.
func ToExecutionMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

// FromExecutionMessage maps a go-job message into the core contract.
func FromExecutionMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	return a.enqueuer.Enqueue(ctx, ToExecutionMessage(msg))
}

// JobHandler is a WebhookHandler that defers delivery processing to a job
// queue. Register it under each topic whose work should run in the
// background.
type JobHandler struct {
	Enqueuer    core.JobEnqueuer
	JobID       string
	DedupPolicy string
}

func NewJobHandler(enqueuer core.JobEnqueuer) *JobHandler {
	return &JobHandler{Enqueuer: enqueuer, JobID: JobIDDeliver}
}

func (h *JobHandler) HandleWebhook(ctx context.Context, delivery core.Delivery) error {
	if h == nil || h.Enqueuer == nil {
		return fmt.Errorf("gojob: job handler requires an enqueuer")
	}
	return h.Enqueuer.Enqueue(ctx, DeliveryMessage(h.jobID(), delivery, h.DedupPolicy))
}

func (h *JobHandler) jobID() string {
	if id := strings.TrimSpace(h.JobID); id != "" {
		return id
	}
	return JobIDDeliver
}

// DeliveryMessage builds the job message for one delivery. The webhook id
// doubles as the idempotency key so redeliveries collapse in the queue.
func DeliveryMessage(jobID string, delivery core.Delivery, dedupPolicy string) *core.JobExecutionMessage {
	return &core.JobExecutionMessage{
		JobID:      jobID,
		ScriptPath: jobID,
		Parameters: map[string]any{
			ParamTopic:      delivery.Topic,
			ParamShopDomain: delivery.ShopDomain,
			ParamWebhook:    decodeWebhookBody(delivery.Body),
			ParamWebhookID:  delivery.WebhookID,
			ParamAPIVersion: delivery.APIVersion,
		},
		IdempotencyKey: strings.TrimSpace(delivery.WebhookID),
		DedupPolicy:    strings.TrimSpace(dedupPolicy),
	}
}

// Performer runs queued deliveries against the handlers that do the actual
// work, acking on success and nacking per RetryPolicy on failure.
type Performer struct {
	Resolver core.HandlerResolver
	Policy   RetryPolicy
}

func NewPerformer(resolver core.HandlerResolver, policy RetryPolicy) *Performer {
	return &Performer{Resolver: resolver, Policy: policy}
}

// Perform handles one dequeued delivery. attempt starts at 1.
func (p *Performer) Perform(ctx context.Context, delivery queue.Delivery, attempt int) error {
	if p == nil || p.Resolver == nil {
		return fmt.Errorf("gojob: performer requires a handler resolver")
	}
	if delivery == nil || delivery.Message() == nil {
		return fmt.Errorf("gojob: delivery message is required")
	}
	webhook, err := DeliveryFromMessage(delivery.Message())
	if err != nil {
		_ = delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: err.Error()})
		return err
	}
	handler, ok := p.Resolver.Resolve(webhook.Topic)
	if !ok || handler == nil {
		err := fmt.Errorf("gojob: no handler registered for topic %q", webhook.Topic)
		_ = delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: err.Error()})
		return err
	}
	if err := handler.HandleWebhook(ctx, webhook); err != nil {
		if nackErr := delivery.Nack(ctx, p.Policy.NackFor(attempt, err.Error())); nackErr != nil {
			return fmt.Errorf("gojob: nack delivery: %w", nackErr)
		}
		return err
	}
	return delivery.Ack(ctx)
}

// DeliveryFromMessage rebuilds the delivery carried by a queued message.
func DeliveryFromMessage(msg *job.ExecutionMessage) (core.Delivery, error) {
	if msg == nil {
		return core.Delivery{}, fmt.Errorf("gojob: execution message is required")
	}
	topic := paramString(msg.Parameters, ParamTopic)
	if topic == "" {
		return core.Delivery{}, fmt.Errorf("gojob: message parameter %q is required", ParamTopic)
	}
	body, err := json.Marshal(msg.Parameters[ParamWebhook])
	if err != nil {
		return core.Delivery{}, fmt.Errorf("gojob: encode webhook payload: %w", err)
	}
	webhookID := paramString(msg.Parameters, ParamWebhookID)
	if webhookID == "" {
		webhookID = strings.TrimSpace(msg.IdempotencyKey)
	}
	return core.Delivery{
		Topic:      topic,
		ShopDomain: paramString(msg.Parameters, ParamShopDomain),
		WebhookID:  webhookID,
		APIVersion: paramString(msg.Parameters, ParamAPIVersion),
		Body:       body,
	}, nil
}

// LoggingHook reports worker events through a core logger.
type LoggingHook struct {
	Logger core.Logger
}

func (h LoggingHook) OnStart(_ context.Context, event worker.Event) {
	h.log("webhook job started", event, false)
}

func (h LoggingHook) OnSuccess(_ context.Context, event worker.Event) {
	h.log("webhook job succeeded", event, false)
}

func (h LoggingHook) OnFailure(_ context.Context, event worker.Event) {
	h.log("webhook job failed", event, true)
}

func (h LoggingHook) OnRetry(_ context.Context, event worker.Event) {
	h.log("webhook job retry scheduled", event, true)
}

func (h LoggingHook) log(message string, event worker.Event, failed bool) {
	if h.Logger == nil {
		return
	}
	msg := event.Message
	if msg == nil && event.Delivery != nil {
		msg = event.Delivery.Message()
	}
	args := []any{"attempt", event.Attempt, "duration_ms", event.Duration.Milliseconds()}
	if msg != nil {
		args = append(args, "job_id", msg.JobID, "idempotency_key", msg.IdempotencyKey, "topic", paramString(msg.Parameters, ParamTopic))
	}
	if event.Delay > 0 {
		args = append(args, "delay_ms", event.Delay.Milliseconds())
	}
	if event.Err != nil {
		args = append(args, "error", event.Err.Error())
	}
	if failed {
		h.Logger.Error(message, args...)
		return
	}
	h.Logger.Info(message, args...)
}

func decodeWebhookBody(body []byte) any {
	if len(body) == 0 {
		return map[string]any{}
	}
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return string(body)
	}
	return decoded
}

func paramString(params map[string]any, key string) string {
	if len(params) == 0 {
		return ""
	}
	value, ok := params[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ core.JobEnqueuer    = (*EnqueuerAdapter)(nil)
	_ core.WebhookHandler = (*JobHandler)(nil)
	_ worker.Hook         = LoggingHook{}
)
