package core

import (
	"context"
	"fmt"
	"sync"
)

type registryCall struct {
	kind    string
	topic   string
	spec    RegistrationSpec
	session Session
}

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, entry)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

type recordingRegistryClient struct {
	mu        sync.Mutex
	calls     []registryCall
	log       *callLog
	addErrs   map[string]error
	unregErrs map[string]error
}

func newRecordingRegistryClient(log *callLog) *recordingRegistryClient {
	if log == nil {
		log = &callLog{}
	}
	return &recordingRegistryClient{log: log, addErrs: map[string]error{}, unregErrs: map[string]error{}}
}

func (c *recordingRegistryClient) AddRegistration(_ context.Context, spec RegistrationSpec) error {
	c.mu.Lock()
	c.calls = append(c.calls, registryCall{kind: "add", topic: spec.Topic, spec: spec.Clone()})
	err := c.addErrs[spec.Topic]
	c.mu.Unlock()
	c.log.add("add:" + spec.Topic)
	return err
}

func (c *recordingRegistryClient) Unregister(_ context.Context, topic string, session Session) error {
	c.mu.Lock()
	c.calls = append(c.calls, registryCall{kind: "unregister", topic: topic, session: session})
	err := c.unregErrs[topic]
	c.mu.Unlock()
	c.log.add("unregister:" + topic)
	return err
}

func (c *recordingRegistryClient) callsOf(kind string) []registryCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := []registryCall{}
	for _, call := range c.calls {
		if call.kind == kind {
			out = append(out, call)
		}
	}
	return out
}

func (c *recordingRegistryClient) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

type resettingRegistryClient struct {
	*recordingRegistryClient
	resetErr error
}

func (c *resettingRegistryClient) ResetRegistrations(context.Context) error {
	c.log.add("reset")
	return c.resetErr
}

type recordingBootstrapHook struct {
	log      *callLog
	err      error
	sessions []Session
}

func (h *recordingBootstrapHook) CreateWebhooks(_ context.Context, session Session) error {
	h.sessions = append(h.sessions, session)
	h.log.add("bootstrap:" + session.Shop)
	return h.err
}

type countingConfiguration struct {
	log          *callLog
	declarations []Declaration
	has          *bool
	err          error
	reads        int
}

func (c *countingConfiguration) CurrentWebhookDeclarations(context.Context) ([]Declaration, error) {
	c.reads++
	if c.err != nil {
		return nil, c.err
	}
	return cloneDeclarations(c.declarations), nil
}

func (c *countingConfiguration) HasWebhooks(context.Context) (bool, error) {
	if c.log != nil {
		c.log.add("has_webhooks")
	}
	if c.err != nil {
		return false, c.err
	}
	if c.has != nil {
		return *c.has, nil
	}
	return len(c.declarations) > 0, nil
}

type namedHandler struct {
	name string
}

func (h namedHandler) HandleWebhook(context.Context, Delivery) error {
	return nil
}

func handlersFor(topics ...string) *HandlerRegistry {
	registry := NewHandlerRegistry()
	for _, topic := range topics {
		if err := registry.Register(topic, namedHandler{name: topic}); err != nil {
			panic(fmt.Sprintf("register handler %s: %v", topic, err))
		}
	}
	return registry
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
	err    error
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if l.err != nil {
		return nil, l.err
	}
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

func boolPtr(value bool) *bool {
	return &value
}
