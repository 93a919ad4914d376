package lifecycle

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-webhook-lifecycle/core"
)

// HandlerPack is a named set of topic handlers contributed by a feature
// module.
type HandlerPack struct {
	Name     string
	Handlers map[string]core.WebhookHandler
}

// DeclarationPack is a named set of webhook declarations contributed by a
// feature module.
type DeclarationPack struct {
	Name         string
	Declarations []core.Declaration
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

type ExtensionHooks struct {
	mu sync.RWMutex

	handlerPacks     map[string]HandlerPack
	declarationPacks map[string]DeclarationPack
	bundles          map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		handlerPacks:     map[string]HandlerPack{},
		declarationPacks: map[string]DeclarationPack{},
		bundles:          map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterHandlerPack(pack HandlerPack) error {
	if h == nil {
		return fmt.Errorf("lifecycle: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("lifecycle: handler pack name is required")
	}
	if len(pack.Handlers) == 0 {
		return fmt.Errorf("lifecycle: handler pack %q has no handlers", name)
	}

	normalized := HandlerPack{Name: name, Handlers: make(map[string]core.WebhookHandler, len(pack.Handlers))}
	for topic, handler := range pack.Handlers {
		if handler == nil {
			return fmt.Errorf("lifecycle: handler pack %q has nil handler for %q", name, topic)
		}
		normalized.Handlers[topic] = handler
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.handlerPacks[name]; exists {
		return fmt.Errorf("lifecycle: handler pack %q already registered", name)
	}
	h.handlerPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterDeclarationPack(pack DeclarationPack) error {
	if h == nil {
		return fmt.Errorf("lifecycle: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("lifecycle: declaration pack name is required")
	}
	if len(pack.Declarations) == 0 {
		return fmt.Errorf("lifecycle: declaration pack %q has no declarations", name)
	}

	normalized := DeclarationPack{Name: name, Declarations: make([]core.Declaration, 0, len(pack.Declarations))}
	for _, declaration := range pack.Declarations {
		normalized.Declarations = append(normalized.Declarations, declaration.Clone())
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.declarationPacks[name]; exists {
		return fmt.Errorf("lifecycle: declaration pack %q already registered", name)
	}
	h.declarationPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("lifecycle: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("lifecycle: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("lifecycle: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("lifecycle: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ApplyHandlerPacks registers every pack's handlers, packs in name order.
// A topic claimed by two packs fails with the registry's duplicate error.
func (h *ExtensionHooks) ApplyHandlerPacks(registry *core.HandlerRegistry) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("lifecycle: handler registry is required")
	}

	for _, pack := range h.HandlerPacks() {
		topics := make([]string, 0, len(pack.Handlers))
		for topic := range pack.Handlers {
			topics = append(topics, topic)
		}
		sort.Strings(topics)
		for _, topic := range topics {
			if err := registry.Register(topic, pack.Handlers[topic]); err != nil {
				return fmt.Errorf("lifecycle: handler pack %q: %w", pack.Name, err)
			}
		}
	}
	return nil
}

// Declarations concatenates every declaration pack, packs in name order and
// declarations in their given order.
func (h *ExtensionHooks) Declarations() []core.Declaration {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.declarationPacks))
	for name := range h.declarationPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := []core.Declaration{}
	for _, name := range names {
		for _, declaration := range h.declarationPacks[name].Declarations {
			out = append(out, declaration.Clone())
		}
	}
	return out
}

func (h *ExtensionHooks) ConfigurationProvider() *core.StaticConfigurationProvider {
	return core.NewStaticConfigurationProvider(h.Declarations()...)
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("lifecycle: command/query service is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) HandlerPacks() []HandlerPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.handlerPacks))
	for name := range h.handlerPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]HandlerPack, 0, len(names))
	for _, name := range names {
		pack := h.handlerPacks[name]
		handlers := make(map[string]core.WebhookHandler, len(pack.Handlers))
		for topic, handler := range pack.Handlers {
			handlers[topic] = handler
		}
		out = append(out, HandlerPack{Name: pack.Name, Handlers: handlers})
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
