// Package prometheus records lifecycle metrics with the Prometheus client.
package prometheus

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-webhook-lifecycle/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const DefaultNamespace = "webhooks"

var defaultBuckets = []float64{5, 25, 100, 250, 1000, 5000, 30000}

// Recorder is a core.MetricsRecorder that lazily creates one counter or
// histogram vector per metric name. The label set of a name is fixed by the
// first observation; later tags outside it are dropped and missing ones are
// recorded as empty.
type Recorder struct {
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	namespace  string
	buckets    []float64
	ignored    map[string]struct{}

	mu         sync.Mutex
	counters   map[string]*vecEntry[*prometheus.CounterVec]
	histograms map[string]*vecEntry[*prometheus.HistogramVec]
}

type vecEntry[V any] struct {
	vec    V
	labels []string
}

type Option func(*Recorder)

func WithNamespace(namespace string) Option {
	return func(r *Recorder) {
		r.namespace = strings.TrimSpace(namespace)
	}
}

func WithBuckets(buckets ...float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = append([]float64(nil), buckets...)
		}
	}
}

// WithIgnoredTags drops high-cardinality tags such as "shop".
func WithIgnoredTags(tags ...string) Option {
	return func(r *Recorder) {
		for _, tag := range tags {
			r.ignored[strings.TrimSpace(tag)] = struct{}{}
		}
	}
}

// NewRecorder registers collectors on registry. A nil registry uses a fresh
// private one.
func NewRecorder(registry *prometheus.Registry, opts ...Option) *Recorder {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	recorder := &Recorder{
		registerer: registry,
		gatherer:   registry,
		namespace:  DefaultNamespace,
		buckets:    defaultBuckets,
		ignored:    map[string]struct{}{},
		counters:   map[string]*vecEntry[*prometheus.CounterVec]{},
		histograms: map[string]*vecEntry[*prometheus.HistogramVec]{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(recorder)
		}
	}
	return recorder
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value <= 0 {
		return
	}
	r.mu.Lock()
	entry, ok := r.counters[name]
	if !ok {
		labels := r.labelNames(tags)
		vec := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: r.namespace,
			Name:      metricName(name, r.namespace),
			Help:      "webhook lifecycle counter " + name,
		}, labels)
		if err := r.registerer.Register(vec); err != nil {
			if already, isAlready := err.(prometheus.AlreadyRegisteredError); isAlready {
				if existing, match := already.ExistingCollector.(*prometheus.CounterVec); match {
					vec = existing
				}
			} else {
				r.mu.Unlock()
				return
			}
		}
		entry = &vecEntry[*prometheus.CounterVec]{vec: vec, labels: labels}
		r.counters[name] = entry
	}
	r.mu.Unlock()

	entry.vec.WithLabelValues(labelValues(entry.labels, tags)...).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	entry, ok := r.histograms[name]
	if !ok {
		labels := r.labelNames(tags)
		vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: r.namespace,
			Name:      metricName(name, r.namespace),
			Help:      "webhook lifecycle histogram " + name,
			Buckets:   r.buckets,
		}, labels)
		if err := r.registerer.Register(vec); err != nil {
			if already, isAlready := err.(prometheus.AlreadyRegisteredError); isAlready {
				if existing, match := already.ExistingCollector.(*prometheus.HistogramVec); match {
					vec = existing
				}
			} else {
				r.mu.Unlock()
				return
			}
		}
		entry = &vecEntry[*prometheus.HistogramVec]{vec: vec, labels: labels}
		r.histograms[name] = entry
	}
	r.mu.Unlock()

	entry.vec.WithLabelValues(labelValues(entry.labels, tags)...).Observe(value)
}

// Handler exposes the recorder's registry in the text exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

func (r *Recorder) labelNames(tags map[string]string) []string {
	labels := make([]string, 0, len(tags))
	for key := range tags {
		key = sanitize(key)
		if key == "" {
			continue
		}
		if _, skip := r.ignored[key]; skip {
			continue
		}
		labels = append(labels, key)
	}
	sort.Strings(labels)
	return labels
}

func labelValues(labels []string, tags map[string]string) []string {
	values := make([]string, len(labels))
	for key, value := range tags {
		key = sanitize(key)
		for i, label := range labels {
			if label == key {
				values[i] = value
			}
		}
	}
	return values
}

// metricName turns "webhooks.add_registrations.total" into
// "add_registrations_total" under the webhooks namespace.
func metricName(name string, namespace string) string {
	name = strings.TrimPrefix(strings.TrimSpace(name), namespace+".")
	return sanitize(name)
}

func sanitize(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

var _ core.MetricsRecorder = (*Recorder)(nil)
