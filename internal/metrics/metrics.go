// Package metrics exposes Prometheus counters fed from hook events.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soyeahso/taskpilot/internal/hooks"
)

const namespace = "taskpilot"

// Metrics holds the collectors of one registry.
type Metrics struct {
	registry *prometheus.Registry

	chatRequests   *prometheus.CounterVec
	modelCalls     *prometheus.CounterVec
	toolCalls      *prometheus.CounterVec
	pendingActions *prometheus.CounterVec
	loopIterations prometheus.Histogram
}

// New creates the collectors on a fresh registry, along with the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// outcome: answered, pending, exhausted, transport_error, rejected
		chatRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat turns and confirmations handled, by outcome.",
		}, []string{"outcome"}),

		modelCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Model calls made by the conversation loop, by outcome.",
		}, []string{"outcome"}),

		toolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool executions, by tool and success.",
		}, []string{"tool", "success"}),

		// decision: proposed, approved, rejected
		pendingActions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pending_actions_total",
			Help:      "Actions held for confirmation and their decisions.",
		}, []string{"decision"}),

		loopIterations: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "loop_iterations",
			Help:      "Model calls per chat turn.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Subscribe registers handlers for the events the collectors count.
func (m *Metrics) Subscribe(h *hooks.Manager) {
	h.On(hooks.EventChatCompleted, "metrics", func(_ context.Context, p hooks.Payload) error {
		m.chatRequests.WithLabelValues(p.Str("outcome")).Inc()
		if n := p.Int("iterations"); n > 0 {
			m.loopIterations.Observe(float64(n))
		}
		return nil
	})
	h.On(hooks.EventModelCalled, "metrics", func(_ context.Context, p hooks.Payload) error {
		m.modelCalls.WithLabelValues(p.Str("outcome")).Inc()
		return nil
	})
	h.On(hooks.EventToolExecuted, "metrics", func(_ context.Context, p hooks.Payload) error {
		m.toolCalls.WithLabelValues(p.Str("tool"), strconv.FormatBool(p.Bool("success"))).Inc()
		return nil
	})
	h.On(hooks.EventActionPending, "metrics", func(_ context.Context, _ hooks.Payload) error {
		m.pendingActions.WithLabelValues("proposed").Inc()
		return nil
	})
	h.On(hooks.EventActionConfirmed, "metrics", func(_ context.Context, _ hooks.Payload) error {
		m.pendingActions.WithLabelValues("approved").Inc()
		return nil
	})
	h.On(hooks.EventActionRejected, "metrics", func(_ context.Context, _ hooks.Payload) error {
		m.pendingActions.WithLabelValues("rejected").Inc()
		return nil
	})
}
