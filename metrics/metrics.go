// Package metrics exposes Prometheus instruments for the weather team:
// tool invocations, guardrail trips, weather API attempts, model calls and
// turns. A nil *Collector is valid and turns every method into a no-op, so
// components can be wired with or without metrics.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/weatherteam/flow"
	"github.com/hupe1980/weatherteam/model"
)

// Collector groups the team's instruments.
type Collector struct {
	toolCalls          *prometheus.CounterVec
	toolCallDuration   *prometheus.HistogramVec
	guardrailTrips     *prometheus.CounterVec
	weatherAPIAttempts *prometheus.CounterVec
	modelCalls         *prometheus.CounterVec
	turns              *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewCollector registers the instruments under namespace. A nil registerer
// uses a fresh private registry, which keeps tests independent.
func NewCollector(namespace string, registerer prometheus.Registerer) *Collector {
	c := &Collector{}

	if registerer == nil {
		reg := prometheus.NewRegistry()
		registerer, c.gatherer = reg, reg
	} else if g, ok := registerer.(prometheus.Gatherer); ok {
		c.gatherer = g
	}

	factory := promauto.With(registerer)

	c.toolCalls = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of tool invocations",
		},
		[]string{"tool", "status"}, // status: success, error, blocked
	)

	c.toolCallDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool invocation duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"tool"},
	)

	c.guardrailTrips = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guardrail_trips_total",
			Help:      "Total number of requests blocked by a guardrail",
		},
		[]string{"guardrail", "stage"}, // stage: input, tool
	)

	c.weatherAPIAttempts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_api_attempts_total",
			Help:      "Total number of weather API HTTP attempts",
		},
		[]string{"outcome"}, // outcome: success, error, malformed
	)

	c.modelCalls = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Total number of model generate calls",
		},
		[]string{"agent"},
	)

	c.turns = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of conversation turns",
		},
		[]string{"outcome"}, // outcome: ok, error
	)

	return c
}

// RecordToolCall counts one tool invocation.
func (c *Collector) RecordToolCall(toolName, status string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.toolCalls.WithLabelValues(toolName, status).Inc()
	c.toolCallDuration.WithLabelValues(toolName).Observe(elapsed.Seconds())
}

// ToolObserver adapts the collector to the flow executor hook.
func (c *Collector) ToolObserver() flow.ToolObserver {
	return func(_, toolName, status string, elapsed time.Duration) {
		c.RecordToolCall(toolName, status, elapsed)
	}
}

// RecordGuardrailTrip counts one blocked request.
func (c *Collector) RecordGuardrailTrip(guardrail, stage string) {
	if c == nil {
		return
	}
	c.guardrailTrips.WithLabelValues(guardrail, stage).Inc()
}

// RecordWeatherAPIAttempt counts one HTTP attempt against the weather API.
func (c *Collector) RecordWeatherAPIAttempt(outcome string) {
	if c == nil {
		return
	}
	c.weatherAPIAttempts.WithLabelValues(outcome).Inc()
}

// RecordModelCall counts one Generate call made on behalf of agent.
func (c *Collector) RecordModelCall(agent string) {
	if c == nil {
		return
	}
	c.modelCalls.WithLabelValues(agent).Inc()
}

// RecordTurn counts one finished turn.
func (c *Collector) RecordTurn(outcome string) {
	if c == nil {
		return
	}
	c.turns.WithLabelValues(outcome).Inc()
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil || c.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// InstrumentModel counts every Generate call of m under agent.
func InstrumentModel(m model.Model, c *Collector, agent string) model.Model {
	if c == nil {
		return m
	}
	return &instrumentedModel{Model: m, collector: c, agent: agent}
}

type instrumentedModel struct {
	model.Model
	collector *Collector
	agent     string
}

func (m *instrumentedModel) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	m.collector.RecordModelCall(m.agent)
	return m.Model.Generate(ctx, req)
}
