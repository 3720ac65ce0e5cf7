package metrics

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/weatherteam/model"
)

func TestNilCollectorIsNoOp(t *testing.T) {
	var c *Collector
	c.RecordToolCall("get_weather", "success", time.Millisecond)
	c.RecordGuardrailTrip("keyword", "input")
	c.RecordWeatherAPIAttempt("success")
	c.RecordModelCall("root")
	c.RecordTurn("ok")
	c.ToolObserver()("root", "x", "success", 0)

	m := model.NewScriptedModel("m")
	assert.Same(t, m, InstrumentModel(m, nil, "root"))
}

func TestCollector_Counters(t *testing.T) {
	c := NewCollector("test", nil)

	c.RecordToolCall("get_weather_stateful", "success", 10*time.Millisecond)
	c.ToolObserver()("weather_agent", "get_weather_stateful", "blocked", time.Millisecond)
	c.RecordGuardrailTrip("keyword", "input")
	c.RecordWeatherAPIAttempt("error")
	c.RecordWeatherAPIAttempt("success")
	c.RecordTurn("ok")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.toolCalls.WithLabelValues("get_weather_stateful", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.toolCalls.WithLabelValues("get_weather_stateful", "blocked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.guardrailTrips.WithLabelValues("keyword", "input")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.weatherAPIAttempts))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.turns.WithLabelValues("ok")))
}

func TestInstrumentModel(t *testing.T) {
	c := NewCollector("test", nil)
	m := InstrumentModel(model.NewScriptedModel("m", model.Reply("a"), model.Reply("b")), c, "greeting_agent")

	for range 2 {
		respCh, errCh := m.Generate(context.Background(), model.Request{})
		for range respCh {
		}
		for range errCh {
		}
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(c.modelCalls.WithLabelValues("greeting_agent")))
	assert.Equal(t, "m", m.Info().Name)
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("weatherteam", reg)
	c.RecordTurn("error")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `weatherteam_turns_total{outcome="error"} 1`))
}
