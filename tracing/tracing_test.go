package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/hupe1980/weatherteam/weather"
)

func restoreGlobalProvider(t *testing.T) {
	t.Helper()
	orig := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(orig) })
}

type collector struct {
	mu       sync.Mutex
	paths    []string
	payloads int
}

func newCollector(t *testing.T) (*collector, *httptest.Server) {
	t.Helper()
	c := &collector{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		c.paths = append(c.paths, r.URL.Path)
		if r.ContentLength != 0 {
			c.payloads++
		}
		c.mu.Unlock()
		w.Header().Set("Content-Type", "application/x-protobuf")
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return c, srv
}

func TestInit_Disabled(t *testing.T) {
	restoreGlobalProvider(t)
	before := otel.GetTracerProvider()

	p, err := Init(context.Background(), Config{ServiceName: "weatherteam", SampleRate: 1})
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.Equal(t, before, otel.GetTracerProvider())
	assert.NoError(t, p.ForceFlush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestProvider_NilIsDisabled(t *testing.T) {
	var p *Provider
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_InstallsGlobalProvider(t *testing.T) {
	restoreGlobalProvider(t)
	_, srv := newCollector(t)

	p, err := Init(context.Background(), Config{Endpoint: srv.URL, ServiceName: "weatherteam-test", SampleRate: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	assert.True(t, p.Enabled())
	_, isSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, isSDK)
}

func TestInit_ExportsWeatherSpans(t *testing.T) {
	restoreGlobalProvider(t)
	col, srv := newCollector(t)

	p, err := Init(context.Background(), Config{Endpoint: srv.URL, ServiceName: "weatherteam-test", SampleRate: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"current":{"temp_c":14.0,"condition":{"text":"Partly cloudy"}}}`))
	}))
	t.Cleanup(api.Close)

	c := weather.NewClient("test-key", func(o *weather.ClientOptions) { o.BaseURL = api.URL })
	_, err = c.Fetch(context.Background(), "London")
	require.NoError(t, err)

	require.NoError(t, p.ForceFlush(context.Background()))

	col.mu.Lock()
	defer col.mu.Unlock()
	require.NotEmpty(t, col.paths)
	assert.Equal(t, "/v1/traces", col.paths[0])
	assert.Positive(t, col.payloads)
}

func TestInit_InvalidEndpoint(t *testing.T) {
	restoreGlobalProvider(t)

	_, err := Init(context.Background(), Config{Endpoint: "localhost", SampleRate: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid tracing endpoint")
}

func TestExporterOptions_Path(t *testing.T) {
	opts, err := exporterOptions("http://collector:4318")
	require.NoError(t, err)
	assert.Len(t, opts, 3)

	opts, err = exporterOptions("https://collector.example.com/otlp/v1/traces")
	require.NoError(t, err)
	assert.Len(t, opts, 2)
}
