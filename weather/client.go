package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/weatherteam/logging"
)

const (
	// DefaultBaseURL is the WeatherAPI v1 endpoint.
	DefaultBaseURL = "https://api.weatherapi.com/v1"

	tracerName = "github.com/hupe1980/weatherteam/weather"
)

// Attempt outcomes reported to an AttemptObserver.
const (
	AttemptSuccess   = "success"
	AttemptError     = "error"
	AttemptMalformed = "malformed"
)

// AttemptObserver is told about every HTTP attempt the client makes.
type AttemptObserver interface {
	RecordWeatherAPIAttempt(outcome string)
}

// ClientOptions configures a Client.
type ClientOptions struct {
	BaseURL string
	// Timeout bounds each HTTP request.
	Timeout time.Duration
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// Backoff returns the pause after failed attempt n (0-based). No pause
	// follows the last attempt, so the defaults wait at most 1s + 2s.
	Backoff  func(attempt int) time.Duration
	Logger   logging.Logger
	Observer AttemptObserver
	Tracer   trace.Tracer
}

// ExponentialBackoff waits 2^attempt seconds.
func ExponentialBackoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * time.Second
}

// Client is a Source backed by the WeatherAPI current conditions endpoint.
type Client struct {
	apiKey string
	http   *resty.Client
	opts   ClientOptions
}

// NewClient creates a Client. An empty apiKey yields a client whose every
// Fetch fails immediately without touching the network.
func NewClient(apiKey string, optFns ...func(o *ClientOptions)) *Client {
	opts := ClientOptions{
		BaseURL:     DefaultBaseURL,
		Timeout:     10 * time.Second,
		MaxAttempts: 3,
		Backoff:     ExponentialBackoff,
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}

	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")

	return &Client{apiKey: apiKey, http: client, opts: opts}
}

// Fetch implements Source. Transport failures, 5xx, 408 and 429 answers are
// retried up to MaxAttempts. Other 4xx answers and a body that cannot be
// interpreted end the lookup at once.
func (c *Client) Fetch(ctx context.Context, city string) (Record, error) {
	if c.apiKey == "" {
		return Record{}, &Error{
			Kind:    KindNotConfigured,
			Message: "Weather API key is not configured. Set WEATHERAPI_KEY to enable live lookups.",
		}
	}

	ctx, span := c.opts.Tracer.Start(ctx, "weather.fetch", trace.WithAttributes(
		attribute.String("weather.city", city),
	))
	defer span.End()

	var lastErr error

	for attempt := 0; attempt < c.opts.MaxAttempts; attempt++ {
		span.SetAttributes(attribute.Int("weather.attempts", attempt+1))

		body, err := c.get(ctx, city)
		if err == nil {
			rec, perr := parseCurrent(city, body)
			if perr != nil {
				c.observe(AttemptMalformed)
				c.opts.Logger.Warn("weather.api.malformed", "city", city, "error", perr.Error())
				span.SetStatus(codes.Error, perr.Error())
				return Record{}, perr
			}
			c.observe(AttemptSuccess)
			c.opts.Logger.Debug("weather.api.success", "city", city, "attempt", attempt+1)
			return rec, nil
		}

		lastErr = err
		c.observe(AttemptError)

		if perr := c.permanent(city, err); perr != nil {
			c.opts.Logger.Warn("weather.api.rejected", "city", city, "attempt", attempt+1, "error", err.Error())
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return Record{}, perr
		}

		if attempt == c.opts.MaxAttempts-1 {
			break
		}

		delay := c.opts.Backoff(attempt)
		c.opts.Logger.Warn("weather.api.retry", "city", city, "attempt", attempt+1, "delay_ms", delay.Milliseconds(), "error", err.Error())

		if err := sleep(ctx, delay); err != nil {
			span.SetStatus(codes.Error, "canceled")
			return Record{}, &Error{
				Kind:    KindCanceled,
				Message: fmt.Sprintf("Weather lookup for '%s' was cancelled.", city),
				Err:     err,
			}
		}
	}

	c.opts.Logger.Error("weather.api.failed", "city", city, "attempts", c.opts.MaxAttempts, "error", lastErr.Error())
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())

	return Record{}, &Error{
		Kind:    KindTransient,
		Message: fmt.Sprintf("Error fetching weather data: %v", lastErr),
		Err:     lastErr,
	}
}

func (c *Client) get(ctx context.Context, city string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"key": c.apiKey, "q": city}).
		Get("/current.json")
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, &statusError{
			code: resp.StatusCode(),
			body: strings.TrimSpace(resp.String()),
		}
	}

	return resp.Body(), nil
}

// statusError is a non-200 answer from the API.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("weather API returned status %d: %s", e.code, e.body)
}

// permanent maps answers that a retry cannot change to the error Fetch
// returns. It returns nil for retryable failures.
func (c *Client) permanent(city string, err error) error {
	var se *statusError
	if !errors.As(err, &se) {
		return nil
	}

	switch {
	case se.code == http.StatusBadRequest:
		// WeatherAPI answers 400 with code 1006 when no location matches q.
		return UnknownCityError(city)
	case se.code == http.StatusUnauthorized || se.code == http.StatusForbidden:
		return &Error{
			Kind:    KindNotConfigured,
			Message: fmt.Sprintf("Weather API rejected the configured key (status %d).", se.code),
			Err:     err,
		}
	case se.code == http.StatusRequestTimeout || se.code == http.StatusTooManyRequests:
		return nil
	case se.code >= 400 && se.code < 500:
		return &Error{
			Kind:    KindTransient,
			Message: fmt.Sprintf("Error fetching weather data: %v", err),
			Err:     err,
		}
	default:
		return nil
	}
}

func (c *Client) observe(outcome string) {
	if c.opts.Observer != nil {
		c.opts.Observer.RecordWeatherAPIAttempt(outcome)
	}
}

// parseCurrent extracts current.condition.text and current.temp_c.
func parseCurrent(city string, body []byte) (Record, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return Record{}, &Error{Kind: KindMalformed, Message: "Failed to parse weather data from the API.", Err: err}
	}

	unexpected := &Error{Kind: KindMalformed, Message: "Unexpected API response structure."}

	current, ok := payload["current"].(map[string]any)
	if !ok {
		return Record{}, unexpected
	}

	condition, ok := current["condition"].(map[string]any)
	if !ok {
		return Record{}, unexpected
	}

	text, ok := condition["text"].(string)
	if !ok {
		return Record{}, unexpected
	}

	tempC, ok := current["temp_c"].(float64)
	if !ok {
		return Record{}, unexpected
	}

	return Record{City: city, Condition: strings.ToLower(text), TemperatureC: tempC}, nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
