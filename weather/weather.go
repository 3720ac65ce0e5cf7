// Package weather resolves city names to weather reports.
//
// A Source answers with a Record. Two sources exist: Table, a fixed mock
// table, and Client, which queries WeatherAPI over HTTPS with retry and
// backoff. Every lookup outcome reaching a tool is a tool.Result: either a
// report or a human readable error message. Nothing here writes session
// state except the stateful tool, which records the last resolved city.
package weather

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hupe1980/weatherteam/tool"
)

// Session state keys read or written by this package.
const (
	StateKeyUnit     = "user_preference_temperature_unit"
	StateKeyLastCity = "last_city_checked_stateful"
)

// Record is one weather observation. It is never persisted or cached.
type Record struct {
	City         string  `json:"city"`
	Condition    string  `json:"condition"`
	TemperatureC float64 `json:"temperature_celsius"`

	// Summary overrides the generated report sentence when set.
	Summary string `json:"-"`
}

// Describe renders the record as a Celsius report sentence.
func (r Record) Describe() string {
	if r.Summary != "" {
		return r.Summary
	}
	return fmt.Sprintf("The weather in %s is %s with a temperature of %s°C.",
		r.City, r.Condition, strconv.FormatFloat(r.TemperatureC, 'f', -1, 64))
}

// Source resolves a city to a Record. Errors returned by a Source carry a
// message that is safe to show to the user.
type Source interface {
	Fetch(ctx context.Context, city string) (Record, error)
}

// Kind classifies lookup failures.
type Kind string

const (
	KindUnknownCity   Kind = "unknown_city"
	KindNotConfigured Kind = "not_configured"
	KindTransient     Kind = "transient"
	KindMalformed     Kind = "malformed_response"
	KindCanceled      Kind = "canceled"
)

// Error is a lookup failure. Message is the text surfaced as the tool's
// error_message; Err keeps the underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is a lookup Error of kind k.
func IsKind(err error, k Kind) bool {
	var we *Error
	return errors.As(err, &we) && we.Kind == k
}

// UnknownCityError builds the error returned for cities a source cannot resolve.
func UnknownCityError(city string) error {
	return &Error{
		Kind:    KindUnknownCity,
		Message: fmt.Sprintf("Sorry, I don't have weather information for '%s'.", city),
	}
}

// Normalize lower-cases city and strips spaces, so "New York" and
// "new york" both become "newyork".
func Normalize(city string) string {
	return strings.ReplaceAll(strings.ToLower(city), " ", "")
}

// Lookup resolves city through src and wraps the outcome as a tool.Result.
func Lookup(ctx context.Context, src Source, city string) tool.Result {
	rec, err := src.Fetch(ctx, city)
	if err != nil {
		return tool.Failure(err.Error())
	}
	return tool.Success(rec.Describe())
}
