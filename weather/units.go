package weather

import (
	"fmt"
	"math"

	"github.com/hupe1980/weatherteam/core"
)

// Unit is a temperature display unit as stored in session state.
type Unit string

const (
	Celsius    Unit = "Celsius"
	Fahrenheit Unit = "Fahrenheit"
)

// ParseUnit accepts exactly "Celsius" or "Fahrenheit".
func ParseUnit(s string) (Unit, bool) {
	switch Unit(s) {
	case Celsius, Fahrenheit:
		return Unit(s), true
	default:
		return "", false
	}
}

// UnitFromState reads the preferred unit. Only the literal "Fahrenheit"
// selects Fahrenheit; anything else, including a missing key, is Celsius.
func UnitFromState(s core.State) Unit {
	if core.GetString(s, StateKeyUnit, "") == string(Fahrenheit) {
		return Fahrenheit
	}
	return Celsius
}

// Symbol returns "°F" for Fahrenheit and "°C" otherwise.
func (u Unit) Symbol() string {
	if u == Fahrenheit {
		return "°F"
	}
	return "°C"
}

// Convert turns a Celsius reading into a whole number in u. Halves round
// to the nearest even value.
func (u Unit) Convert(celsius float64) int {
	v := celsius
	if u == Fahrenheit {
		v = celsius*9/5 + 32
	}
	return int(math.RoundToEven(v))
}

// Format renders a Celsius reading in u, e.g. "77°F".
func (u Unit) Format(celsius float64) string {
	return fmt.Sprintf("%d%s", u.Convert(celsius), u.Symbol())
}
