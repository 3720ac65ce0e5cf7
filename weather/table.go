package weather

import (
	"context"
	"maps"
)

// Table is a static Source keyed by normalized city name.
type Table struct {
	records map[string]Record
}

// NewTable builds a Table from records keyed by normalized city.
func NewTable(records map[string]Record) *Table {
	return &Table{records: maps.Clone(records)}
}

// NewMockTable returns the built-in table of New York, London and Tokyo.
func NewMockTable() *Table {
	return NewTable(map[string]Record{
		"newyork": {
			City: "New York", Condition: "sunny", TemperatureC: 25,
			Summary: "The weather in New York is sunny with a temperature of 25°C.",
		},
		"london": {
			City: "London", Condition: "cloudy", TemperatureC: 15,
			Summary: "It's cloudy in London with a temperature of 15°C.",
		},
		"tokyo": {
			City: "Tokyo", Condition: "light rain", TemperatureC: 18,
			Summary: "Tokyo is experiencing light rain and a temperature of 18°C.",
		},
	})
}

// Fetch implements Source.
func (t *Table) Fetch(_ context.Context, city string) (Record, error) {
	rec, ok := t.records[Normalize(city)]
	if !ok {
		return Record{}, UnknownCityError(city)
	}
	return rec, nil
}
