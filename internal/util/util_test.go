package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapitalize(t *testing.T) {
	cases := map[string]string{
		"":         "",
		"new york": "New york",
		"PARIS":    "Paris",
		"london":   "London",
		"éclair":   "Éclair",
	}
	for in, want := range cases {
		assert.Equal(t, want, Capitalize(in), in)
	}
}

func TestValidateParameters_RequiredAsStringSlice(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"city": map[string]any{"type": "string"},
		},
		"required": []string{"city"},
	}

	err := ValidateParameters(map[string]any{}, schema)
	require.Error(t, err)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "city", vErr.Field)

	assert.NoError(t, ValidateParameters(map[string]any{"city": "London"}, schema))
}

func TestValidateParameters_RequiredAsAnySlice(t *testing.T) {
	schema := map[string]any{"required": []any{"name"}}
	assert.Error(t, ValidateParameters(map[string]any{}, schema))
	assert.NoError(t, ValidateParameters(map[string]any{"name": "x"}, schema))
}

func TestValidateParameters_TypeAndEnum(t *testing.T) {
	schema := map[string]any{
		"properties": map[string]any{
			"city": map[string]any{"type": "string"},
			"unit": map[string]any{"type": "string", "enum": []string{"Celsius", "Fahrenheit"}},
		},
	}

	assert.Error(t, ValidateParameters(map[string]any{"city": 3.0}, schema))
	assert.Error(t, ValidateParameters(map[string]any{"unit": "Kelvin"}, schema))
	assert.NoError(t, ValidateParameters(map[string]any{"unit": "Fahrenheit", "extra": true}, schema))
}

func TestCreateSchema(t *testing.T) {
	type args struct {
		City string  `json:"city" description:"City name"`
		Name *string `json:"name,omitempty"`
	}

	schema := CreateSchema(args{})
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []string{"city"}, schema["required"])

	props := schema["properties"].(map[string]any)
	assert.Equal(t, "City name", props["city"].(map[string]any)["description"])
	assert.Equal(t, "string", props["name"].(map[string]any)["type"])
}

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("plain text", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)

	out, err = RenderTemplate(`Unit: {{ .user_preference_temperature_unit }} / {{ capitalize .city }}`, map[string]any{
		"user_preference_temperature_unit": "Celsius",
		"city":                             "new york",
	})
	require.NoError(t, err)
	assert.Equal(t, "Unit: Celsius / New york", out)

	out, err = RenderTemplate(`{{ default "none" .missing }}`, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "none", out)

	_, err = RenderTemplate("{{ .broken", nil)
	assert.Error(t, err)
}
