package configuration

import (
	"reflect"
	"testing"

	"github.com/go-viper/mapstructure/v2"
	"github.com/markusressel/heat2go/internal/sensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTrueBool_Get(t *testing.T) {
	tests := []struct {
		name     string
		input    DefaultTrueBool
		expected bool
	}{
		{
			name:     "Present and False returns False",
			input:    DefaultTrueBool{Optional: Optional[bool]{Value: false, Present: true}},
			expected: false,
		},
		{
			name:     "Not Present returns True",
			input:    DefaultTrueBool{},
			expected: true,
		},
		{
			name: "Runtime Override wins over Missing",
			input: func() DefaultTrueBool {
				b := DefaultTrueBool{}
				b.SetOverride(false)
				return b
			}(),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.input.Get())
		})
	}
}

func TestDefaultTrueBoolHookFunc_SoftPwmDither(t *testing.T) {
	tests := []struct {
		name     string
		input    map[string]interface{}
		expected bool
	}{
		{name: "explicit false", input: map[string]interface{}{"dither": false}, expected: false},
		{name: "string false", input: map[string]interface{}{"dither": "false"}, expected: false},
		{name: "missing", input: map[string]interface{}{"scale": 2}, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN
			var softPwm SoftPwmConfig
			decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
				DecodeHook: decodeHook(),
				Result:     &softPwm,
			})
			require.NoError(t, err)

			// WHEN
			err = decoder.Decode(tt.input)

			// THEN
			require.NoError(t, err)
			assert.Equal(t, tt.expected, softPwm.Dither.Get())
		})
	}
}

func TestTablePointsHookFunc_MapIsSortedByRaw(t *testing.T) {
	// GIVEN
	var table TableConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: decodeHook(),
		Result:     &table,
	})
	require.NoError(t, err)

	// WHEN
	err = decoder.Decode(map[string]interface{}{
		"points": map[string]interface{}{
			"3000": 20,
			"120":  "280.5",
			"1500": 150.0,
		},
	})

	// THEN
	require.NoError(t, err)
	assert.Equal(t, TablePoints{
		{Raw: 120, Celsius: 280.5},
		{Raw: 1500, Celsius: 150},
		{Raw: 3000, Celsius: 20},
	}, table.Points)
}

func TestTablePointsHookFunc_ListIsKept(t *testing.T) {
	// GIVEN
	var table TableConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: decodeHook(),
		Result:     &table,
	})
	require.NoError(t, err)

	// WHEN
	err = decoder.Decode(map[string]interface{}{
		"points": []interface{}{
			map[string]interface{}{"raw": 100, "celsius": 300},
			map[string]interface{}{"raw": 4000, "celsius": 0},
		},
	})

	// THEN
	require.NoError(t, err)
	assert.Equal(t, TablePoints{{Raw: 100, Celsius: 300}, {Raw: 4000, Celsius: 0}}, table.Points)
}

func TestTablePointsHookFunc_InvalidKey(t *testing.T) {
	// GIVEN
	hook := tablePointsHookFunc()

	// WHEN
	_, err := hook(
		reflect.TypeOf(map[string]interface{}{}),
		reflect.TypeOf(TablePoints{}),
		map[string]interface{}{"hot": 300},
	)

	// THEN
	assert.ErrorContains(t, err, "invalid table key hot")
}

func TestTablePointsHookFunc_SkipsUnrelatedTypes(t *testing.T) {
	hook := tablePointsHookFunc()
	data := map[string]interface{}{"1": 2}

	res, err := hook(reflect.TypeOf(data), reflect.TypeOf(sensors.TablePoint{}), data)

	assert.NoError(t, err)
	assert.Equal(t, data, res)
}
