package configuration

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/go-viper/mapstructure/v2"
	"github.com/markusressel/heat2go/internal/sensors"
	"golang.org/x/exp/slices"
)

// Optional is a generic container for optional configuration values.
type Optional[T any] struct {
	// Value holds the actual as unmarshalled.
	Value T
	// Present indicates if the value was present in the configuration.
	Present bool
	// RuntimeOverride indicates if the value was overridden at runtime.
	RuntimeOverride bool
}

// Get returns the value as unmarshalled or overridden.
func (o *Optional[T]) Get() T {
	return o.Value
}

// SetOverride sets the value and marks it as overridden at runtime.
func (o *Optional[T]) SetOverride(value T) {
	o.RuntimeOverride = true
	o.Value = value
}

// DefaultTrueBool is a boolean type that defaults to true if not present and not overridden.
type DefaultTrueBool struct {
	Optional[bool]
}

// Get returns the boolean value, defaulting to true if not present and not overridden.
func (b *DefaultTrueBool) Get() bool {
	if !b.Present && !b.RuntimeOverride {
		return true
	}
	return b.Value
}

func (b DefaultTrueBool) MarshalYAML() (interface{}, error) {
	return b.Get(), nil
}

// DefaultTrueBoolHookFunc returns a mapstructure decode hook function for DefaultTrueBool.
func DefaultTrueBoolHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{}) (interface{}, error) {

		// Only target our specific named type
		if t != reflect.TypeOf(DefaultTrueBool{}) {
			return data, nil
		}

		var val bool
		switch v := data.(type) {
		case bool:
			val = v
		case string:
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return data, nil
			}
			val = parsed
		default:
			return data, nil
		}

		return DefaultTrueBool{
			Optional: Optional[bool]{
				Value:   val,
				Present: true,
			},
		}, nil
	}
}

// tablePointsHookFunc returns a mapstructure decode hook that accepts the
// short form of a thermistor table, a map of raw reading to temperature,
// next to the list of {raw, celsius} points.
func tablePointsHookFunc() mapstructure.DecodeHookFuncType {
	tablePointsType := reflect.TypeOf(TablePoints{})

	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if t != tablePointsType {
			return data, nil
		}

		var points TablePoints
		switch v := data.(type) {
		case map[string]interface{}:
			for k, val := range v {
				point, err := parseTablePoint(k, val)
				if err != nil {
					return nil, err
				}
				points = append(points, point)
			}
		case map[interface{}]interface{}:
			for k, val := range v {
				point, err := parseTablePoint(k, val)
				if err != nil {
					return nil, err
				}
				points = append(points, point)
			}
		default:
			return data, nil
		}

		slices.SortFunc(points, func(a, b sensors.TablePoint) int {
			return int(a.Raw - b.Raw)
		})
		return points, nil
	}
}

func parseTablePoint(key interface{}, value interface{}) (sensors.TablePoint, error) {
	raw, err := anyToInt(key)
	if err != nil {
		return sensors.TablePoint{}, fmt.Errorf("invalid table key %v: %w", key, err)
	}
	celsius, err := anyToFloat(value)
	if err != nil {
		return sensors.TablePoint{}, fmt.Errorf("invalid table value %v: %w", value, err)
	}
	return sensors.TablePoint{Raw: sensors.Raw(raw), Celsius: celsius}, nil
}

// anyToInt converts numeric and string values to int.
func anyToInt(v interface{}) (int, error) {
	switch val := v.(type) {
	case int:
		return val, nil
	case int64:
		return int(val), nil
	case float64:
		return int(val), nil
	case string:
		n, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("cannot parse %q as int: %w", val, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to int", v)
	}
}

func anyToFloat(v interface{}) (float64, error) {
	switch val := v.(type) {
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case float64:
		return val, nil
	case string:
		n, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse %q as float: %w", val, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float", v)
	}
}
