package sensors

import (
	"fmt"
	"math"

	"github.com/markusressel/heat2go/internal/util"
)

const (
	builtinTableMinCelsius  = 0
	builtinTableMaxCelsius  = 400
	builtinTableStepCelsius = 5
)

// builtinThermistors are common printer thermistors by their well known table id,
// all with a 4.7kΩ pull-up.
var builtinThermistors = map[string]SteinhartHartParams{
	// EPCOS 100k
	"1": {R25: 100000, Beta: 4092, SeriesResistor: 4700},
	// ATC Semitec 204GT-2
	"2": {R25: 200000, Beta: 4338, SeriesResistor: 4700},
	// ATC Semitec 104GT-2
	"5": {R25: 100000, Beta: 4267, SeriesResistor: 4700},
	// 100k 3950 (QU-BD silicone bed)
	"11": {R25: 100000, Beta: 3950, SeriesResistor: 4700},
}

// BuiltinTableIds returns the ids of all built-in thermistor tables.
func BuiltinTableIds() []string {
	return util.SortedKeys(builtinThermistors)
}

// BuiltinTable returns the single-sample lookup table of a built-in thermistor
// for an ADC with adcRange counts.
func BuiltinTable(id string, adcRange int) ([]TablePoint, error) {
	params, ok := builtinThermistors[id]
	if !ok {
		return nil, fmt.Errorf("unknown thermistor table '%s', use one of: %v", id, BuiltinTableIds())
	}

	sh, err := NewSteinhartHartConversion(params, adcRange, 1)
	if err != nil {
		return nil, err
	}

	var points []TablePoint
	for celsius := builtinTableMaxCelsius; celsius >= builtinTableMinCelsius; celsius -= builtinTableStepCelsius {
		raw := sh.Raw(float64(celsius))
		if len(points) > 0 && points[len(points)-1].Raw >= raw {
			continue
		}
		points = append(points, TablePoint{Raw: raw, Celsius: math.Round(sh.Celsius(raw)*100) / 100})
	}
	return points, nil
}

// NewBuiltinConversion creates a table conversion for a built-in thermistor.
func NewBuiltinConversion(id string, adcRange int, oversample int) (Conversion, error) {
	points, err := BuiltinTable(id, adcRange)
	if err != nil {
		return Conversion{}, err
	}
	return NewTableConversion(points, oversample)
}
