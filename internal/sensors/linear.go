package sensors

import (
	"errors"
	"fmt"
	"math"
)

// LinearParams describe an amplifier with a linear output, e.g. AD595 (Scale 500)
// or AD8495 (Scale 660).
type LinearParams struct {
	// Scale is the temperature span in °C covered by the full ADC range
	Scale  float64 `json:"scale" yaml:"scale"`
	Gain   float64 `json:"gain" yaml:"gain"`
	Offset float64 `json:"offset" yaml:"offset"`
}

func NewLinearConversion(params LinearParams, adcRange int, oversample int) (Conversion, error) {
	if params.Scale == 0 || params.Gain == 0 {
		return Conversion{}, errors.New("scale and gain must not be zero")
	}
	if adcRange <= 1 || oversample <= 0 {
		return Conversion{}, fmt.Errorf("invalid adc range %d or oversample count %d", adcRange, oversample)
	}

	adc := float64(adcRange)
	samples := float64(oversample)
	return Conversion{
		kind: KindLinear,
		celsius: func(raw Raw) float64 {
			return float64(raw)*params.Scale/adc/samples*params.Gain + params.Offset
		},
		raw: func(celsius float64) Raw {
			return Raw(math.Round((celsius - params.Offset) / params.Gain * samples * adc / params.Scale))
		},
		rawMin:     0,
		rawMax:     Raw(adcRange*oversample) - 1,
		increasing: params.Scale*params.Gain > 0,
		step:       Raw(oversample),
	}, nil
}
