package sensors

import (
	"errors"
	"fmt"
	"math"
)

const (
	AbsoluteZero = -273.15

	nominalCelsius      = 25.0
	maxSteinhartCelsius = 999.0
)

// SteinhartHartParams describe an NTC thermistor wired as the lower leg
// of a voltage divider with SeriesResistor as pull-up.
type SteinhartHartParams struct {
	// R25 is the resistance in ohms at 25°C
	R25  float64 `json:"r25" yaml:"r25"`
	Beta float64 `json:"beta" yaml:"beta"`
	// C is the optional third order coefficient
	C              float64 `json:"c" yaml:"c"`
	SeriesResistor float64 `json:"seriesResistor" yaml:"seriesResistor"`
}

type steinhartHart struct {
	params SteinhartHartParams

	logR25    float64
	betaRecip float64
	alpha     float64
	adcMax    float64
}

// NewSteinhartHartConversion creates a parametric thermistor conversion for an
// ADC with adcRange counts per sample, summed over oversample samples.
func NewSteinhartHartConversion(params SteinhartHartParams, adcRange int, oversample int) (Conversion, error) {
	if params.R25 <= 0 || params.Beta <= 0 || params.SeriesResistor <= 0 {
		return Conversion{}, errors.New("r25, beta and seriesResistor must be positive")
	}
	if adcRange <= 1 || oversample <= 0 {
		return Conversion{}, fmt.Errorf("invalid adc range %d or oversample count %d", adcRange, oversample)
	}

	sh := &steinhartHart{
		params:    params,
		logR25:    math.Log(params.R25),
		betaRecip: 1.0 / params.Beta,
		adcMax:    float64(adcRange * oversample),
	}
	sh.alpha = 1.0/(nominalCelsius-AbsoluteZero) - sh.betaRecip*sh.logR25 - params.C*math.Pow(sh.logR25, 3)

	return Conversion{
		kind:       KindSteinhartHart,
		celsius:    sh.celsius,
		raw:        sh.raw,
		rawMin:     0,
		rawMax:     Raw(sh.adcMax) - 1,
		increasing: false,
		step:       Raw(oversample),
	}, nil
}

func (sh *steinhartHart) celsius(raw Raw) float64 {
	r := math.Max(1, math.Min(float64(raw), sh.adcMax-1))
	resistance := sh.params.SeriesResistor * r / (sh.adcMax - r)
	logR := math.Log(resistance)

	value := 1.0/(sh.alpha+logR*sh.betaRecip+sh.params.C*logR*logR*logR) + AbsoluteZero
	return math.Min(value, maxSteinhartCelsius)
}

func (sh *steinhartHart) raw(celsius float64) Raw {
	invT := 1.0 / (celsius - AbsoluteZero)

	var logR float64
	if sh.params.C == 0 {
		logR = (invT - sh.alpha) * sh.params.Beta
	} else {
		// Cardano's formula for C·x³ + x/β + (α - 1/T) = 0
		y := (sh.alpha - invT) / (2 * sh.params.C)
		x := math.Sqrt(math.Pow(sh.betaRecip/(3*sh.params.C), 3) + y*y)
		logR = math.Cbrt(x-y) - math.Cbrt(x+y)
	}

	resistance := math.Exp(logR)
	return Raw(math.Round(sh.adcMax * resistance / (sh.params.SeriesResistor + resistance)))
}
