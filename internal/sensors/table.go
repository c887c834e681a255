package sensors

import (
	"errors"
	"fmt"
	"sort"

	"github.com/markusressel/heat2go/internal/util"
)

// TablePoint maps a single-sample ADC reading to a temperature.
type TablePoint struct {
	Raw     Raw     `json:"raw" yaml:"raw"`
	Celsius float64 `json:"celsius" yaml:"celsius"`
}

// NewTableConversion creates a lookup table conversion. The raw values of the given
// points are single-sample readings and are scaled by oversample.
func NewTableConversion(points []TablePoint, oversample int) (Conversion, error) {
	if len(points) < 2 {
		return Conversion{}, errors.New("a conversion table needs at least two points")
	}
	if oversample <= 0 {
		return Conversion{}, fmt.Errorf("invalid oversample count: %d", oversample)
	}

	table := make([]TablePoint, len(points))
	for i, p := range points {
		table[i] = TablePoint{Raw: p.Raw * Raw(oversample), Celsius: p.Celsius}
	}
	sort.Slice(table, func(i, j int) bool {
		return table[i].Raw < table[j].Raw
	})

	increasing := table[len(table)-1].Celsius > table[0].Celsius
	for i := 1; i < len(table); i++ {
		if table[i].Raw == table[i-1].Raw {
			return Conversion{}, fmt.Errorf("duplicate raw value %d in conversion table", table[i].Raw/Raw(oversample))
		}
		if (table[i].Celsius > table[i-1].Celsius) != increasing || table[i].Celsius == table[i-1].Celsius {
			return Conversion{}, errors.New("conversion table temperatures must be strictly monotonic")
		}
	}

	return Conversion{
		kind:       KindTable,
		celsius:    func(raw Raw) float64 { return tableCelsius(table, raw) },
		raw:        func(celsius float64) Raw { return tableRaw(table, increasing, celsius) },
		rawMin:     table[0].Raw,
		rawMax:     table[len(table)-1].Raw,
		increasing: increasing,
		step:       Raw(oversample),
	}, nil
}

func tableCelsius(table []TablePoint, raw Raw) float64 {
	i := sort.Search(len(table), func(i int) bool {
		return table[i].Raw > raw
	})
	if i == 0 {
		return table[0].Celsius
	}
	if i == len(table) {
		return table[len(table)-1].Celsius
	}
	low, high := table[i-1], table[i]
	ratio := util.Ratio(float64(raw), float64(low.Raw), float64(high.Raw))
	return low.Celsius + ratio*(high.Celsius-low.Celsius)
}

func tableRaw(table []TablePoint, increasing bool, celsius float64) Raw {
	i := sort.Search(len(table), func(i int) bool {
		if increasing {
			return table[i].Celsius > celsius
		}
		return table[i].Celsius < celsius
	})
	if i == 0 {
		return table[0].Raw
	}
	if i == len(table) {
		return table[len(table)-1].Raw
	}
	low, high := table[i-1], table[i]
	ratio := util.Ratio(celsius, low.Celsius, high.Celsius)
	return low.Raw + Raw(ratio*float64(high.Raw-low.Raw))
}
