package configuration

type FanConfig struct {
	ID   string         `json:"id" yaml:"id"`
	Pin  int            `json:"pin" yaml:"pin"`
	Slow bool           `json:"slow,omitempty" yaml:"slow,omitempty"`
	Auto *AutoFanConfig `json:"auto,omitempty" yaml:"auto,omitempty"`
	// PartCooling channels slow this fan down while they recover from a temperature drop
	PartCooling []string `json:"partCooling,omitempty" yaml:"partCooling,omitempty"`
}

type AutoFanConfig struct {
	Channels    []string `json:"channels" yaml:"channels"`
	Temperature float64  `json:"temperature" yaml:"temperature"`
	Speed       int      `json:"speed" yaml:"speed"`
}
