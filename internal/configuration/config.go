package configuration

import (
	"os"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/markusressel/heat2go/internal/ui"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

type Configuration struct {
	DbPath     string `json:"dbPath" yaml:"dbPath"`
	StatusFile string `json:"statusFile" yaml:"statusFile"`
	Notify     bool   `json:"notify" yaml:"notify"`

	Isr     IsrConfig     `json:"isr" yaml:"isr"`
	SoftPwm SoftPwmConfig `json:"softPwm" yaml:"softPwm"`

	FaultConfirmations int `json:"faultConfirmations" yaml:"faultConfirmations"`
	// IdleInterval is the pause of the main loop between two passes
	IdleInterval time.Duration `json:"idleInterval" yaml:"idleInterval"`

	Channels []ChannelConfig `json:"channels" yaml:"channels"`
	Fans     []FanConfig     `json:"fans" yaml:"fans"`

	Stop       StopConfig       `json:"stop" yaml:"stop"`
	Api        ApiConfig        `json:"api" yaml:"api"`
	Statistics StatisticsConfig `json:"statistics" yaml:"statistics"`
}

type IsrConfig struct {
	Frequency         int `json:"frequency" yaml:"frequency"`
	Oversample        int `json:"oversample" yaml:"oversample"`
	SensorsReadyDwell int `json:"sensorsReadyDwell" yaml:"sensorsReadyDwell"`
	StartupDelay      int `json:"startupDelay" yaml:"startupDelay"`
	// AdcRange is the number of counts of a single ADC sample
	AdcRange int `json:"adcRange" yaml:"adcRange"`
}

type SoftPwmConfig struct {
	Scale        uint8           `json:"scale" yaml:"scale"`
	Dither       DefaultTrueBool `json:"dither" yaml:"dither"`
	MinStateTime uint8           `json:"minStateTime" yaml:"minStateTime"`
}

// StopConfig is the command run to halt all motion on a fatal error.
type StopConfig struct {
	Exec string   `json:"exec" yaml:"exec"`
	Args []string `json:"args" yaml:"args"`
}

type StatisticsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Port    int  `json:"port" yaml:"port"`
}

var CurrentConfig Configuration

// InitConfig reads in config file and ENV variables if set.
func InitConfig(cfgFile string) {
	viper.SetConfigName("heat2go")

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			ui.Error("Couldn't detect home directory: %v", err)
			os.Exit(1)
		}

		viper.AddConfigPath(".")
		viper.AddConfigPath(home)
		viper.AddConfigPath("/etc/heat2go/")
	}

	viper.AutomaticEnv() // read in environment variables that match

	setDefaultValues()
}

func setDefaultValues() {
	viper.SetDefault("dbpath", "/etc/heat2go/heat2go.db")
	viper.SetDefault("statusFile", "")
	viper.SetDefault("notify", false)

	viper.SetDefault("isr.frequency", 1000)
	viper.SetDefault("isr.oversample", 16)
	viper.SetDefault("isr.sensorsReadyDwell", 2)
	viper.SetDefault("isr.startupDelay", 0)
	viper.SetDefault("isr.adcRange", 4096)

	viper.SetDefault("softPwm.scale", 0)
	viper.SetDefault("softPwm.minStateTime", 16)

	viper.SetDefault("faultConfirmations", 1)
	viper.SetDefault("idleInterval", time.Millisecond)

	viper.SetDefault("api.enabled", false)
	viper.SetDefault("api.host", "localhost")
	viper.SetDefault("api.port", 9001)

	viper.SetDefault("statistics.enabled", false)
	viper.SetDefault("statistics.port", 9000)

	viper.SetDefault("channels", []ChannelConfig{})
	viper.SetDefault("fans", []FanConfig{})
}

// DetectConfigFile returns the path of the config file that will be read.
func DetectConfigFile() string {
	if err := viper.ReadInConfig(); err != nil {
		// config file is required, so we fail here
		ui.Fatal("Error reading config file, %s", err)
	}
	// this is only populated _after_ ReadInConfig()
	return viper.ConfigFileUsed()
}

// DetectAndReadConfigFile reads the config file and returns its path.
func DetectAndReadConfigFile() string {
	path := DetectConfigFile()
	LoadConfig()
	return path
}

func LoadConfig() {
	err := viper.Unmarshal(&CurrentConfig, viper.DecodeHook(decodeHook()))
	if err != nil {
		ui.Fatal("unable to decode into struct, %v", err)
	}
}

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		DefaultTrueBoolHookFunc(),
		tablePointsHookFunc(),
	)
}
