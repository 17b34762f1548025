package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/womat/debug"
	"gopkg.in/yaml.v2"

	"rfnode/pkg/radio"
	"rfnode/pkg/raspberry"
)

// Config holds the application configuration. Attention!
// To make it possible to overwrite fields with the -overwrite command
// line option each of the struct fields must be in the format
// first letter uppercase -> followed by CamelCase as in the config file.
// Config defines the struct of global config and the struct of the configuration file
type Config struct {
	Flag      FlagConfig      `yaml:"-"`
	Radio     RadioConfig     `yaml:"radio"`
	Debug     DebugConfig     `yaml:"debug"`
	Webserver WebserverConfig `yaml:"webserver"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
}

// FlagConfig defines the configured flags (parameters)
type FlagConfig struct {
	Debug      string
	ConfigFile string
}

// RadioConfig defines the receiver, its edge source and the timing profile.
type RadioConfig struct {
	Device     string           `yaml:"device"`
	DeviceType radio.DeviceType `yaml:"-"`
	Buffer     int              `yaml:"buffer"`
	PollInt    int              `yaml:"poll"`
	Poll       time.Duration    `yaml:"-"`
	Source     string           `yaml:"source"`
	Chip       string           `yaml:"chip"`
	Gpio       int              `yaml:"gpio"`
	Terminator string           `yaml:"terminator"`
	Serial     string           `yaml:"serial"`
	Baud       int              `yaml:"baud"`
	DedupInt   int              `yaml:"dedup"`
	Dedup      time.Duration    `yaml:"-"`
	Profile    *ProfileConfig   `yaml:"profile"`
}

// ProfileConfig defines the timing profile of a custom device, all widths in µs.
type ProfileConfig struct {
	Sync         uint16 `yaml:"sync"`
	Short        uint16 `yaml:"short"`
	Long         uint16 `yaml:"long"`
	Termination  uint16 `yaml:"termination"`
	Tolerance    uint16 `yaml:"tolerance"`
	MinSync      int    `yaml:"minsync"`
	MaxSync      int    `yaml:"maxsync"`
	MinBytes     int    `yaml:"minbytes"`
	MaxBytes     int    `yaml:"maxbytes"`
	RatioRecover bool   `yaml:"ratiorecover"`
}

// WebserverConfig defines the struct of the webserver and webservice configuration and configuration file
type WebserverConfig struct {
	URL         string          `yaml:"url"`
	Webservices map[string]bool `yaml:"webservices"`
}

// MQTTConfig defines the struct of the mqtt client configuration and configuration file
type MQTTConfig struct {
	Connection  string        `yaml:"connection"`
	Interval    time.Duration `yaml:"-"`
	IntervalInt int           `yaml:"interval"`
	Topic       string        `yaml:"topic"`
}

// DebugConfig defines the struct of the debug configuration and configuration file
type DebugConfig struct {
	File       io.WriteCloser `yaml:"-"`
	Flag       int            `yaml:"-"`
	FlagString string         `yaml:"flag"`
	FileString string         `yaml:"file"`
}

func NewConfig() *Config {
	return &Config{
		Flag: FlagConfig{},
		Radio: RadioConfig{
			Device:     radio.DeviceAcurite.String(),
			Buffer:     256,
			PollInt:    10,
			Source:     "gpiod",
			Chip:       "gpiochip0",
			Gpio:       27,
			Terminator: "none",
			Baud:       115200,
			DedupInt:   2,
		},
		Debug: DebugConfig{
			FileString: "stderr",
			FlagString: "standard",
		},
		Webserver: WebserverConfig{
			URL: "http://0.0.0.0:4000",
			Webservices: map[string]bool{
				"version": true,
				"health":  true,
				"stats":   true,
				"message": true,
				"reading": true,
			},
		},
		MQTT: MQTTConfig{
			Connection:  "",
			IntervalInt: 60,
			Topic:       "rfnode",
		},
	}
}

func (c *Config) LoadConfig() error {
	if err := c.readConfigFile(); err != nil {
		return fmt.Errorf("error reading config file %q: %w", c.Flag.ConfigFile, err)
	}

	if c.Flag.Debug != "" {
		c.Debug.FlagString = c.Flag.Debug
	}
	if err := c.setDebugConfig(); err != nil {
		return fmt.Errorf("unable to open debug file %q: %w", c.Debug.FileString, err)
	}

	return c.setRadioConfig()
}

func (c *Config) readConfigFile() error {
	file, err := os.Open(c.Flag.ConfigFile)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	decoder := yaml.NewDecoder(file)
	if err = decoder.Decode(c); err != nil {
		return err
	}

	return nil
}

func (c *Config) setRadioConfig() (err error) {
	if c.Radio.DeviceType, err = radio.ParseDeviceType(c.Radio.Device); err != nil {
		return err
	}
	if c.Radio.DeviceType == radio.DeviceCustom && c.Radio.Profile == nil {
		return fmt.Errorf("%w: device %q needs a profile section", radio.ErrInvalidProfile, c.Radio.Device)
	}

	p := c.Profile()
	if c.Radio.DeviceType != radio.DeviceCustom {
		if p, err = radio.DeviceProfile(c.Radio.DeviceType); err != nil {
			return err
		}
	}
	// one slot of the pulse queue is always empty
	if need := p.MinQueue() + 1; c.Radio.Buffer < need {
		return fmt.Errorf("%w: buffer %d, device %q needs at least %d", radio.ErrInvalidProfile, c.Radio.Buffer, c.Radio.Device, need)
	}
	if c.Radio.PollInt <= 0 {
		return fmt.Errorf("invalid poll interval %d ms", c.Radio.PollInt)
	}

	c.Radio.Poll = time.Duration(c.Radio.PollInt) * time.Millisecond
	c.Radio.Dedup = time.Duration(c.Radio.DedupInt) * time.Second
	c.MQTT.Interval = time.Duration(c.MQTT.IntervalInt) * time.Second
	return nil
}

// EdgeSource returns the edge source of the receiver.
func (c *Config) EdgeSource() raspberry.Source {
	return raspberry.Source{
		Type:       c.Radio.Source,
		Chip:       c.Radio.Chip,
		Gpio:       c.Radio.Gpio,
		Terminator: c.Radio.Terminator,
		Serial:     c.Radio.Serial,
		Baud:       c.Radio.Baud,
	}
}

// Profile returns the timing profile of the custom device.
func (c *Config) Profile() radio.Profile {
	p := c.Radio.Profile
	if p == nil {
		return radio.Profile{}
	}

	prof := radio.Profile{
		SyncWidth:      p.Sync,
		ShortWidth:     p.Short,
		LongWidth:      p.Long,
		TerminationMin: p.Termination,
		Tolerance:      p.Tolerance,
		MinSyncCount:   p.MinSync,
		MaxSyncCount:   p.MaxSync,
		MinMsgBytes:    p.MinBytes,
		MaxMsgBytes:    p.MaxBytes,
	}
	if p.RatioRecover {
		prof.Recover = radio.RatioRecovery
	}
	return prof
}

func (c *Config) setDebugConfig() (err error) {
	// defines Debug section of global.Config
	switch c.Debug.FlagString {
	case "trace", "full":
		c.Debug.Flag = debug.Full
	case "debug":
		c.Debug.Flag = debug.Warning | debug.Info | debug.Error | debug.Fatal | debug.Debug
	default:
		c.Debug.Flag = debug.Standard
	}

	switch c.Debug.FileString {
	case "stderr":
		c.Debug.File = os.Stderr
	case "stdout":
		c.Debug.File = os.Stdout
	default:
		if c.Debug.File, err = os.OpenFile(c.Debug.FileString, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666); err != nil {
			return
		}
	}

	return
}
