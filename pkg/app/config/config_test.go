package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"rfnode/pkg/radio"
)

func writeConfig(t *testing.T, content string) *Config {
	t.Helper()

	name := filepath.Join(t.TempDir(), "rfnode.yaml")
	if err := os.WriteFile(name, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	c := NewConfig()
	c.Flag.ConfigFile = name
	return c
}

func TestLoadConfig(t *testing.T) {
	c := writeConfig(t, `
radio:
  device: acurite
  buffer: 512
  poll: 20
  source: serial
  serial: /dev/ttyUSB0
  dedup: 3
debug:
  file: stdout
  flag: debug
mqtt:
  connection: tcp://127.0.0.1:1883
  topic: home/rf
  interval: 30
`)

	if err := c.LoadConfig(); err != nil {
		t.Fatalf("load: %v", err)
	}

	if c.Radio.DeviceType != radio.DeviceAcurite || c.Radio.Buffer != 512 {
		t.Fatalf("radio %+v", c.Radio)
	}
	if c.Radio.Poll != 20*time.Millisecond || c.Radio.Dedup != 3*time.Second || c.MQTT.Interval != 30*time.Second {
		t.Fatalf("durations poll %v dedup %v interval %v", c.Radio.Poll, c.Radio.Dedup, c.MQTT.Interval)
	}
	if c.Debug.File != os.Stdout {
		t.Fatalf("debug file %q not stdout", c.Debug.FileString)
	}

	src := c.EdgeSource()
	if src.Type != "serial" || src.Serial != "/dev/ttyUSB0" || src.Baud != 115200 {
		t.Fatalf("edge source %+v", src)
	}
	if !c.Webserver.Webservices["stats"] {
		t.Fatalf("default webservices lost")
	}
}

func TestLoadConfig_CustomProfile(t *testing.T) {
	c := writeConfig(t, `
radio:
  device: custom
  profile:
    sync: 1200
    short: 300
    long: 800
    termination: 4000
    tolerance: 150
    minsync: 3
    maxsync: 6
    minbytes: 2
    maxbytes: 4
    ratiorecover: true
`)
	c.Flag.Debug = "trace"

	if err := c.LoadConfig(); err != nil {
		t.Fatalf("load: %v", err)
	}

	p := c.Profile()
	if err := p.Validate(); err != nil {
		t.Fatalf("profile %+v: %v", p, err)
	}
	if p.SyncWidth != 1200 || p.MaxMsgBytes != 4 || p.Recover == nil {
		t.Fatalf("profile %+v", p)
	}
	if c.Debug.FlagString != "trace" {
		t.Fatalf("log flag not overwritten: %q", c.Debug.FlagString)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"unknown device", "radio:\n  device: oregon\n", radio.ErrUnknownDevice},
		{"custom without profile", "radio:\n  device: custom\n", radio.ErrInvalidProfile},
		{"buffer below decoder look ahead", "radio:\n  device: acurite\n  buffer: 64\n", radio.ErrInvalidProfile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := writeConfig(t, tt.content)
			if err := c.LoadConfig(); !errors.Is(err, tt.want) {
				t.Fatalf("got %v want %v", err, tt.want)
			}
		})
	}

	c := NewConfig()
	c.Flag.ConfigFile = filepath.Join(t.TempDir(), "missing.yaml")
	if err := c.LoadConfig(); err == nil {
		t.Fatalf("missing file accepted")
	}
}
