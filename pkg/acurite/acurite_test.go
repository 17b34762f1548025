package acurite

import (
	"errors"
	"testing"
)

func TestDecode(t *testing.T) {
	for _, want := range []Reading{
		{ID: 0x1234, Channel: "A", BatteryOK: true, Humidity: 45, Temperature: 21.5},
		{ID: 7, Channel: "C", BatteryOK: false, Humidity: 99, Temperature: -5.3},
		{ID: 0x3FFF, Channel: "B", BatteryOK: true, Humidity: 0, Temperature: 0},
	} {
		got, err := Decode(Encode(want))
		if err != nil {
			t.Fatalf("decode %+v: %v", want, err)
		}
		if got.ID != want.ID || got.Channel != want.Channel || got.BatteryOK != want.BatteryOK ||
			got.Humidity != want.Humidity || got.Temperature != want.Temperature {
			t.Fatalf("got %+v want %+v", got, want)
		}
		if got.Time.IsZero() {
			t.Fatalf("reading without timestamp")
		}
	}
}

func TestDecode_Errors(t *testing.T) {
	valid := func() []byte {
		return Encode(Reading{ID: 0x0102, Channel: "A", BatteryOK: true, Humidity: 40, Temperature: 20})
	}

	tests := []struct {
		name   string
		modify func([]byte) []byte
		want   error
	}{
		{"short", func(b []byte) []byte { return b[:6] }, ErrInvalidSize},
		{"long", func(b []byte) []byte { return append(b, 0) }, ErrInvalidSize},
		{"checksum", func(b []byte) []byte { b[6]++; return b }, ErrChecksum},
		{"parity", func(b []byte) []byte { b[3] ^= 0x01; b[6] ^= 0x01; return b }, ErrParity},
		{"type", func(b []byte) []byte {
			b[2] ^= 0x03
			b[6] += 0x03
			return b
		}, ErrUnsupportedType},
		{"humidity", func(b []byte) []byte {
			// 0x65 = 101, even number of bits
			b[6] += 0x65 - b[3]
			b[3] = 0x65
			return b
		}, ErrInvalidHumidity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.modify(valid())); !errors.Is(err, tt.want) {
				t.Fatalf("got %v want %v", err, tt.want)
			}
		})
	}
}

func TestDecode_TemperatureRange(t *testing.T) {
	b := Encode(Reading{Channel: "A", Humidity: 50, Temperature: 85})
	if _, err := Decode(b); !errors.Is(err, ErrInvalidTemperature) {
		t.Fatalf("85 C accepted: %v", err)
	}
}
