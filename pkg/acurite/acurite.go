// Package acurite decodes the messages of Acurite tower sensors (e.g. 592TXR).
package acurite

import (
	"errors"
	"fmt"
	"math/bits"
	"time"
)

var (
	ErrInvalidSize        = errors.New("invalid message size")
	ErrChecksum           = errors.New("checksum mismatch")
	ErrParity             = errors.New("parity error")
	ErrUnsupportedType    = errors.New("unsupported message type")
	ErrInvalidTemperature = errors.New("invalid temperature")
	ErrInvalidHumidity    = errors.New("invalid humidity")
)

const (
	// Size is the length of a tower message.
	Size = 7

	// message type of the temperature/humidity tower
	typeTower = 0x04

	// bitmask of the battery state
	batteryOK = 1 << 6

	// temperature range of the sensor
	tMax = 70
	tMin = -40
)

// channels maps bits 7..6 of the first byte to the channel switch.
var channels = [4]string{"C", "E", "B", "A"}

// Reading is the data of a tower message.
type Reading struct {
	Time        time.Time `json:"time"`
	ID          uint16    `json:"id"`
	Channel     string    `json:"channel"`
	BatteryOK   bool      `json:"batteryOk"`
	Humidity    int       `json:"humidity"`
	Temperature float64   `json:"temperature"`
}

// Decode checks a tower message and converts it to a reading.
//  byte 0..1: channel (2 bits), sensor id (14 bits)
//  byte 2:    parity, battery, message type
//  byte 3:    parity, humidity
//  byte 4..5: parity, 4 + 7 bits temperature in 0.1 C with 100 C offset
//  byte 6:    sum of byte 0..5
func Decode(b []byte) (Reading, error) {
	var r Reading

	if len(b) != Size {
		return r, fmt.Errorf("%w: %d bytes", ErrInvalidSize, len(b))
	}

	var sum byte
	for _, v := range b[:Size-1] {
		sum += v
	}
	if sum != b[Size-1] {
		return r, fmt.Errorf("%w: got %#02x want %#02x", ErrChecksum, b[Size-1], sum)
	}

	// bit 7 of the data bytes completes an even parity
	for i := 2; i <= 5; i++ {
		if bits.OnesCount8(b[i])%2 != 0 {
			return r, fmt.Errorf("%w: byte %d", ErrParity, i)
		}
	}

	if t := b[2] & 0x3F; t != typeTower {
		return r, fmt.Errorf("%w: %#02x", ErrUnsupportedType, t)
	}

	r.Time = time.Now()
	r.Channel = channels[b[0]>>6]
	r.ID = uint16(b[0]&0x3F)<<8 | uint16(b[1])
	r.BatteryOK = b[2]&batteryOK != 0
	r.Humidity = int(b[3] & 0x7F)

	raw := int(b[4]&0x0F)<<7 | int(b[5]&0x7F)
	r.Temperature = float64(raw-1000) / 10

	if r.Humidity > 100 {
		return r, fmt.Errorf("%w: %d%%", ErrInvalidHumidity, r.Humidity)
	}
	if r.Temperature > tMax || r.Temperature < tMin {
		return r, fmt.Errorf("%w: %.1f C", ErrInvalidTemperature, r.Temperature)
	}

	return r, nil
}

// Encode builds a tower message. It is the inverse of Decode.
func Encode(r Reading) []byte {
	b := make([]byte, Size)

	ch := byte(0)
	for i, c := range channels {
		if c == r.Channel {
			ch = byte(i)
		}
	}

	raw := int(r.Temperature*10+0.5*sign(r.Temperature)) + 1000
	b[0] = ch<<6 | byte(r.ID>>8)&0x3F
	b[1] = byte(r.ID)
	b[2] = typeTower
	if r.BatteryOK {
		b[2] |= batteryOK
	}
	b[3] = byte(r.Humidity) & 0x7F
	b[4] = byte(raw>>7) & 0x0F
	b[5] = byte(raw) & 0x7F

	for i := 2; i <= 5; i++ {
		if bits.OnesCount8(b[i])%2 != 0 {
			b[i] |= 0x80
		}
	}

	for _, v := range b[:Size-1] {
		b[Size-1] += v
	}
	return b
}

func sign(f float64) float64 {
	if f < 0 {
		return -1
	}
	return 1
}
