package radio

import (
	"errors"
	"fmt"
	"strings"

	"rfnode/pkg/pulse"
)

var (
	ErrUnknownDevice     = errors.New("unknown device type")
	ErrInvalidProfile    = errors.New("invalid timing profile")
	ErrOverlappingBands  = errors.New("pulse tolerance bands overlap")
	ErrReceiverNotReady  = errors.New("receiver has no device type")
	errProfileOutOfRange = fmt.Errorf("%w: pulse width exceeds %d usec", ErrInvalidProfile, pulse.MaxSample)
)

// DeviceType selects the radio protocol (sync train, bit encoding, message size).
type DeviceType uint8

const (
	// DeviceDefault is the Acurite family.
	DeviceDefault DeviceType = iota
	// DeviceAcurite is the Acurite tower sensor family (433 MHz).
	DeviceAcurite
	// DeviceCustom uses a caller supplied profile, see Receiver.SetProfile.
	DeviceCustom
)

var deviceNames = map[DeviceType]string{
	DeviceDefault: "default",
	DeviceAcurite: "acurite",
	DeviceCustom:  "custom",
}

func (d DeviceType) String() string {
	if s, ok := deviceNames[d]; ok {
		return s
	}
	return fmt.Sprintf("device(%d)", uint8(d))
}

// ParseDeviceType returns the device type of a configuration name.
func ParseDeviceType(s string) (DeviceType, error) {
	for d, name := range deviceNames {
		if strings.EqualFold(s, name) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownDevice, s)
}

// RadioType is the receiver hardware. It is derived from the device type.
type RadioType uint8

const (
	RadioDefault RadioType = iota
	RadioRXB6315
	RadioRXB6433
)

// BitRecovery decodes a pulse pair which the band rules rejected.
// ok is false if the pair is not a data bit.
type BitRecovery func(first, second pulse.Sample, p *Profile) (bit BitResult, ok bool)

// Profile holds the pulse timing of a protocol. All widths are in microseconds.
type Profile struct {
	Radio RadioType
	// SyncWidth is the width of a sync pulse. A data bit (short+long) lasts about one sync pulse.
	SyncWidth uint16
	// ShortWidth and LongWidth are the data pulse widths.
	ShortWidth uint16
	LongWidth  uint16
	// TerminationMin is the minimum width of the end of transmission gap.
	TerminationMin uint16
	// Tolerance is the accepted deviation (+-) of a pulse from its nominal width.
	Tolerance uint16
	// A sync train needs more than MinSyncCount pulses. MaxSyncCount sizes the look ahead.
	MinSyncCount int
	MaxSyncCount int
	// MinMsgBytes and MaxMsgBytes bound the size of a decoded message.
	MinMsgBytes int
	MaxMsgBytes int
	// Recover is tried on pulse pairs which are no short/long pair. nil disables it.
	Recover BitRecovery
}

// radioProfile returns the timing defaults of the radio hardware.
func radioProfile(t RadioType) Profile {
	switch t {
	case RadioRXB6433, RadioDefault:
		// measured sync pulses 537..670 usec, 99 is the max tolerance without overlap
		return Profile{Radio: RadioRXB6433, SyncWidth: 600, Tolerance: 99}
	default:
		return Profile{Radio: t}
	}
}

// DeviceProfile returns the timing profile of a device type.
// DeviceCustom has no built-in profile.
func DeviceProfile(d DeviceType) (Profile, error) {
	switch d {
	case DeviceDefault, DeviceAcurite:
		p := radioProfile(RadioRXB6433)
		p.MinSyncCount = 8
		p.MaxSyncCount = 10
		p.SyncWidth = 600
		// long measured 367..488, short 84..245 (most noise)
		p.LongWidth = 400
		p.ShortWidth = 200
		// measured 1400..30K+
		p.TerminationMin = 1400
		p.Tolerance = 99
		p.MinMsgBytes = 7
		p.MaxMsgBytes = 9
		p.Recover = RatioRecovery
		return p, nil
	case DeviceCustom:
		return Profile{}, fmt.Errorf("%w: %v needs an explicit profile", ErrUnknownDevice, d)
	default:
		return Profile{}, fmt.Errorf("%w: %v", ErrUnknownDevice, d)
	}
}

// band returns the inclusive range of a nominal width.
func (p *Profile) band(center uint16) (lo, hi int) {
	return int(center) - int(p.Tolerance), int(center) + int(p.Tolerance)
}

// Validate checks that the profile classifies pulses unambiguously.
func (p *Profile) Validate() error {
	for _, w := range []uint16{p.SyncWidth, p.ShortWidth, p.LongWidth, p.TerminationMin} {
		if w == 0 {
			return fmt.Errorf("%w: zero pulse width", ErrInvalidProfile)
		}
		if int(w)+int(p.Tolerance) > pulse.MaxSample {
			return errProfileOutOfRange
		}
	}

	if p.Tolerance >= p.ShortWidth {
		return fmt.Errorf("%w: tolerance %d not below short pulse %d", ErrInvalidProfile, p.Tolerance, p.ShortWidth)
	}

	bands := []struct {
		name   string
		center uint16
	}{
		{"short", p.ShortWidth},
		{"long", p.LongWidth},
		{"sync", p.SyncWidth},
	}
	for i := range bands {
		for j := i + 1; j < len(bands); j++ {
			lo1, hi1 := p.band(bands[i].center)
			lo2, hi2 := p.band(bands[j].center)
			if lo1 <= hi2 && lo2 <= hi1 {
				return fmt.Errorf("%w: %s %d and %s %d with tolerance %d", ErrOverlappingBands,
					bands[i].name, bands[i].center, bands[j].name, bands[j].center, p.Tolerance)
			}
		}
		if _, hi := p.band(bands[i].center); int(p.TerminationMin) <= hi {
			return fmt.Errorf("%w: termination %d inside %s band", ErrOverlappingBands, p.TerminationMin, bands[i].name)
		}
	}

	if p.MinSyncCount < 0 || p.MaxSyncCount <= p.MinSyncCount {
		return fmt.Errorf("%w: sync count %d..%d", ErrInvalidProfile, p.MinSyncCount, p.MaxSyncCount)
	}
	if p.MinMsgBytes < 1 || p.MaxMsgBytes < p.MinMsgBytes {
		return fmt.Errorf("%w: message size %d..%d", ErrInvalidProfile, p.MinMsgBytes, p.MaxMsgBytes)
	}

	return nil
}

// RatioRecovery recovers bits whose short pulse was clipped by noise.
// If both pulses together last one sync period, the shorter one is expected at a third
// of the total, give or take a quarter of the longer one.
func RatioRecovery(first, second pulse.Sample, p *Profile) (BitResult, bool) {
	total := int(first) + int(second)
	if lo, hi := p.band(p.SyncWidth); total < lo || total > hi {
		return BitInvalid, false
	}

	short, long := int(first), int(second)
	if short > long {
		short, long = long, short
	}

	tolerance := long >> 2
	nominal := total / 3
	if short < nominal-tolerance || short > nominal+tolerance {
		return BitInvalid, false
	}

	if first <= second {
		return Bit0, true
	}
	return Bit1, true
}
