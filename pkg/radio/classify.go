package radio

import "rfnode/pkg/pulse"

// PulseType is the class of a single pulse width.
// It does not identify bit values, only pulse lengths.
type PulseType uint8

const (
	ShortData PulseType = iota
	LongData
	Sync
	Termination
	Invalid
)

func (t PulseType) String() string {
	switch t {
	case ShortData:
		return "short"
	case LongData:
		return "long"
	case Sync:
		return "sync"
	case Termination:
		return "termination"
	case Invalid:
		return "invalid"
	}
	return "unknown"
}

// Classify returns the pulse type of a width.
// The bands are checked in the order short, long, sync, termination; the first match wins.
func (p *Profile) Classify(width pulse.Sample) PulseType {
	w := int(width)

	if lo, hi := p.band(p.ShortWidth); w >= lo && w <= hi {
		return ShortData
	}
	if lo, hi := p.band(p.LongWidth); w >= lo && w <= hi {
		return LongData
	}
	if lo, hi := p.band(p.SyncWidth); w >= lo && w <= hi {
		return Sync
	}
	if w >= int(p.TerminationMin) {
		return Termination
	}

	// too short or between bands
	return Invalid
}
