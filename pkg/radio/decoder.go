package radio

import "rfnode/pkg/pulse"

// BitResult is the outcome of decoding the pulse pair at the head of the queue.
type BitResult uint8

const (
	Bit0 BitResult = iota
	Bit1
	// BitTermination is a short pulse followed by the end of transmission gap.
	BitTermination
	// BitInvalid is any other pair.
	BitInvalid
)

func (b BitResult) String() string {
	switch b {
	case Bit0:
		return "0"
	case Bit1:
		return "1"
	case BitTermination:
		return "termination"
	case BitInvalid:
		return "invalid"
	}
	return "unknown"
}

// syncTrain is the result of a sync train search.
type syncTrain struct {
	// count is the number of retired sync pulses.
	count int
	// min and max are the extreme widths of the retired sync pulses.
	min, max pulse.Sample
}

// syncWindow is the number of queued samples needed before searching a sync train:
// the longest train plus one pulse per bit of the smallest message.
func syncWindow(p *Profile) int {
	return p.MaxSyncCount + p.MinMsgBytes*8
}

// MinQueue is the smallest pulse queue capacity the profile decodes with.
// The decoder waits for up to max(syncWindow, a minimum message) samples before it retires
// any of them, plus the pulse pair of the bit in progress. A smaller queue fills up while
// the decoder waits and never drains again.
func (p *Profile) MinQueue() int {
	return max(syncWindow(p), p.MinMsgBytes*8*2) + 2
}

// consumeSyncTrain retires sync pulses from head up to the first pulse of another type.
// That pulse stays at head: on success it is the first data pulse, on failure it is left
// for the sync search (it may start a new train).
// It reports success if more than MinSyncCount sync pulses were retired.
// Nothing is retired while fewer than syncWindow samples are queued.
func consumeSyncTrain(c pulse.Consumer, p *Profile) (syncTrain, bool) {
	var t syncTrain
	if c.Count() < syncWindow(p) {
		return t, false
	}

	for c.Count() > 0 {
		w := c.Peek(0)
		if p.Classify(w) != Sync {
			return t, t.count > p.MinSyncCount
		}

		if t.count == 0 || w < t.min {
			t.min = w
		}
		if w > t.max {
			t.max = w
		}
		t.count++
		c.Advance(1)
	}

	// ran out of samples inside the train, no data pulse seen
	return t, false
}

// decodeBit decodes the pulse pair at head.
// A long/short pair is a 1, a short/long pair a 0. Pairs outside the bands are passed
// to the profile's recovery. A decoded bit retires both pulses; termination and invalid
// pairs stay queued for the caller.
func decodeBit(c pulse.Consumer, p *Profile) BitResult {
	if c.Count() < 2 {
		return BitInvalid
	}

	first, second := c.Peek(0), c.Peek(1)
	t1, t2 := p.Classify(first), p.Classify(second)

	result, ok := BitInvalid, false
	switch {
	case t1 == LongData && t2 == ShortData:
		result, ok = Bit1, true
	case t1 == ShortData && t2 == LongData:
		result, ok = Bit0, true
	case p.Recover != nil:
		result, ok = p.Recover(first, second, p)
	}

	if ok {
		c.Advance(2)
		return result
	}

	if t1 == ShortData && t2 == Termination {
		return BitTermination
	}
	return BitInvalid
}
