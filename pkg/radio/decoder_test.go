package radio

import (
	"testing"

	"rfnode/pkg/port"
	"rfnode/pkg/pulse"
)

// queue returns a consumer holding the given widths.
func queue(t *testing.T, widths ...uint16) pulse.Consumer {
	t.Helper()

	r := pulse.NewRing(len(widths) + 1)
	clock := port.NewManualClock(0)
	r.Enable(true, clock.Now())
	for _, w := range widths {
		if !r.Producer().Push(clock.Advance(uint32(w))) {
			t.Fatalf("queue full")
		}
	}
	return r.Consumer()
}

func TestDecodeBit(t *testing.T) {
	p := acurite(t)

	tests := []struct {
		name    string
		pair    []uint16
		want    BitResult
		retired int
	}{
		{"long short", []uint16{400, 200}, Bit1, 2},
		{"short long", []uint16{200, 400}, Bit0, 2},
		{"jitter inside bands", []uint16{480, 120}, Bit1, 2},
		{"clipped short first", []uint16{80, 520}, Bit0, 2},
		{"clipped short second", []uint16{520, 80}, Bit1, 2},
		{"short termination", []uint16{200, 5000}, BitTermination, 0},
		{"long termination", []uint16{400, 5000}, BitInvalid, 0},
		{"sync pair", []uint16{600, 600}, BitInvalid, 0},
		{"short short", []uint16{200, 200}, BitInvalid, 0},
		{"ratio off", []uint16{40, 560}, BitInvalid, 0},
		{"single sample", []uint16{400}, BitInvalid, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := queue(t, tt.pair...)
			before := c.Count()

			if got := decodeBit(c, &p); got != tt.want {
				t.Fatalf("got %v want %v", got, tt.want)
			}
			if retired := before - c.Count(); retired != tt.retired {
				t.Fatalf("retired %d samples, want %d", retired, tt.retired)
			}
		})
	}
}

func TestDecodeBit_RecoveryIsPerProfile(t *testing.T) {
	p := acurite(t)
	p.Recover = nil

	c := queue(t, 80, 520)
	if got := decodeBit(c, &p); got != BitInvalid {
		t.Fatalf("got %v without recovery, want invalid", got)
	}

	p.Recover = func(first, second pulse.Sample, _ *Profile) (BitResult, bool) {
		return Bit1, first < second
	}
	if got := decodeBit(c, &p); got != Bit1 {
		t.Fatalf("custom recovery not used, got %v", got)
	}
}

func TestRatioRecovery(t *testing.T) {
	p := acurite(t)

	tests := []struct {
		first, second pulse.Sample
		want          BitResult
		ok            bool
	}{
		// total 600, nominal short 200, tolerance 130
		{80, 520, Bit0, true},
		{70, 530, Bit0, true},
		{60, 540, BitInvalid, false},
		{250, 350, Bit0, true},
		{350, 250, Bit1, true},
		// total outside the sync band
		{100, 400, BitInvalid, false},
		{300, 500, BitInvalid, false},
	}

	for _, tt := range tests {
		got, ok := RatioRecovery(tt.first, tt.second, &p)
		if got != tt.want || ok != tt.ok {
			t.Errorf("RatioRecovery(%d,%d)=%v,%v want %v,%v", tt.first, tt.second, got, ok, tt.want, tt.ok)
		}
	}
}

func TestConsumeSyncTrain(t *testing.T) {
	p := acurite(t)
	pad := make([]uint16, syncWindow(&p))
	for i := range pad {
		pad[i] = 200
	}

	train := func(n int, widths ...uint16) []uint16 {
		var w []uint16
		for i := 0; i < n; i++ {
			w = append(w, widths[i%len(widths)])
		}
		return append(w, pad...)
	}

	t.Run("accepted", func(t *testing.T) {
		c := queue(t, train(9, 560, 640, 600)...)
		st, ok := consumeSyncTrain(c, &p)
		if !ok {
			t.Fatalf("train of 9 rejected")
		}
		if st.count != 9 || st.min != 560 || st.max != 640 {
			t.Fatalf("got %+v", st)
		}
		if c.Peek(0) != 200 {
			t.Fatalf("head is %d, want first data pulse", c.Peek(0))
		}
	})

	t.Run("too short", func(t *testing.T) {
		c := queue(t, train(p.MinSyncCount, 600)...)
		if _, ok := consumeSyncTrain(c, &p); ok {
			t.Fatalf("train of %d accepted, need more than %d", p.MinSyncCount, p.MinSyncCount)
		}
		if c.Peek(0) != 200 {
			t.Fatalf("non sync pulse must stay at head, got %d", c.Peek(0))
		}
	})

	t.Run("not enough queued", func(t *testing.T) {
		c := queue(t, 600, 600, 600)
		if _, ok := consumeSyncTrain(c, &p); ok {
			t.Fatalf("accepted with %d samples queued", c.Count())
		}
		if c.Count() != 3 {
			t.Fatalf("samples retired before window filled")
		}
	})
}
