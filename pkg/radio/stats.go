package radio

import (
	"fmt"

	"rfnode/pkg/pulse"
)

// Stats is a snapshot of the receiver diagnostics.
// The counters are only reset by selecting a device type.
type Stats struct {
	// Attempts counts finished decode cycles, successful or not.
	Attempts uint64
	// Errors counts malformed (partial byte) and undersized messages.
	Errors uint64
	// Overruns counts messages dropped because the previous one was not taken yet.
	Overruns uint64
	// Oversized counts messages truncated to the max message size.
	Oversized uint64
	// Dropped counts edges lost because the pulse queue was full.
	Dropped uint64
	// SyncMin and SyncMax are the extreme pulse widths of the last sync train.
	SyncMin pulse.Sample
	SyncMax pulse.Sample
	State   State
	// Queued is the number of samples waiting in the pulse queue.
	Queued int
	// Ready is the size of the message waiting to be taken.
	Ready int
}

// ErrorRate returns the errors in percent of the attempts.
func (s Stats) ErrorRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Errors) / float64(s.Attempts) * 100
}

func (s Stats) String() string {
	return fmt.Sprintf("ErrRate:%.1f (%d of %d), Overruns:%d, Dropped:%d, State:%v, Queue:%d, MsgRdy:%d",
		s.ErrorRate(), s.Errors, s.Attempts, s.Overruns, s.Dropped, s.State, s.Queued, s.Ready)
}

// counters are the diagnostics owned by the poll context.
type counters struct {
	attempts  uint64
	errors    uint64
	overruns  uint64
	oversized uint64
	syncMin   pulse.Sample
	syncMax   pulse.Sample
}
