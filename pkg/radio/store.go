package radio

// store holds the two message buffers.
// bufs[pending] is filled by the decoder. Once a message is published the other buffer
// is the ready one until it is taken; the buffers are swapped by index, never copied.
type store struct {
	bufs [2][]byte
	// pending is the index of the buffer being filled.
	pending int
	// size is the byte count of the ready message, 0 if none is waiting.
	size int
}

func newStore(maxBytes int) store {
	return store{
		bufs: [2][]byte{make([]byte, maxBytes), make([]byte, maxBytes)},
	}
}

// pendingBuf returns the buffer of the message in progress.
func (s *store) pendingBuf() []byte {
	return s.bufs[s.pending]
}

// clearPending zeroes the buffer of the message in progress.
func (s *store) clearPending() {
	b := s.bufs[s.pending]
	for i := range b {
		b[i] = 0
	}
}

// ready reports whether a message is waiting to be taken.
func (s *store) ready() bool {
	return s.size > 0
}

// publish turns the pending buffer of n bytes into the ready message.
// The caller must check ready first; a waiting message is never overwritten.
func (s *store) publish(n int) {
	s.size = n
	s.pending ^= 1
}

// take copies the ready message to b and releases it.
// It returns 0 if no message is waiting.
func (s *store) take(b []byte) int {
	if s.size == 0 {
		return 0
	}

	n := copy(b, s.bufs[s.pending^1][:s.size])
	s.size = 0
	return n
}
