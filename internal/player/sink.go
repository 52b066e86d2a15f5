package player

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrSinkBusy   = errors.New("sink append already in progress")
	ErrSinkClosed = errors.New("sink already ended")
)

// BufferSink is an append-only media buffer with an asynchronous ready
// gate. Appends must not overlap: callers wait on Ready before the next
// Append. EndStream finalizes the buffer; no appends may follow.
type BufferSink interface {
	Append(p []byte) error
	Ready() <-chan struct{}
	EndStream() error
}

// MemorySink is an in-process BufferSink. Appends complete asynchronously
// after an optional delay, mimicking a browser SourceBuffer's updating
// flag, which makes the ready gate observable in tests and local
// playback.
type MemorySink struct {
	mu          sync.Mutex
	segments    [][]byte
	total       int64
	busy        bool
	busyGate    chan struct{}
	ended       bool
	appendDelay time.Duration
}

var closedGate = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

func NewMemorySink(appendDelay time.Duration) *MemorySink {
	return &MemorySink{appendDelay: appendDelay}
}

func (s *MemorySink) Append(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return ErrSinkClosed
	}
	if s.busy {
		return ErrSinkBusy
	}

	buf := make([]byte, len(p))
	copy(buf, p)

	if s.appendDelay <= 0 {
		s.segments = append(s.segments, buf)
		s.total += int64(len(buf))
		return nil
	}

	s.busy = true
	s.busyGate = make(chan struct{})
	go func() {
		time.Sleep(s.appendDelay)
		s.mu.Lock()
		// A stream ended during the append drops the segment so no
		// bytes land after finalization.
		if !s.ended {
			s.segments = append(s.segments, buf)
			s.total += int64(len(buf))
		}
		s.busy = false
		close(s.busyGate)
		s.mu.Unlock()
	}()
	return nil
}

// Ready returns a channel closed once the sink is idle. An idle sink
// returns an already-closed channel.
func (s *MemorySink) Ready() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.busy {
		return closedGate
	}
	return s.busyGate
}

func (s *MemorySink) EndStream() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return ErrSinkClosed
	}
	s.ended = true
	return nil
}

func (s *MemorySink) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

func (s *MemorySink) Len() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemorySink) SegmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.segments)
}

// Bytes concatenates the appended segments in order.
func (s *MemorySink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, 0, s.total)
	for _, seg := range s.segments {
		out = append(out, seg...)
	}
	return out
}
