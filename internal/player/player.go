package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"teledrive/internal/stream"
)

var (
	ErrSinkBackpressure = errors.New("sink never became ready")
	ErrPlayerClosed     = errors.New("player closed")
)

// State is the playback lifecycle position.
type State int32

const (
	Idle State = iota
	Resolving
	Downloading
	Appending
	Finalized
	Errored
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Resolving:
		return "resolving"
	case Downloading:
		return "downloading"
	case Appending:
		return "appending"
	case Finalized:
		return "finalized"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// Options tune one playback session.
type Options struct {
	// ChunkSize bounds each download fetch and each sink append.
	ChunkSize int64
	// AppendWait bounds how long one append waits for the sink gate
	// before the session errors out instead of hanging.
	AppendWait time.Duration
}

// Player drives one progressive playback session: resolve the stored
// file, download it in bounded chunks, append each chunk to the sink in
// order behind its ready gate, and finalize the stream exactly once.
// Errors surface as the Errored state with a readable status; retry
// policy lives in the fetcher, not here.
type Player struct {
	client  stream.BlobClient
	fetcher *stream.Fetcher
	opts    Options
	log     zerolog.Logger

	mu     sync.Mutex
	state  State
	status string
	closed bool
	cancel context.CancelFunc

	endOnce sync.Once
	sink    BufferSink
}

func New(client stream.BlobClient, fetcher *stream.Fetcher, opts Options, log zerolog.Logger) *Player {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1024 * 1024
	}
	if opts.AppendWait <= 0 {
		opts.AppendWait = 30 * time.Second
	}
	return &Player{
		client:  client,
		fetcher: fetcher,
		opts:    opts,
		log:     log,
		state:   Idle,
		status:  "idle",
	}
}

func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Player) Status() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Play runs the session to completion. The sink is exclusively owned by
// this player until Close. Progress, when non-nil, is called after every
// downloaded chunk with (bytes received, total).
func (p *Player) Play(ctx context.Context, msgID int, sink BufferSink, progress stream.ProgressFunc) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPlayerClosed
	}
	if p.state != Idle {
		p.mu.Unlock()
		return fmt.Errorf("player already used (state %s)", p.state)
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.sink = sink
	p.setStateLocked(Resolving, "resolving file")
	p.mu.Unlock()
	defer cancel()

	meta, err := p.client.ResolveMessage(ctx, msgID)
	if err != nil {
		return p.fail("resolve failed", err)
	}

	p.setState(Downloading, fmt.Sprintf("downloading %s", meta.Name))

	var received int64
	for offset := int64(0); offset < meta.Size; {
		chunk, err := p.fetcher.Fetch(ctx, meta, offset, p.opts.ChunkSize)
		if err != nil {
			if p.isClosed() {
				return ErrPlayerClosed
			}
			return p.fail("download failed", err)
		}
		received += int64(len(chunk))
		if progress != nil {
			progress(received, meta.Size)
		}

		p.setState(Appending, fmt.Sprintf("buffering %d/%d bytes", received, meta.Size))
		if err := p.append(ctx, chunk); err != nil {
			if p.isClosed() {
				return ErrPlayerClosed
			}
			return p.fail("append failed", err)
		}

		offset += int64(len(chunk))
		p.setState(Downloading, fmt.Sprintf("downloading %d/%d bytes", received, meta.Size))
	}

	if err := p.waitReady(ctx); err != nil {
		return p.fail("finalize failed", err)
	}
	if err := p.endStream(); err != nil {
		return p.fail("finalize failed", err)
	}
	p.setState(Finalized, "playback ready")
	return nil
}

// append waits for the sink gate, bounded by AppendWait, then appends.
func (p *Player) append(ctx context.Context, chunk []byte) error {
	if err := p.waitReady(ctx); err != nil {
		return err
	}
	return p.sink.Append(chunk)
}

func (p *Player) waitReady(ctx context.Context) error {
	select {
	case <-p.sink.Ready():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.opts.AppendWait):
		return ErrSinkBackpressure
	}
}

// Close tears the session down: in-flight work is canceled and its
// results discarded, and the sink is force-finalized if it still is open.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	cancel := p.cancel
	sink := p.sink
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sink != nil {
		p.endOnce.Do(func() {
			if err := sink.EndStream(); err != nil && !errors.Is(err, ErrSinkClosed) {
				p.log.Warn().Err(err).Msg("Forcing end of stream on close")
			}
		})
	}
	return nil
}

func (p *Player) endStream() error {
	var err error
	p.endOnce.Do(func() {
		err = p.sink.EndStream()
	})
	return err
}

func (p *Player) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Player) fail(msg string, err error) error {
	p.setState(Errored, fmt.Sprintf("%s: %v", msg, err))
	p.log.Error().Err(err).Msg(msg)
	return err
}

func (p *Player) setState(s State, status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setStateLocked(s, status)
}

func (p *Player) setStateLocked(s State, status string) {
	if p.state == Finalized || p.state == Errored {
		return
	}
	p.state = s
	p.status = status
}
