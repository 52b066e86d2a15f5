package stream

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

type chunkCall struct {
	Offset int64
	Limit  int64
}

// mockBlob serves a byte slice as the backing store and records every
// chunk request.
type mockBlob struct {
	mu   sync.Mutex
	data []byte
	name string
	mime string

	resolveErr error
	// failAt makes the Nth download call (1-based) fail with failErr.
	failAt  int
	failErr error
	// emptyAt makes the Nth download call return a zero-length chunk.
	emptyAt int
	// transientCalls makes the first N download calls fail transiently.
	transientCalls int
	// onCall runs after each download call with its 1-based index.
	onCall func(n int)

	calls []chunkCall
}

func (m *mockBlob) ResolveMessage(_ context.Context, msgID int) (*FileMeta, error) {
	if m.resolveErr != nil {
		return nil, m.resolveErr
	}
	return &FileMeta{
		Location: msgID,
		Size:     int64(len(m.data)),
		MimeType: m.mime,
		Name:     m.name,
	}, nil
}

func (m *mockBlob) DownloadRange(ctx context.Context, _ Location, offset, limit int64) ([]byte, error) {
	m.mu.Lock()
	m.calls = append(m.calls, chunkCall{Offset: offset, Limit: limit})
	n := len(m.calls)
	m.mu.Unlock()

	if m.onCall != nil {
		m.onCall(n)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= m.transientCalls {
		return nil, &TransientError{Wait: time.Millisecond, Err: fmt.Errorf("still connecting")}
	}
	if m.failAt > 0 && n == m.failAt {
		return nil, m.failErr
	}
	if m.emptyAt > 0 && n == m.emptyAt {
		return []byte{}, nil
	}

	if offset < 0 || offset+limit > int64(len(m.data)) {
		return nil, fmt.Errorf("chunk request out of bounds: offset=%d limit=%d size=%d", offset, limit, len(m.data))
	}
	return m.data[offset : offset+limit], nil
}

func (m *mockBlob) UploadFile(_ context.Context, _ string, r io.Reader, _ int64, progress ProgressFunc) (int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	if progress != nil {
		progress(int64(len(data)), int64(len(data)))
	}
	return 42, nil
}

func (m *mockBlob) IsAuthorized(context.Context) (bool, error) { return true, nil }

func (m *mockBlob) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockBlob) callLog() []chunkCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]chunkCall, len(m.calls))
	copy(out, m.calls)
	return out
}

func sequentialData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}
