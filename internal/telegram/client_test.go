package telegram

import (
	"context"
	"fmt"
	"testing"

	"github.com/gotd/td/bin"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type getFileCall struct {
	Offset int64
	Limit  int
}

// fakeTransport answers upload.getFile from an in-memory byte slice and
// records every request it sees.
type fakeTransport struct {
	data  []byte
	calls []getFileCall
}

func (f *fakeTransport) Invoke(_ context.Context, input bin.Encoder, output bin.Decoder) error {
	req, ok := input.(*tg.UploadGetFileRequest)
	if !ok {
		return fmt.Errorf("unexpected request %T", input)
	}
	f.calls = append(f.calls, getFileCall{Offset: req.Offset, Limit: req.Limit})

	end := req.Offset + int64(req.Limit)
	if end > int64(len(f.data)) {
		end = int64(len(f.data))
	}
	res := &tg.UploadFile{Type: &tg.StorageFilePartial{}, Bytes: f.data[req.Offset:end]}

	var buf bin.Buffer
	if err := res.Encode(&buf); err != nil {
		return err
	}
	return output.Decode(&buf)
}

func newTestClient(data []byte) (*Client, *fakeTransport) {
	transport := &fakeTransport{data: data}
	ready := make(chan struct{})
	close(ready)
	return &Client{
		api:   tg.NewClient(transport),
		log:   zerolog.Nop(),
		ready: ready,
	}, transport
}

func sequentialData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func TestDownloadRangeAlignsUpstreamRequests(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		offset    int64
		limit     int64
		wantCalls int
	}{
		{
			name:      "unaligned chunk crossing a block boundary",
			size:      10_000_000,
			offset:    5_000_000,
			limit:     524_288,
			wantCalls: 2,
		},
		{
			name:      "unaligned tail clip",
			size:      1_000_000,
			offset:    999_900,
			limit:     100,
			wantCalls: 1,
		},
		{
			name:      "already aligned block",
			size:      4 << 20,
			offset:    1 << 20,
			limit:     1 << 20,
			wantCalls: 1,
		},
		{
			name:      "tiny window inside one block",
			size:      8192,
			offset:    5,
			limit:     10,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := sequentialData(tt.size)
			c, transport := newTestClient(data)

			got, err := c.DownloadRange(context.Background(), &tg.InputDocumentFileLocation{}, tt.offset, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, data[tt.offset:tt.offset+tt.limit], got)

			require.Len(t, transport.calls, tt.wantCalls)
			for _, call := range transport.calls {
				assert.Zero(t, call.Offset%downloadAlign, "offset %d not aligned", call.Offset)
				assert.Zero(t, call.Limit%downloadAlign, "limit %d not aligned", call.Limit)
				assert.Greater(t, call.Limit, 0)
				assert.LessOrEqual(t, call.Limit, downloadBlock)
				assert.Equal(t,
					call.Offset/downloadBlock,
					(call.Offset+int64(call.Limit)-1)/downloadBlock,
					"request offset=%d limit=%d spans a block boundary", call.Offset, call.Limit)
			}
		})
	}
}

func TestDownloadRangeShortReadAtRealEOF(t *testing.T) {
	// The resolved size can overstate the stored bytes; the adapter must
	// return what exists instead of looping.
	data := sequentialData(2000)
	c, _ := newTestClient(data)

	got, err := c.DownloadRange(context.Background(), &tg.InputDocumentFileLocation{}, 1500, 5000)
	require.NoError(t, err)
	assert.Equal(t, data[1500:], got)
}
