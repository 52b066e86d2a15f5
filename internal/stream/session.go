package stream

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	streamedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stream_bytes_total",
		Help: "Total bytes written to streaming responses",
	})

	streamAborts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stream_aborts_total",
		Help: "Streaming responses aborted after headers were sent",
	})
)

// Streamer serves byte ranges of stored blobs over HTTP, pulling bounded
// chunks from the backing store and forwarding them in offset order.
type Streamer struct {
	client    BlobClient
	fetcher   *Fetcher
	cache     *MetaCache
	chunkSize int64
	log       zerolog.Logger
}

func NewStreamer(client BlobClient, fetcher *Fetcher, cache *MetaCache, chunkSize int64, log zerolog.Logger) *Streamer {
	if chunkSize <= 0 {
		chunkSize = 512 * 1024
	}
	return &Streamer{
		client:    client,
		fetcher:   fetcher,
		cache:     cache,
		chunkSize: chunkSize,
		log:       log,
	}
}

// Resolve returns the metadata for a stored message, consulting the TTL
// cache first.
func (s *Streamer) Resolve(ctx context.Context, msgID int) (*FileMeta, error) {
	if s.cache != nil {
		if meta, ok := s.cache.Get(msgID); ok {
			return meta, nil
		}
	}
	meta, err := s.client.ResolveMessage(ctx, msgID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(msgID, meta)
	}
	return meta, nil
}

// Stream writes the requested span of the file to w. Headers are emitted
// exactly once, before the first body byte. The first chunk is fetched
// ahead of the headers so the content type can be sniffed when the store
// gave no hint.
//
// Failures before headers are sent are returned to the caller for status
// mapping. Failures after headers are sent abort the connection via
// http.ErrAbortHandler so the client never sees a silently truncated
// body. A canceled request context stops the loop without further
// fetches.
func (s *Streamer) Stream(ctx context.Context, w http.ResponseWriter, meta *FileMeta, rng ByteRange, partial bool) error {
	var first []byte
	if rng.Len() > 0 {
		chunk, err := s.fetcher.Fetch(ctx, meta, rng.Start, s.clip(rng, rng.Start))
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			return fmt.Errorf("%w: empty chunk at offset %d", ErrUpstreamFailure, rng.Start)
		}
		first = chunk
	}

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", DetectContent(meta.MimeType, meta.Name, first))
	h.Set("Content-Length", strconv.FormatInt(rng.Len(), 10))
	if partial {
		h.Set("Content-Range", rng.ContentRange(meta.Size))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	flusher, _ := w.(http.Flusher)

	offset := rng.Start
	chunk := first
	for offset <= rng.End {
		if chunk == nil {
			var err error
			chunk, err = s.fetcher.Fetch(ctx, meta, offset, s.clip(rng, offset))
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.abort(meta, offset, err)
			}
			// An empty chunk with no error would re-fetch the same
			// offset forever.
			if len(chunk) == 0 {
				s.abort(meta, offset, fmt.Errorf("%w: empty chunk at offset %d", ErrUpstreamFailure, offset))
			}
		}

		if _, err := w.Write(chunk); err != nil {
			// A failed write means the client went away; stop fetching.
			return nil
		}
		if flusher != nil {
			flusher.Flush()
		}

		streamedBytes.Add(float64(len(chunk)))
		offset += int64(len(chunk))
		chunk = nil

		if err := ctx.Err(); err != nil {
			return nil
		}
	}
	return nil
}

// clip bounds one chunk so the final fetch never overruns the range end.
func (s *Streamer) clip(rng ByteRange, offset int64) int64 {
	limit := s.chunkSize
	if remaining := rng.End - offset + 1; remaining < limit {
		limit = remaining
	}
	return limit
}

func (s *Streamer) abort(meta *FileMeta, offset int64, err error) {
	streamAborts.Inc()
	s.log.Error().
		Err(err).
		Str("file", meta.Name).
		Int64("offset", offset).
		Msg("Mid-stream fetch failed, aborting response")
	panic(http.ErrAbortHandler)
}
