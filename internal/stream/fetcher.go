package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const defaultRetryWait = time.Second

// FetcherConfig bounds the shared upstream pipe. The limiter and breaker
// arbitrate between concurrent sessions; fetches inside one session stay
// sequential.
type FetcherConfig struct {
	Retries        int
	Rate           float64
	Burst          int
	BreakerName    string
	BreakerTimeout time.Duration
}

// Fetcher pulls bounded chunks from the backing store, retrying transient
// failures with the wait the store advises.
type Fetcher struct {
	client  BlobClient
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	retries int
	log     zerolog.Logger
}

func NewFetcher(client BlobClient, cfg FetcherConfig, log zerolog.Logger) *Fetcher {
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 100
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.BreakerName == "" {
		cfg.BreakerName = "blob-fetch"
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    cfg.BreakerName,
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Missing files are not upstream health signals.
			return err == nil || errors.Is(err, ErrNotFound)
		},
	})

	return &Fetcher{
		client:  client,
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		retries: cfg.Retries,
		log:     log,
	}
}

// Fetch returns the chunk at [offset, offset+limit) of the resolved file,
// clamped so it never reads past the end. io.EOF is returned when offset
// is at or past the file size.
func (f *Fetcher) Fetch(ctx context.Context, meta *FileMeta, offset, limit int64) ([]byte, error) {
	if offset < 0 || limit <= 0 {
		return nil, fmt.Errorf("%w: bad chunk request offset=%d limit=%d", ErrUpstreamFailure, offset, limit)
	}
	if remaining := meta.Size - offset; limit > remaining {
		limit = remaining
	}
	if limit <= 0 {
		return nil, io.EOF
	}

	for attempt := 0; ; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		res, err := f.breaker.Execute(func() (interface{}, error) {
			return f.client.DownloadRange(ctx, meta.Location, offset, limit)
		})
		if err == nil {
			return res.([]byte), nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit open", ErrTransientUnavailable)
		}
		if errors.Is(err, ErrNotFound) || ctx.Err() != nil {
			return nil, err
		}

		if errors.Is(err, ErrTransientUnavailable) && attempt < f.retries {
			wait := defaultRetryWait
			var te *TransientError
			if errors.As(err, &te) && te.Wait > 0 {
				wait = te.Wait
			}
			f.log.Warn().
				Err(err).
				Int64("offset", offset).
				Int("attempt", attempt+1).
				Dur("wait", wait).
				Msg("Transient fetch failure, retrying")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		if errors.Is(err, ErrTransientUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: offset=%d limit=%d: %v", ErrUpstreamFailure, offset, limit, err)
	}
}
