// Package ratelimit throttles data connections to a fixed number of bytes
// per second.
package ratelimit

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// minBurst keeps the bucket large enough for reasonably sized chunks at
// very low rates.
const minBurst = 4 * 1024

// Limiter is a token bucket shared by every stream of a client, so the
// limit applies to the sum of their throughput.
type Limiter struct {
	lim    *rate.Limiter
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new rate limiter with the specified bytes per second limit.
// The bucket holds one second worth of data, allowing short bursts while
// maintaining the average rate over time. A zero or negative rate returns
// nil, which the wrappers treat as unlimited.
func New(bytesPerSecond int64) *Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}

	burst := int(bytesPerSecond)
	if burst < minBurst {
		burst = minBurst
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Limiter{
		lim:    rate.NewLimiter(rate.Limit(bytesPerSecond), burst),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Stop releases streams blocked on the limiter; their reads and writes
// fail with context.Canceled. Stop is idempotent and safe on a nil Limiter.
func (l *Limiter) Stop() {
	if l == nil {
		return
	}
	l.cancel()
}

// chunk bounds a single read or write so it never needs more tokens than
// the bucket holds.
func (l *Limiter) chunk(n int) int {
	if b := l.lim.Burst(); n > b {
		return b
	}
	return n
}

type reader struct {
	r       io.Reader
	limiter *Limiter
}

// NewReader creates a new rate-limited reader.
// If limiter is nil, returns the original reader unchanged.
func NewReader(r io.Reader, limiter *Limiter) io.Reader {
	if limiter == nil {
		return r
	}
	return &reader{r: r, limiter: limiter}
}

// Read implements io.Reader with rate limiting. Tokens are taken for the
// bytes actually read, so a short read does not stall the next one.
func (r *reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, err := r.r.Read(p[:r.limiter.chunk(len(p))])
	if n > 0 {
		if werr := r.limiter.lim.WaitN(r.limiter.ctx, n); werr != nil && err == nil {
			err = werr
		}
	}
	return n, err
}

type writer struct {
	w       io.Writer
	limiter *Limiter
}

// NewWriter creates a new rate-limited writer.
// If limiter is nil, returns the original writer unchanged.
func NewWriter(w io.Writer, limiter *Limiter) io.Writer {
	if limiter == nil {
		return w
	}
	return &writer{w: w, limiter: limiter}
}

// Write implements io.Writer with rate limiting. Tokens are taken before
// each chunk is written to apply backpressure.
func (w *writer) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		size := w.limiter.chunk(len(p) - written)
		if err := w.limiter.lim.WaitN(w.limiter.ctx, size); err != nil {
			return written, err
		}
		n, err := w.w.Write(p[written : written+size])
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
