package batch

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

const (
	limiterBurst    = 1024 * 1024
	limiterMaxChunk = 512 * 1024
)

func newLimiter(bytesPerSecond uint64) *rate.Limiter {
	if bytesPerSecond == 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(bytesPerSecond), limiterBurst)
}

// rateLimitedWriter throttles writes against a limiter shared by all workers.
type rateLimitedWriter struct {
	ctx     context.Context
	w       io.Writer
	limiter *rate.Limiter
}

func newRateLimitedWriter(ctx context.Context, w io.Writer, limiter *rate.Limiter) io.Writer {
	if limiter == nil {
		return w
	}
	return &rateLimitedWriter{ctx: ctx, w: w, limiter: limiter}
}

func (w *rateLimitedWriter) Write(p []byte) (written int, err error) {
	for written < len(p) {
		chunkSize := limiterMaxChunk
		if remaining := len(p) - written; remaining < chunkSize {
			chunkSize = remaining
		}
		if err = w.limiter.WaitN(w.ctx, chunkSize); err != nil {
			return written, err
		}
		nw, err := w.w.Write(p[written : written+chunkSize])
		written += nw
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
