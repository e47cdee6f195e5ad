package upload

import (
	"context"
	"math"
	"time"

	"github.com/ccastromar/sourcemap-uploader/internal/logx"
	"github.com/ccastromar/sourcemap-uploader/internal/metrics"
)

const (
	DefaultMaxAttempts = 5
	DefaultRetryDelay  = time.Second
)

type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, the first one included.
	MaxAttempts int

	// Delay is the wait before the first retry.
	Delay time.Duration

	// Multiplier grows the delay after each retry. Values <= 1 keep it constant.
	Multiplier float64

	// MaxDelay caps the delay between attempts when > 0.
	MaxDelay time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		Delay:       DefaultRetryDelay,
		Multiplier:  1,
	}
}

// withDefaults fills unset fields. An entirely zero policy is DefaultRetryPolicy();
// otherwise a zero Delay means retrying immediately.
func (p RetryPolicy) withDefaults() RetryPolicy {
	if p == (RetryPolicy{}) {
		return DefaultRetryPolicy()
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	return p
}

// delay returns the wait after the given failed attempt (1-based).
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := time.Duration(float64(p.Delay) * math.Pow(p.Multiplier, float64(attempt-1)))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

type SleepFunc func(ctx context.Context, d time.Duration) error

func DefaultSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do uploads req to endpoint, retrying retryable failures sequentially until
// one attempt succeeds or opts.Retry.MaxAttempts attempts were made. It returns
// nil or the *UploadError of the last attempt. Non-retryable errors are
// returned right away.
func Do(ctx context.Context, endpoint string, req Request, opts Options) error {
	opts = opts.withDefaults()
	policy := opts.Retry

	var last error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err := Send(ctx, endpoint, req, opts)
		if err == nil {
			observeUpload(nil)
			return nil
		}
		last = err

		ue, ok := AsUploadError(err)
		if !ok || !ue.Retryable {
			break
		}
		if attempt == policy.MaxAttempts {
			logx.Warn("Upload", "giving up on %s after %d attempts: %v", endpoint, attempt, err)
			break
		}
		if ctx.Err() != nil {
			break
		}

		d := policy.delay(attempt)
		metrics.UploadRetries.Inc(map[string]string{"code": string(ue.Code)})
		logx.Warn("Upload", "attempt %d/%d to %s failed (%s), retrying in %v", attempt, policy.MaxAttempts, endpoint, ue.Code, d)
		if opts.OnRetry != nil {
			opts.OnRetry(ue, attempt, d)
		}
		if err := opts.Sleep(ctx, d); err != nil {
			break
		}
	}

	observeUpload(last)
	return last
}

func observeUpload(err error) {
	if err == nil {
		metrics.Uploads.Inc(map[string]string{"outcome": "ok", "code": ""})
		return
	}
	code := "UNKNOWN"
	if ue, ok := AsUploadError(err); ok {
		code = string(ue.Code)
	}
	metrics.Uploads.Inc(map[string]string{"outcome": "error", "code": code})
}
