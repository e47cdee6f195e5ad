package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ccastromar/sourcemap-uploader/internal/logx"
	"github.com/ccastromar/sourcemap-uploader/internal/metrics"
)

// DefaultTimeout bounds a single attempt when Options.Timeout is unset.
const DefaultTimeout = 30 * time.Second

// maxResponseText caps how much of an error body is kept.
const maxResponseText = 64 << 10

// defaultClient reports redirects as they are instead of following them, so a
// 3xx reaches Classify rather than turning the POST into a GET.
var defaultClient = &http.Client{
	CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	},
}

// Options are the non-payload controls of an upload. Zero fields take defaults.
type Options struct {
	// Timeout bounds one attempt, from dial to the end of the response body.
	Timeout time.Duration
	Retry   RetryPolicy
	// HTTPClient defaults to a client without its own timeout that does not
	// follow redirects; Timeout applies instead.
	HTTPClient *http.Client
	// Header is added to every attempt.
	Header http.Header
	// Sleep waits between attempts; DefaultSleep when nil.
	Sleep SleepFunc
	// OnRetry is invoked before waiting for the next attempt.
	OnRetry func(err *UploadError, attempt int, delay time.Duration)
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.HTTPClient == nil {
		o.HTTPClient = defaultClient
	}
	if o.Sleep == nil {
		o.Sleep = DefaultSleep
	}
	o.Retry = o.Retry.withDefaults()
	return o
}

// Send performs exactly one upload attempt. It returns nil on a 2xx response
// and an *UploadError otherwise.
func Send(ctx context.Context, endpoint string, req Request, opts Options) error {
	opts = opts.withDefaults()

	body, contentType, err := Encode(req)
	if err != nil {
		return fmt.Errorf("encode upload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	start := time.Now()
	uerr := send(ctx, opts, endpoint, body, contentType)
	observeAttempt(uerr, time.Since(start))
	if uerr != nil {
		return uerr
	}
	return nil
}

func send(ctx context.Context, opts Options, endpoint string, body []byte, contentType string) *UploadError {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return timeoutError(fmt.Errorf("new request: %w", err))
	}
	for k, vs := range opts.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := opts.HTTPClient.Do(httpReq)
	if err != nil {
		logx.Debug("Upload", "POST %s failed: %v", endpoint, err)
		return timeoutError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		logx.Debug("Upload", "POST %s accepted: status %d", endpoint, resp.StatusCode)
		return nil
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseText))
	if err != nil {
		// The status line arrived but the body did not; classify on status alone.
		logx.Debug("Upload", "reading error body from %s: %v", endpoint, err)
	}
	logx.Debug("Upload", "POST %s rejected: status %d", endpoint, resp.StatusCode)
	return Classify(resp.StatusCode, string(b))
}

func observeAttempt(err *UploadError, elapsed time.Duration) {
	outcome, code := "ok", ""
	if err != nil {
		outcome, code = "error", string(err.Code)
	}
	metrics.UploadAttempts.Inc(map[string]string{"outcome": outcome, "code": code})
	metrics.UploadAttemptDur.Observe(map[string]string{"outcome": outcome}, elapsed.Seconds())
}
