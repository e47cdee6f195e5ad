package upload

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ccastromar/sourcemap-uploader/internal/metrics"
)

func TestDo_AlwaysHangs_MakesMaxAttempts(t *testing.T) {
	ts, count := newHangingServer(t, -1)

	err := Do(context.Background(), ts.URL, sampleRequest(), fastOptions())

	ue, ok := AsUploadError(err)
	require.True(t, ok, "expected *UploadError, got %v", err)
	require.Equal(t, CodeTimeout, ue.Code)
	require.Equal(t, int32(5), count.Load())
}

func TestDo_EventuallySucceeds(t *testing.T) {
	ts, count := newHangingServer(t, 3)

	err := Do(context.Background(), ts.URL, sampleRequest(), fastOptions())

	require.NoError(t, err)
	require.Equal(t, int32(4), count.Load())
}

func TestDo_NonRetryable_SingleAttemptNoWait(t *testing.T) {
	var count atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count.Add(1)
		http.Error(w, "invalid", http.StatusBadRequest)
	}))
	defer ts.Close()

	slept := 0
	opts := fastOptions()
	opts.Sleep = func(ctx context.Context, d time.Duration) error {
		slept++
		return nil
	}

	err := Do(context.Background(), ts.URL, sampleRequest(), opts)

	ue, ok := AsUploadError(err)
	require.True(t, ok)
	require.Equal(t, CodeMiscBadRequest, ue.Code)
	require.False(t, ue.Retryable)
	require.Equal(t, int32(1), count.Load())
	require.Zero(t, slept)
}

func TestDo_ServerErrors_SurfaceLastResponse(t *testing.T) {
	var count atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := count.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		if n == 3 {
			w.Write([]byte("last"))
		}
	}))
	defer ts.Close()

	var retries []int
	opts := fastOptions()
	opts.Retry.MaxAttempts = 3
	opts.OnRetry = func(err *UploadError, attempt int, delay time.Duration) {
		require.Equal(t, CodeServerError, err.Code)
		retries = append(retries, attempt)
	}

	err := Do(context.Background(), ts.URL, sampleRequest(), opts)

	ue, ok := AsUploadError(err)
	require.True(t, ok)
	require.Equal(t, CodeServerError, ue.Code)
	require.Equal(t, "last", ue.ResponseText)
	require.Equal(t, int32(3), count.Load())
	require.Equal(t, []int{1, 2}, retries)
}

func TestDo_BackoffDelays(t *testing.T) {
	ts := newStatusServer(t, http.StatusTooManyRequests, "")

	var delays []time.Duration
	opts := Options{
		Retry: RetryPolicy{MaxAttempts: 5, Delay: 10 * time.Millisecond, Multiplier: 2, MaxDelay: 50 * time.Millisecond},
		Sleep: func(ctx context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		},
	}

	err := Do(context.Background(), ts.URL, sampleRequest(), opts)
	require.Error(t, err)
	require.Equal(t, []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
		50 * time.Millisecond,
	}, delays)
}

func TestDo_ContextCanceledStopsRetrying(t *testing.T) {
	var count atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	opts := fastOptions()
	opts.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return DefaultSleep(ctx, time.Hour)
	}

	err := Do(ctx, ts.URL, sampleRequest(), opts)

	ue, ok := AsUploadError(err)
	require.True(t, ok)
	require.Equal(t, CodeServerError, ue.Code)
	require.Equal(t, int32(1), count.Load())
}

func TestDo_RecordsMetrics(t *testing.T) {
	ts := newStatusServer(t, http.StatusConflict, "duplicate")
	lbls := map[string]string{"outcome": "error", "code": string(CodeDuplicate)}
	before := metrics.Uploads.Value(lbls)

	err := Do(context.Background(), ts.URL, sampleRequest(), fastOptions())
	require.Error(t, err)

	require.Equal(t, before+1, metrics.Uploads.Value(lbls))
}

func TestRetryPolicy_Defaults(t *testing.T) {
	p := RetryPolicy{}.withDefaults()
	require.Equal(t, DefaultRetryPolicy(), p)
	require.Equal(t, 5, p.MaxAttempts)
	require.Equal(t, time.Second, p.delay(1))
	require.Equal(t, time.Second, p.delay(4))

	p = RetryPolicy{Delay: time.Millisecond}.withDefaults()
	require.Equal(t, DefaultMaxAttempts, p.MaxAttempts)
	require.Equal(t, 1.0, p.Multiplier)
}

func TestDefaultSleep_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, DefaultSleep(ctx, time.Hour), context.Canceled)
	require.NoError(t, DefaultSleep(context.Background(), 0))
}
