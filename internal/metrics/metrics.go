package metrics

import (
    "fmt"
    "io"
    "net/http"
    "sort"
    "strings"
    "sync"
)

// A very small in-process metrics registry that exports Prometheus-like text.
// It supports counters and simple summaries (count/sum), with labeled samples.

type labelsKey string

func makeKey(lbls map[string]string) labelsKey {
    if len(lbls) == 0 {
        return labelsKey("")
    }
    keys := make([]string, 0, len(lbls))
    for k := range lbls { keys = append(keys, k) }
    sort.Strings(keys)
    var b strings.Builder
    for i, k := range keys {
        if i > 0 { b.WriteByte(',') }
        b.WriteString(k)
        b.WriteByte('=')
        // escape quotes
        v := strings.ReplaceAll(lbls[k], "\"", "\\\"")
        b.WriteString("\"")
        b.WriteString(v)
        b.WriteString("\"")
    }
    return labelsKey(b.String())
}

// withLabels fills every declared label missing from lbls with "", so a
// series always carries the full label set of its vec.
func withLabels(names []string, lbls map[string]string) map[string]string {
    for _, n := range names {
        if _, ok := lbls[n]; !ok {
            out := make(map[string]string, len(names)+len(lbls))
            for _, n := range names { out[n] = "" }
            for k, v := range lbls { out[k] = v }
            return out
        }
    }
    return lbls
}

type CounterVec struct {
    Name   string
    Help   string
    mu     sync.RWMutex
    labelNames []string
    values map[labelsKey]float64
}

func NewCounterVec(name, help string, labelNames ...string) *CounterVec {
    return &CounterVec{Name: name, Help: help, labelNames: labelNames, values: make(map[labelsKey]float64)}
}

func (cv *CounterVec) Inc(lbls map[string]string) {
    key := makeKey(withLabels(cv.labelNames, lbls))
    cv.mu.Lock()
    cv.values[key] += 1
    cv.mu.Unlock()
}

// Value returns the current count for the given labels.
func (cv *CounterVec) Value(lbls map[string]string) float64 {
    key := makeKey(withLabels(cv.labelNames, lbls))
    cv.mu.RLock()
    defer cv.mu.RUnlock()
    return cv.values[key]
}

// SummaryVec stores count and sum; we export metric_count and metric_sum.
type SummaryVec struct {
    Name string
    Help string
    mu   sync.RWMutex
    labelNames []string
    count map[labelsKey]float64
    sum   map[labelsKey]float64
}

func NewSummaryVec(name, help string, labelNames ...string) *SummaryVec {
    return &SummaryVec{Name: name, Help: help, labelNames: labelNames, count: make(map[labelsKey]float64), sum: make(map[labelsKey]float64)}
}

func (sv *SummaryVec) Observe(lbls map[string]string, v float64) {
    key := makeKey(withLabels(sv.labelNames, lbls))
    sv.mu.Lock()
    sv.count[key] += 1
    sv.sum[key] += v
    sv.mu.Unlock()
}

// Count returns how many observations were recorded for the given labels.
func (sv *SummaryVec) Count(lbls map[string]string) float64 {
    key := makeKey(withLabels(sv.labelNames, lbls))
    sv.mu.RLock()
    defer sv.mu.RUnlock()
    return sv.count[key]
}

// Global metrics we care about
var (
    UploadAttempts   = NewCounterVec("sourcemaps_upload_attempts_total", "Upload attempts by outcome and error code", "outcome", "code") // outcome=ok|error
    UploadAttemptDur = NewSummaryVec("sourcemaps_upload_attempt_seconds", "Upload attempt duration seconds", "outcome")
    Uploads          = NewCounterVec("sourcemaps_uploads_total", "Uploads by final outcome and error code", "outcome", "code")
    UploadRetries    = NewCounterVec("sourcemaps_upload_retries_total", "Retries scheduled after a retryable failure", "code")

    IngestRequests = NewCounterVec("sourcemaps_ingest_requests_total", "Requests served by the mock ingestion endpoint", "status")
)

var (
    counters  = []*CounterVec{UploadAttempts, Uploads, UploadRetries, IngestRequests}
    summaries = []*SummaryVec{UploadAttemptDur}
)

// WriteText writes all metrics in Prometheus text format.
func WriteText(w io.Writer) {
    // helper to dump counter vec
    dumpCounter := func(cv *CounterVec) {
        fmt.Fprintf(w, "# HELP %s %s\n", cv.Name, cv.Help)
        fmt.Fprintf(w, "# TYPE %s counter\n", cv.Name)
        cv.mu.RLock()
        for _, key := range sortedKeys(cv.values) {
            val := cv.values[key]
            if key == "" {
                fmt.Fprintf(w, "%s %g\n", cv.Name, val)
            } else {
                fmt.Fprintf(w, "%s{%s} %g\n", cv.Name, key, val)
            }
        }
        cv.mu.RUnlock()
    }

    dumpSummary := func(sv *SummaryVec) {
        // Prometheus summary convention: name_sum and name_count
        fmt.Fprintf(w, "# HELP %s %s\n", sv.Name, sv.Help)
        fmt.Fprintf(w, "# TYPE %s summary\n", sv.Name)
        sv.mu.RLock()
        for _, key := range sortedKeys(sv.count) {
            cnt := sv.count[key]
            sum := sv.sum[key]
            if key == "" {
                fmt.Fprintf(w, "%s_sum %g\n", sv.Name, sum)
                fmt.Fprintf(w, "%s_count %g\n", sv.Name, cnt)
            } else {
                fmt.Fprintf(w, "%s_sum{%s} %g\n", sv.Name, key, sum)
                fmt.Fprintf(w, "%s_count{%s} %g\n", sv.Name, key, cnt)
            }
        }
        sv.mu.RUnlock()
    }

    for _, cv := range counters {
        dumpCounter(cv)
    }
    for _, sv := range summaries {
        dumpSummary(sv)
    }
}

// ServeHTTP exposes all metrics in Prometheus text format.
func ServeHTTP(w http.ResponseWriter, r *http.Request) {
    w.Header().Set("Content-Type", "text/plain; version=0.0.4")
    WriteText(w)
}

func sortedKeys(m map[labelsKey]float64) []labelsKey {
    keys := make([]labelsKey, 0, len(m))
    for k := range m { keys = append(keys, k) }
    sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
    return keys
}
