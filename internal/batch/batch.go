// Package batch uploads the source maps listed in a manifest, several at a time.
package batch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ccastromar/sourcemap-uploader/internal/config"
	"github.com/ccastromar/sourcemap-uploader/internal/logx"
	"github.com/ccastromar/sourcemap-uploader/internal/upload"
)

// UploadIDHeader carries the per-upload correlation id.
const UploadIDHeader = "X-Upload-Id"

const defaultConcurrency = 5

// Job is everything needed to upload a batch.
type Job struct {
	Endpoint    string
	APIKey      string
	AppVersion  string
	Overwrite   *bool
	ProjectRoot string
	Uploads     []config.Upload
	Options     upload.Options
	// Concurrency bounds parallel uploads; defaults to 5.
	Concurrency int
}

// JobFromManifest builds a Job from a manifest already merged with the env.
func JobFromManifest(m *config.Manifest, env *config.EnvVars) Job {
	return Job{
		Endpoint:    m.Endpoint,
		APIKey:      m.APIKey,
		AppVersion:  m.AppVersion,
		Overwrite:   m.Overwrite,
		ProjectRoot: m.ProjectRoot,
		Uploads:     m.Uploads,
		Options: upload.Options{
			Timeout: env.Timeout,
			Retry: upload.RetryPolicy{
				MaxAttempts: env.MaxAttempts,
				Delay:       env.RetryDelay,
			},
		},
		Concurrency: env.Concurrency,
	}
}

// Result is the outcome of one source map.
type Result struct {
	ID        string
	SourceMap string
	Attempts  int
	Err       error
}

type Report struct {
	Results []Result
}

func (r Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// UploadFunc matches upload.Do.
type UploadFunc func(ctx context.Context, endpoint string, req upload.Request, opts upload.Options) error

type Runner struct {
	Upload UploadFunc
}

func NewRunner() *Runner {
	return &Runner{Upload: upload.Do}
}

// Run uploads every entry of job. Entries are independent: a failure never
// cancels the others. The returned error joins every failure.
func (r *Runner) Run(ctx context.Context, job Job) (Report, error) {
	limit := job.Concurrency
	if limit < 1 {
		limit = defaultConcurrency
	}

	batchID := uuid.NewString()
	timer := logx.Start(batchID, "Batch", fmt.Sprintf("upload of %d source maps", len(job.Uploads)))
	defer timer.End()

	results := make([]Result, len(job.Uploads))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, u := range job.Uploads {
		i, u := i, u
		g.Go(func() error {
			results[i] = r.one(ctx, job, u)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Results: results}
	var errs []error
	for _, res := range report.Failed() {
		errs = append(errs, fmt.Errorf("%s: %w", res.SourceMap, res.Err))
	}
	if len(errs) > 0 {
		logx.Error("Batch", "%d of %d uploads failed", len(errs), len(results))
	} else {
		logx.Info("Batch", "%d uploads succeeded", len(results))
	}
	return report, errors.Join(errs...)
}

func (r *Runner) one(ctx context.Context, job Job, u config.Upload) Result {
	res := Result{ID: uuid.NewString(), SourceMap: u.SourceMap}

	req, err := BuildRequest(job, u)
	if err != nil {
		res.Err = err
		logx.L(res.ID, "Batch", "skipping %s: %v", u.SourceMap, err)
		return res
	}

	opts := job.Options
	opts.Header = opts.Header.Clone()
	if opts.Header == nil {
		opts.Header = http.Header{}
	}
	opts.Header.Set(UploadIDHeader, res.ID)

	attempts := 1
	onRetry := opts.OnRetry
	opts.OnRetry = func(ue *upload.UploadError, attempt int, delay time.Duration) {
		attempts = attempt + 1
		if onRetry != nil {
			onRetry(ue, attempt, delay)
		}
	}

	name := u.SourceMap
	if v, ok := req.Get("sourceMap"); ok {
		if f, ok := v.(upload.File); ok {
			name = f.Filepath
		}
	}
	logx.L(res.ID, "Batch", "uploading %s to %s", name, job.Endpoint)
	res.Err = r.Upload(ctx, job.Endpoint, req, opts)
	res.Attempts = attempts
	if res.Err != nil {
		logx.L(res.ID, "Batch", "upload of %s failed: %v", u.SourceMap, res.Err)
	} else {
		logx.L(res.ID, "Batch", "uploaded %s", u.SourceMap)
	}
	return res
}

// BuildRequest reads the files of u and lays out the upload fields:
// apiKey, appVersion, minifiedUrl, overwrite, sourceMap, minifiedFile.
// Optional fields with no value are left out.
func BuildRequest(job Job, u config.Upload) (upload.Request, error) {
	smData, err := os.ReadFile(u.SourceMap)
	if err != nil {
		return nil, fmt.Errorf("reading source map: %w", err)
	}

	var bundle upload.Value
	minifiedURL := u.MinifiedURL
	if u.Bundle != "" {
		data, err := os.ReadFile(u.Bundle)
		if err != nil {
			return nil, fmt.Errorf("reading bundle: %w", err)
		}
		name := displayName(job.ProjectRoot, u.Bundle)
		bundle = upload.File{Filepath: name, Data: data}
		if minifiedURL == "" {
			minifiedURL = name
		}
	}

	req := upload.Request{{Name: "apiKey", Value: upload.Text(job.APIKey)}}
	if job.AppVersion != "" {
		req = req.With("appVersion", upload.Text(job.AppVersion))
	}
	if minifiedURL != "" {
		req = req.With("minifiedUrl", upload.Text(minifiedURL))
	}
	if job.Overwrite != nil {
		req = req.With("overwrite", upload.Bool(*job.Overwrite))
	}
	req = req.With("sourceMap", upload.File{Filepath: displayName(job.ProjectRoot, u.SourceMap), Data: smData})
	return req.With("minifiedFile", bundle), nil
}

// displayName is path relative to root with forward slashes, or path itself
// when it lies outside root.
func displayName(root, path string) string {
	if root != "" {
		if rel, err := filepath.Rel(root, path); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(path)
}
