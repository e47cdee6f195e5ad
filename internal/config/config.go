package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Upload is one source map to send, with its optional bundle.
type Upload struct {
	SourceMap   string `yaml:"sourceMap"`
	Bundle      string `yaml:"bundle"`
	MinifiedURL string `yaml:"minifiedUrl"`
}

// Manifest describes a batch of uploads. Empty fields fall back to EnvVars.
type Manifest struct {
	Endpoint    string   `yaml:"endpoint"`
	APIKey      string   `yaml:"apiKey"`
	AppVersion  string   `yaml:"appVersion"`
	Overwrite   *bool    `yaml:"overwrite"`
	ProjectRoot string   `yaml:"projectRoot"`
	Uploads     []Upload `yaml:"uploads"`
}

// LoadManifest reads a YAML manifest. Relative paths in it are resolved
// against the manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	base := filepath.Dir(path)
	if m.ProjectRoot == "" {
		m.ProjectRoot = base
	} else {
		m.ProjectRoot = resolve(base, m.ProjectRoot)
	}
	for i := range m.Uploads {
		m.Uploads[i].SourceMap = resolve(base, m.Uploads[i].SourceMap)
		if m.Uploads[i].Bundle != "" {
			m.Uploads[i].Bundle = resolve(base, m.Uploads[i].Bundle)
		}
	}
	return &m, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// ApplyEnv fills manifest fields left empty from the environment.
func (m *Manifest) ApplyEnv(env *EnvVars) {
	if m.APIKey == "" {
		m.APIKey = env.APIKey
	}
	if m.Endpoint == "" {
		m.Endpoint = env.Endpoint
	}
}

// Validate checks the manifest is complete enough to upload.
func (m *Manifest) Validate() error {
	var errs []error
	if m.APIKey == "" {
		errs = append(errs, errors.New("apiKey is required"))
	}
	if u, err := url.Parse(m.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("endpoint %q is not an absolute URL", m.Endpoint))
	}
	if len(m.Uploads) == 0 {
		errs = append(errs, errors.New("no uploads listed"))
	}
	for i, u := range m.Uploads {
		if u.SourceMap == "" {
			errs = append(errs, fmt.Errorf("uploads[%d]: sourceMap is required", i))
		}
	}
	return errors.Join(errs...)
}
