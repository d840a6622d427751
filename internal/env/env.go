// Package env provides the client environment injected into extension
// pages and scripts.
package env

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	planerrors "github.com/conneroisu/extplan/internal/errors"
)

// DefaultPrefix selects which variables are exposed to client code.
const DefaultPrefix = "REACT_APP_"

// Environment is the client environment in the two shapes the bundler needs.
// Raw values are interpolated into HTML templates; Stringified values are
// compile-time constants keyed by their process.env expression.
type Environment struct {
	Raw         map[string]string
	Stringified map[string]string
}

// Keys returns the raw keys sorted.
func (e Environment) Keys() []string {
	keys := make([]string, 0, len(e.Raw))
	for k := range e.Raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy.
func (e Environment) Clone() Environment {
	out := Environment{
		Raw:         make(map[string]string, len(e.Raw)),
		Stringified: make(map[string]string, len(e.Stringified)),
	}
	for k, v := range e.Raw {
		out.Raw[k] = v
	}
	for k, v := range e.Stringified {
		out.Stringified[k] = v
	}
	return out
}

// Provider snapshots the prefixed variables from dotenv files and the
// process environment. Environment calls are pure over that snapshot.
type Provider struct {
	mode string
	vars map[string]string
}

// Option customises NewProvider.
type Option func(*settings)

type settings struct {
	mode    string
	prefix  string
	files   []string
	environ []string
}

// WithMode sets NODE_ENV (default "development").
func WithMode(mode string) Option {
	return func(s *settings) { s.mode = mode }
}

// WithPrefix sets the exposed variable prefix.
func WithPrefix(prefix string) Option {
	return func(s *settings) { s.prefix = prefix }
}

// WithFiles replaces the dotenv file list. Earlier files win.
func WithFiles(files ...string) Option {
	return func(s *settings) { s.files = files }
}

// WithEnviron replaces os.Environ as the process environment source.
func WithEnviron(environ []string) Option {
	return func(s *settings) { s.environ = environ }
}

// DefaultFiles lists the dotenv files consulted for mode, highest priority
// first.
func DefaultFiles(mode string) []string {
	files := []string{".env." + mode + ".local", ".env." + mode}
	if mode != "test" {
		files = append(files, ".env.local")
	}
	return append(files, ".env")
}

// NewProvider reads dotenv files relative to appDir. Missing files are
// skipped; unreadable or malformed files are errors.
func NewProvider(appDir string, opts ...Option) (*Provider, error) {
	s := &settings{mode: "development", prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	if s.files == nil {
		s.files = DefaultFiles(s.mode)
	}
	if s.environ == nil {
		s.environ = os.Environ()
	}

	merged := make(map[string]string)
	for _, name := range s.files {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(appDir, name)
		}
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, planerrors.WrapIO(err, planerrors.ErrCodeFileNotFound, "reading "+path)
		}
		values, err := godotenv.Read(path)
		if err != nil {
			return nil, planerrors.WrapIO(err, planerrors.ErrCodeConfigInvalid, "parsing "+path)
		}
		for k, v := range values {
			if _, ok := merged[k]; !ok {
				merged[k] = v
			}
		}
	}

	// The process environment takes precedence over dotenv files.
	for _, kv := range s.environ {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			merged[k] = v
		}
	}

	vars := make(map[string]string)
	for k, v := range merged {
		if s.prefix == "" || strings.HasPrefix(k, s.prefix) {
			vars[k] = v
		}
	}

	return &Provider{mode: s.mode, vars: vars}, nil
}

// Static returns a provider over a fixed variable set.
func Static(mode string, vars map[string]string) *Provider {
	copied := make(map[string]string, len(vars))
	for k, v := range vars {
		copied[k] = v
	}
	return &Provider{mode: mode, vars: copied}
}

// Environment builds the client environment. An empty hotUpdateURL means
// hot update is disabled and is exposed as an empty string.
func (p *Provider) Environment(publicURL, hotUpdateURL string) Environment {
	raw := make(map[string]string, len(p.vars)+3)
	for k, v := range p.vars {
		raw[k] = v
	}
	raw["NODE_ENV"] = p.mode
	raw["PUBLIC_URL"] = publicURL
	raw["HOT_UPDATE_URL"] = hotUpdateURL

	return Environment{Raw: raw, Stringified: Stringify(raw)}
}

// Stringify turns raw values into process.env constants holding JSON string
// literals.
func Stringify(raw map[string]string) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		encoded, _ := json.Marshal(v)
		out["process.env."+k] = string(encoded)
	}
	return out
}
