// Package secrets resolves named secrets (webhook shared secret, API tokens)
// for the verification pipeline. Providers never log secret values.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
)

// ErrNotFound is returned by a provider that has no value for a name.
var ErrNotFound = errors.New("secret not found")

// Provider supplies named secrets.
type Provider interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// RetrievalError reports a required secret that could not be resolved.
// It is fatal for the invocation: nothing with side effects may run after it.
type RetrievalError struct {
	Name string
	Err  error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("secret %q unavailable: %v", e.Name, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// Require resolves every name or fails with the first *RetrievalError.
// Empty values count as missing.
func Require(ctx context.Context, p Provider, names ...string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	for _, name := range names {
		if name == "" {
			return nil, &RetrievalError{Name: name, Err: errors.New("empty secret name")}
		}
		v, err := p.GetSecret(ctx, name)
		if err != nil {
			return nil, &RetrievalError{Name: name, Err: err}
		}
		if strings.TrimSpace(v) == "" {
			return nil, &RetrievalError{Name: name, Err: ErrNotFound}
		}
		out[name] = v
	}
	return out, nil
}

// EnvProvider maps a secret name to an environment variable: the name is
// upper-cased and non-alphanumerics become '_' (github_token -> GITHUB_TOKEN).
type EnvProvider struct {
	lookup func(string) (string, bool)
}

// NewEnvProvider returns a provider over the process environment. When
// envFile is non-empty and exists, it is loaded first without overriding
// variables already set.
func NewEnvProvider(envFile string) (*EnvProvider, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("load env file %s: %w", envFile, err)
			}
		}
	}
	return &EnvProvider{lookup: os.LookupEnv}, nil
}

var nonIdent = regexp.MustCompile(`[^A-Za-z0-9]+`)

// EnvName returns the environment variable consulted for a secret name.
func EnvName(name string) string {
	return strings.ToUpper(nonIdent.ReplaceAllString(name, "_"))
}

func (p *EnvProvider) GetSecret(_ context.Context, name string) (string, error) {
	v, ok := p.lookup(EnvName(name))
	if !ok {
		return "", ErrNotFound
	}
	return strings.TrimSpace(v), nil
}

// DirProvider reads secrets from files named after the secret inside a
// directory, e.g. a mounted /run/secrets volume.
type DirProvider struct {
	dir string
}

func NewDirProvider(dir string) *DirProvider {
	return &DirProvider{dir: dir}
}

func (p *DirProvider) GetSecret(_ context.Context, name string) (string, error) {
	// Names are identifiers, never paths.
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid secret name %q", name)
	}
	data, err := os.ReadFile(filepath.Join(p.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("read secret file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Static is an in-memory provider.
type Static map[string]string

func (s Static) GetSecret(_ context.Context, name string) (string, error) {
	v, ok := s[name]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Chain consults providers in order and returns the first hit. Errors other
// than ErrNotFound stop the search.
type Chain []Provider

func (c Chain) GetSecret(ctx context.Context, name string) (string, error) {
	for _, p := range c {
		v, err := p.GetSecret(ctx, name)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}
	return "", ErrNotFound
}
