package brain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/abelbrown/triage/internal/logging"
)

var (
	// ErrNoBackend means no provider is configured or installed.
	ErrNoBackend = errors.New("no reasoning backend available: install the local tool or configure an API key")

	// ErrBackendUnavailable means every configured provider failed.
	ErrBackendUnavailable = errors.New("reasoning backend unavailable")
)

// Adapter tries providers in order until one returns a valid structured
// result. The local tool goes first unless preferLocal is false.
type Adapter struct {
	providers []Provider
}

// NewAdapter orders providers by path. Relative order within a path is kept.
func NewAdapter(preferLocal bool, providers ...Provider) *Adapter {
	ordered := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			ordered = append(ordered, p)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		ki, kj := kindOf(ordered[i]), kindOf(ordered[j])
		if preferLocal {
			return ki == KindLocal && kj != KindLocal
		}
		return ki != KindLocal && kj == KindLocal
	})
	return &Adapter{providers: ordered}
}

// Providers returns the providers in attempt order.
func (a *Adapter) Providers() []Provider {
	return a.providers
}

// Available reports whether at least one provider could be tried.
func (a *Adapter) Available() bool {
	for _, p := range a.providers {
		if p.Available() {
			return true
		}
	}
	return false
}

// Invoke sends req to each available provider in turn and decodes the first
// response that passes out.Validate. It never reports success without a
// validated result.
func (a *Adapter) Invoke(ctx context.Context, req Request, out Validator) error {
	var errs []error
	tried := 0

	for _, p := range a.providers {
		if !p.Available() {
			logging.Debug("provider not available, skipping", "provider", p.Name())
			continue
		}
		tried++

		start := time.Now()
		resp, err := p.Generate(ctx, req)
		if err != nil {
			logging.Warn("provider failed", "provider", p.Name(), "elapsed", time.Since(start), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if err := Decode(resp.Content, out); err != nil {
			logging.Warn("provider returned invalid output", "provider", p.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}

		logging.Info("provider succeeded", "provider", p.Name(), "model", resp.Model, "elapsed", time.Since(start))
		return nil
	}

	if tried == 0 {
		return ErrNoBackend
	}
	return fmt.Errorf("%w: %w", ErrBackendUnavailable, errors.Join(errs...))
}
