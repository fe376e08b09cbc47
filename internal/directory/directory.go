// Package directory maps a well-known binding name to the address where the
// auction service can be reached, so clients never hard-code a port.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrNotBound = errors.New("binding not found")

type Directory interface {
	Publish(ctx context.Context, name string, address string) error
	Resolve(ctx context.Context, name string) (string, error)
	Withdraw(ctx context.Context, name string) error
}

// Static is an in-memory directory for tests and single-host setups.
type Static struct {
	mu       sync.RWMutex
	bindings map[string]string
}

func NewStatic(bindings map[string]string) *Static {
	s := &Static{bindings: make(map[string]string, len(bindings))}
	for name, address := range bindings {
		s.bindings[name] = address
	}
	return s
}

func (s *Static) Publish(ctx context.Context, name string, address string) error {
	s.mu.Lock()
	s.bindings[name] = address
	s.mu.Unlock()
	return nil
}

func (s *Static) Resolve(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	address, ok := s.bindings[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotBound, name)
	}
	return address, nil
}

func (s *Static) Withdraw(ctx context.Context, name string) error {
	s.mu.Lock()
	delete(s.bindings, name)
	s.mu.Unlock()
	return nil
}

// ResolveWithRetry looks name up up to attempts times, waiting interval
// between tries.
func ResolveWithRetry(ctx context.Context, dir Directory, name string, attempts int, interval time.Duration) (string, error) {
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var address string
		address, err = dir.Resolve(ctx, name)
		if err == nil {
			return address, nil
		}

		log.Warn().Err(err).
			Str("binding", name).
			Int("attempt", attempt).
			Msg("directory lookup failed")

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}
	}

	return "", fmt.Errorf("failed to resolve %s after %d attempts: %w", name, attempts, err)
}
