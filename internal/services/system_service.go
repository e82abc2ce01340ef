package services

import (
	"context"
	"errors"

	"github.com/bookable/api/internal/repositories"
)

// ErrSystemUnavailable indicates a readiness dependency is failing.
var ErrSystemUnavailable = errors.New("system service: unavailable")

var errSystemHealthRequired = errors.New("system service: health repository is required")

// SystemServiceDeps wires the readiness probes.
type SystemServiceDeps struct {
	Health repositories.HealthRepository
	Logger func(context.Context, string, map[string]any)
}

type systemService struct {
	health repositories.HealthRepository
	logger func(context.Context, string, map[string]any)
}

// NewSystemService constructs a SystemService enforcing dependency validation.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.Health == nil {
		return nil, errSystemHealthRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &systemService{
		health: deps.Health,
		logger: logger,
	}, nil
}

// Readiness reports whether the persistence backend answers reads.
func (s *systemService) Readiness(ctx context.Context) error {
	if s == nil || s.health == nil {
		return ErrSystemUnavailable
	}
	if err := s.health.Ping(ctx); err != nil {
		s.logger(ctx, "system.readiness.failed", map[string]any{
			"error": err.Error(),
		})
		return ErrSystemUnavailable
	}
	return nil
}
