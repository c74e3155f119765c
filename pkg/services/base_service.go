package services

import (
	"github.com/sony/gobreaker"

	"github.com/fieldmesh/fieldmesh/pkg/observability"
)

// ServiceConfig provides common configuration for all services
type ServiceConfig struct {
	// Observability
	Logger  observability.Logger
	Metrics observability.MetricsClient
	Tracer  observability.StartSpanFunc

	// Resilience
	BreakerSettings *gobreaker.Settings
}

// BaseService provides common functionality for all services
type BaseService struct {
	config ServiceConfig
}

// NewBaseService creates a new base service, filling in no-op
// observability defaults so callers can leave fields unset
func NewBaseService(config ServiceConfig) BaseService {
	if config.Logger == nil {
		config.Logger = observability.NewNoopLogger()
	}
	if config.Metrics == nil {
		config.Metrics = observability.NewNoOpMetricsClient()
	}
	if config.Tracer == nil {
		config.Tracer = observability.NoopStartSpan
	}
	return BaseService{config: config}
}
