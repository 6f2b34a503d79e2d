// Package service implements the use cases behind the HTTP surface: message
// intake with intent resolution, run queries and cancellation.
package service

import (
	"log/slog"

	"github.com/procureflow/agent/config"
	"github.com/procureflow/agent/internal/engine"
	"github.com/procureflow/agent/internal/intent"
	"github.com/procureflow/agent/internal/policy"
	"github.com/procureflow/agent/internal/resolver"
	"github.com/procureflow/agent/internal/store"
)

// Service wires the core components behind the transport layer.
type Service struct {
	store    store.Store
	resolver *resolver.Resolver
	registry *intent.Registry
	policy   *policy.Engine
	engine   *engine.Engine
	config   *config.Config
	logger   *slog.Logger
}

// New creates a service.
func New(st store.Store, res *resolver.Resolver, registry *intent.Registry, pol *policy.Engine, eng *engine.Engine, cfg *config.Config, logger *slog.Logger) *Service {
	return &Service{
		store:    st,
		resolver: res,
		registry: registry,
		policy:   pol,
		engine:   eng,
		config:   cfg,
		logger:   logger,
	}
}

// Registry exposes the intent catalog for introspection endpoints.
func (s *Service) Registry() *intent.Registry {
	return s.registry
}
