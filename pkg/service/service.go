package service

import (
	"context"
	"errors"
	"fmt"
)

// Service is anything the app composes at startup.
type Service interface{}

// RunnableService is a service with its own lifecycle: the hub, the
// HTTP server, the monitoring sidecar.
type RunnableService interface {
	Service

	Run()
	Shutdown(ctx context.Context) error
}

// Group starts and stops an ordered set of services.
type Group struct {
	list []Service
}

func (g *Group) Add(services ...Service) { g.list = append(g.list, services...) }

// Start runs each runnable service in registration order.
func (g *Group) Start() {
	for _, s := range g.list {
		if v, ok := s.(RunnableService); ok {
			v.Run()
		}
	}
}

// Shutdown stops the services in reverse registration order, so the
// outer surfaces go down before the hub they feed. Every service is
// attempted even when some fail.
func (g *Group) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(g.list) - 1; i >= 0; i-- {
		v, ok := g.list[i].(RunnableService)
		if !ok {
			continue
		}
		if err := v.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, fmt.Errorf("stop %v: %w", v, err))
		}
	}
	return errors.Join(errs...)
}
