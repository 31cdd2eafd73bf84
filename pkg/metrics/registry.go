// Package metrics provides Prometheus metrics for the mover.
//
// Metrics are optional: if InitRegistry is never called, constructors return
// no-op instances with zero overhead, and the mover runs without metrics
// collection.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// registry is the global Prometheus registry for all mover metrics.
	// Written once by InitRegistry, read many times afterwards.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry. Safe to call more
// than once; subsequent calls are ignored.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the global registry, or nil if metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}
