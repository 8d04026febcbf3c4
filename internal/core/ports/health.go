package ports

import "context"

// HealthChecker is one entry of the /health report: a store the engine
// depends on, or the orchestrator itself.
type HealthChecker interface {
	// Ping returns nil while the component can serve.
	Ping(ctx context.Context) error
	// Name keys the component in the report ("postgres", "redis", "orchestrator").
	Name() string
}
