package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"wallet-risk-monitor/internal/core/domain"
	"wallet-risk-monitor/internal/core/ports"
)

// budgeted is implemented by sinks that need longer than the fanout default,
// such as the webhook with its retry table.
type budgeted interface {
	DeliveryBudget() time.Duration
}

// Fanout sends each alert to every configured sink concurrently. Each sink
// gets its own deadline, so a slow or failing sink neither delays nor
// starves the others.
type Fanout struct {
	sinks   []ports.NotificationSink
	timeout time.Duration
	metrics ports.SyncMetrics
}

// NewFanout creates a new Fanout. timeout bounds every sink that does not
// declare its own budget; zero means no bound.
func NewFanout(timeout time.Duration, metrics ports.SyncMetrics, sinks ...ports.NotificationSink) *Fanout {
	return &Fanout{sinks: sinks, timeout: timeout, metrics: metrics}
}

func (f *Fanout) Name() string { return "fanout" }

// Len reports how many sinks are configured.
func (f *Fanout) Len() int { return len(f.sinks) }

func (f *Fanout) Send(ctx context.Context, alert *domain.Alert) error {
	errs := make([]error, len(f.sinks))
	var wg sync.WaitGroup
	for i, sink := range f.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sctx, cancel := f.sinkContext(ctx, sink)
			defer cancel()

			err := sink.Send(sctx, alert)
			f.metrics.RecordNotification(sink.Name(), err == nil)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", sink.Name(), err)
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (f *Fanout) sinkContext(ctx context.Context, sink ports.NotificationSink) (context.Context, context.CancelFunc) {
	budget := f.timeout
	if b, ok := sink.(budgeted); ok {
		budget = b.DeliveryBudget()
	}
	if budget <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, budget)
}
