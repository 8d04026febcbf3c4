package notify

import (
	"context"
	"sync"

	"wallet-risk-monitor/internal/core/domain"
	"wallet-risk-monitor/internal/core/ports"

	"github.com/rs/zerolog"
)

// Dispatcher decouples alert persistence from delivery. Enqueue never
// blocks: when the queue is full the alert is dropped and counted. The
// alert itself is already stored, so a drop loses only the push.
type Dispatcher struct {
	sink    ports.NotificationSink
	queue   chan domain.Alert
	workers int
	metrics ports.SyncMetrics
	log     zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Call Start before Enqueue. Delivery
// deadlines belong to the sink (see Fanout).
func NewDispatcher(sink ports.NotificationSink, queueSize, workers int, metrics ports.SyncMetrics, log zerolog.Logger) *Dispatcher {
	if queueSize < 1 {
		queueSize = 1
	}
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		sink:    sink,
		queue:   make(chan domain.Alert, queueSize),
		workers: workers,
		metrics: metrics,
		log:     log,
	}
}

// Start launches the delivery workers.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
}

// Enqueue queues an alert for delivery. It returns false if the alert was
// dropped.
func (d *Dispatcher) Enqueue(a domain.Alert) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(a, "closed")
		return false
	}
	select {
	case d.queue <- a:
		return true
	default:
		d.drop(a, "queue full")
		return false
	}
}

// Close stops accepting alerts and waits for queued ones to be sent.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for a := range d.queue {
		d.send(a)
	}
}

func (d *Dispatcher) send(a domain.Alert) {
	if err := d.sink.Send(context.Background(), &a); err != nil {
		d.log.Error().Err(err).
			Str("alert_id", a.ID.String()).
			Str("sink", d.sink.Name()).
			Msg("notify: delivery failed")
	}
}

func (d *Dispatcher) drop(a domain.Alert, reason string) {
	d.metrics.RecordNotificationDropped()
	d.log.Warn().
		Str("alert_id", a.ID.String()).
		Str("reason", reason).
		Msg("notify: alert dropped")
}
