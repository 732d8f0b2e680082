package metrics

import (
	"time"

	"github.com/opensched/fleetsched/pkg/fleet"
	"github.com/opensched/fleetsched/pkg/reservation"
	"github.com/opensched/fleetsched/pkg/resource"
)

// Collector periodically samples fleet and reservation state into the
// gauge metrics declared in metrics.go. The refresh loop already drives
// the counter/histogram metrics as events happen; Collector exists for
// the point-in-time gauges that need a poll.
type Collector struct {
	fleet        *fleet.ResourceSet
	reservations *reservation.Controller
	interval     time.Duration
	stopCh       chan struct{}
}

// NewCollector creates a collector sampling every 15 seconds.
func NewCollector(set *fleet.ResourceSet, ctrl *reservation.Controller) *Collector {
	return &Collector{
		fleet:        set,
		reservations: ctrl,
		interval:     15 * time.Second,
		stopCh:       make(chan struct{}),
	}
}

// Start begins the periodic sampling goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts the sampling goroutine.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectResourceMetrics()
	c.collectReservationMetrics()
}

func (c *Collector) collectResourceMetrics() {
	counts := map[resource.Status]int{
		resource.StatusIdle:            0,
		resource.StatusAllocated:       0,
		resource.StatusBusy:            0,
		resource.StatusCleanup:         0,
		resource.StatusCleanupPending:  0,
		resource.StatusDown:            0,
	}
	drainTargets := 0

	for _, r := range c.fleet.All() {
		counts[r.Status()]++
		if r.DrainInfo() != nil {
			drainTargets++
		}
	}

	for status, count := range counts {
		ResourcesTotal.WithLabelValues(string(status)).Set(float64(count))
	}
	DrainTargetsTotal.Set(float64(drainTargets))
}

func (c *Collector) collectReservationMetrics() {
	ReservationsTotal.Set(float64(len(c.reservations.All())))
}
