package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Fleet metrics
	ResourcesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleetsched_resources_total",
			Help: "Total number of managed resources by status",
		},
		[]string{"status"},
	)

	ReservationsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetsched_reservations_total",
			Help: "Total number of live (unconfirmed or confirmed) reservations",
		},
	)

	DrainTargetsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetsched_drain_targets_total",
			Help: "Total number of nodes currently marked for draining",
		},
	)

	// Equivalence-class metrics
	EquivalenceClassesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetsched_equivalence_classes_total",
			Help: "Number of equivalence classes built on the last pass",
		},
	)

	EquivalenceClassBuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetsched_equivalence_class_build_duration_seconds",
			Help:    "Time taken to partition the queue space into equivalence classes",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Placement metrics
	PlacementDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetsched_placement_duration_seconds",
			Help:    "Time taken by a find_job_location call for one equivalence class",
			Buckets: prometheus.DefBuckets,
		},
	)

	ImmediatePlacementsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetsched_immediate_placements_total",
			Help: "Total number of jobs placed immediately in Phase A",
		},
	)

	BackfillPlacementsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetsched_backfill_placements_total",
			Help: "Total number of jobs placed via Phase C backfill",
		},
	)

	PlacementFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetsched_placement_failures_total",
			Help: "Total number of placement attempts that failed at the bridge",
		},
	)

	// Reservation-controller metrics
	ReservationApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetsched_reservation_apply_duration_seconds",
			Help:    "Time taken to apply or release a reservation across a node list",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReservationFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetsched_reservation_failures_total",
			Help: "Total number of per-node reservation failures",
		},
	)

	// Refresh-loop metrics
	RefreshCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetsched_refresh_cycle_duration_seconds",
			Help:    "Time taken for a state-refresh cycle against the bridge",
			Buckets: prometheus.DefBuckets,
		},
	)

	RefreshCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetsched_refresh_cycles_total",
			Help: "Total number of refresh cycles completed",
		},
	)

	InventoryMismatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetsched_inventory_mismatches_total",
			Help: "Total number of bridge-reported nodes not found locally",
		},
	)

	DeadReservationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetsched_dead_reservations_total",
			Help: "Total number of reservations reaped because the bridge no longer reports them",
		},
	)
)

func init() {
	prometheus.MustRegister(ResourcesTotal)
	prometheus.MustRegister(ReservationsTotal)
	prometheus.MustRegister(DrainTargetsTotal)
	prometheus.MustRegister(EquivalenceClassesTotal)
	prometheus.MustRegister(EquivalenceClassBuildDuration)
	prometheus.MustRegister(PlacementDuration)
	prometheus.MustRegister(ImmediatePlacementsTotal)
	prometheus.MustRegister(BackfillPlacementsTotal)
	prometheus.MustRegister(PlacementFailuresTotal)
	prometheus.MustRegister(ReservationApplyDuration)
	prometheus.MustRegister(ReservationFailuresTotal)
	prometheus.MustRegister(RefreshCycleDuration)
	prometheus.MustRegister(RefreshCyclesTotal)
	prometheus.MustRegister(InventoryMismatchesTotal)
	prometheus.MustRegister(DeadReservationsTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
