// Package job defines the job descriptor the placement engine consumes
// but never mutates, replacing the teacher's dynamic dict-based job
// records with a tagged struct per spec.md §9.
package job

// Descriptor is the read-only view of a queued job the core places.
// The queue manager owns the authoritative record; the core only
// reads these fields.
type Descriptor struct {
	JobID     int
	User      string
	Queue     string
	NodeCount int
	Walltime  int // minutes
	Score     float64

	// Attrs carries vendor-specific, bridge-passthrough options (e.g.
	// Cray kernel parameters). The core never interprets these.
	Attrs map[string]string

	// InCleanup marks a job whose previous allocation still holds
	// resources; it is skipped for (re-)scheduling this tick, and its
	// already-held nodes are excluded from the idle pool naturally since
	// they still carry the prior hold.
	InCleanup bool
}

// EndTime pairs a node-name list with the epoch-seconds a currently
// running job on those nodes is expected to finish, mirroring the
// wire-level end_times list of [[node…], epoch_seconds] pairs.
type EndTime struct {
	Nodes   []string
	AtEpoch int64
}
