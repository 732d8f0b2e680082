// Package drain maintains the DrainTable: a mapping from timestamp to
// the set of node names that free at that instant, with the sentinel
// key 0 meaning "free now." It is grounded on the drain-time model
// spec.md §4.3 derives from CraySystem's running-job end-time
// bookkeeping feeding find_job_location's Phase B.
package drain

import "sort"

// Table maps a unix timestamp (seconds) to the set of node names that
// become free at that time. Key 0 is the "free now" sentinel.
type Table struct {
	buckets map[int64]map[string]struct{}
}

// New returns an empty drain table.
func New() *Table {
	return &Table{buckets: make(map[int64]map[string]struct{})}
}

// RunningEndTime pairs a set of node names with the unix time their
// current job ends.
type RunningEndTime struct {
	Nodes   []string
	EndTime int64
}

// Init resets the table to {0 -> allManagedIdle}, then for each
// running-job entry moves its nodes from bucket 0 into bucket
// EndTime, merging into any existing bucket at that key. Afterward the
// stale sentinel -1 bucket (if left over from a previous tick) is
// removed, grounded on init_drain_times' documented invariants.
func (t *Table) Init(allManagedIdle []string, running []RunningEndTime) {
	t.buckets = make(map[int64]map[string]struct{})
	free := make(map[string]struct{}, len(allManagedIdle))
	for _, n := range allManagedIdle {
		free[n] = struct{}{}
	}

	for _, re := range running {
		bucket, ok := t.buckets[re.EndTime]
		if !ok {
			bucket = make(map[string]struct{})
			t.buckets[re.EndTime] = bucket
		}
		for _, n := range re.Nodes {
			delete(free, n)
			bucket[n] = struct{}{}
		}
	}

	t.buckets[0] = free
	delete(t.buckets, -1)
}

// EarliestTimeWithAtLeast returns the smallest bucket key t such that
// the union of all buckets with key <= t contains at least n nodes,
// and true. If no such key exists (the table as a whole has fewer than
// n nodes), it returns (0, false).
func (t *Table) EarliestTimeWithAtLeast(n int) (int64, bool) {
	keys := t.sortedKeys()
	count := 0
	for _, k := range keys {
		count += len(t.buckets[k])
		if count >= n {
			return k, true
		}
	}
	return 0, false
}

// NodesAtOrBefore returns the union of every bucket with key <= t.
func (t *Table) NodesAtOrBefore(t2 int64) []string {
	var out []string
	for k, bucket := range t.buckets {
		if k <= t2 {
			for n := range bucket {
				out = append(out, n)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Free returns the nodes in the bucket-0 sentinel ("free now").
func (t *Table) Free() []string {
	out := make([]string, 0, len(t.buckets[0]))
	for n := range t.buckets[0] {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (t *Table) sortedKeys() []int64 {
	keys := make([]int64, 0, len(t.buckets))
	for k := range t.buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Total returns the count of nodes across all buckets, used to verify
// the union-equals-full-managed-set invariant in tests.
func (t *Table) Total() int {
	n := 0
	for _, bucket := range t.buckets {
		n += len(bucket)
	}
	return n
}
