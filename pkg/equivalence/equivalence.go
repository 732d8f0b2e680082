// Package equivalence partitions the queue/node space into equivalence
// classes consumed one-per-call by the placement engine. It is
// grounded line-for-line on CraySystem.find_queue_equivalence_classes:
// a three-pass queue-overlap, hardware-consolidation, and
// reservation-attachment algorithm.
package equivalence

import "sort"

// Node is the minimal view the builder needs of a schedulable node.
type Node struct {
	Name   string
	Queues []string
}

// Class is one equivalence class: queues and reservations that may
// interact while scheduling a disjoint set of nodes. Nodes is returned
// sorted alongside Queues and Reservations, so callers can hand it to
// the placement engine as the class's node set.
type Class struct {
	Queues       []string
	Reservations []string
	Nodes        []string
}

type workingClass struct {
	queues       map[string]struct{}
	nodes        map[string]struct{}
	reservations map[string]struct{}
}

// Build runs the three-pass algorithm:
//
//  1. for each managed, schedulable node, intersect its queues with
//     the active set; if empty, skip the node. Find any class sharing
//     a queue with this node's active queues and join it, else open a
//     new class.
//  2. iteratively merge any two classes whose node sets intersect,
//     until a fixpoint (handles hardware shared across a node's
//     multiple queue memberships discovered on different passes).
//  3. attach each administrative reservation to every class whose
//     nodes intersect the reservation's node list.
//
// Complexity target O((N + Q²)·K) for K resulting classes; K is
// typically small.
func Build(nodes []Node, activeQueues []string, reservations map[string][]string) []Class {
	active := make(map[string]struct{}, len(activeQueues))
	for _, q := range activeQueues {
		active[q] = struct{}{}
	}

	var equiv []*workingClass

	for _, n := range nodes {
		var nodeActive []string
		for _, q := range n.Queues {
			if _, ok := active[q]; ok {
				nodeActive = append(nodeActive, q)
			}
		}
		if len(nodeActive) == 0 {
			continue
		}

		found := false
		for _, e := range equiv {
			matched := false
			for _, q := range nodeActive {
				if _, ok := e.queues[q]; ok {
					matched = true
					break
				}
			}
			if matched {
				e.nodes[n.Name] = struct{}{}
				for _, q := range nodeActive {
					e.queues[q] = struct{}{}
				}
				found = true
				break
			}
		}
		if !found {
			wc := &workingClass{
				queues:       make(map[string]struct{}),
				nodes:        map[string]struct{}{n.Name: {}},
				reservations: make(map[string]struct{}),
			}
			for _, q := range nodeActive {
				wc.queues[q] = struct{}{}
			}
			equiv = append(equiv, wc)
		}
	}

	equiv = consolidate(equiv)

	for _, e := range equiv {
		for resName, nodeList := range reservations {
			for _, nodeName := range nodeList {
				if _, ok := e.nodes[nodeName]; ok {
					e.reservations[resName] = struct{}{}
					break
				}
			}
		}
	}

	out := make([]Class, 0, len(equiv))
	for _, e := range equiv {
		out = append(out, Class{
			Queues:       sortedKeys(e.queues),
			Reservations: sortedKeys(e.reservations),
			Nodes:        sortedKeys(e.nodes),
		})
	}

	// Deterministic emit order by (min queue name, min node name) so
	// repeated builds over the same input are test-stable.
	sort.Slice(out, func(i, j int) bool {
		qi, qj := minOrEmpty(out[i].Queues), minOrEmpty(out[j].Queues)
		if qi != qj {
			return qi < qj
		}
		return minOrEmpty(out[i].Nodes) < minOrEmpty(out[j].Nodes)
	})

	return out
}

func minOrEmpty(sorted []string) string {
	if len(sorted) == 0 {
		return ""
	}
	return sorted[0]
}

// consolidate merges classes whose node sets intersect until a
// fixpoint, mirroring the second pass's real_equiv accumulation.
func consolidate(equiv []*workingClass) []*workingClass {
	var merged []*workingClass
	for _, c := range equiv {
		found := false
		for _, m := range merged {
			if intersects(m.nodes, c.nodes) {
				for n := range c.nodes {
					m.nodes[n] = struct{}{}
				}
				for q := range c.queues {
					m.queues[q] = struct{}{}
				}
				found = true
				break
			}
		}
		if !found {
			merged = append(merged, c)
		}
	}
	return merged
}

func intersects(a, b map[string]struct{}) bool {
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
