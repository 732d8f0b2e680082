/*
Package scheduler is the facade the RPC layer talks to: get_nodes,
find_queue_equivalence_classes, find_job_location,
reserve_resources_until, update_node_state, and the process-group
operations. Manager owns the single exclusive fleet lock; every public
method that reads or changes fleet, drain, reservation or
process-group state acquires it for the duration of the call so a
caller always observes one consistent snapshot. UpdateNodeState is the
exception: it fetches inventory from the bridge first and takes the
lock only to apply it.
*/
package scheduler
