// Package lane is the admission controller for agent turns.
//
// One lane exists per session key; within a lane at most one agent run is
// ever in flight (single-flight invariant), while distinct lanes run fully
// in parallel. The Registry decides, per inbound message and resolved
// queue policy, whether to start a run immediately, steer the message into
// the active run, enqueue a FollowupRun, or interrupt.
//
// Messages within a lane execute in arrival order except where interrupt
// explicitly discards queued work or collect explicitly merges it. Debounce
// holds admissions in a settle slot until the lane has been quiet for the
// window; the cap and drop policy bound the pending queue without ever
// blocking the caller (drop-oldest default).
package lane
