// Package reply is the turn orchestrator: it sequences one inbound
// message through directive parsing, elevated gating, session state,
// model and queue policy resolution, media staging, prompt assembly, and
// finally lane admission against the agent-run capability.
//
// Resolve returns the outbound payloads for the turn; zero payloads with
// a nil error means no reply should be sent. Refusals (elevated denied,
// empty body) are fixed textual replies, not errors. Only the agent-run
// capability and session-store I/O can fail a turn; every other step
// degrades gracefully. The typing controller is cleaned up on every exit
// path, including errors.
package reply
