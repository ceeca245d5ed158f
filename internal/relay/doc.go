// Package relay wires the scheduling core together and exposes it over
// HTTP: provider adapters POST inbound messages to /inbound and receive
// the turn's immediate payloads; replies from deferred runs are delivered
// to the configured followup webhook. The agent backend itself is remote,
// reached through the GRPCRunner over the AgentRunner service.
package relay
