// Package session derives stable conversation keys and persists per-session
// state.
//
// # Keys
//
// A session key identifies one physical conversation:
//
//	agent:<agentId>:<scopeSuffix>
//
// DMs share the agent's main key; groups and channels append
// provider:kind:peerId so the same conversation always yields the same key
// across restarts.
//
// # Store
//
// The Store interface persists Entry records (levels, model override,
// group-activation flags, abort marker). Two implementations are provided:
// SQLiteStore for durable deployments and MemoryStore for tests and
// embedding. Both serialize read-modify-write cycles per key (Update)
// while allowing full parallelism across distinct keys.
package session
