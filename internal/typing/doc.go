// Package typing implements the cooperative "agent is working" presence
// signal for one turn: an immediate notification, then a repeating timer
// until the turn produces output or is cleaned up. The controller never
// affects scheduling and is never shared across turns.
package typing
