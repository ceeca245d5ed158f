// Package queue resolves the effective queue policy for one inbound
// message.
//
// Resolve merges the global config default, per-provider override,
// session-level override, and per-message inline directive into one Policy,
// field by field - mode, debounce, cap, and drop policy each follow the
// precedence chain independently. The result is pure data; admission is
// the lane package's job.
package queue
