// Package agent defines the contract between the scheduling core and the
// external agent-run capability.
//
// The core never implements inference. It assembles a RunRequest and hands
// it to a Runner; the Tracker decorates any Runner with the per-session
// active/streaming state and the cooperative Abort the lane manager relies
// on. Abort cancels the run's context and is eventual, not immediate: a
// short race where an aborted run still produces a trailing result is
// expected, and the Tracker discards that result (ErrAborted).
package agent
