// Package lifecycle implements the timeout-bounded scan run shared by the
// radio and network engines.
//
// A Run moves idle → running → stopped exactly once; a new scan always uses a
// new Run. Starting arms two independent timers on the supplied clock: a short
// periodic tick that recomputes progress and stops the run once progress
// reaches 1.0, and an absolute deadline at start+timeout. Whichever fires first
// stops the run; the other becomes a no-op.
//
// Run does no locking of its own. The owning engine serialises every call,
// including the tick and deadline callbacks, which the Run delivers through
// the hooks passed to Start.
package lifecycle
