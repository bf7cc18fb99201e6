// Package session implements the orchestration core for live agent work: a
// concurrency-safe registry of running sessions, the per-session event pump
// that drains adapter output into the log store and publish channel, the
// pending-question gate that pauses a run until a human answers, and the
// sweeper that evicts idle sessions.
//
// One Registry instance exists per variant (agent attempt, background shell,
// inline edit), constructed and owned by the composition root. The registry
// holds no durable state: everything observable lives in the log store and
// on the event bus, and sessions are removed the moment they reach a
// terminal state.
package session
