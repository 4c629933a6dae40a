// Package snapshot serves the current value of the novaos counters.
//
// GET /metrics reads every counter concurrently and always answers 200:
// a counter whose key is absent, unparsable or unreachable reports its
// fallback default instead. The substitution is recorded in a typed
// [Reading] and counted in telemetry so it is never silent internally.
//
// POST /counters/{name}/incr is the write path producers use to bump a
// scalar counter. It is kept apart from the read path.
package snapshot
