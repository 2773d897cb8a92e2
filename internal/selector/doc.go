// Package selector extracts build artifacts from a stream of build events.
//
// A build event stream announces a finished target with a TargetCompleted
// event that names its outputs only by file set id, and carries the files
// for each id in a separate NamedSet event. The two may arrive in either
// order and interleaved with events for other targets.
//
// ARCHITECTURE:
//
// Selector is the capability: Select one event at a time, and Serialize or
// Deserialize buffered state for checkpointing. AspectSelector is the
// correlating implementation. Any holds some Selector, owned or borrowed,
// and forwards to it so drivers do not depend on the concrete strategy.
//
// Correlation state per file set id:
//
//	pending   target seen, files not yet seen (id -> label)
//	resolved  files seen, target not yet seen (id -> files)
//	consumed  artifact emitted; the id never resolves again
//
// An id is in at most one of the three at a time, and once consumed it
// never re-enters pending or resolved.
//
// CONCURRENCY:
//
// Selectors hold no internal synchronization. The order of Select calls is
// the total order of events; callers consuming from several producers must
// serialize calls themselves (see internal/driver). Serialize and
// Deserialize must not race with Select on the same instance.
package selector
