// Package driver feeds build events into a selector.Selector.
//
// The driver is the single writer around a selector, which holds no locks of
// its own. Producers Enqueue events from any goroutine; Run consumes them in
// FIFO order on exactly one goroutine, so the order of Enqueue calls is the
// order the selector sees.
//
// Event Processing Flow:
//  1. Events enqueued to the FIFO queue
//  2. Run dequeues one event and stamps it with the next logical seq
//  3. Selector.Select runs; an artifact goes to the ArtifactSink
//  4. Every N events (and when the queue closes) the selector is serialized
//     and handed to the CheckpointStore
//
// Sink and checkpoint failures are logged and counted, then processing
// continues: losing one artifact row is preferable to stalling the build.
// A failed Resume is fatal, since continuing would re-emit spent file sets.
//
// Ordering uses the logical seq from the driver's clock, never wall time.
package driver
