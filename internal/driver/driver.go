package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/bepsel/internal/bep"
	"github.com/roach88/bepsel/internal/selector"
	"github.com/roach88/bepsel/internal/store"
)

// ErrStopped is returned by Feed when the driver stopped accepting events
// before the input was exhausted.
var ErrStopped = errors.New("driver: stopped")

// DefaultStream names the event stream when none is configured.
const DefaultStream = "default"

// ArtifactSink receives every emitted artifact. *store.Store implements it.
type ArtifactSink interface {
	WriteArtifact(ctx context.Context, rec store.ArtifactRecord) error
}

// CheckpointStore persists and restores serialized selector state.
// *store.Store implements it.
type CheckpointStore interface {
	BeginRun(ctx context.Context, run store.Run) error
	WriteCheckpoint(ctx context.Context, cp store.CheckpointRecord) (int64, error)
	LatestCheckpoint(ctx context.Context, stream string) (store.CheckpointRecord, bool, error)
}

// Stats is a point-in-time view of driver progress.
type Stats struct {
	RunID       string `json:"run_id"`
	Stream      string `json:"stream"`
	Processed   int64  `json:"processed"`
	Emitted     int64  `json:"emitted"`
	Checkpoints int64  `json:"checkpoints"`
	Errors      int64  `json:"errors"`
	Queued      int    `json:"queued"`

	// Selector is set when the selector exposes correlation stats.
	Selector *selector.Stats `json:"selector,omitempty"`
}

// statser is implemented by selectors that report correlation stats.
type statser interface {
	Stats() selector.Stats
}

// Driver is the single-writer loop around a Selector.
//
// Thread-safety model:
//   - Enqueue, Close: safe from any goroutine
//   - Resume, Run, Checkpoint: call from the one goroutine that owns the loop
//   - Stats: safe to call after Run returns; racy while Run is active
type Driver struct {
	sel         selector.Selector
	stats       statser
	stream      string
	runID       string
	runIDGen    RunIDGenerator
	clock       SeqClock
	queue       *eventQueue
	sink        ArtifactSink
	checkpoints CheckpointStore
	every       int
	hooks       Hooks

	started         bool
	sinceCheckpoint int
	processed       int64
	emitted         int64
	checkpointed    int64
	errs            int64
	resumedFrom     int64
}

// Option configures a Driver.
type Option func(*Driver)

// WithStream names the event stream checkpoints are filed under.
func WithStream(stream string) Option {
	return func(d *Driver) {
		if stream != "" {
			d.stream = stream
		}
	}
}

// WithRunIDGenerator overrides the UUIDv7 run id generator.
func WithRunIDGenerator(gen RunIDGenerator) Option {
	return func(d *Driver) {
		d.runIDGen = gen
	}
}

// WithClock overrides the logical clock.
func WithClock(c SeqClock) Option {
	return func(d *Driver) {
		d.clock = c
	}
}

// WithSink sends emitted artifacts to sink.
func WithSink(sink ArtifactSink) Option {
	return func(d *Driver) {
		d.sink = sink
	}
}

// WithCheckpointStore enables Resume and periodic checkpoints.
func WithCheckpointStore(cs CheckpointStore) Option {
	return func(d *Driver) {
		d.checkpoints = cs
	}
}

// WithCheckpointEvery checkpoints after every n processed events.
// 0 checkpoints only when the queue is closed and drained.
func WithCheckpointEvery(n int) Option {
	return func(d *Driver) {
		if n >= 0 {
			d.every = n
		}
	}
}

// WithHooks installs observation callbacks.
func WithHooks(h Hooks) Option {
	return func(d *Driver) {
		d.hooks = d.hooks.merge(h)
	}
}

// New creates a Driver around sel. The driver does not take ownership;
// wrap sel with selector.Own and Close it yourself if needed.
func New(sel selector.Selector, opts ...Option) *Driver {
	d := &Driver{
		sel:      sel,
		stream:   DefaultStream,
		runIDGen: UUIDv7Generator{},
		clock:    NewClock(),
		queue:    newEventQueue(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.runID = d.runIDGen.Generate()
	if st, ok := unwrapStats(sel); ok {
		d.stats = st
	}
	return d
}

// unwrapStats finds correlation stats on sel, looking through Any wrappers.
func unwrapStats(sel selector.Selector) (statser, bool) {
	for sel != nil {
		if st, ok := sel.(statser); ok {
			return st, true
		}
		u, ok := sel.(interface{ Unwrap() selector.Selector })
		if !ok {
			return nil, false
		}
		sel = u.Unwrap()
	}
	return nil, false
}

// RunID returns the id of this run.
func (d *Driver) RunID() string {
	return d.runID
}

// Stream returns the stream name.
func (d *Driver) Stream() string {
	return d.stream
}

// Enqueue submits an event. Returns false once the driver is closed.
func (d *Driver) Enqueue(ev bep.Event) bool {
	return d.queue.Enqueue(ev)
}

// Close signals that no more events will be enqueued. Run drains what is
// queued, writes a final checkpoint and returns nil.
func (d *Driver) Close() {
	d.queue.Close()
}

// Feed enqueues every event from dec, then closes the driver.
// Returns ErrStopped if the driver closed first.
func (d *Driver) Feed(ctx context.Context, dec *bep.Decoder) error {
	defer d.Close()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			slog.Debug("event stream exhausted", "stream", d.stream, "decoded", dec.Count())
			return nil
		}
		if err != nil {
			return err
		}
		if !d.Enqueue(ev) {
			return ErrStopped
		}
	}
}

// Resume records the run and restores the latest checkpoint for the
// stream, if any. Must be called before Run. Returns whether state was
// restored.
func (d *Driver) Resume(ctx context.Context) (bool, error) {
	if d.started {
		return false, errors.New("driver: Resume called after Run")
	}
	if d.checkpoints == nil {
		return false, errors.New("driver: Resume requires a checkpoint store")
	}

	cp, found, err := d.checkpoints.LatestCheckpoint(ctx, d.stream)
	if err != nil {
		return false, fmt.Errorf("resume %s: %w", d.stream, err)
	}
	if !found {
		slog.Info("no checkpoint to resume", "stream", d.stream)
		return false, d.beginRun(ctx)
	}
	if err := d.sel.Deserialize(cp.Data); err != nil {
		return false, fmt.Errorf("resume %s from checkpoint %d: %w", d.stream, cp.ID, err)
	}
	d.resumedFrom = cp.ID
	if d.stats != nil && d.hooks.OnSelectorStats != nil {
		d.hooks.OnSelectorStats(d.stats.Stats())
	}

	slog.Info("resumed from checkpoint",
		"stream", d.stream,
		"checkpoint_id", cp.ID,
		"checkpoint_run", cp.RunID,
		"checkpoint_seq", cp.Seq,
	)
	return true, d.beginRun(ctx)
}

func (d *Driver) beginRun(ctx context.Context) error {
	d.started = true
	if d.checkpoints == nil {
		return nil
	}
	run := store.Run{ID: d.runID, Stream: d.stream, ResumedFrom: d.resumedFrom}
	if err := d.checkpoints.BeginRun(ctx, run); err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// Run consumes events until the queue is closed and drained, or ctx is
// cancelled. Must be called from exactly one goroutine.
//
// On close it writes a final checkpoint and returns nil. On cancellation it
// returns ctx.Err() without checkpointing; the caller may call Checkpoint.
func (d *Driver) Run(ctx context.Context) error {
	if !d.started {
		if err := d.beginRun(ctx); err != nil {
			return err
		}
	}
	slog.Info("driver starting", "stream", d.stream, "run_id", d.runID)

	for {
		if ev, ok := d.queue.TryDequeue(); ok {
			d.process(ctx, ev)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("driver stopping: context cancelled", "processed", d.processed)
			d.queue.Close()
			return ctx.Err()

		case <-d.queue.Wait():
			if d.queue.Closed() && d.queue.Len() == 0 {
				if d.sinceCheckpoint > 0 || d.checkpointed == 0 {
					if err := d.Checkpoint(ctx); err != nil {
						d.fail("final checkpoint", err)
					}
				}
				slog.Info("driver stopping: queue closed",
					"processed", d.processed,
					"emitted", d.emitted,
				)
				return nil
			}
		}
	}
}

// process runs one event through the selector.
// Called only from the Run goroutine.
func (d *Driver) process(ctx context.Context, ev bep.Event) {
	seq := d.clock.Next()
	d.processed++
	d.sinceCheckpoint++

	art, ok := d.sel.Select(ev)

	slog.Debug("event processed",
		"seq", seq,
		"kind", ev.Kind().String(),
		"event", ev.Summary(),
		"artifact", ok,
	)
	if d.hooks.OnEvent != nil {
		d.hooks.OnEvent(ev.Kind(), ok)
	}

	if ok {
		d.emitted++
		if d.hooks.OnArtifact != nil {
			d.hooks.OnArtifact(seq, art)
		}
		if d.sink != nil {
			rec := store.ArtifactRecord{RunID: d.runID, Seq: seq, Artifact: art}
			if err := d.sink.WriteArtifact(ctx, rec); err != nil {
				d.fail("write artifact", err, "seq", seq, "label", art.Label)
			}
		}
	}

	if d.stats != nil && d.hooks.OnSelectorStats != nil {
		d.hooks.OnSelectorStats(d.stats.Stats())
	}

	if d.every > 0 && d.sinceCheckpoint >= d.every {
		if err := d.Checkpoint(ctx); err != nil {
			d.fail("checkpoint", err, "seq", seq)
		}
	}
}

// Checkpoint serializes the selector and stores it. A selector with nothing
// to checkpoint, or a driver without a store, is a no-op. A failed write
// leaves the events since the last checkpoint counted, so the next periodic
// or final checkpoint retries.
func (d *Driver) Checkpoint(ctx context.Context) error {
	if d.checkpoints == nil {
		d.sinceCheckpoint = 0
		return nil
	}

	data, err := d.sel.Serialize()
	if err != nil {
		return fmt.Errorf("serialize: %w", err)
	}
	if data == nil {
		slog.Debug("nothing to checkpoint", "stream", d.stream)
		d.sinceCheckpoint = 0
		return nil
	}

	seq := d.clock.Current()
	id, err := d.checkpoints.WriteCheckpoint(ctx, store.CheckpointRecord{
		RunID:  d.runID,
		Stream: d.stream,
		Seq:    seq,
		Data:   data,
	})
	if err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	d.sinceCheckpoint = 0
	d.checkpointed++
	if d.hooks.OnCheckpoint != nil {
		d.hooks.OnCheckpoint(len(data))
	}

	slog.Info("checkpoint written",
		"stream", d.stream,
		"checkpoint_id", id,
		"seq", seq,
		"bytes", len(data),
	)
	return nil
}

// fail logs a non-fatal error with context and counts it.
func (d *Driver) fail(op string, err error, attrs ...any) {
	d.errs++
	if d.hooks.OnError != nil {
		d.hooks.OnError(op)
	}
	args := append([]any{"op", op, "error", err, "stream", d.stream, "run_id", d.runID}, attrs...)
	slog.Error("driver operation failed", args...)
}

// Stats returns a snapshot of driver progress.
func (d *Driver) Stats() Stats {
	s := Stats{
		RunID:       d.runID,
		Stream:      d.stream,
		Processed:   d.processed,
		Emitted:     d.emitted,
		Checkpoints: d.checkpointed,
		Errors:      d.errs,
		Queued:      d.queue.Len(),
	}
	if d.stats != nil {
		st := d.stats.Stats()
		s.Selector = &st
	}
	return s
}
