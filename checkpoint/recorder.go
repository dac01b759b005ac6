package checkpoint

import (
	"fmt"

	"github.com/uranc/slmea/monitoring"
)

// Sink receives flushed batches. A returned error aborts the solve.
type Sink interface {
	WriteBatch(b Batch) error
}

// Recorder buffers iterates and flushes them to a Sink.
type Recorder struct {
	sink       Sink
	flushEvery int
	sessionID  string
	runID      string
	buf        []Iterate
	calls      int
	flushed    int
}

// NewRecorder returns a Recorder flushing every flushEvery callback
// invocations into batches tagged with sessionID and runID. flushEvery below
// 1 is treated as 1.
func NewRecorder(sink Sink, flushEvery int, sessionID, runID string) *Recorder {
	if flushEvery < 1 {
		flushEvery = 1
	}
	return &Recorder{sink: sink, flushEvery: flushEvery, sessionID: sessionID, runID: runID}
}

// Callback records one iterate. It matches nlp.Callback.
func (r *Recorder) Callback(iter int, x []float64) error {
	r.buf = append(r.buf, Iterate{Iter: iter, X: append([]float64(nil), x...)})
	r.calls++
	if r.calls%r.flushEvery == 0 {
		return r.flush()
	}
	return nil
}

// Close flushes whatever is still buffered.
func (r *Recorder) Close() error {
	if len(r.buf) == 0 {
		return nil
	}
	return r.flush()
}

// Pending returns the number of buffered iterates.
func (r *Recorder) Pending() int {
	return len(r.buf)
}

// Flushed returns the number of batches written.
func (r *Recorder) Flushed() int {
	return r.flushed
}

func (r *Recorder) flush() error {
	b := Batch{SessionID: r.sessionID, RunID: r.runID, Iterates: r.buf}
	if err := r.sink.WriteBatch(b); err != nil {
		return fmt.Errorf("checkpoint: flush iterations %d-%d: %w", b.First(), b.Last(), err)
	}
	monitoring.Logf("[checkpoint] flushed iterations %d-%d", b.First(), b.Last())
	r.buf = nil
	r.flushed++
	return nil
}
