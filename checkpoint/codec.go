// Package checkpoint persists solver iterates while a solve runs and the final
// result once it ends.
//
// A Recorder buffers (iteration, x) pairs handed to it by the solver callback
// and flushes them as one Batch to a Sink every FlushEvery invocations. Sinks
// write batches as gob+gzip blobs either to files or to a SQLite database.
package checkpoint

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"errors"
	"fmt"
)

// Iterate is one solver iterate.
type Iterate struct {
	Iter int
	X    []float64
}

// Batch is a run of consecutive iterates flushed together. RunID tells apart
// repeated solves of one session.
type Batch struct {
	SessionID string
	RunID     string
	Iterates  []Iterate
}

// First returns the first iteration index in the batch.
func (b Batch) First() int {
	if len(b.Iterates) == 0 {
		return 0
	}
	return b.Iterates[0].Iter
}

// Last returns the last iteration index in the batch.
func (b Batch) Last() int {
	if len(b.Iterates) == 0 {
		return 0
	}
	return b.Iterates[len(b.Iterates)-1].Iter
}

var errEmptyBlob = errors.New("checkpoint: empty blob")

// encode compresses v using gob encoding and gzip compression.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := gob.NewEncoder(gz)
	if err := enc.Encode(v); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decode decompresses and decodes a gob+gzip blob into v.
func decode(blob []byte, v any) error {
	if len(blob) == 0 {
		return errEmptyBlob
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()
	if err := gob.NewDecoder(gz).Decode(v); err != nil {
		return fmt.Errorf("failed to decode blob: %w", err)
	}
	return nil
}
