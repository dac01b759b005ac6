// Package report renders the convergence of a solve from its checkpointed
// iterates.
package report

import (
	"errors"
	"fmt"

	"github.com/uranc/slmea/checkpoint"
	"github.com/uranc/slmea/nlp"
)

var (
	// ErrEmptyTrace indicates a trace without iterates.
	ErrEmptyTrace = errors.New("report: trace has no iterates")
	// ErrIterateLength indicates an iterate of the wrong problem.
	ErrIterateLength = errors.New("report: iterate length does not match problem")
)

// Point is one evaluated iterate.
type Point struct {
	Iter         int
	Objective    float64
	MaxViolation float64
}

// Trace is the objective and feasibility history of one solve.
type Trace struct {
	Title  string
	Points []Point
}

// NewTrace evaluates every iterate against p.
func NewTrace(title string, p *nlp.Problem, iterates []checkpoint.Iterate) (*Trace, error) {
	if len(iterates) == 0 {
		return nil, ErrEmptyTrace
	}
	tr := &Trace{Title: title, Points: make([]Point, 0, len(iterates))}
	for _, it := range iterates {
		if len(it.X) != p.N() {
			return nil, fmt.Errorf("%w: iteration %d has %d entries, want %d", ErrIterateLength, it.Iter, len(it.X), p.N())
		}
		tr.Points = append(tr.Points, Point{
			Iter:         it.Iter,
			Objective:    p.Objective.Eval(it.X),
			MaxViolation: p.MaxViolation(it.X),
		})
	}
	return tr, nil
}

// Last returns the final point.
func (t *Trace) Last() Point {
	return t.Points[len(t.Points)-1]
}
