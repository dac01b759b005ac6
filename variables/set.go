// Package variables lays out the named decision variables of a formulation
// as contiguous blocks of one flat vector.
package variables

import (
	"errors"
	"fmt"
	"math"

	"github.com/uranc/slmea/errs"
	"github.com/uranc/slmea/expr"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrDuplicate indicates a second declaration of the same entry name.
	ErrDuplicate = errors.New("variables: entry already declared")
	// ErrUnknown indicates a lookup of an undeclared entry.
	ErrUnknown = errors.New("variables: unknown entry")
	// ErrShape indicates a non-positive dimension or an index outside the entry.
	ErrShape = fmt.Errorf("variables: invalid shape or index: %w", errs.ErrStructuralPrecondition)
	// ErrLength indicates a flat vector whose length differs from Len.
	ErrLength = fmt.Errorf("variables: vector length does not match the set: %w", errs.ErrStructuralPrecondition)
	// ErrBounds indicates a lower bound above its upper bound.
	ErrBounds = errors.New("variables: lower bound exceeds upper bound")
)

// Entry is one named block of the flat vector. Elements are stored row-major.
type Entry struct {
	Name   string
	Shape  []int
	Offset int
	lower  []float64
	upper  []float64
}

// Size returns the number of scalars in the entry.
func (e *Entry) Size() int {
	n := 1
	for _, d := range e.Shape {
		n *= d
	}
	return n
}

// Rows and Cols give the matrix view used by Unpack: the first dimension by
// the product of the rest. Scalars are 1 x 1.
func (e *Entry) Rows() int {
	if len(e.Shape) == 0 {
		return 1
	}
	return e.Shape[0]
}

func (e *Entry) Cols() int {
	return e.Size() / e.Rows()
}

// Set is an ordered partition of the flat decision vector.
type Set struct {
	entries []*Entry
	byName  map[string]*Entry
	n       int
}

// New returns an empty set.
func New() *Set {
	return &Set{byName: make(map[string]*Entry)}
}

// Declare appends an entry of the given shape. No dimensions declares a
// scalar. Bounds start at (-Inf, +Inf).
func (s *Set) Declare(name string, shape ...int) (*Entry, error) {
	if _, ok := s.byName[name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrDuplicate, name)
	}
	for _, d := range shape {
		if d <= 0 {
			return nil, fmt.Errorf("%w: %q has shape %v", ErrShape, name, shape)
		}
	}
	e := &Entry{Name: name, Shape: append([]int(nil), shape...), Offset: s.n}
	size := e.Size()
	e.lower = make([]float64, size)
	e.upper = make([]float64, size)
	for i := range e.lower {
		e.lower[i] = math.Inf(-1)
		e.upper[i] = math.Inf(1)
	}
	s.entries = append(s.entries, e)
	s.byName[name] = e
	s.n += size
	return e, nil
}

// Len returns the length of the flat vector.
func (s *Set) Len() int {
	return s.n
}

// Names returns the entry names in declaration order.
func (s *Set) Names() []string {
	res := make([]string, len(s.entries))
	for i, e := range s.entries {
		res[i] = e.Name
	}
	return res
}

// Has reports whether name is declared.
func (s *Set) Has(name string) bool {
	_, ok := s.byName[name]
	return ok
}

// Entry returns the named entry.
func (s *Set) Entry(name string) (*Entry, error) {
	e, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	return e, nil
}

// Index returns the flat position of element idx of the named entry.
func (s *Set) Index(name string, idx ...int) (int, error) {
	e, err := s.Entry(name)
	if err != nil {
		return 0, err
	}
	if len(idx) != len(e.Shape) {
		return 0, fmt.Errorf("%w: %q takes %d indices, got %d", ErrShape, name, len(e.Shape), len(idx))
	}
	flat := 0
	for p, i := range idx {
		if i < 0 || i >= e.Shape[p] {
			return 0, fmt.Errorf("%w: %q index %v outside %v", ErrShape, name, idx, e.Shape)
		}
		flat = flat*e.Shape[p] + i
	}
	return e.Offset + flat, nil
}

// MustIndex is Index for callers that already validated the layout.
func (s *Set) MustIndex(name string, idx ...int) int {
	i, err := s.Index(name, idx...)
	if err != nil {
		panic(err)
	}
	return i
}

// Var returns the polynomial x[Index(name, idx...)].
func (s *Set) Var(name string, idx ...int) expr.Poly {
	return expr.Var(s.MustIndex(name, idx...))
}

// SetBounds applies [lo, hi] to every element of the named entry.
func (s *Set) SetBounds(name string, lo, hi float64) error {
	e, err := s.Entry(name)
	if err != nil {
		return err
	}
	if lo > hi {
		return fmt.Errorf("%w: %q [%g, %g]", ErrBounds, name, lo, hi)
	}
	for i := range e.lower {
		e.lower[i], e.upper[i] = lo, hi
	}
	return nil
}

// SetBoundsAt applies [lo, hi] to a single element.
func (s *Set) SetBoundsAt(lo, hi float64, name string, idx ...int) error {
	i, err := s.Index(name, idx...)
	if err != nil {
		return err
	}
	if lo > hi {
		return fmt.Errorf("%w: %q%v [%g, %g]", ErrBounds, name, idx, lo, hi)
	}
	e := s.byName[name]
	e.lower[i-e.Offset], e.upper[i-e.Offset] = lo, hi
	return nil
}

// Bounds returns the flat lower and upper bound vectors.
func (s *Set) Bounds() (lower, upper []float64) {
	lower = make([]float64, 0, s.n)
	upper = make([]float64, 0, s.n)
	for _, e := range s.entries {
		lower = append(lower, e.lower...)
		upper = append(upper, e.upper...)
	}
	return lower, upper
}

// Zero returns an all-zero flat vector.
func (s *Set) Zero() []float64 {
	return make([]float64, s.n)
}

// Fill sets every element of the named entry in x to value.
func (s *Set) Fill(x []float64, name string, value float64) error {
	e, err := s.block(x, name)
	if err != nil {
		return err
	}
	for i := range e {
		e[i] = value
	}
	return nil
}

// Unpack copies the named block of x into a Rows x Cols matrix.
func (s *Set) Unpack(x []float64, name string) (*mat.Dense, error) {
	b, err := s.block(x, name)
	if err != nil {
		return nil, err
	}
	e := s.byName[name]
	return mat.NewDense(e.Rows(), e.Cols(), append([]float64(nil), b...)), nil
}

// UnpackAll unpacks every entry.
func (s *Set) UnpackAll(x []float64) (map[string]*mat.Dense, error) {
	res := make(map[string]*mat.Dense, len(s.entries))
	for _, e := range s.entries {
		m, err := s.Unpack(x, e.Name)
		if err != nil {
			return nil, err
		}
		res[e.Name] = m
	}
	return res, nil
}

// Pack writes a Rows x Cols matrix into the named block of x.
func (s *Set) Pack(x []float64, name string, values mat.Matrix) error {
	b, err := s.block(x, name)
	if err != nil {
		return err
	}
	e := s.byName[name]
	r, c := values.Dims()
	if r != e.Rows() || c != e.Cols() {
		return fmt.Errorf("%w: %q is %d x %d, got %d x %d", ErrShape, name, e.Rows(), e.Cols(), r, c)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			b[i*c+j] = values.At(i, j)
		}
	}
	return nil
}

// block returns the sub-slice of x holding the named entry.
func (s *Set) block(x []float64, name string) ([]float64, error) {
	if len(x) != s.n {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrLength, len(x), s.n)
	}
	e, err := s.Entry(name)
	if err != nil {
		return nil, err
	}
	return x[e.Offset : e.Offset+e.Size()], nil
}
