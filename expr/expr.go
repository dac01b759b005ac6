// Package expr is the small symbolic layer the formulation is written in.
//
// Every expression is a scalar function of the flat decision vector x. Two
// forms cover all formulations: sparse polynomials (affine data fidelity,
// quadratic slack bounds, bilinear mask products, cubic background
// suppression) and the Euclidean norm of a list of polynomials (total
// variation). Both evaluate their value and their exact gradient, which is
// all a first-order NLP backend needs.
package expr

import (
	"math"
	"sort"
)

// Expr is a scalar expression over the flat decision vector.
type Expr interface {
	// Eval returns the value at x.
	Eval(x []float64) float64
	// AddGradient adds scale times the gradient at x into grad.
	AddGradient(x []float64, scale float64, grad []float64)
	// Vars returns the distinct variable indices the expression reads, ascending.
	Vars() []int
	// Degree returns the polynomial degree, or -1 when the expression is not polynomial.
	Degree() int
}

// Monomial is Coef times the product of x[v] over Vars. Repeated indices are powers.
type Monomial struct {
	Coef float64
	Vars []int
}

func (m Monomial) eval(x []float64) float64 {
	res := m.Coef
	for _, v := range m.Vars {
		res *= x[v]
	}
	return res
}

func (m Monomial) addGradient(x []float64, scale float64, grad []float64) {
	for p, vp := range m.Vars {
		d := scale * m.Coef
		for q, vq := range m.Vars {
			if q != p {
				d *= x[vq]
			}
		}
		grad[vp] += d
	}
}

func (m Monomial) key() string {
	b := make([]byte, 0, 8*len(m.Vars))
	for _, v := range m.Vars {
		b = append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24), byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
	}
	return string(b)
}

// Poly is a sparse polynomial Const + sum of Terms.
type Poly struct {
	Const float64
	Terms []Monomial
}

// Var returns the polynomial x[i].
func Var(i int) Poly {
	return Poly{Terms: []Monomial{{Coef: 1, Vars: []int{i}}}}
}

// Const returns the constant polynomial c.
func Const(c float64) Poly {
	return Poly{Const: c}
}

// Term returns coef times the product of the given variables.
func Term(coef float64, vars ...int) Poly {
	vs := append([]int(nil), vars...)
	sort.Ints(vs)
	return Poly{Terms: []Monomial{{Coef: coef, Vars: vs}}}
}

// Add returns p + q.
func (p Poly) Add(q Poly) Poly {
	terms := make([]Monomial, 0, len(p.Terms)+len(q.Terms))
	terms = append(terms, p.Terms...)
	terms = append(terms, q.Terms...)
	return Poly{Const: p.Const + q.Const, Terms: terms}.Compact()
}

// Sub returns p - q.
func (p Poly) Sub(q Poly) Poly {
	return p.Add(q.Scale(-1))
}

// AddConst returns p + c.
func (p Poly) AddConst(c float64) Poly {
	return Poly{Const: p.Const + c, Terms: p.Terms}
}

// Scale returns c * p.
func (p Poly) Scale(c float64) Poly {
	terms := make([]Monomial, len(p.Terms))
	for i, t := range p.Terms {
		terms[i] = Monomial{Coef: c * t.Coef, Vars: t.Vars}
	}
	return Poly{Const: c * p.Const, Terms: terms}.Compact()
}

// Mul returns p * q.
func (p Poly) Mul(q Poly) Poly {
	terms := make([]Monomial, 0, (len(p.Terms)+1)*(len(q.Terms)+1))
	for _, a := range p.Terms {
		for _, b := range q.Terms {
			vs := make([]int, 0, len(a.Vars)+len(b.Vars))
			vs = append(vs, a.Vars...)
			vs = append(vs, b.Vars...)
			sort.Ints(vs)
			terms = append(terms, Monomial{Coef: a.Coef * b.Coef, Vars: vs})
		}
		if q.Const != 0 {
			terms = append(terms, Monomial{Coef: a.Coef * q.Const, Vars: a.Vars})
		}
	}
	if p.Const != 0 {
		for _, b := range q.Terms {
			terms = append(terms, Monomial{Coef: p.Const * b.Coef, Vars: b.Vars})
		}
	}
	return Poly{Const: p.Const * q.Const, Terms: terms}.Compact()
}

// Square returns p * p.
func (p Poly) Square() Poly {
	return p.Mul(p)
}

// Compact merges like monomials and drops zero coefficients. Term order is
// the order of first appearance.
func (p Poly) Compact() Poly {
	if len(p.Terms) < 2 {
		if len(p.Terms) == 1 && p.Terms[0].Coef == 0 {
			return Poly{Const: p.Const}
		}
		return p
	}
	pos := make(map[string]int, len(p.Terms))
	terms := make([]Monomial, 0, len(p.Terms))
	for _, t := range p.Terms {
		k := t.key()
		if i, ok := pos[k]; ok {
			terms[i].Coef += t.Coef
			continue
		}
		pos[k] = len(terms)
		terms = append(terms, t)
	}
	out := terms[:0]
	for _, t := range terms {
		if t.Coef != 0 {
			out = append(out, t)
		}
	}
	return Poly{Const: p.Const, Terms: out}
}

// Sum adds polynomials.
func Sum(ps ...Poly) Poly {
	var res Poly
	n := 0
	for _, p := range ps {
		n += len(p.Terms)
	}
	res.Terms = make([]Monomial, 0, n)
	for _, p := range ps {
		res.Const += p.Const
		res.Terms = append(res.Terms, p.Terms...)
	}
	return res.Compact()
}

// Dot returns sum_i coefs[i] * ps[i].
func Dot(coefs []float64, ps []Poly) Poly {
	if len(coefs) != len(ps) {
		panic("expr: Dot length mismatch")
	}
	scaled := make([]Poly, 0, len(ps))
	for i, p := range ps {
		if coefs[i] != 0 {
			scaled = append(scaled, p.Scale(coefs[i]))
		}
	}
	return Sum(scaled...)
}

// Eval implements Expr.
func (p Poly) Eval(x []float64) float64 {
	res := p.Const
	for _, t := range p.Terms {
		res += t.eval(x)
	}
	return res
}

// AddGradient implements Expr.
func (p Poly) AddGradient(x []float64, scale float64, grad []float64) {
	for _, t := range p.Terms {
		t.addGradient(x, scale, grad)
	}
}

// Vars implements Expr.
func (p Poly) Vars() []int {
	seen := make(map[int]struct{})
	for _, t := range p.Terms {
		for _, v := range t.Vars {
			seen[v] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// Degree implements Expr.
func (p Poly) Degree() int {
	d := 0
	for _, t := range p.Terms {
		if len(t.Vars) > d {
			d = len(t.Vars)
		}
	}
	return d
}

// Norm is the Euclidean norm of its arguments, sqrt(sum Args[i]^2).
type Norm struct {
	Args []Poly
}

// NormOf returns the Euclidean norm expression of ps.
func NormOf(ps ...Poly) Norm {
	return Norm{Args: ps}
}

// Eval implements Expr.
func (n Norm) Eval(x []float64) float64 {
	var ss float64
	for _, a := range n.Args {
		v := a.Eval(x)
		ss += v * v
	}
	return math.Sqrt(ss)
}

// AddGradient implements Expr. At a zero norm the zero subgradient is used.
func (n Norm) AddGradient(x []float64, scale float64, grad []float64) {
	vals := make([]float64, len(n.Args))
	var ss float64
	for i, a := range n.Args {
		vals[i] = a.Eval(x)
		ss += vals[i] * vals[i]
	}
	if ss == 0 {
		return
	}
	r := math.Sqrt(ss)
	for i, a := range n.Args {
		if vals[i] != 0 {
			a.AddGradient(x, scale*vals[i]/r, grad)
		}
	}
}

// Vars implements Expr.
func (n Norm) Vars() []int {
	seen := make(map[int]struct{})
	for _, a := range n.Args {
		for _, v := range a.Vars() {
			seen[v] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// Degree implements Expr.
func (n Norm) Degree() int {
	return -1
}

func sortedKeys(m map[int]struct{}) []int {
	res := make([]int, 0, len(m))
	for v := range m {
		res = append(res, v)
	}
	sort.Ints(res)
	return res
}
