package nlp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/uranc/slmea/expr"
	"github.com/uranc/slmea/monitoring"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// ErrUnknownMethod indicates an unsupported HessianApproximation.
var ErrUnknownMethod = errors.New("nlp: unknown hessian approximation")

// Extra keys understood by AugmentedLagrangian.
const (
	ExtraInnerMaxIter = "inner_max_iter"
	ExtraPenalty      = "penalty"
	ExtraMaxPenalty   = "max_penalty"
	ExtraBoundPush    = "bound_push"
)

// AugmentedLagrangian is a Powell-Hestenes-Rockafellar augmented Lagrangian
// method. Each outer iteration minimizes the augmented Lagrangian with a
// gonum/optimize quasi-Newton method, then updates multipliers and grows the
// penalty, up to a cap, when the violation did not shrink enough. Variable
// bounds are handled as additional one-sided constraints; the start is pushed
// strictly inside them and every inner solution is projected back onto them.
type AugmentedLagrangian struct{}

// term is one scalar constraint in normalized form: g(x) - Offset compared
// against 0, either as an equality or as <= 0 after multiplying by Sign.
type term struct {
	g      expr.Expr
	offset float64
	sign   float64
	eq     bool
}

func (t term) value(x []float64) float64 {
	return t.sign * (t.g.Eval(x) - t.offset)
}

func normalize(p *Problem) []term {
	var res []term
	add := func(g expr.Expr, lo, hi float64) {
		switch {
		case lo == hi:
			res = append(res, term{g: g, offset: lo, sign: 1, eq: true})
		default:
			if !math.IsInf(hi, 1) {
				res = append(res, term{g: g, offset: hi, sign: 1})
			}
			if !math.IsInf(lo, -1) {
				res = append(res, term{g: g, offset: lo, sign: -1})
			}
		}
	}
	for i, c := range p.Constraints {
		add(c, p.Lower[i], p.Upper[i])
	}
	for j := range p.X0 {
		add(expr.Var(j), p.VarLower[j], p.VarUpper[j])
	}
	return res
}

func method(name string) (optimize.Method, error) {
	switch name {
	case "limited-memory", "lbfgs":
		return &optimize.LBFGS{}, nil
	case "bfgs", "exact":
		return &optimize.BFGS{}, nil
	case "gradient-descent":
		return &optimize.GradientDescent{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, name)
}

func extraInt(extra map[string]string, key string, def int) int {
	if v, ok := extra[key]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
		monitoring.Logf("[nlp] ignoring %s=%q", key, v)
	}
	return def
}

func extraFloat(extra map[string]string, key string, def float64) float64 {
	if v, ok := extra[key]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
		monitoring.Logf("[nlp] ignoring %s=%q", key, v)
	}
	return def
}

// progress counts inner iterations and aborts the inner solve on cancellation.
type progress struct {
	ctx   context.Context
	iters int
}

func (r *progress) Init() error { return nil }

func (r *progress) Record(_ *optimize.Location, op optimize.Operation, _ *optimize.Stats) error {
	if op&optimize.MajorIteration != 0 {
		r.iters++
	}
	return r.ctx.Err()
}

// Solve implements Solver.
func (AugmentedLagrangian) Solve(ctx context.Context, p *Problem, opts Options, cb Callback) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	opts = opts.WithDefaults()
	if _, err := method(opts.HessianApproximation); err != nil {
		return nil, err
	}
	innerMax := extraInt(opts.Extra, ExtraInnerMaxIter, 500)
	rho := extraFloat(opts.Extra, ExtraPenalty, 10)
	maxRho := math.Max(rho, extraFloat(opts.Extra, ExtraMaxPenalty, 1e8))
	push := extraFloat(opts.Extra, ExtraBoundPush, 1e-2)
	tol := opts.Tolerance

	terms := normalize(p)
	mult := make([]float64, len(terms))
	vals := make([]float64, len(terms))
	x := pushInside(p.X0, p.VarLower, p.VarUpper, push)

	lagrangian := optimize.Problem{
		Func: func(x []float64) float64 {
			f := p.Objective.Eval(x)
			for i, t := range terms {
				c := t.value(x)
				if t.eq {
					f += mult[i]*c + rho/2*c*c
					continue
				}
				s := math.Max(0, mult[i]+rho*c)
				f += (s*s - mult[i]*mult[i]) / (2 * rho)
			}
			return f
		},
		Grad: func(grad, x []float64) {
			for i := range grad {
				grad[i] = 0
			}
			p.Objective.AddGradient(x, 1, grad)
			for i, t := range terms {
				c := t.value(x)
				var w float64
				if t.eq {
					w = mult[i] + rho*c
				} else {
					w = math.Max(0, mult[i]+rho*c)
				}
				if w != 0 {
					t.g.AddGradient(x, w*t.sign, grad)
				}
			}
		},
	}

	res := &Result{Status: Failed}
	viol := math.Inf(1)
	prevF := p.Objective.Eval(x)
	inner := 0
	for iter := 1; iter <= opts.MaxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, _ := method(opts.HessianApproximation)
		rec := &progress{ctx: ctx}
		settings := &optimize.Settings{
			MajorIterations:   innerMax,
			GradientThreshold: tol / 100,
			Recorder:          rec,
		}
		out, err := optimize.Minimize(lagrangian, x, settings, m)
		inner += rec.iters
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		if out != nil && allFinite(out.X) {
			copy(x, out.X)
		}
		project(x, p.VarLower, p.VarUpper)
		if err != nil {
			monitoring.Logf("[nlp] outer %d: inner solve stopped: %v", iter, err)
		}

		for i, t := range terms {
			vals[i] = t.value(x)
		}
		next := 0.
		for i, t := range terms {
			if t.eq {
				next = math.Max(next, math.Abs(vals[i]))
				mult[i] += rho * vals[i]
			} else {
				next = math.Max(next, math.Abs(math.Max(vals[i], -mult[i]/rho)))
				mult[i] = math.Max(0, mult[i]+rho*vals[i])
			}
		}

		f := p.Objective.Eval(x)
		res.Iterations = iter
		if iter%opts.CallbackEvery == 0 && cb != nil {
			if err := cb(iter, append([]float64(nil), x...)); err != nil {
				return nil, fmt.Errorf("nlp: callback at iteration %d: %w", iter, err)
			}
		}

		feasible := p.MaxViolation(x) <= tol
		if feasible && (len(terms) == 0 || math.Abs(f-prevF) <= tol*(1+math.Abs(f))) && next <= tol {
			res.Status = Success
			break
		}
		if next > 0.25*viol {
			rho = math.Min(10*rho, maxRho)
		}
		viol = math.Min(viol, next)
		prevF = f
	}

	res.X = x
	res.Objective = p.Objective.Eval(x)
	res.MaxViolation = p.MaxViolation(x)
	if res.Status == Success {
		res.Message = fmt.Sprintf("converged after %d outer and %d inner iterations", res.Iterations, inner)
	} else {
		res.Message = fmt.Sprintf("stopped after %d outer iterations with violation %g", res.Iterations, res.MaxViolation)
	}
	monitoring.Logf("[nlp] %s: f=%g violation=%g (%s)", res.Status, res.Objective, res.MaxViolation, res.Message)
	return res, nil
}

// pushInside returns a copy of x0 moved at least k*max(1, |bound|) inside
// each finite bound, or to the middle of intervals narrower than twice that.
// Bilinear constraints have no gradient at a start where both factors are 0.
func pushInside(x0, lo, hi []float64, k float64) []float64 {
	x := append([]float64(nil), x0...)
	for j := range x {
		l, u := lo[j], hi[j]
		if l == u {
			x[j] = l
			continue
		}
		var pl, pu float64
		if !math.IsInf(l, -1) {
			pl = k * math.Max(1, math.Abs(l))
		}
		if !math.IsInf(u, 1) {
			pu = k * math.Max(1, math.Abs(u))
		}
		if !math.IsInf(l, -1) && !math.IsInf(u, 1) {
			pl = math.Min(pl, (u-l)/2)
			pu = math.Min(pu, (u-l)/2)
		}
		if !math.IsInf(l, -1) && x[j] < l+pl {
			x[j] = l + pl
		}
		if !math.IsInf(u, 1) && x[j] > u-pu {
			x[j] = u - pu
		}
	}
	return x
}

// project clamps x onto [lo, hi] in place.
func project(x, lo, hi []float64) {
	for j := range x {
		x[j] = math.Min(math.Max(x[j], lo[j]), hi[j])
	}
}

func allFinite(x []float64) bool {
	return !floats.HasNaN(x) && !math.IsInf(floats.Sum(x), 0)
}
