// Package fit estimates diffusion parameters from MSD series. The fitting
// chain is an explicit three-outcome state machine: nonlinear power-law
// fit, then a closed-form linear fallback, then failure. Each outcome
// records which model produced the reported parameters, since D and α
// carry different meaning when α is fixed at 1.
package fit

import (
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// Method identifies which model produced a fit result.
type Method string

const (
	MethodPowerLaw Method = "power_law" // MSD(t) = 4·D·t^α, nonlinear
	MethodLinear   Method = "linear"    // MSD(t) = 4·D·t, α fixed at 1
	MethodFailed   Method = "failed"    // fewer than 2 usable lag points
)

// Result holds the fitted parameters for one track.
type Result struct {
	D      float64 // diffusion coefficient, µm²/s
	Alpha  float64 // anomalous exponent
	R2     float64 // fit quality against the chosen model
	Method Method
}

// Options bound the nonlinear solver and define the validity window for
// its parameters. A converged fit whose parameters escape the window is
// treated as non-convergence and falls back to the linear model rather
// than reporting a nonsensical extrapolation.
type Options struct {
	// MaxIterations caps the Nelder–Mead major iterations so a fit always
	// terminates in bounded time.
	MaxIterations int

	// AlphaMin and AlphaMax delimit acceptable anomalous exponents.
	// Values outside (0, 2] are not physical for this motion model.
	AlphaMin float64
	AlphaMax float64

	// DMax is the largest acceptable diffusion coefficient (µm²/s).
	DMax float64
}

// DefaultOptions returns the solver bounds used throughout the pipeline:
// α ∈ [0.01, 2.0], D ≤ 1e4 µm²/s, 200 iterations.
func DefaultOptions() Options {
	return Options{
		MaxIterations: 200,
		AlphaMin:      0.01,
		AlphaMax:      2.0,
		DMax:          1e4,
	}
}

// Fit runs the fallback chain on an MSD series. lagTimes holds the lag
// times in seconds (lag index × time step) and values the MSD in µm²;
// the slices must be the same length.
//
// With fewer than 2 points the result is MethodFailed with R² = −Inf.
// Otherwise the nonlinear power-law fit is attempted first and the linear
// model is used when the solver errors, fails to improve, or lands outside
// the validity window in Options.
func Fit(lagTimes, values []float64, opts Options) Result {
	if len(lagTimes) != len(values) {
		panic("fit: lagTimes and values length mismatch")
	}
	if len(values) < 2 {
		return Result{R2: math.Inf(-1), Method: MethodFailed}
	}

	if d, alpha, ok := powerLawFit(lagTimes, values, opts); ok {
		pred := make([]float64, len(values))
		for i, t := range lagTimes {
			pred[i] = 4 * d * math.Pow(t, alpha)
		}
		return Result{D: d, Alpha: alpha, R2: RSquared(pred, values), Method: MethodPowerLaw}
	}

	d := linearFit(lagTimes, values)
	pred := make([]float64, len(values))
	for i, t := range lagTimes {
		pred[i] = 4 * d * t
	}
	return Result{D: d, Alpha: 1, R2: RSquared(pred, values), Method: MethodLinear}
}

// powerLawFit minimises the residual sum of squares of MSD(t) = 4·D·t^α
// over θ = [ln D, α] with Nelder–Mead. The log-parameterisation keeps D
// positive without constraints. The initial simplex is seeded from a
// log-log linear regression, which is exact for noise-free power-law data.
func powerLawFit(lagTimes, values []float64, opts Options) (d, alpha float64, ok bool) {
	theta0, ok := logLogSeed(lagTimes, values, opts)
	if !ok {
		return 0, 0, false
	}

	problem := optimize.Problem{
		Func: func(theta []float64) float64 {
			d := math.Exp(theta[0])
			a := theta[1]
			var ssr float64
			for i, t := range lagTimes {
				r := 4*d*math.Pow(t, a) - values[i]
				ssr += r * r
			}
			return ssr
		},
	}

	settings := &optimize.Settings{
		MajorIterations: opts.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-14,
			Iterations: 50,
		},
	}

	result, err := optimize.Minimize(problem, theta0, settings, &optimize.NelderMead{})
	if err != nil && result == nil {
		return 0, 0, false
	}
	if result == nil || !isFinite(result.X) || math.IsNaN(result.F) {
		return 0, 0, false
	}

	d = math.Exp(result.X[0])
	alpha = result.X[1]
	if alpha < opts.AlphaMin || alpha > opts.AlphaMax {
		return 0, 0, false
	}
	if !(d > 0) || d > opts.DMax {
		return 0, 0, false
	}
	return d, alpha, true
}

// logLogSeed derives the starting point for the nonlinear solver from the
// regression log MSD = log 4D + α·log t over the strictly positive MSD
// values. When fewer than 2 positive values exist the power-law model has
// nothing to anchor to and the caller falls back to linear.
func logLogSeed(lagTimes, values []float64, opts Options) ([]float64, bool) {
	var logT, logV []float64
	for i, v := range values {
		if v > 0 && lagTimes[i] > 0 {
			logT = append(logT, math.Log(lagTimes[i]))
			logV = append(logV, math.Log(v))
		}
	}
	if len(logV) < 2 {
		return nil, false
	}

	intercept, slope := stat.LinearRegression(logT, logV, nil, false)
	if math.IsNaN(intercept) || math.IsNaN(slope) {
		return nil, false
	}

	alpha := slope
	if alpha < opts.AlphaMin {
		alpha = opts.AlphaMin
	}
	if alpha > opts.AlphaMax {
		alpha = opts.AlphaMax
	}
	return []float64{intercept - math.Log(4), alpha}, true
}

// linearFit solves MSD(t) = 4·D·t by least squares through the origin.
// This cannot fail for ≥2 points: the slope is Σ(t·m)/Σt², and both MSD
// values and lag times are non-negative, so D ≥ 0.
func linearFit(lagTimes, values []float64) float64 {
	_, slope := stat.LinearRegression(lagTimes, values, nil, true)
	if math.IsNaN(slope) || slope < 0 {
		return 0
	}
	return slope / 4
}

// RSquared computes 1 − SSR/SST for the given predictions. When the series
// has zero variance (SST = 0) the conventional ratio is undefined; a
// perfect fit reports 1.0 and anything else reports −Inf so downstream
// filters see a deterministic value instead of NaN.
func RSquared(pred, obs []float64) float64 {
	mean := stat.Mean(obs, nil)
	var ssr, sst float64
	for i := range obs {
		r := obs[i] - pred[i]
		ssr += r * r
		d := obs[i] - mean
		sst += d * d
	}
	if sst == 0 {
		if ssr == 0 {
			return 1.0
		}
		return math.Inf(-1)
	}
	return 1 - ssr/sst
}

func isFinite(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
