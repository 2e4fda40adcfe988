package fit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// msdSeries builds lag times and MSD values from a generator.
func msdSeries(nLags int, timeStep float64, gen func(t float64) float64) (times, values []float64) {
	for lag := 1; lag <= nLags; lag++ {
		t := float64(lag) * timeStep
		times = append(times, t)
		values = append(values, gen(t))
	}
	return times, values
}

func TestFitRecoversPowerLaw(t *testing.T) {
	// Noise-free MSD from known D₀=0.25, α₀=0.6.
	const d0, alpha0 = 0.25, 0.6
	times, values := msdSeries(10, 0.01, func(tt float64) float64 {
		return 4 * d0 * math.Pow(tt, alpha0)
	})

	res := Fit(times, values, DefaultOptions())
	require.Equal(t, MethodPowerLaw, res.Method)
	assert.InDelta(t, d0, res.D, 1e-3)
	assert.InDelta(t, alpha0, res.Alpha, 1e-3)
	assert.InDelta(t, 1.0, res.R2, 1e-6)
}

func TestFitSuperdiffusive(t *testing.T) {
	const d0, alpha0 = 0.05, 1.7
	times, values := msdSeries(10, 0.01, func(tt float64) float64 {
		return 4 * d0 * math.Pow(tt, alpha0)
	})

	res := Fit(times, values, DefaultOptions())
	require.Equal(t, MethodPowerLaw, res.Method)
	assert.InDelta(t, alpha0, res.Alpha, 5e-3)
}

func TestFitConstantVelocityTrack(t *testing.T) {
	// A constant-velocity track has MSD(t) = |v|²·t², i.e. α = 2 and
	// D = |v|²/4 when expressed through the power-law model.
	const v = 0.1 / 0.01 // 0.1 µm/frame at 10 ms/frame = 10 µm/s
	times, values := msdSeries(10, 0.01, func(tt float64) float64 {
		return v * v * tt * tt
	})

	res := Fit(times, values, DefaultOptions())
	require.NotEqual(t, MethodFailed, res.Method)
	if res.Method == MethodPowerLaw {
		assert.InDelta(t, 2.0, res.Alpha, 1e-2)
		assert.InDelta(t, v*v/4, res.D, v*v/4*1e-2)
		assert.InDelta(t, 1.0, res.R2, 1e-6)
	}
}

func TestFitPureDiffusionAlphaNearOne(t *testing.T) {
	const d0 = 0.5
	times, values := msdSeries(10, 0.01, func(tt float64) float64 {
		return 4 * d0 * tt
	})

	res := Fit(times, values, DefaultOptions())
	require.NotEqual(t, MethodFailed, res.Method)
	assert.InDelta(t, d0, res.D, 1e-3)
	assert.InDelta(t, 1.0, res.Alpha, 1e-3)
	assert.InDelta(t, 1.0, res.R2, 1e-9)
}

func TestFitAllZeroFallsBackToLinear(t *testing.T) {
	// Static track: every MSD is zero, the log-log seed has no positive
	// values, and the linear model fits exactly with D = 0.
	times := []float64{0.01, 0.02, 0.03}
	values := []float64{0, 0, 0}

	res := Fit(times, values, DefaultOptions())
	require.Equal(t, MethodLinear, res.Method)
	assert.Equal(t, 0.0, res.D)
	// Zero-variance series with zero residuals reports R² = 1.
	assert.Equal(t, 1.0, res.R2)
}

func TestFitZeroVarianceNonZeroResidualSentinel(t *testing.T) {
	// Constant non-zero MSD: SST = 0 but the linear model cannot match a
	// flat line through the origin, so the sentinel −Inf is reported.
	times := []float64{0.01, 0.02, 0.03}
	values := []float64{1, 1, 1}

	res := Fit(times, values, DefaultOptions())
	require.NotEqual(t, MethodFailed, res.Method)
	if res.Method == MethodLinear {
		assert.True(t, math.IsInf(res.R2, -1), "expected -Inf sentinel, got %g", res.R2)
	}
}

func TestFitTooFewPointsFails(t *testing.T) {
	res := Fit([]float64{0.01}, []float64{0.1}, DefaultOptions())
	assert.Equal(t, MethodFailed, res.Method)
	assert.True(t, math.IsInf(res.R2, -1))

	res = Fit(nil, nil, DefaultOptions())
	assert.Equal(t, MethodFailed, res.Method)
}

func TestFitOutOfRangeAlphaFallsBack(t *testing.T) {
	// MSD decreasing with lag implies α < 0, outside the validity window;
	// the chain must land on the linear model rather than report it.
	times := []float64{0.01, 0.02, 0.03, 0.04}
	values := []float64{0.4, 0.2, 0.1, 0.05}

	res := Fit(times, values, DefaultOptions())
	assert.Equal(t, MethodLinear, res.Method)
	assert.Equal(t, 1.0, res.Alpha)
	assert.GreaterOrEqual(t, res.D, 0.0)
}

func TestRSquaredPerfectFit(t *testing.T) {
	obs := []float64{1, 2, 3}
	assert.Equal(t, 1.0, RSquared(obs, obs))
}

func TestRSquaredZeroVariance(t *testing.T) {
	obs := []float64{2, 2, 2}
	assert.Equal(t, 1.0, RSquared([]float64{2, 2, 2}, obs))
	assert.True(t, math.IsInf(RSquared([]float64{1, 1, 1}, obs), -1))
}

func TestRSquaredNeverNaN(t *testing.T) {
	obs := []float64{0, 0}
	pred := []float64{0.5, 0.5}
	r2 := RSquared(pred, obs)
	assert.False(t, math.IsNaN(r2))
}
