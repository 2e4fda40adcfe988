// Package stats provides the statistical comparisons used when pooling
// results across conditions: two-sample Kolmogorov–Smirnov and
// Mann–Whitney U tests, the non-Gaussian parameter α₂ and a Gaussian
// kernel density estimate for step-size distributions.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// KSResult holds a two-sample Kolmogorov–Smirnov test outcome.
type KSResult struct {
	Statistic float64
	PValue    float64
}

// KolmogorovSmirnov runs the two-sample KS test. The statistic comes from
// gonum over sorted copies of the inputs; the p-value uses the asymptotic
// Kolmogorov distribution with the Stephens small-sample correction.
// Returns PValue = NaN when either sample is empty.
func KolmogorovSmirnov(a, b []float64) KSResult {
	if len(a) == 0 || len(b) == 0 {
		return KSResult{Statistic: math.NaN(), PValue: math.NaN()}
	}

	as := append([]float64(nil), a...)
	bs := append([]float64(nil), b...)
	sort.Float64s(as)
	sort.Float64s(bs)

	d := stat.KolmogorovSmirnov(as, nil, bs, nil)

	n := float64(len(a))
	m := float64(len(b))
	ne := n * m / (n + m)
	lambda := (math.Sqrt(ne) + 0.12 + 0.11/math.Sqrt(ne)) * d
	return KSResult{Statistic: d, PValue: ksProbability(lambda)}
}

// ksProbability evaluates Q_KS(λ) = 2 Σ (−1)^{j−1} e^{−2 j² λ²}, the
// asymptotic tail probability of the Kolmogorov distribution.
func ksProbability(lambda float64) float64 {
	if lambda <= 0 {
		return 1
	}
	const eps1 = 1e-6
	const eps2 = 1e-16
	var sum, prevTerm float64
	sign := 1.0
	for j := 1; j <= 100; j++ {
		term := sign * 2 * math.Exp(-2*float64(j)*float64(j)*lambda*lambda)
		sum += term
		at := math.Abs(term)
		if at <= eps1*prevTerm || at <= eps2*sum {
			if sum < 0 {
				return 0
			}
			if sum > 1 {
				return 1
			}
			return sum
		}
		prevTerm = at
		sign = -sign
	}
	// Series failed to converge; λ is tiny and the distributions are
	// indistinguishable.
	return 1
}

// MWUResult holds a two-sided Mann–Whitney U test outcome.
type MWUResult struct {
	U      float64
	PValue float64
}

// MannWhitneyU runs the two-sided rank-sum test with the normal
// approximation and tie correction. Suitable for the sample sizes seen in
// pooled fit tables (hundreds to tens of thousands of tracks).
func MannWhitneyU(a, b []float64) MWUResult {
	n1 := float64(len(a))
	n2 := float64(len(b))
	if n1 == 0 || n2 == 0 {
		return MWUResult{U: math.NaN(), PValue: math.NaN()}
	}

	type obs struct {
		v     float64
		first bool
	}
	all := make([]obs, 0, len(a)+len(b))
	for _, v := range a {
		all = append(all, obs{v, true})
	}
	for _, v := range b {
		all = append(all, obs{v, false})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].v < all[j].v })

	// Midranks with tie accumulation for the variance correction.
	ranks := make([]float64, len(all))
	var tieTerm float64
	for i := 0; i < len(all); {
		j := i
		for j < len(all) && all[j].v == all[i].v {
			j++
		}
		mid := float64(i+j-1)/2 + 1
		for k := i; k < j; k++ {
			ranks[k] = mid
		}
		t := float64(j - i)
		if t > 1 {
			tieTerm += t*t*t - t
		}
		i = j
	}

	var r1 float64
	for i, o := range all {
		if o.first {
			r1 += ranks[i]
		}
	}

	u1 := r1 - n1*(n1+1)/2
	u2 := n1*n2 - u1
	u := math.Min(u1, u2)

	nTot := n1 + n2
	mu := n1 * n2 / 2
	sigma2 := n1 * n2 / 12 * (nTot + 1 - tieTerm/(nTot*(nTot-1)))
	if sigma2 <= 0 {
		// All values tied: no evidence either way.
		return MWUResult{U: u, PValue: 1}
	}

	// Continuity correction, two-sided.
	z := (u - mu + 0.5) / math.Sqrt(sigma2)
	norm := distuv.Normal{Mu: 0, Sigma: 1}
	p := 2 * norm.CDF(z)
	if p > 1 {
		p = 1
	}
	return MWUResult{U: u, PValue: p}
}

// Alpha2 computes the non-Gaussian parameter α₂ = ⟨r⁴⟩/(3⟨r²⟩²) − 1 of a
// step-size sample. Returns NaN for an empty sample or when the second
// moment is zero.
func Alpha2(obs []float64) float64 {
	if len(obs) == 0 {
		return math.NaN()
	}
	var m2, m4 float64
	for _, r := range obs {
		r2 := r * r
		m2 += r2
		m4 += r2 * r2
	}
	m2 /= float64(len(obs))
	m4 /= float64(len(obs))
	if m2 == 0 {
		return math.NaN()
	}
	return m4/(3*m2*m2) - 1
}

// GaussianKDE evaluates a Gaussian kernel density estimate of the sample
// at each grid point, with Silverman's rule-of-thumb bandwidth. Returns
// nil for samples smaller than 2.
func GaussianKDE(sample, grid []float64) []float64 {
	if len(sample) < 2 {
		return nil
	}

	mean := stat.Mean(sample, nil)
	var ss float64
	for _, v := range sample {
		d := v - mean
		ss += d * d
	}
	sd := math.Sqrt(ss / float64(len(sample)-1))
	bw := 1.06 * sd * math.Pow(float64(len(sample)), -1.0/5.0)
	if bw <= 0 {
		// Degenerate sample (all identical); fall back to a narrow kernel
		// around the common value.
		bw = 1e-9
	}

	kernel := distuv.Normal{Mu: 0, Sigma: bw}
	out := make([]float64, len(grid))
	for i, g := range grid {
		var sum float64
		for _, v := range sample {
			sum += kernel.Prob(g - v)
		}
		out[i] = sum / float64(len(sample))
	}
	return out
}

// Median returns the sample median (0.5 empirical quantile), or NaN for an
// empty sample.
func Median(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

// PToAsterisks maps a p-value to the conventional significance annotation.
func PToAsterisks(p float64) string {
	switch {
	case p < 1e-4:
		return "****"
	case p < 1e-3:
		return "***"
	case p < 1e-2:
		return "**"
	case p < 5e-2:
		return "*"
	default:
		return "n.s."
	}
}
