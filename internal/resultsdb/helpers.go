package resultsdb

import (
	"math"

	"github.com/tracklab/sptfit/internal/fit"
)

var negInf = math.Inf(-1)

// nullIfInf maps the −Inf R² sentinel to NULL for storage; SQLite has no
// infinity literal and the round trip must stay lossless.
func nullIfInf(v float64) interface{} {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return v
}

func methodFromString(s string) fit.Method {
	switch s {
	case string(fit.MethodPowerLaw):
		return fit.MethodPowerLaw
	case string(fit.MethodLinear):
		return fit.MethodLinear
	default:
		return fit.MethodFailed
	}
}
