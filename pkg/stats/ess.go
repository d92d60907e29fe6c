package stats

// ESS estimates the effective sample size of an autocorrelated trace with Geyer's initial
// positive sequence: lag autocorrelations are summed in adjacent pairs until a pair sum turns
// non-positive. A constant trace has an ESS equal to its length.
func ESS(trace []float64) float64 {
	n := len(trace)
	if n < 2 {
		return float64(n)
	}

	mean := Mean(trace)

	autocov := func(lag int) float64 {
		var sum float64

		for i := 0; i+lag < n; i++ {
			sum += (trace[i] - mean) * (trace[i+lag] - mean)
		}

		return sum / float64(n)
	}

	variance := autocov(0)
	if variance == 0 {
		return float64(n)
	}

	tau := -1.0

	for lag := 0; lag+1 < n; lag += 2 {
		pair := (autocov(lag) + autocov(lag+1)) / variance
		if pair <= 0 {
			break
		}

		tau += 2 * pair
	}

	if tau < 1 {
		tau = 1
	}

	return float64(n) / tau
}
