package birthdeath

import (
	"errors"
	"fmt"
	"math"
)

// Parameterization names accepted by ParamsFor.
const (
	ParameterizationCanonical = "canonical"
	ParameterizationFBD       = "fbd"
)

// Sentinel errors for parameter validation.
var (
	ErrInvalidParams           = errors.New("invalid birth-death parameters")
	ErrUnknownParameterization = errors.New("unknown parameterization")
)

// Params are the canonical rates of the fossilized birth-death process with one rate interval.
type Params struct {
	Birth    float64 // λ, speciation rate.
	Death    float64 // μ, extinction rate.
	Sampling float64 // ψ, fossil sampling rate.
	Removal  float64 // r, probability that sampling removes the lineage.
	Rho      float64 // ρ, probability of sampling an extant lineage at the present.
	Origin   float64 // Height of the origin of the process.

	// ConditionOnSampling conditions on at least one sampled individual.
	ConditionOnSampling bool
	// ConditionOnRoot starts the process at the root instead of the origin.
	ConditionOnRoot bool
	// IntegrateRanges integrates over unobserved fossils inside multi-sample ranges.
	IntegrateRanges bool
	// BirthExceedsDeath rejects parameter sets with λ <= μ.
	BirthExceedsDeath bool
}

// Validate checks that the rates describe a proper process.
func (p Params) Validate() error {
	for name, v := range map[string]float64{
		"birth": p.Birth, "death": p.Death, "sampling": p.Sampling,
		"removal": p.Removal, "rho": p.Rho,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s rate %v", ErrInvalidParams, name, v)
		}
	}

	switch {
	case p.Birth == 0:
		return fmt.Errorf("%w: birth rate must be positive", ErrInvalidParams)
	case p.Removal > 1:
		return fmt.Errorf("%w: removal probability %v above 1", ErrInvalidParams, p.Removal)
	case p.Rho > 1:
		return fmt.Errorf("%w: rho %v above 1", ErrInvalidParams, p.Rho)
	case p.BirthExceedsDeath && p.Birth <= p.Death:
		return fmt.Errorf("%w: birth rate %v does not exceed death rate %v", ErrInvalidParams, p.Birth, p.Death)
	case !p.ConditionOnRoot && (p.Origin <= 0 || math.IsNaN(p.Origin)):
		return fmt.Errorf("%w: origin %v", ErrInvalidParams, p.Origin)
	}

	return nil
}

// FBDParams is the diversification/turnover/sampling-proportion parameterization. Sampling
// never removes lineages under it.
type FBDParams struct {
	Diversification    float64 // λ - μ.
	Turnover           float64 // μ / λ.
	SamplingProportion float64 // ψ / (μ + ψ).
	Rho                float64
	Origin             float64
}

// Canonical converts to canonical rates.
func (f FBDParams) Canonical() (Params, error) {
	if f.Turnover < 0 || f.Turnover >= 1 {
		return Params{}, fmt.Errorf("%w: turnover %v outside [0, 1)", ErrInvalidParams, f.Turnover)
	}

	if f.SamplingProportion < 0 || f.SamplingProportion >= 1 {
		return Params{}, fmt.Errorf("%w: sampling proportion %v outside [0, 1)", ErrInvalidParams, f.SamplingProportion)
	}

	odds := 1 / (1 - f.Turnover)

	return Params{
		Birth:    f.Diversification * odds,
		Death:    f.Diversification * f.Turnover * odds,
		Sampling: f.Diversification * f.SamplingProportion / (1 - f.SamplingProportion) * f.Turnover * odds,
		Rho:      f.Rho,
		Origin:   f.Origin,
	}, nil
}

// ParamsFor selects the parameter set named by parameterization. The flags of canonical
// (conditioning and range integration) carry over to the FBD set.
func ParamsFor(parameterization string, canonical Params, fbd FBDParams) (Params, error) {
	switch parameterization {
	case ParameterizationCanonical, "":
		return canonical, canonical.Validate()
	case ParameterizationFBD:
		p, err := fbd.Canonical()
		if err != nil {
			return Params{}, err
		}

		p.ConditionOnSampling = canonical.ConditionOnSampling
		p.ConditionOnRoot = canonical.ConditionOnRoot
		p.IntegrateRanges = canonical.IntegrateRanges
		p.BirthExceedsDeath = canonical.BirthExceedsDeath

		return p, p.Validate()
	default:
		return Params{}, fmt.Errorf("%w: %q", ErrUnknownParameterization, parameterization)
	}
}
