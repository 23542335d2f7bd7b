/*
policy.go - Named, overridable calculation policy

PURPOSE:
  Collects every default the pipeline would otherwise embed as a literal:
  the LDF used when a factor is missing, the discounting horizon, and the
  payment pattern sum tolerance. Changing policy never touches the formulas.

DEFAULTS:
  DefaultLDF:       1.0  ("no further development assumed")
  RequireLDF:       false (missing LDF falls back to DefaultLDF)
  Horizon:          0    (derive from the payment pattern's last offset)
  MaxHorizon:       100  (0 means DefaultMaxHorizon; never above MaxOffsetYear)
  PatternTolerance: 1e-6
  StrictPattern:    false (bad sums are warnings, not errors)

SEE ALSO:
  - config/config.go: Populates Policy from env/YAML
*/
package reserving

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultHorizon is the discounting horizon used by the original batch
// process. Policy.Horizon = 0 derives the horizon from the pattern instead.
const DefaultHorizon = 10

// DefaultMaxHorizon caps the discount horizon when Policy.MaxHorizon is 0.
const DefaultMaxHorizon = 100

// MaxOffsetYear is the largest payment pattern offset ParseOffset accepts
// and the largest MaxHorizon a policy may set.
const MaxOffsetYear = 1000

// Policy holds the calculation defaults.
type Policy struct {
	// DefaultLDF applies when (LOB, DY) has no development factor.
	DefaultLDF decimal.Decimal

	// RequireLDF turns a missing development factor into
	// ErrMissingReferenceData instead of applying DefaultLDF.
	RequireLDF bool

	// Horizon is the number of offset years in the discount curve.
	// Zero means "use the payment pattern's last offset".
	Horizon int

	// MaxHorizon bounds Horizon and the horizon derived from the pattern.
	// Zero means DefaultMaxHorizon.
	MaxHorizon int

	// PatternTolerance is the allowed |sum(PaymentPct) - 1| per LOB.
	PatternTolerance decimal.Decimal

	// StrictPattern makes a pattern sum violation fatal.
	StrictPattern bool
}

// DefaultPolicy returns the policy matching the original batch process,
// except that the horizon follows the payment pattern.
func DefaultPolicy() Policy {
	return Policy{
		DefaultLDF:       one,
		PatternTolerance: decimal.New(1, -6),
	}
}

// Validate rejects policies that cannot produce a meaningful run.
func (p Policy) Validate() error {
	if p.DefaultLDF.IsNegative() {
		return fmt.Errorf("%w: default LDF must not be negative, got %s", ErrInvalidInput, p.DefaultLDF)
	}
	if p.Horizon < 0 {
		return fmt.Errorf("%w: horizon must not be negative, got %d", ErrInvalidInput, p.Horizon)
	}
	if p.MaxHorizon < 0 || p.MaxHorizon > MaxOffsetYear {
		return fmt.Errorf("%w: max horizon must be between 0 and %d, got %d", ErrInvalidInput, MaxOffsetYear, p.MaxHorizon)
	}
	if limit := p.maxHorizon(); p.Horizon > limit {
		return fmt.Errorf("%w: horizon %d exceeds max horizon %d", ErrInvalidInput, p.Horizon, limit)
	}
	if p.PatternTolerance.IsNegative() {
		return fmt.Errorf("%w: pattern tolerance must not be negative, got %s", ErrInvalidInput, p.PatternTolerance)
	}
	return nil
}

func (p Policy) maxHorizon() int {
	if p.MaxHorizon == 0 {
		return DefaultMaxHorizon
	}
	return p.MaxHorizon
}

// ResolveHorizon picks the discount horizon: the configured one when set,
// otherwise the payment pattern's last offset. Either way it must lie in
// 1..MaxHorizon.
func (p Policy) ResolveHorizon(patternHorizon int) (int, error) {
	h := p.Horizon
	if h == 0 {
		h = patternHorizon
	}
	if h < 1 {
		return 0, fmt.Errorf("%w: discount horizon must be at least 1, got %d", ErrInvalidInput, h)
	}
	if limit := p.maxHorizon(); h > limit {
		return 0, fmt.Errorf("%w: discount horizon %d exceeds max horizon %d", ErrInvalidInput, h, limit)
	}
	return h, nil
}
