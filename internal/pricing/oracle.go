// Package pricing maps label length and duration to registration fees.
// The oracle is a pure function of its configuration: no side effects, no
// failure modes. Money is wei-denominated *big.Int; scaling uses truncating
// integer division.
package pricing

import (
	"math/big"
	"time"

	"namehaus/pkg/domain"
)

// OneYear is the pricing base period. Yearly rates scale linearly by
// duration/OneYear.
const OneYear = 365 * 24 * time.Hour

// PremiumFunc prices the premium component for a label. The default returns
// zero; the hook is reserved for decaying premiums on recently expired or
// premium names.
type PremiumFunc func(label string, duration time.Duration) *big.Int

// Config carries the per-tier yearly rates in wei.
type Config struct {
	// ThreeCharYearly prices exactly-three-character labels (tier A).
	ThreeCharYearly *big.Int
	// FourCharYearly prices exactly-four-character labels (tier B).
	FourCharYearly *big.Int
	// LongYearly prices labels of five characters or more (tier C).
	LongYearly *big.Int
	// Premium is optional; nil means zero premium.
	Premium PremiumFunc
}

// Quote is the price breakdown for one registration or renewal.
type Quote struct {
	Base    *big.Int
	Premium *big.Int
}

// Total returns base + premium.
func (q Quote) Total() *big.Int {
	return new(big.Int).Add(q.Base, q.Premium)
}

// Oracle prices labels. Construct with New; the zero value is unusable.
type Oracle struct {
	cfg Config
}

func New(cfg Config) *Oracle {
	if cfg.Premium == nil {
		cfg.Premium = zeroPremium
	}
	return &Oracle{cfg: cfg}
}

// Price quotes a label for a duration. Labels shorter than the registrable
// minimum are priced out at domain.MaxPrice so registration can never be
// funded. The label is taken raw (not validated) because reads must answer
// for any input.
func (o *Oracle) Price(label string, duration time.Duration) Quote {
	if len(label) < domain.MinLabelLength {
		return Quote{Base: new(big.Int).Set(domain.MaxPrice), Premium: big.NewInt(0)}
	}

	var yearly *big.Int
	switch {
	case len(label) == 3:
		yearly = o.cfg.ThreeCharYearly
	case len(label) == 4:
		yearly = o.cfg.FourCharYearly
	default:
		yearly = o.cfg.LongYearly
	}

	base := new(big.Int).Mul(yearly, big.NewInt(int64(duration/time.Second)))
	base.Quo(base, big.NewInt(int64(OneYear/time.Second)))

	return Quote{Base: base, Premium: o.cfg.Premium(label, duration)}
}

func zeroPremium(string, time.Duration) *big.Int {
	return big.NewInt(0)
}
