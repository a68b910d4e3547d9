// Package finality decides how many confirmations a block needs before it is settled, and how many
// it has actually received.
package finality

import "github.com/pkg/errors"

// ErrInvalidParams is returned by Params.Validate.
var ErrInvalidParams = errors.New("invalid finality parameters")

// Params bound the confirmation requirement. RunLength is the length of a run of consecutive hits
// (or gaps) that moves the requirement by one.
type Params struct {
	ZetaMin   int `mapstructure:"zeta_min"`
	ZetaMax   int `mapstructure:"zeta_max"`
	RunLength int `mapstructure:"run_length"`
}

func DefaultParams() Params {
	return Params{ZetaMin: 2, ZetaMax: 10, RunLength: 3}
}

func (p Params) Validate() error {
	if p.ZetaMin < 1 {
		return errors.Wrapf(ErrInvalidParams, "zeta_min %d is below 1", p.ZetaMin)
	}
	if p.ZetaMax < p.ZetaMin {
		return errors.Wrapf(ErrInvalidParams, "zeta_max %d is below zeta_min %d", p.ZetaMax, p.ZetaMin)
	}
	if p.RunLength < 1 {
		return errors.Wrapf(ErrInvalidParams, "run_length %d is below 1", p.RunLength)
	}
	return nil
}

func (p Params) clamp(v int) int {
	if v < p.ZetaMin {
		return p.ZetaMin
	}
	if v > p.ZetaMax {
		return p.ZetaMax
	}
	return v
}
