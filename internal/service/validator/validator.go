// Package validator checks incoming signals for structural and symbol validity.
package validator

import (
	"time"

	"SigTrack/internal/domain/models"
	"SigTrack/pkg/util"
)

// Result is the structural validation outcome of one signal.
type Result struct {
	OK        bool
	Errors    []models.ErrorCode
	NumericOK bool
	DateOK    bool
	RuleOK    bool
}

// Validator checks signals. The zero value is unusable; window literals are
// interpreted in loc.
type Validator struct {
	loc *time.Location
}

func New(loc *time.Location) *Validator {
	return &Validator{loc: loc}
}

// Validate runs numeric, side, ordering and date checks and accumulates every
// applicable error code in check order.
func (v *Validator) Validate(sig models.Signal) Result {
	res := Result{NumericOK: true, DateOK: true, RuleOK: true}
	var errs codeSet

	entry, target, stop, ok := sig.Prices()
	if !ok || entry <= 0 || target <= 0 || stop <= 0 {
		res.NumericOK = false
		errs.add(models.ErrNumeric)
	}

	side, sideOK := models.ParseSide(sig.Side)
	if !sideOK {
		errs.add(models.ErrSide)
	}

	if res.NumericOK && sideOK {
		switch side {
		case models.Buy:
			if !(target > entry && stop < entry) {
				res.RuleOK = false
				errs.add(models.ErrRuleBuy)
			}
		case models.Sell:
			if !(target < entry && stop > entry) {
				res.RuleOK = false
				errs.add(models.ErrRuleSell)
			}
		}
	}

	start, errStart := util.ParseSignalTime(sig.WindowStart, v.loc)
	end, errEnd := util.ParseSignalTime(sig.WindowEnd, v.loc)
	if errStart != nil || errEnd != nil || start.After(end) {
		res.DateOK = false
		errs.add(models.ErrDate)
	}

	res.Errors = errs.list()
	res.OK = len(res.Errors) == 0
	return res
}

// Window returns the parsed window bounds in UTC.
func (v *Validator) Window(sig models.Signal) (start, end time.Time, err error) {
	if start, err = util.ParseSignalTime(sig.WindowStart, v.loc); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end, err = util.ParseSignalTime(sig.WindowEnd, v.loc); err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

// ValidateSymbol checks the symbol against the venue's tradable set. When the
// set is unavailable (nil or empty) the check is skipped: ok is true and
// checked is false.
func ValidateSymbol(sig models.Signal, known map[string]struct{}) (ok, checked bool) {
	if len(known) == 0 {
		return true, false
	}
	_, ok = known[sig.NormalizedSymbol()]
	return ok, true
}

// codeSet is an insertion-ordered set of error codes.
type codeSet struct {
	codes []models.ErrorCode
}

func (s *codeSet) add(c models.ErrorCode) {
	for _, have := range s.codes {
		if have == c {
			return
		}
	}
	s.codes = append(s.codes, c)
}

func (s *codeSet) list() []models.ErrorCode {
	if len(s.codes) == 0 {
		return nil
	}
	out := make([]models.ErrorCode, len(s.codes))
	copy(out, s.codes)
	return out
}

// Merge appends extra codes to base preserving order and uniqueness.
func Merge(base []models.ErrorCode, extra ...models.ErrorCode) []models.ErrorCode {
	var s codeSet
	for _, c := range base {
		s.add(c)
	}
	for _, c := range extra {
		s.add(c)
	}
	return s.list()
}
