package auction

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// IncrementTier maps a price band to its minimum bid step. UpperCents
// is the exclusive upper bound of the band; 0 marks the open-ended
// final tier.
type IncrementTier struct {
	UpperCents int64
	StepCents  int64
}

// IncrementSchedule is a monotonic step function over price tiers: the
// step for a price is the step of the first tier whose upper bound
// exceeds it. Tiers are sorted ascending with exactly one open-ended
// tier at the end.
type IncrementSchedule []IncrementTier

// DefaultIncrementSchedule returns the documented default schedule:
//
//	< $100       → $5
//	< $1,000     → $25
//	< $5,000     → $50
//	< $10,000    → $100
//	< $50,000    → $250
//	otherwise    → $500
func DefaultIncrementSchedule() IncrementSchedule {
	return IncrementSchedule{
		{UpperCents: 10_000, StepCents: 500},
		{UpperCents: 100_000, StepCents: 2_500},
		{UpperCents: 500_000, StepCents: 5_000},
		{UpperCents: 1_000_000, StepCents: 10_000},
		{UpperCents: 5_000_000, StepCents: 25_000},
		{UpperCents: 0, StepCents: 50_000},
	}
}

// Step returns the minimum increment over amountCents.
func (s IncrementSchedule) Step(amountCents int64) int64 {
	for _, t := range s {
		if t.UpperCents == 0 || amountCents < t.UpperCents {
			return t.StepCents
		}
	}
	// Validated schedules always terminate with an open-ended tier.
	return s[len(s)-1].StepCents
}

// Validate checks that the schedule is non-empty, sorted by ascending
// upper bound, ends with a single open-ended tier, and that steps are
// positive and non-decreasing across tiers.
func (s IncrementSchedule) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("increment schedule is empty")
	}
	var prevUpper, prevStep int64
	for i, t := range s {
		if t.StepCents <= 0 {
			return fmt.Errorf("tier %d: step must be > 0", i)
		}
		if t.StepCents < prevStep {
			return fmt.Errorf("tier %d: steps must be non-decreasing", i)
		}
		open := t.UpperCents == 0
		if open && i != len(s)-1 {
			return fmt.Errorf("tier %d: open-ended tier must be last", i)
		}
		if !open && t.UpperCents <= prevUpper {
			return fmt.Errorf("tier %d: upper bounds must ascend", i)
		}
		if !open {
			prevUpper = t.UpperCents
		}
		prevStep = t.StepCents
	}
	if s[len(s)-1].UpperCents != 0 {
		return fmt.Errorf("schedule must end with an open-ended tier")
	}
	return nil
}

// ParseIncrementSchedule parses "upper:step,upper:step,...,:step" where
// amounts are cents and the final entry with empty upper is the
// open-ended tier, e.g. "150000:5000,:10000".
func ParseIncrementSchedule(spec string) (IncrementSchedule, error) {
	var out IncrementSchedule
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.SplitN(part, ":", 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("bad tier %q: want upper:step", part)
		}
		var tier IncrementTier
		if fields[0] != "" {
			upper, err := strconv.ParseInt(fields[0], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("bad tier upper %q: %w", fields[0], err)
			}
			tier.UpperCents = upper
		}
		step, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad tier step %q: %w", fields[1], err)
		}
		tier.StepCents = step
		out = append(out, tier)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpperCents == 0 {
			return false
		}
		if out[j].UpperCents == 0 {
			return true
		}
		return out[i].UpperCents < out[j].UpperCents
	})
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}
