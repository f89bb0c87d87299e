package rewards

import (
	"github.com/pkg/errors"
)

// Validate checks a schedule before it is published. Tiers must line up with
// rewards and be ordered from highest threshold to lowest.
func (s *Schedule) Validate() error {

	if len(s.Tiers) == 0 {
		return errors.Wrap(ErrInvalidSchedule, "no tiers")
	}

	if len(s.Tiers) != len(s.RewardPerTier) {
		return errors.Wrapf(ErrInvalidSchedule, "%d tiers but %d rewards", len(s.Tiers), len(s.RewardPerTier))
	}

	for i := 1; i < len(s.Tiers); i++ {
		if s.Tiers[i] > s.Tiers[i-1] {
			return errors.Wrapf(ErrInvalidSchedule, "tier %d threshold %d above tier %d threshold %d",
				i, s.Tiers[i], i-1, s.Tiers[i-1])
		}
	}

	return nil
}

func checkAligned(s *Schedule) error {
	if s == nil || len(s.Tiers) == 0 || len(s.Tiers) != len(s.RewardPerTier) {
		return errors.Wrap(ErrInternalConsistency, "schedule is empty or misaligned")
	}
	return nil
}

// ValidateClaim decides whether entry may claim against schedule. It has no
// side effects and runs before anything is changed.
func ValidateClaim(entry *Entry, s *Schedule) error {

	if err := checkAligned(s); err != nil {
		return err
	}

	last := len(s.Tiers) - 1
	if entry.Metric < s.Tiers[last] {
		return errors.Wrapf(ErrNotEligible, "metric %d, lowest tier %d", entry.Metric, s.Tiers[last])
	}

	if entry.Claimed {
		return ErrAlreadyClaimed
	}

	return nil
}

// ResolveTier returns the first tier, in published order, whose threshold
// metric reaches, and that tier's reward. Ties go to the earlier tier.
func ResolveTier(metric uint64, s *Schedule) (int, uint64, error) {

	if err := checkAligned(s); err != nil {
		return 0, 0, err
	}

	for i, threshold := range s.Tiers {
		if metric >= threshold {
			return i, s.RewardPerTier[i], nil
		}
	}

	return 0, 0, errors.Wrapf(ErrInternalConsistency, "no tier matches metric %d", metric)
}
