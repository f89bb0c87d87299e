package rewards

import (
	"github.com/pkg/errors"
)

var (
	ErrNotEligible             = errors.New("Activity does not reach the lowest tier")
	ErrAlreadyClaimed          = errors.New("Reward already claimed")
	ErrInsufficientPoolBalance = errors.New("Reward pool cannot fund the claim")
	ErrInternalConsistency     = errors.New("Schedule is inconsistent with the claim")
	ErrBonusIssuance           = errors.New("Bonus issuance failed")

	ErrEntryNotFound     = errors.New("No activity recorded for participant on day")
	ErrScheduleNotFound  = errors.New("No schedule published for day")
	ErrSchedulePublished = errors.New("Schedule already published for day")
	ErrInvalidSchedule   = errors.New("Invalid schedule")
	ErrInvalidActivity   = errors.New("Invalid activity amount")
)

// bonusError keeps the issuer's failure reachable through errors.Is/As while
// still matching ErrBonusIssuance
type bonusError struct {
	cause error
}

func (e *bonusError) Error() string {
	return ErrBonusIssuance.Error() + ": " + e.cause.Error()
}

func (e *bonusError) Is(target error) bool {
	return target == ErrBonusIssuance
}

func (e *bonusError) Unwrap() error {
	return e.cause
}
