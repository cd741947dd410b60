package market

import (
	"strings"
	"unicode/utf8"
)

// ValidateFee checks a platform fee in basis points.
func ValidateFee(feeBps uint16) error {
	if feeBps > MaxFeeBps {
		return ErrFeeTooHigh
	}
	return nil
}

// ValidateCreate checks market parameters against now (unix seconds). The
// order of checks is fixed so the same input always reports the same error.
func ValidateCreate(p CreateParams, now int64) error {
	if len(p.Outcomes) < MinOutcomes || len(p.Outcomes) > MaxOutcomes {
		return ErrInvalidOutcomes
	}
	for _, o := range p.Outcomes {
		if !validText(o, MaxOutcomeLen) {
			return ErrInvalidOutcome
		}
	}
	if !validText(p.Question, MaxQuestionLen) {
		return ErrInvalidQuestion
	}

	if p.EndTime <= now || p.EndTime-now < int64(MinDuration.Seconds()) {
		return ErrInvalidEndTime
	}
	if p.EndTime-now > int64(MaxDuration.Seconds()) {
		return ErrEndTimeTooFar
	}

	if p.MinBet == 0 {
		return ErrInvalidMinBet
	}
	if strings.TrimSpace(p.Oracle) == "" {
		return ErrInvalidIdentity
	}
	return nil
}

// validText requires a non-blank string of at most max characters,
// counting surrounding whitespace.
func validText(s string, max int) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	return utf8.RuneCountInString(s) <= max
}
