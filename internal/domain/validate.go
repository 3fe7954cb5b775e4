package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidateMembers checks member emails are present and unique and that
// every hourly rate is non-negative.
func ValidateMembers(members []Member) error {
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		if m.Email == "" {
			return fmt.Errorf("member email is required")
		}
		if _, dup := seen[m.Email]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateMember, m.Email)
		}
		seen[m.Email] = struct{}{}
		if m.HourlyRate.IsNegative() {
			return fmt.Errorf("member %s: hourly rate must be >= 0", m.Email)
		}
	}
	return nil
}

// ValidateHours rejects negative hours. Zero is allowed: a task can be
// completed at no recorded effort.
func ValidateHours(hours decimal.Decimal) error {
	if hours.IsNegative() {
		return ErrInvalidHours
	}
	return nil
}
