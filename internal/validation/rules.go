// Package validation evaluates declarative per-operation rule tables before
// a request reaches the orchestrator, so every handler rejects malformed
// input the same way.
package validation

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalid marks any rule violation; handlers map it to a 400 response.
var ErrInvalid = errors.New("invalid request")

// Rule binds a field name to a constraint check.
type Rule struct {
	Field string
	Check func() error
}

// Apply evaluates the rules in order and returns the first violation wrapped
// in ErrInvalid.
func Apply(rules ...Rule) error {
	for _, r := range rules {
		if err := r.Check(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, r.Field, err)
		}
	}
	return nil
}

// Required rejects the empty string.
func Required(value string) func() error {
	return func() error {
		if value == "" {
			return errors.New("is required")
		}
		return nil
	}
}

// PositiveAmount rejects amounts that are not positive or carry more than
// two decimal places.
func PositiveAmount(amount float64) func() error {
	return func() error {
		if amount <= 0 {
			return errors.New("must be positive")
		}
		cents := amount * 100
		if math.Abs(cents-math.Round(cents)) > 1e-6 {
			return errors.New("must have at most 2 decimal places")
		}
		return nil
	}
}

// OneOf rejects values outside the allowed set.
func OneOf(value string, allowed ...string) func() error {
	return func() error {
		for _, a := range allowed {
			if value == a {
				return nil
			}
		}
		return fmt.Errorf("must be one of %v", allowed)
	}
}

// OptionalOneOf accepts the empty string, otherwise behaves like OneOf.
func OptionalOneOf(value string, allowed ...string) func() error {
	return func() error {
		if value == "" {
			return nil
		}
		return OneOf(value, allowed...)()
	}
}

// Different rejects equal values; used to refuse self-transfers.
func Different(a, b string) func() error {
	return func() error {
		if a == b {
			return errors.New("must differ from source")
		}
		return nil
	}
}

// MinorUnits converts a validated major-unit amount to integer minor units.
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
