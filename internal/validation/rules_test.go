package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestApplyReturnsFirstViolation(t *testing.T) {
	err := Apply(
		Rule{Field: "source_wallet_id", Check: Required("")},
		Rule{Field: "amount", Check: PositiveAmount(-5)},
	)
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if !strings.Contains(err.Error(), "source_wallet_id") {
		t.Fatalf("expected first rule's field in error, got %q", err)
	}
}

func TestApplyPassesCleanInput(t *testing.T) {
	err := Apply(
		Rule{Field: "source_wallet_id", Check: Required("w1")},
		Rule{Field: "amount", Check: PositiveAmount(25.50)},
		Rule{Field: "dest_wallet_id", Check: Different("w1", "w2")},
	)
	if err != nil {
		t.Fatalf("unexpected violation: %v", err)
	}
}

func TestPositiveAmountRejectsSubCentPrecision(t *testing.T) {
	if err := PositiveAmount(10.005)(); err == nil {
		t.Fatal("expected rejection of 3 decimal places")
	}
	if err := PositiveAmount(10.05)(); err != nil {
		t.Fatalf("two decimal places should pass: %v", err)
	}
	if err := PositiveAmount(0)(); err == nil {
		t.Fatal("expected rejection of zero amount")
	}
}

func TestOneOf(t *testing.T) {
	if err := OneOf("p2p", "p2p", "bridge")(); err != nil {
		t.Fatalf("allowed value rejected: %v", err)
	}
	if err := OneOf("wire", "p2p", "bridge")(); err == nil {
		t.Fatal("expected rejection of unknown value")
	}
	if err := OptionalOneOf("", "p2p", "bridge")(); err != nil {
		t.Fatalf("empty optional value rejected: %v", err)
	}
}

func TestMinorUnits(t *testing.T) {
	if got := MinorUnits(25.50); got != 2550 {
		t.Fatalf("expected 2550, got %d", got)
	}
	if got := MinorUnits(0.01); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := MinorUnits(100); got != 10000 {
		t.Fatalf("expected 10000, got %d", got)
	}
}
