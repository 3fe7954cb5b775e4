package domain_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"worktally/internal/domain"
)

func rate(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestValidateMembers(t *testing.T) {
	ok := []domain.Member{
		{Email: "alice@example.com", HourlyRate: rate("10")},
		{Email: "bob@example.com", HourlyRate: rate("0")},
	}
	if err := domain.ValidateMembers(ok); err != nil {
		t.Fatalf("valid members rejected: %v", err)
	}

	if err := domain.ValidateMembers([]domain.Member{{HourlyRate: rate("10")}}); err == nil {
		t.Fatalf("missing email accepted")
	}
	dup := []domain.Member{
		{Email: "alice@example.com", HourlyRate: rate("10")},
		{Email: "alice@example.com", HourlyRate: rate("20")},
	}
	if err := domain.ValidateMembers(dup); !errors.Is(err, domain.ErrDuplicateMember) {
		t.Fatalf("expected ErrDuplicateMember, got %v", err)
	}
	if err := domain.ValidateMembers([]domain.Member{{Email: "a@b.c", HourlyRate: rate("-1")}}); err == nil {
		t.Fatalf("negative rate accepted")
	}
}

func TestValidateHours(t *testing.T) {
	if err := domain.ValidateHours(rate("0")); err != nil {
		t.Fatalf("zero hours rejected: %v", err)
	}
	if err := domain.ValidateHours(rate("-0.5")); !errors.Is(err, domain.ErrInvalidHours) {
		t.Fatalf("expected ErrInvalidHours, got %v", err)
	}
}

func TestAssignedRate(t *testing.T) {
	task := domain.Task{AssignedMembers: []domain.Member{
		{Email: "alice@example.com", HourlyRate: rate("12.5")},
	}}
	r, ok := task.AssignedRate("alice@example.com")
	if !ok || r.Cmp(rate("12.5")) != 0 {
		t.Fatalf("rate = %s ok=%v", r, ok)
	}
	if _, ok := task.AssignedRate("carol@example.com"); ok {
		t.Fatalf("unassigned member resolved")
	}
}

func TestCloneTasks(t *testing.T) {
	orig := []domain.Task{{ID: "a"}, {ID: "b"}}
	clone := domain.CloneTasks(orig)
	clone[0].Completed = true
	if orig[0].Completed {
		t.Fatalf("clone aliases original")
	}
	if domain.CloneTasks(nil) != nil {
		t.Fatalf("nil should clone to nil")
	}
}
