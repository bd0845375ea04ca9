package domain

import (
	"errors"
	"testing"
)

func TestParseRole(t *testing.T) {
	cases := []struct {
		in   string
		want Role
		err  bool
	}{
		{"USER", RoleEndUser, false},
		{" user ", RoleEndUser, false},
		{"OPERATOR", RoleOperator, false},
		{"operator", RoleOperator, false},
		{"ADMIN", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := ParseRole(tc.in)
		if tc.err {
			if !errors.Is(err, ErrUnknownRole) {
				t.Errorf("ParseRole(%q) err = %v; want ErrUnknownRole", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParseRole(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
}

func TestRole_ValidAndCounterpart(t *testing.T) {
	if !RoleEndUser.Valid() || !RoleOperator.Valid() || Role("x").Valid() {
		t.Fatalf("Valid() mismatch")
	}
	if RoleEndUser.Counterpart() != RoleOperator || RoleOperator.Counterpart() != RoleEndUser {
		t.Fatalf("Counterpart() mismatch")
	}
}

func TestIdentity_Helpers(t *testing.T) {
	u := Identity{ID: 12, Role: RoleEndUser}
	o := Identity{ID: 3, Role: RoleOperator}
	if !u.IsEndUser() || u.IsOperator() {
		t.Fatalf("end-user predicates wrong")
	}
	if !o.IsOperator() || o.IsEndUser() {
		t.Fatalf("operator predicates wrong")
	}
	if u.Key() != "USER:12" || o.Key() != "OPERATOR:3" {
		t.Fatalf("Key() = %q / %q", u.Key(), o.Key())
	}
}
