package domain

import (
	"testing"
	"time"
)

func TestAccount_Active(t *testing.T) {
	now := time.Now()
	if (&Account{IsVerified: false}).Active() {
		t.Error("unverified account is not active")
	}
	if (&Account{IsVerified: true, WillDeleteAt: &now}).Active() {
		t.Error("account scheduled for deletion is not active")
	}
	if !(&Account{IsVerified: true}).Active() {
		t.Error("verified account should be active")
	}
}

func TestPatch_ApplyAndRestore(t *testing.T) {
	verified := true
	name := "Ada"
	when := time.Now()
	a := Patch{IsVerified: &verified, FullName: &name, WillDeleteAt: &when}.Apply(Account{ID: "a1"})
	if !a.IsVerified || a.FullName != "Ada" || a.WillDeleteAt == nil {
		t.Fatalf("Apply = %+v", a)
	}
	a = Patch{Restore: true}.Apply(a)
	if a.WillDeleteAt != nil {
		t.Error("Restore should clear WillDeleteAt")
	}
	if !(Patch{}).Empty() || (Patch{Restore: true}).Empty() {
		t.Error("Empty mismatch")
	}
}
