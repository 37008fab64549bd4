package scope

import (
	"errors"
	"reflect"
	"testing"
)

func TestScopesForMergesAndSorts(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterRole("admin", "user.write", "user.read", "audit.read"); err != nil {
		t.Fatalf("RegisterRole failed: %v", err)
	}
	if err := r.RegisterRole("support", "user.read", "ticket.read"); err != nil {
		t.Fatalf("RegisterRole failed: %v", err)
	}
	r.Freeze()

	got := r.ScopesFor([]string{"admin", "support"})
	want := []string{"audit.read", "ticket.read", "user.read", "user.write"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("scopes = %v, want %v", got, want)
	}
}

func TestScopesForUnknownRole(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterRole("admin", "user.read"); err != nil {
		t.Fatalf("RegisterRole failed: %v", err)
	}
	r.Freeze()

	if got := r.ScopesFor([]string{"ghost"}); got != nil {
		t.Fatalf("unknown role produced scopes: %v", got)
	}
	if got := r.ScopesFor(nil); got != nil {
		t.Fatalf("empty role set produced scopes: %v", got)
	}

	// A known role mixed with an unknown one still resolves.
	got := r.ScopesFor([]string{"ghost", "admin"})
	if !reflect.DeepEqual(got, []string{"user.read"}) {
		t.Fatalf("scopes = %v", got)
	}
}

func TestRegisterRoleAfterFreeze(t *testing.T) {
	r := NewRegistry()
	r.Freeze()

	if err := r.RegisterRole("admin", "user.read"); !errors.Is(err, ErrRegistryFrozen) {
		t.Fatalf("err = %v, want ErrRegistryFrozen", err)
	}
	if !r.Frozen() {
		t.Fatal("registry not reporting frozen")
	}
}

func TestRegisterRoleEmptyName(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterRole(""); err == nil {
		t.Fatal("empty role name accepted")
	}
}

func TestRegisterRoleReplacesBinding(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterRole("admin", "user.read", "user.write"); err != nil {
		t.Fatalf("RegisterRole failed: %v", err)
	}
	if err := r.RegisterRole("admin", "user.read"); err != nil {
		t.Fatalf("re-RegisterRole failed: %v", err)
	}
	r.Freeze()

	got := r.ScopesFor([]string{"admin"})
	if !reflect.DeepEqual(got, []string{"user.read"}) {
		t.Fatalf("scopes = %v, want the replacement binding only", got)
	}
}

func TestRegisterRoleCopiesScopes(t *testing.T) {
	r := NewRegistry()
	scopes := []string{"user.read"}
	if err := r.RegisterRole("admin", scopes...); err != nil {
		t.Fatalf("RegisterRole failed: %v", err)
	}
	scopes[0] = "mutated"

	if got := r.ScopesFor([]string{"admin"}); !reflect.DeepEqual(got, []string{"user.read"}) {
		t.Fatalf("scopes = %v, caller mutation leaked in", got)
	}
}

func TestScopesStrictLookup(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterRole("admin", "user.write", "user.read"); err != nil {
		t.Fatalf("RegisterRole failed: %v", err)
	}
	r.Freeze()

	got, err := r.Scopes("admin")
	if err != nil {
		t.Fatalf("Scopes failed: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"user.write", "user.read"}) {
		t.Fatalf("scopes = %v, want registration order preserved", got)
	}

	got[0] = "mutated"
	again, err := r.Scopes("admin")
	if err != nil {
		t.Fatalf("Scopes failed: %v", err)
	}
	if again[0] != "user.write" {
		t.Fatal("caller mutation leaked into the registry")
	}

	if _, err := r.Scopes("ghost"); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("err = %v, want ErrUnknownRole", err)
	}
}

func TestHasRole(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterRole("admin", "user.read"); err != nil {
		t.Fatalf("RegisterRole failed: %v", err)
	}

	if !r.HasRole("admin") {
		t.Fatal("registered role not found")
	}
	if r.HasRole("ghost") {
		t.Fatal("unregistered role found")
	}
}
