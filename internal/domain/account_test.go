package domain

import (
	"testing"
	"time"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func activeAccount() *Account {
	a := NewAccount("jdoe", "jdoe@example.com", "hash")
	a.ID = 1
	return a
}

func TestAccount_CanLogin(t *testing.T) {
	locked := t0.Add(5 * time.Minute)
	elapsed := t0.Add(-1 * time.Minute)

	tests := []struct {
		name        string
		isActive    bool
		lockedUntil *time.Time
		want        bool
	}{
		{name: "active unlocked", isActive: true, lockedUntil: nil, want: true},
		{name: "active locked", isActive: true, lockedUntil: &locked, want: false},
		{name: "active lock elapsed", isActive: true, lockedUntil: &elapsed, want: true},
		{name: "inactive unlocked", isActive: false, lockedUntil: nil, want: false},
		{name: "inactive locked", isActive: false, lockedUntil: &locked, want: false},
		{name: "inactive lock elapsed", isActive: false, lockedUntil: &elapsed, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := activeAccount()
			a.IsActive = tt.isActive
			a.LockedUntil = tt.lockedUntil

			if got := a.CanLogin(t0); got != tt.want {
				t.Errorf("CanLogin() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAccount_LockAndExpiry(t *testing.T) {
	a := activeAccount()

	change, err := a.Lock(t0, 5*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := t0.Add(5 * time.Minute); !change.Until.Equal(want) {
		t.Errorf("lock until = %v, want %v", change.Until, want)
	}

	if !a.IsLocked(t0) {
		t.Error("expected account locked immediately after Lock")
	}
	if a.CanLogin(t0) {
		t.Error("expected CanLogin false while locked")
	}

	// Advancing past the window unlocks without any explicit call.
	later := t0.Add(6 * time.Minute)
	if a.IsLocked(later) {
		t.Error("expected lock elapsed after window")
	}
	if !a.CanLogin(later) {
		t.Error("expected CanLogin true after window")
	}
}

func TestAccount_LockResetsWindow(t *testing.T) {
	a := activeAccount()

	if _, err := a.Lock(t0, 10*time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A second lock from a later instant overwrites the window, it does not
	// extend the first one.
	t1 := t0.Add(2 * time.Minute)
	change, err := a.Lock(t1, 5*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := t1.Add(5 * time.Minute); !change.Until.Equal(want) {
		t.Errorf("lock until = %v, want %v", change.Until, want)
	}
	if !a.LockedUntil.Equal(t1.Add(5 * time.Minute)) {
		t.Errorf("LockedUntil = %v, want %v", a.LockedUntil, t1.Add(5*time.Minute))
	}
}

func TestAccount_LockInvalidDuration(t *testing.T) {
	for _, d := range []time.Duration{0, -1 * time.Minute} {
		a := activeAccount()
		if _, err := a.Lock(t0, d); err != ErrInvalidLockDuration {
			t.Errorf("Lock(%v) error = %v, want ErrInvalidLockDuration", d, err)
		}
		if a.LockedUntil != nil {
			t.Errorf("Lock(%v) must not set LockedUntil on failure", d)
		}
	}
}

func TestAccount_FailedLoginCounter(t *testing.T) {
	a := activeAccount()

	for n := 1; n <= 7; n++ {
		change := a.RecordFailedLogin()
		if change.Attempts != n {
			t.Fatalf("attempt %d: change.Attempts = %d", n, change.Attempts)
		}
		if a.FailedLoginAttempts != n {
			t.Fatalf("attempt %d: counter = %d", n, a.FailedLoginAttempts)
		}
	}

	// Success resets regardless of count and clears the lock.
	if _, err := a.Lock(t0, 5*time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	change := a.RecordSuccessfulLogin(t0, "203.0.113.7")
	if a.FailedLoginAttempts != 0 {
		t.Errorf("counter after success = %d, want 0", a.FailedLoginAttempts)
	}
	if a.LockedUntil != nil {
		t.Error("expected LockedUntil cleared after success")
	}
	if a.LastLoginIP != "203.0.113.7" {
		t.Errorf("LastLoginIP = %q", a.LastLoginIP)
	}
	if change.LastLoginAt != t0 {
		t.Errorf("change.LastLoginAt = %v, want %v", change.LastLoginAt, t0)
	}

	// Idempotent: a second success leaves state unchanged.
	a.RecordSuccessfulLogin(t0, "203.0.113.7")
	if a.FailedLoginAttempts != 0 || a.LockedUntil != nil {
		t.Error("second success must leave state at (0, nil)")
	}
}

func TestAccount_DisplayName(t *testing.T) {
	tests := []struct {
		name      string
		firstName string
		lastName  string
		username  string
		want      string
	}{
		{name: "full name", firstName: "Jane", lastName: "Doe", username: "jdoe", want: "Jane Doe"},
		{name: "first only", firstName: "Jane", lastName: "", username: "jdoe", want: "Jane"},
		{name: "last only", firstName: "", lastName: "Doe", username: "jdoe", want: "Doe"},
		{name: "username fallback", firstName: "", lastName: "", username: "jdoe", want: "jdoe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Account{Username: tt.username, FirstName: tt.firstName, LastName: tt.lastName}
			if got := a.DisplayName(); got != tt.want {
				t.Errorf("DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAccount_ShortName(t *testing.T) {
	a := &Account{Username: "jdoe", FirstName: "Jane"}
	if got := a.ShortName(); got != "Jane" {
		t.Errorf("ShortName() = %q, want Jane", got)
	}
	a.FirstName = ""
	if got := a.ShortName(); got != "jdoe" {
		t.Errorf("ShortName() = %q, want jdoe", got)
	}
}

// fakeRoleProvider is a test double for RoleProvider.
type fakeRoleProvider struct {
	roles map[int64][]string
	perms map[int64][]string
}

func (f *fakeRoleProvider) HasRole(accountID int64, name string) bool {
	for _, r := range f.roles[accountID] {
		if r == name {
			return true
		}
	}
	return false
}

func (f *fakeRoleProvider) PermissionsFor(accountID int64) []string {
	return f.perms[accountID]
}

func TestAccount_IsAdmin(t *testing.T) {
	provider := &fakeRoleProvider{
		roles: map[int64][]string{
			1: {"Manager"},
			2: {AdminRoleName},
		},
	}

	tests := []struct {
		name        string
		id          int64
		isSuperuser bool
		want        bool
	}{
		{name: "superuser without admin role", id: 1, isSuperuser: true, want: true},
		{name: "admin role without superuser", id: 2, isSuperuser: false, want: true},
		{name: "neither", id: 1, isSuperuser: false, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := activeAccount()
			a.ID = tt.id
			a.IsSuperuser = tt.isSuperuser
			if got := a.IsAdmin(provider); got != tt.want {
				t.Errorf("IsAdmin() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAccount_HasRoleNilProvider(t *testing.T) {
	a := activeAccount()
	if a.HasRole(nil, "Admin") {
		t.Error("HasRole with nil provider must be false")
	}
	if a.Permissions(nil) != nil {
		t.Error("Permissions with nil provider must be nil")
	}
}

func TestAccount_Permissions(t *testing.T) {
	provider := &fakeRoleProvider{
		perms: map[int64][]string{1: {"can_view_profile", "can_edit_profile"}},
	}
	a := activeAccount()
	got := a.Permissions(provider)
	if len(got) != 2 {
		t.Fatalf("Permissions() = %v, want 2 entries", got)
	}
}

func TestAccount_ActiveTransitions(t *testing.T) {
	a := activeAccount()

	change := a.Deactivate()
	if a.IsActive || change.IsActive {
		t.Error("expected inactive after Deactivate")
	}
	if a.CanLogin(t0) {
		t.Error("deactivated account must not be able to log in")
	}

	change = a.Activate()
	if !a.IsActive || !change.IsActive {
		t.Error("expected active after Activate")
	}
}
