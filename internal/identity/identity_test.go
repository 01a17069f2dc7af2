package identity

import "testing"

func TestDeriveUserIDFiltersAndLowercases(t *testing.T) {
	cases := []struct {
		username string
		want     string
	}{
		{"Alice", "user-alice"},
		{"Bob_Smith-99", "user-bob_smith-99"},
		{"a l i c e!!", "user-alice"},
		{"日本語Bob", "user-bob"},
	}
	for _, c := range cases {
		got := DeriveUserID(c.username)
		if got != c.want {
			t.Errorf("DeriveUserID(%q) = %q, want %q", c.username, got, c.want)
		}
	}
}

func TestDeriveUserIDIdempotent(t *testing.T) {
	usernames := []string{"Alice", "Bob_Smith-99", "ZEBRA"}
	for _, u := range usernames {
		once := DeriveUserID(u)
		twice := DeriveUserID(once)
		if once != twice {
			t.Errorf("DeriveUserID not idempotent for %q: once=%q twice=%q", u, once, twice)
		}
	}
}

func TestValidUsername(t *testing.T) {
	if !ValidUsername("alice") {
		t.Error("expected alice to be valid")
	}
	if ValidUsername("!!!") {
		t.Error("expected !!! to be invalid")
	}
	if ValidUsername("") {
		t.Error("expected empty string to be invalid")
	}
}
