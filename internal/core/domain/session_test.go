package domain

import (
	"testing"
	"time"
)

func TestIsBlankToken(t *testing.T) {
	if !IsBlankToken("") {
		t.Fatalf("empty token should be blank")
	}
	if !IsBlankToken("null") {
		t.Fatalf("literal null token should be blank")
	}
	if IsBlankToken("abc123") {
		t.Fatalf("real token should not be blank")
	}
	if IsBlankToken("NULL") {
		t.Fatalf("only the exact lowercase literal counts as blank")
	}
}

func TestSessionIsComplete(t *testing.T) {
	user := &User{ID: "u1", Role: RoleUser}

	cases := []struct {
		name string
		sess *Session
		want bool
	}{
		{"nil session", nil, false},
		{"both halves", &Session{Token: "tok", User: user}, true},
		{"missing user", &Session{Token: "tok"}, false},
		{"blank token", &Session{Token: "", User: user}, false},
		{"null token", &Session{Token: "null", User: user}, false},
	}
	for _, tc := range cases {
		if got := tc.sess.IsComplete(); got != tc.want {
			t.Fatalf("%s: IsComplete = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestValidationResultFreshWithin(t *testing.T) {
	now := time.Now()
	window := time.Minute

	fresh := ValidationResult{Valid: true, Timestamp: now.Add(-30 * time.Second)}
	if !fresh.FreshWithin(window, now) {
		t.Fatalf("result inside the window should be fresh")
	}

	stale := ValidationResult{Valid: true, Timestamp: now.Add(-2 * time.Minute)}
	if stale.FreshWithin(window, now) {
		t.Fatalf("result outside the window should be stale")
	}

	var zero ValidationResult
	if zero.FreshWithin(window, now) {
		t.Fatalf("zero-value result should never count as fresh")
	}
}
