package presence

import "testing"

func TestKeyEscapesIdentity(t *testing.T) {
	tests := []struct {
		prefix string
		email  string
		want   string
	}{
		{"user_status", "alice@example.com", "user_status_alice%40example.com"},
		{"user_last_seen", "alice@example.com", "user_last_seen_alice%40example.com"},
		{"user_status", "a+b@example.com", "user_status_a%2Bb%40example.com"},
		{"user_status", "", "user_status_"},
	}

	for _, tt := range tests {
		if got := Key(tt.prefix, tt.email); got != tt.want {
			t.Errorf("Key(%q, %q) = %q, want %q", tt.prefix, tt.email, got, tt.want)
		}
	}
}

func TestKeyAvoidsCollisions(t *testing.T) {
	// two distinct identities must never share a key
	a := Key("user_status", "a_b@example.com")
	b := Key("user_status", "a b@example.com")
	if a == b {
		t.Errorf("keys collide: %q", a)
	}
}
