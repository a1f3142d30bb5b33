// internal/drawing/model_test.go
//
// Unit-tests for the Likers set type.
package drawing

import (
	"testing"
)

func TestLikers_Membership(t *testing.T) {
	l := Likers{"alice", "bob"}
	if !l.Has("alice") || !l.Has("bob") {
		t.Fatal("expected members missing")
	}
	if l.Has("carol") {
		t.Fatal("unexpected member carol")
	}
	if l.Has("") {
		t.Fatal("empty string must never be a member")
	}
}

func TestLikers_WithWithout(t *testing.T) {
	l := Likers{"alice"}

	grown := l.With("bob")
	if len(grown) != 2 || !grown.Has("bob") {
		t.Fatalf("With: got %v", grown)
	}
	if len(l) != 1 {
		t.Fatalf("With mutated the receiver: %v", l)
	}

	shrunk := grown.Without("alice")
	if len(shrunk) != 1 || shrunk.Has("alice") {
		t.Fatalf("Without: got %v", shrunk)
	}
	if !grown.Has("alice") {
		t.Fatal("Without mutated the receiver")
	}
}

func TestLikers_ValueEncoding(t *testing.T) {
	cases := []struct {
		in   Likers
		want string
	}{
		{nil, "[]"},
		{Likers{}, "[]"},
		{Likers{"alice"}, `["alice"]`},
		{Likers{"alice", "bob"}, `["alice","bob"]`},
	}
	for _, tc := range cases {
		v, err := tc.in.Value()
		if err != nil {
			t.Fatalf("Value(%v): %v", tc.in, err)
		}
		if got := string(v.([]byte)); got != tc.want {
			t.Fatalf("Value(%v) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestLikers_Scan(t *testing.T) {
	var l Likers
	if err := l.Scan([]byte(`["alice","bob"]`)); err != nil {
		t.Fatalf("Scan bytes: %v", err)
	}
	if len(l) != 2 || !l.Has("bob") {
		t.Fatalf("Scan bytes: got %v", l)
	}

	if err := l.Scan(`["carol"]`); err != nil {
		t.Fatalf("Scan string: %v", err)
	}
	if len(l) != 1 || !l.Has("carol") {
		t.Fatalf("Scan string: got %v", l)
	}

	if err := l.Scan(nil); err != nil {
		t.Fatalf("Scan nil: %v", err)
	}
	if len(l) != 0 {
		t.Fatalf("Scan nil: got %v", l)
	}

	if err := l.Scan(42); err == nil {
		t.Fatal("Scan int: expected an error")
	}
}
