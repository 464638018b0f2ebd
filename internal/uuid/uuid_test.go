package uuid

import (
	"testing"
)

func TestNew(t *testing.T) {
	id1 := New()
	id2 := New()

	if len(id1) == 0 {
		t.Error("UUID should not be empty")
	}

	if id1 == id2 {
		t.Error("UUIDs should be unique")
	}
	if !Valid(id1) {
		t.Errorf("New returned unparsable UUID %q", id1)
	}
}

func TestValid(t *testing.T) {
	for _, s := range []string{"", "not-a-uuid", "1234"} {
		if Valid(s) {
			t.Errorf("Valid(%q) = true, want false", s)
		}
	}
}
