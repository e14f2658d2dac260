package ringkey

import "testing"

func TestHashKeyPadRuleMatchesExplicitRepeat(t *testing.T) {
	if got, want := HashKey("a"), HashKey("aaaaaaaaaaaaaaaa"); got != want {
		t.Fatalf("HashKey(%q) = %d, want HashKey(%q) = %d", "a", got, "aaaaaaaaaaaaaaaa", want)
	}
}

func TestHashKeyIsDeterministic(t *testing.T) {
	for _, key := range []string{"", "dungeons", "a very long key that is already past sixteen bytes"} {
		if HashKey(key) != HashKey(key) {
			t.Fatalf("HashKey(%q) is not deterministic", key)
		}
	}
}

func TestHashKeyInRange(t *testing.T) {
	for _, key := range []string{"", "x", "dragons", "1234567890123456789"} {
		h := HashKey(key)
		if h < 0 || h > Max {
			t.Fatalf("HashKey(%q) = %d out of [0, %d]", key, h, Max)
		}
	}
}

func TestClockwiseDist(t *testing.T) {
	if d := ClockwiseDist(10, 5); d != 5 {
		t.Fatalf("ClockwiseDist(10,5) = %d, want 5", d)
	}
	if d := ClockwiseDist(5, 10); d != Max-4 {
		t.Fatalf("ClockwiseDist(5,10) = %d, want %d", d, Max-4)
	}
	if d := ClockwiseDist(7, 7); d != 0 {
		t.Fatalf("ClockwiseDist(7,7) = %d, want 0", d)
	}
}
