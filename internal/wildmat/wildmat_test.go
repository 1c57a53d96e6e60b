package wildmat

import "testing"

func TestMatch(t *testing.T) {
	cases := []struct {
		text, pattern string
		want          bool
	}{
		{"comp.lang.go", "comp.*", true},
		{"comp.lang.go", "comp.lang.*", true},
		{"comp.lang.go", "alt.*", false},
		{"misc.test", "misc.test", true},
		{"misc.test", "misc.tes?", true},
		{"misc.test", "misc.tes??", false},
		{"misc.test", "m[ij]sc.test", true},
		{"misc.test", "m[!ij]sc.test", false},
		{"misc.test", "m[^a-l]sc.test", false},
		{"a.b.c", "a.\\*.c", false},
		{"a.*.c", "a.\\*.c", true},
		{"", "*", true},
		{"x", "", false},
		{"", "", true},
		{"abc", "[a-c][a-c][a-c]", true},
		{"abc", "[malformed", false},
	}
	for _, c := range cases {
		if got := Match(c.text, c.pattern); got != c.want {
			t.Errorf("Match(%q, %q) = %v, want %v", c.text, c.pattern, got, c.want)
		}
	}
}

func TestMatchAny(t *testing.T) {
	if !MatchAny("alt.test", []string{"comp.*", "alt.*"}) {
		t.Fatal("expected match")
	}
	if MatchAny("alt.test", []string{"comp.*"}) {
		t.Fatal("expected no match")
	}
}
