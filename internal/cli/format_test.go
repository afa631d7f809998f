package cli

import "testing"

func TestFormatNumber(t *testing.T) {
	cases := map[int]string{0: "0", 999: "999", 1000: "1,000", 1234567: "1,234,567", -1500: "-1,500"}
	for in, want := range cases {
		if got := FormatNumber(in); got != want {
			t.Errorf("FormatNumber(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestPadRight(t *testing.T) {
	if got := padRight("hi", 5); got != "hi   " {
		t.Errorf("padRight short = %q", got)
	}
	if got := padRight("toolongstring", 4); got != "tool" {
		t.Errorf("padRight truncation = %q", got)
	}
}

func TestQuoteTerms(t *testing.T) {
	got := quoteTerms([]string{"a", "b c"})
	want := []string{`"a"`, `"b c"`}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("quoteTerms = %+v, want %+v", got, want)
	}
}
