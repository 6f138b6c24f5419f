package util

import (
	"errors"
	"testing"
)

func TestNormalizeNumber(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "1234567890", want: "+1234567890"},
		{in: "+1234567890", want: "+1234567890"},
		{in: "+12 34", want: "+1234"},
		{in: "  +12\t34  ", want: "+1234"},
		{in: "00 44 123", want: "+0044123"},
		{in: "+", wantErr: true},
		{in: "", wantErr: true},
		{in: "   ", wantErr: true},
		{in: "+abc", wantErr: true},
		{in: "+12a4", wantErr: true},
		{in: "++123", wantErr: true},
	}

	for _, c := range cases {
		got, err := NormalizeNumber(c.in)
		if c.wantErr {
			if !errors.Is(err, ErrInvalidNumber) {
				t.Errorf("NormalizeNumber(%q): expected ErrInvalidNumber, got %v (%q)", c.in, err, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("NormalizeNumber(%q): unexpected error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("NormalizeNumber(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNumberDigits(t *testing.T) {
	t.Parallel()

	if got := NumberDigits("+1415550199"); got != "1415550199" {
		t.Fatalf("NumberDigits(+1415550199) = %q", got)
	}
	if got := NumberDigits("1234"); got != "1234" {
		t.Fatalf("NumberDigits(1234) = %q", got)
	}
}

func TestNewIDUnique(t *testing.T) {
	t.Parallel()

	a, b := NewID(), NewID()
	if a == "" || a == b {
		t.Fatalf("expected distinct non-empty ids, got %q and %q", a, b)
	}
}
