package answer

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"X = 5,5", "x=5.5"},
		{"  x  =\t5 ", "x=5"},
		{"3 × 4", "3*4"},
		{"x – 1", "x-1"},
		{"x = 2", "x=2"},
		{"(X-3)(X+3)", "(x-3)(x+3)"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"", "X = 5,5", "x=2 ou x=3", "  A × B — C ", "1,000,5", "=7"}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
	if Normalize("X = 5,5") != Normalize("x=5.5") {
		t.Error("case, space and decimal separator should not matter")
	}
}

func TestEquivalent(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		expected string
		want     bool
	}{
		{"both empty", "", "", false},
		{"empty user", "", "5", false},
		{"empty expected", "5", "", false},
		{"blank user", "   ", "5", false},
		{"only equals sign", "=", "5", false},
		{"identical", "42", "42", true},
		{"case and spaces", "X = 5", "x=5", true},
		{"decimal comma", "2,5", "2.5", true},
		{"leading equals", "=5", "5", true},
		{"bare value against equation", "5", "x=5", true},
		{"equation against equation", "y = 5", "x=5", true},
		{"equation against bare value", "x=5", "5", true},
		{"wrong value", "6", "x=5", false},
		{"wrong equation", "x=6", "x=5", false},
		{"first root of disjunction", "x=2", "x=2 ou x=3", true},
		{"second root of disjunction", "x=3", "x=2 ou x=3", true},
		{"bare root of disjunction", "2", "x=2 ou x=3", true},
		{"root not in disjunction", "x=4", "x=2 ou x=3", false},
		{"user-side disjunction", "x=2 ou x=3", "x=3", false},
		{"user-side disjunction bare", "x=2 ou x=3", "3", true},
		{"user equation against bare disjunction", "x=2 ou 3", "2 ou 3", true},
		{"word containing ou against equation", "cout = 5", "x=5", true},
		{"word containing ou against bare value", "cout = 5", "5", true},
		{"same disjunction", "x=2 ou x=3", "x=2 ou x=3", true},
		{"no arithmetic", "10/2", "5", false},
		{"fraction verbatim", "3/4", "3/4", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equivalent(tt.user, tt.expected); got != tt.want {
				t.Errorf("Equivalent(%q, %q) = %v, want %v", tt.user, tt.expected, got, tt.want)
			}
		})
	}
}

func TestExact(t *testing.T) {
	tests := []struct {
		user     string
		expected string
		want     bool
	}{
		{"x = 4", "x = 4", true},
		{" x = 4 ", "x = 4", true},
		{"x=4", "x = 4", false},
		{"", "", false},
		{"40 cm²", "40 cm²", true},
		{"x=3, y=2", "x=4, y=2", false},
	}
	for _, tt := range tests {
		if got := Exact(tt.user, tt.expected); got != tt.want {
			t.Errorf("Exact(%q, %q) = %v, want %v", tt.user, tt.expected, got, tt.want)
		}
	}
}
