package answer

import "strings"

// disjunction separates alternative solutions in an expected answer,
// e.g. "x=2 ou x=3".
const disjunction = "ou"

// Equivalent reports whether userAnswer matches expected. Rules, in order:
//
//  1. either side empty after normalization: no match
//  2. one leading "=" is dropped from the user answer
//  3. identical normalized strings match
//  4. expected is an equation: the user answer may be its right-hand side,
//     or an equation with the same right-hand side
//  5. expected lists alternatives joined by "ou": any alternative matches
//  6. the user wrote an equation but expected is a bare value: the user's
//     right-hand side is compared with the whole expected string
//
// When expected is an equation, a user answer that itself lists alternatives
// is not reduced to its last right-hand side, so hedging with "x=2 ou x=3"
// does not satisfy "x=3".
func Equivalent(userAnswer, expected string) bool {
	return equivalent(Normalize(userAnswer), Normalize(expected))
}

func equivalent(u, e string) bool {
	u = strings.TrimPrefix(u, "=")
	if u == "" || e == "" {
		return false
	}

	if u == e {
		return true
	}

	userRHS, userHasRHS := rightHandSide(u)

	if expectedRHS, ok := rightHandSide(e); ok {
		if u == expectedRHS {
			return true
		}
		if userHasRHS && !listsEquations(u) && userRHS == expectedRHS {
			return true
		}
	}

	if strings.Contains(e, disjunction) {
		for _, alt := range strings.Split(e, disjunction) {
			if alt != "" && alt != e && equivalent(u, alt) {
				return true
			}
		}
	}

	if userHasRHS && !strings.Contains(e, "=") {
		return userRHS == e
	}

	return false
}

// listsEquations reports whether s joins several equations with "ou".
func listsEquations(s string) bool {
	return strings.Count(s, "=") > 1 && strings.Contains(s, disjunction)
}

// rightHandSide returns the text after the last "=", if any is present and
// non-empty.
func rightHandSide(s string) (string, bool) {
	i := strings.LastIndex(s, "=")
	if i < 0 || i == len(s)-1 {
		return "", false
	}
	return s[i+1:], true
}

// Exact reports whether a multiple-choice answer is verbatim the expected
// option. Surrounding whitespace is ignored; an empty answer never matches.
func Exact(userAnswer, expected string) bool {
	u := strings.TrimSpace(userAnswer)
	return u != "" && u == strings.TrimSpace(expected)
}
