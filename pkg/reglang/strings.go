package reglang

import (
	"math/big"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var lowerCaser = cases.Lower(language.Und)

// Lower case-folds a RegLang string literal. All string values in the
// language are case-insensitive and normalized to lower case.
func Lower(s string) string {
	return lowerCaser.String(s)
}

// String2Int converts a RegLang string into a number. Accepted forms are a
// plain decimal digit run or a 0x-prefixed hexadecimal literal; anything
// else reports ok=false.
func String2Int(val string) (*big.Int, bool) {
	if rest, found := strings.CutPrefix(val, "0x"); found {
		if rest == "" || !isHexDigits(rest) {
			return nil, false
		}
		n, ok := new(big.Int).SetString(rest, 16)
		return n, ok
	}
	if val == "" || !isDecDigits(val) {
		return nil, false
	}
	n, ok := new(big.Int).SetString(val, 10)
	return n, ok
}

func isDecDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isHexDigits(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
