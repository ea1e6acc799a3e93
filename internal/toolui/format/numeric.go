package format

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Currency and percent glyphs removed before parsing.
const symbolGlyphs = "$€£¥₹₩₽₺₫₪₴₦₱¢฿%‰"

var (
	plainLiteral = regexp.MustCompile(`^[+-]?(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?$`)
	suffixed     = regexp.MustCompile(`^([+-]?(?:\d+\.?\d*|\.\d+))([A-Za-z]{1,2})$`)
)

var decimalExponent = map[string]string{"K": "3", "M": "6", "G": "9", "T": "12", "P": "15"}

var binaryPower = map[string]int{"KB": 1, "MB": 2, "GB": 3, "TB": 4, "PB": 5}

// ParseNumericLike recovers a number from a human-formatted string such as
// "$1,234.56", "(12)", "2.8T" or "512 MB". It reports false when the string
// is not numeric after normalisation.
func ParseNumericLike(input string) (float64, bool) {
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, input)
	if s == "" {
		return 0, false
	}

	negative := false
	if len(s) > 2 && s[0] == '(' && s[len(s)-1] == ')' {
		negative = true
		s = s[1 : len(s)-1]
	}

	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(symbolGlyphs, r) {
			return -1
		}
		return r
	}, s)

	v, ok := parseMagnitude(normalizeSeparators(s))
	if !ok {
		return 0, false
	}
	if negative {
		v = -v
	}
	return v, true
}

// normalizeSeparators rewrites s so "." is the only decimal mark and grouping
// marks are gone.
func normalizeSeparators(s string) string {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.ReplaceAll(s, ",", ".")
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 {
			if n := leadingDigits(s[lastComma+1:]); n == 2 || n == 3 {
				return strings.Replace(s, ",", ".", 1)
			}
		}
		return strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ".") > 1:
		return strings.ReplaceAll(s, ".", "")
	default:
		return s
	}
}

func leadingDigits(s string) int {
	n := 0
	for n < len(s) && s[n] >= '0' && s[n] <= '9' {
		n++
	}
	return n
}

func parseMagnitude(s string) (float64, bool) {
	if plainLiteral.MatchString(s) {
		v, err := strconv.ParseFloat(s, 64)
		return v, err == nil
	}

	m := suffixed.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	coeff, suffix := m[1], strings.ToUpper(m[2])

	if exp, ok := decimalExponent[suffix]; ok {
		v, err := strconv.ParseFloat(coeff+"e"+exp, 64)
		return v, err == nil
	}

	c, err := strconv.ParseFloat(coeff, 64)
	if err != nil {
		return 0, false
	}
	if power, ok := binaryPower[suffix]; ok {
		return c * math.Pow(1024, float64(power)), true
	}
	if suffix == "B" {
		if c == math.Trunc(c) && math.Abs(c) < 1024 {
			return c, true
		}
		v, err := strconv.ParseFloat(coeff+"e9", 64)
		return v, err == nil
	}
	return 0, false
}
