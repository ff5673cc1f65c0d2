// Package isbn parses, validates, and converts ISBN-10 and ISBN-13
// identifiers. All functions are pure and safe for concurrent use.
package isbn

import (
	"errors"
	"strings"
	"unicode"
)

// Parsed holds the canonical forms of a successfully parsed ISBN.
type Parsed struct {
	// ISBN13 is the canonical 13-digit form. Always set.
	ISBN13 string
	// ISBN10 is the 10-character form. Empty for ISBNs outside the 978
	// prefix range, which have no ISBN-10 equivalent.
	ISBN10 string
	// Hyphenated is a display form of ISBN13. Grouping is fixed
	// (prefix-group-publisher-title-check) rather than range-exact.
	Hyphenated string
}

// Parse failure reasons. Callers can match with errors.Is.
var (
	ErrEmpty      = errors.New("isbn: empty input")
	ErrLength     = errors.New("isbn: must be 10 or 13 characters")
	ErrDigits     = errors.New("isbn: contains non-numeric characters")
	ErrCheckDigit = errors.New("isbn: invalid check digit")
)

// Parse normalizes raw input into canonical ISBN forms. Whitespace and
// hyphens are stripped before validation, so catalog-style inputs like
// "978-0-306-40615-7" are accepted.
func Parse(raw string) (Parsed, error) {
	s := clean(raw)
	switch len(s) {
	case 0:
		return Parsed{}, ErrEmpty
	case 10:
		s = strings.ToUpper(s)
		if err := validate10(s); err != nil {
			return Parsed{}, err
		}
		thirteen := convert10to13(s)
		return Parsed{ISBN13: thirteen, ISBN10: s, Hyphenated: Hyphenate(thirteen)}, nil
	case 13:
		if err := validate13(s); err != nil {
			return Parsed{}, err
		}
		return Parsed{ISBN13: s, ISBN10: convert13to10(s), Hyphenated: Hyphenate(s)}, nil
	default:
		return Parsed{}, ErrLength
	}
}

// Valid reports whether raw parses as an ISBN-10 or ISBN-13.
func Valid(raw string) bool {
	_, err := Parse(raw)
	return err == nil
}

// ToISBN13 converts an ISBN-10 to its 978-prefixed ISBN-13 form.
func ToISBN13(isbn10 string) (string, error) {
	s := strings.ToUpper(clean(isbn10))
	if len(s) != 10 {
		return "", ErrLength
	}
	if err := validate10(s); err != nil {
		return "", err
	}
	return convert10to13(s), nil
}

// ToISBN10 converts an ISBN-13 to its ISBN-10 form. ISBNs outside the
// 978 prefix range have no ISBN-10 form; those return "" with nil error.
func ToISBN10(isbn13 string) (string, error) {
	s := clean(isbn13)
	if len(s) != 13 {
		return "", ErrLength
	}
	if err := validate13(s); err != nil {
		return "", err
	}
	return convert13to10(s), nil
}

// Hyphenate renders a 13-digit ISBN in a fixed 3-1-4-4-1 grouping for
// display. Input is assumed valid; anything else is returned unchanged.
func Hyphenate(isbn13 string) string {
	if len(isbn13) != 13 {
		return isbn13
	}
	return isbn13[:3] + "-" + isbn13[3:4] + "-" + isbn13[4:8] + "-" + isbn13[8:12] + "-" + isbn13[12:]
}

func clean(raw string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
}

// validate10 checks the mod-11 weighted sum. The input must already be
// upper-cased and exactly 10 characters.
func validate10(s string) error {
	sum := 0
	for i := 0; i < 9; i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return ErrDigits
		}
		sum += (10 - i) * int(c-'0')
	}
	var check int
	switch c := s[9]; {
	case c >= '0' && c <= '9':
		check = int(c - '0')
	case c == 'X':
		check = 10
	default:
		return ErrDigits
	}
	if check != (11-sum%11)%11 {
		return ErrCheckDigit
	}
	return nil
}

// validate13 checks the mod-10 alternating 1,3 weighted sum.
func validate13(s string) error {
	for i := 0; i < 13; i++ {
		if c := s[i]; c < '0' || c > '9' {
			return ErrDigits
		}
	}
	if s[12] != checkDigit13(s[:12]) {
		return ErrCheckDigit
	}
	return nil
}

func checkDigit13(first12 string) byte {
	sum := 0
	for i := 0; i < 12; i++ {
		w := 1
		if i%2 == 1 {
			w = 3
		}
		sum += w * int(first12[i]-'0')
	}
	return byte('0' + (10-sum%10)%10)
}

func checkDigit10(first9 string) byte {
	sum := 0
	for i := 0; i < 9; i++ {
		sum += (10 - i) * int(first9[i]-'0')
	}
	check := (11 - sum%11) % 11
	if check == 10 {
		return 'X'
	}
	return byte('0' + check)
}

// convert10to13 assumes a validated ISBN-10.
func convert10to13(s string) string {
	core := "978" + s[:9]
	return core + string(checkDigit13(core))
}

// convert13to10 assumes a validated ISBN-13. Returns "" for non-978 prefixes.
func convert13to10(s string) string {
	if !strings.HasPrefix(s, "978") {
		return ""
	}
	core := s[3:12]
	return core + string(checkDigit10(core))
}
