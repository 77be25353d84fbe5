package query

import (
	"regexp"
	"strings"
)

// phoneSeparators are tolerated between digits of a phone number
const phoneSeparators = `[\s\-().+/]*`

// EscapeStringForRegex escapes every regex metacharacter
// (. * + ? ^ $ { } ( ) | [ ] \) so free text matches literally.
func EscapeStringForRegex(s string) string {
	return regexp.QuoteMeta(s)
}

// PhoneNumberPattern derives a loose regex for phone-like input: its digits in
// order with optional separators between them. It returns false when the input
// holds no digit, meaning no phone filter should be added.
func PhoneNumberPattern(s string) (string, bool) {
	var digits []string
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits = append(digits, string(r))
		}
	}
	if len(digits) == 0 {
		return "", false
	}
	return strings.Join(digits, phoneSeparators), true
}
