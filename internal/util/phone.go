package util

import (
	"regexp"
	"strings"
)

var (
	phoneJunk     = regexp.MustCompile(`[\s\-\.\(\)]+`)
	subscriberNum = regexp.MustCompile(`^628[1-9][0-9]{6,10}$`)
)

// NormalizePhone rewrites local and international forms of an Indonesian
// mobile number (08…, +628…, 00628…, 8…) into the 628… form the carrier
// expects. Characters other than digits and separators are kept so the
// result fails validation instead of being silently repaired.
func NormalizePhone(raw string) string {
	s := phoneJunk.ReplaceAllString(strings.TrimSpace(raw), "")

	switch {
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	case strings.HasPrefix(s, "00"):
		s = s[2:]
	}

	if strings.HasPrefix(s, "08") {
		s = "62" + s[1:]
	} else if strings.HasPrefix(s, "8") {
		s = "62" + s
	}

	return s
}

// ValidContact reports whether raw is an acceptable subscriber number.
func ValidContact(raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return false
	}
	return subscriberNum.MatchString(NormalizePhone(raw))
}
