package value

import (
	"fmt"
	"regexp"
	"strings"
)

// ParseUID validates a UI value: a dot-separated sequence of numeric
// components, at most 64 characters, with no leading zero in any
// component other than the single-digit "0" itself.
func ParseUID(s string) (string, error) {
	s = strings.TrimRight(strings.TrimSpace(s), "\x00")
	if s == "" {
		return "", fmt.Errorf("value: invalid UI %q: empty", s)
	}
	if len(s) > 64 {
		return "", fmt.Errorf("value: invalid UI %q: longer than 64 characters", s)
	}
	for _, part := range strings.Split(s, ".") {
		if part == "" {
			return "", fmt.Errorf("value: invalid UI %q: empty component", s)
		}
		for _, r := range part {
			if r < '0' || r > '9' {
				return "", fmt.Errorf("value: invalid UI %q: non-numeric component %q", s, part)
			}
		}
		if len(part) > 1 && part[0] == '0' {
			return "", fmt.Errorf("value: invalid UI %q: leading zero in component %q", s, part)
		}
	}
	return s, nil
}

// FormatUID returns s unchanged; UID values carry no canonical
// transformation beyond the null-padding the data-set codec applies on
// write (UI pads with 0x00, not space, since its repertoire excludes it).
func FormatUID(s string) string {
	return s
}

// codeStringPattern is CS's default character repertoire: uppercase
// letters, digits, space, and underscore.
var codeStringPattern = regexp.MustCompile(`^[A-Z0-9 _]*$`)

// ParseCodeString validates and trims a CS value. CS has no lowercase
// letters, punctuation, or control characters; callers that receive mixed
// case from a lenient peer should reject it rather than silently folding
// it, since case sensitivity is part of what distinguishes CS from LO.
func ParseCodeString(s string) (string, error) {
	trimmed := strings.Trim(s, " ")
	if !codeStringPattern.MatchString(trimmed) {
		return "", fmt.Errorf("value: invalid CS %q: outside A-Z/0-9/space/underscore repertoire", s)
	}
	return trimmed, nil
}

// FormatCodeString returns s unchanged; the data-set codec handles
// space-padding to even length on write.
func FormatCodeString(s string) string {
	return s
}

// ParseApplicationEntity validates an AE title: 1-16 characters after
// trimming surrounding space, drawn from the default repertoire with
// backslash and control characters excluded.
func ParseApplicationEntity(s string) (string, error) {
	trimmed := strings.Trim(s, " ")
	if trimmed == "" {
		return "", fmt.Errorf("value: invalid AE %q: empty after trimming", s)
	}
	if len(trimmed) > 16 {
		return "", fmt.Errorf("value: invalid AE %q: longer than 16 characters", s)
	}
	for _, r := range trimmed {
		if r == '\\' || r < 0x20 || r == 0x7f {
			return "", fmt.Errorf("value: invalid AE %q: contains backslash or control character", s)
		}
	}
	return trimmed, nil
}

// FormatApplicationEntity space-pads an AE title to even length for wire
// encoding, as required of all VRs using the space padding byte.
func FormatApplicationEntity(s string) string {
	if len(s)%2 != 0 {
		return s + " "
	}
	return s
}

// uriSchemePattern matches the mandatory scheme prefix of a UR value per
// RFC 3986: a letter followed by letters, digits, '+', '.', or '-', then
// a colon.
var uriSchemePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.\-]*:`)

// ParseURI validates a UR value: no spaces or control characters, and a
// leading URI scheme. UR is unusual among the string VRs in that it is
// never trimmed or padded on read; the data-set codec strips the
// even-length padding byte before the value reaches here, so a trailing
// space surviving at this layer counts as part of the value and is
// rejected like any other space.
func ParseURI(s string) (string, error) {
	if !uriSchemePattern.MatchString(s) {
		return "", fmt.Errorf("value: invalid UR %q: missing scheme prefix", s)
	}
	for _, r := range s {
		if r == ' ' || r < 0x20 || r == 0x7f {
			return "", fmt.Errorf("value: invalid UR %q: contains space or control character", s)
		}
	}
	return s, nil
}

// FormatURI returns s unchanged; the data-set codec handles space-padding
// to even length on write.
func FormatURI(s string) string {
	return s
}
