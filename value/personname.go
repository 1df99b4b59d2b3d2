package value

import "strings"

// PersonNameComponents holds the five caret-delimited components of one
// group of a PN value: family^given^middle^prefix^suffix.
type PersonNameComponents struct {
	Family, Given, Middle, Prefix, Suffix string
}

// PersonName is a full PN value: up to three "="-delimited component
// groups (alphabetic, ideographic, phonetic), per DICOM PS3.5 Section 6.2.1.1.
type PersonName struct {
	Alphabetic  PersonNameComponents
	Ideographic PersonNameComponents
	Phonetic    PersonNameComponents
}

// ParsePersonName parses a PN value into its component groups. Missing
// trailing components and groups are left zero-valued; the parser never
// errors since any string is a structurally valid (if unusual) PN value.
func ParsePersonName(s string) PersonName {
	groups := strings.SplitN(s, "=", 3)
	var pn PersonName
	if len(groups) > 0 {
		pn.Alphabetic = parseComponents(groups[0])
	}
	if len(groups) > 1 {
		pn.Ideographic = parseComponents(groups[1])
	}
	if len(groups) > 2 {
		pn.Phonetic = parseComponents(groups[2])
	}
	return pn
}

func parseComponents(s string) PersonNameComponents {
	parts := strings.Split(s, "^")
	var c PersonNameComponents
	fields := []*string{&c.Family, &c.Given, &c.Middle, &c.Prefix, &c.Suffix}
	for i, p := range parts {
		if i >= len(fields) {
			break
		}
		*fields[i] = p
	}
	return c
}

// String reassembles the PN value, trimming unused trailing groups and
// trailing empty components the way DICOM senders conventionally do.
func (pn PersonName) String() string {
	groups := []string{
		formatComponents(pn.Alphabetic),
		formatComponents(pn.Ideographic),
		formatComponents(pn.Phonetic),
	}
	for len(groups) > 0 && groups[len(groups)-1] == "" {
		groups = groups[:len(groups)-1]
	}
	return strings.Join(groups, "=")
}

func formatComponents(c PersonNameComponents) string {
	parts := []string{c.Family, c.Given, c.Middle, c.Prefix, c.Suffix}
	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return strings.Join(parts, "^")
}
