// Package value implements parsing and formatting for the DICOM string-typed
// value representations whose wire form is not simply "pass the bytes
// through": dates, times, datetimes, ages, decimal/integer strings, and
// person names.
//
// Every parser round-trips: Format(Parse(s)) reproduces a value equivalent
// to s for any wire-valid s (modulo trailing padding, which the data-set
// codec strips before values reach this package).
package value

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Date is a calendar date with DICOM DA's YYYYMMDD precision.
type Date struct {
	Year, Month, Day int
}

// ParseDate parses a DA value (YYYYMMDD, or the retired YYYY.MM.DD form).
func ParseDate(s string) (Date, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ".", "")
	if len(s) != 8 {
		return Date{}, fmt.Errorf("value: invalid DA %q: want 8 digits", s)
	}
	y, err1 := strconv.Atoi(s[0:4])
	m, err2 := strconv.Atoi(s[4:6])
	d, err3 := strconv.Atoi(s[6:8])
	if err1 != nil || err2 != nil || err3 != nil {
		return Date{}, fmt.Errorf("value: invalid DA %q: non-numeric", s)
	}
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return Date{}, fmt.Errorf("value: invalid DA %q: out of range", s)
	}
	return Date{Year: y, Month: m, Day: d}, nil
}

// String formats a Date in canonical YYYYMMDD form.
func (d Date) String() string {
	return fmt.Sprintf("%04d%02d%02d", d.Year, d.Month, d.Day)
}

// Time is a time of day with DICOM TM's up-to-microsecond precision.
// FractionDigits records how many digits of fractional seconds were present
// on the wire so re-encoding doesn't invent precision that wasn't there.
type Time struct {
	Hour, Minute, Second, Microsecond int
	FractionDigits                    int
}

// ParseTime parses a TM value: HH[MM[SS[.FFFFFF]]], optionally colon-separated
// per the retired form.
func ParseTime(s string) (Time, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ":", "")
	if s == "" {
		return Time{}, fmt.Errorf("value: empty TM")
	}
	var frac string
	if idx := strings.IndexByte(s, '.'); idx != -1 {
		frac = s[idx+1:]
		s = s[:idx]
	}
	if len(s) < 2 || len(s) > 6 || len(s)%2 != 0 {
		return Time{}, fmt.Errorf("value: invalid TM %q", s)
	}
	var t Time
	hh, err := strconv.Atoi(s[0:2])
	if err != nil || hh > 23 {
		return Time{}, fmt.Errorf("value: invalid TM hour in %q", s)
	}
	t.Hour = hh
	if len(s) >= 4 {
		mm, err := strconv.Atoi(s[2:4])
		if err != nil || mm > 59 {
			return Time{}, fmt.Errorf("value: invalid TM minute in %q", s)
		}
		t.Minute = mm
	}
	if len(s) >= 6 {
		ss, err := strconv.Atoi(s[4:6])
		if err != nil || ss > 60 {
			return Time{}, fmt.Errorf("value: invalid TM second in %q", s)
		}
		t.Second = ss
	}
	if frac != "" {
		t.FractionDigits = len(frac)
		padded := (frac + "000000")[:6]
		us, err := strconv.Atoi(padded)
		if err != nil {
			return Time{}, fmt.Errorf("value: invalid TM fraction in %q", s)
		}
		t.Microsecond = us
	}
	return t, nil
}

// String formats a Time using exactly FractionDigits digits of precision
// (zero digits omits the fractional part and its leading dot).
func (t Time) String() string {
	base := fmt.Sprintf("%02d%02d%02d", t.Hour, t.Minute, t.Second)
	if t.FractionDigits == 0 {
		return base
	}
	frac := fmt.Sprintf("%06d", t.Microsecond)[:t.FractionDigits]
	return base + "." + frac
}

// DateTime combines Date, Time, and an optional UTC offset in minutes.
type DateTime struct {
	Date
	Time
	HasOffset   bool
	OffsetMinutes int
}

// ParseDateTime parses a DT value: YYYYMMDDHHMMSS.FFFFFF&ZZXX, with every
// component after the 4-digit year optional.
func ParseDateTime(s string) (DateTime, error) {
	s = strings.TrimSpace(s)
	var offsetStr string
	if idx := strings.IndexAny(s, "+-"); idx >= 4 {
		offsetStr = s[idx:]
		s = s[:idx]
	}
	if len(s) < 4 {
		return DateTime{}, fmt.Errorf("value: invalid DT %q", s)
	}
	var dt DateTime
	year, err := strconv.Atoi(s[0:4])
	if err != nil {
		return DateTime{}, fmt.Errorf("value: invalid DT year in %q", s)
	}
	dt.Year = year
	dt.Month, dt.Day = 1, 1
	rest := s[4:]
	if len(rest) >= 2 {
		m, err := strconv.Atoi(rest[0:2])
		if err != nil {
			return DateTime{}, fmt.Errorf("value: invalid DT month in %q", s)
		}
		dt.Month = m
		rest = rest[2:]
	}
	if len(rest) >= 2 {
		d, err := strconv.Atoi(rest[0:2])
		if err != nil {
			return DateTime{}, fmt.Errorf("value: invalid DT day in %q", s)
		}
		dt.Day = d
		rest = rest[2:]
	}
	if rest != "" {
		t, err := ParseTime(rest)
		if err != nil {
			return DateTime{}, fmt.Errorf("value: invalid DT time in %q: %w", s, err)
		}
		dt.Time = t
	}
	if offsetStr != "" {
		if len(offsetStr) != 5 {
			return DateTime{}, fmt.Errorf("value: invalid DT offset %q", offsetStr)
		}
		sign := 1
		if offsetStr[0] == '-' {
			sign = -1
		}
		oh, err1 := strconv.Atoi(offsetStr[1:3])
		om, err2 := strconv.Atoi(offsetStr[3:5])
		if err1 != nil || err2 != nil {
			return DateTime{}, fmt.Errorf("value: invalid DT offset %q", offsetStr)
		}
		dt.HasOffset = true
		dt.OffsetMinutes = sign * (oh*60 + om)
	}
	return dt, nil
}

// String formats a DateTime back to wire form.
func (dt DateTime) String() string {
	s := dt.Date.String() + dt.Time.String()
	if dt.HasOffset {
		sign := byte('+')
		off := dt.OffsetMinutes
		if off < 0 {
			sign = '-'
			off = -off
		}
		s += fmt.Sprintf("%c%02d%02d", sign, off/60, off%60)
	}
	return s
}

// Age is a DICOM AS value: a count of days, weeks, months, or years.
type Age struct {
	Count int
	Unit  byte // 'D', 'W', 'M', or 'Y'
}

// ParseAge parses an AS value: nnnD, nnnW, nnnM, or nnnY.
func ParseAge(s string) (Age, error) {
	s = strings.TrimSpace(s)
	if len(s) != 4 {
		return Age{}, fmt.Errorf("value: invalid AS %q: want 4 characters", s)
	}
	unit := s[3]
	switch unit {
	case 'D', 'W', 'M', 'Y':
	default:
		return Age{}, fmt.Errorf("value: invalid AS unit %q", string(unit))
	}
	n, err := strconv.Atoi(s[0:3])
	if err != nil {
		return Age{}, fmt.Errorf("value: invalid AS count in %q", s)
	}
	return Age{Count: n, Unit: unit}, nil
}

// String formats an Age in canonical nnnU form.
func (a Age) String() string {
	return fmt.Sprintf("%03d%c", a.Count, a.Unit)
}

// ParseDecimalString parses a DS value (a fixed- or floating-point number,
// optionally in exponential notation, up to 16 characters on the wire).
func ParseDecimalString(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("value: invalid DS %q: %w", s, err)
	}
	return f, nil
}

// FormatDecimalString formats a float64 as a DS value no longer than 16
// characters, matching DICOM's constraint on the DS VR's maximum length.
func FormatDecimalString(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if len(s) <= 16 {
		return s
	}
	for prec := 10; prec >= 0; prec-- {
		s = strconv.FormatFloat(f, 'g', prec, 64)
		if len(s) <= 16 {
			return s
		}
	}
	return s[:16]
}

// ParseIntegerString parses an IS value (a signed integer, up to 12
// characters on the wire).
func ParseIntegerString(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("value: invalid IS %q: %w", s, err)
	}
	return n, nil
}

// FormatIntegerString formats an int64 as an IS value.
func FormatIntegerString(n int64) string {
	return strconv.FormatInt(n, 10)
}

// AsTime converts a DateTime to a time.Time in UTC if an offset was present,
// or in the given fallback location otherwise.
func (dt DateTime) AsTime(fallback *time.Location) time.Time {
	loc := fallback
	if dt.HasOffset {
		loc = time.FixedZone("", dt.OffsetMinutes*60)
	}
	return time.Date(dt.Year, time.Month(dt.Month), dt.Day,
		dt.Hour, dt.Minute, dt.Second, dt.Microsecond*1000, loc)
}
