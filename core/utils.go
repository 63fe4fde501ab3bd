package core

import (
	"math"
	"strings"
	"time"
)

// DateLayout is the yyyy-MM-dd layout used for attendance dates and store keys.
const DateLayout = "2006-01-02"

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// IsDate reports whether s is a valid yyyy-MM-dd date.
func IsDate(s string) bool {
	t, err := time.Parse(DateLayout, s)
	return err == nil && t.Format(DateLayout) == s
}

// FormatDate formats t as yyyy-MM-dd in loc.
func FormatDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}

// Round1 rounds f to one decimal place.
func Round1(f float64) float64 {
	return math.Round(f*10) / 10
}
