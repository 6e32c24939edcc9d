// Package formatting converts between byte counts and their human-readable
// form, and pulls JSON documents out of free-form model output.
package formatting

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Sizes are base 1024. The prefix letter alone selects the scale, so "4M",
// "4MB" and "4MiB" are the same size.
const prefixes = "KMGT"

// FormatBytes renders n in the largest unit that keeps the value at or above
// one, with at most one decimal: 512 B, 1.5 KB, 4 MB.
func FormatBytes(n int64) string {
	if n < 1024 && n > -1024 {
		return strconv.FormatInt(n, 10) + " B"
	}

	v := float64(n)
	unit := -1
	for unit < len(prefixes)-1 && (v >= 1024 || v <= -1024) {
		v /= 1024
		unit++
	}

	s := strconv.FormatFloat(v, 'f', 1, 64)
	s = strings.TrimSuffix(s, ".0")
	return s + " " + prefixes[unit:unit+1] + "B"
}

// ParseBytes reads sizes such as "2048", "512KB", "4 mb" or "1.5GiB".
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty byte size")
	}

	split := strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.'
	})
	number, unit := s, ""
	if split >= 0 {
		number, unit = s[:split], strings.TrimSpace(s[split:])
	}

	value, err := strconv.ParseFloat(number, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid byte size %q", s)
	}

	scale, err := unitScale(unit)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	return int64(value * float64(scale)), nil
}

func unitScale(unit string) (int64, error) {
	u := strings.ToUpper(unit)
	if u == "" || u == "B" {
		return 1, nil
	}

	i := strings.IndexByte(prefixes, u[0])
	if i < 0 {
		return 0, fmt.Errorf("unknown unit %q", unit)
	}
	switch u[1:] {
	case "", "B", "IB":
	default:
		return 0, fmt.Errorf("unknown unit %q", unit)
	}
	return int64(1) << (10 * (i + 1)), nil
}
