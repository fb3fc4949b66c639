package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseBandwidth parses a byte rate such as "512K", "1.5M/s" or "2MiB".
// Suffixes are powers of 1024 and case-insensitive. Zero means unlimited.
func ParseBandwidth(s string) (int64, error) {
	orig := s
	s = strings.TrimSpace(strings.ToUpper(s))
	s = strings.TrimSuffix(s, "/S")
	s = strings.TrimSuffix(s, "IB")
	s = strings.TrimSuffix(s, "B")
	if s == "" {
		return 0, fmt.Errorf("invalid bandwidth %q", orig)
	}

	var shift uint
	switch s[len(s)-1] {
	case 'K':
		shift = 10
	case 'M':
		shift = 20
	case 'G':
		shift = 30
	}
	if shift > 0 {
		s = s[:len(s)-1]
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid bandwidth %q", orig)
	}
	return int64(f * float64(int64(1)<<shift)), nil
}
