package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/xhit/go-str2duration/v2"
)

const (
	KB int64 = units.KiB
	MB int64 = units.MiB
	GB int64 = units.GiB
	TB int64 = units.TiB
)

// Day is the unit used for retention thresholds such as "7d".
const Day = 24 * time.Hour

var sizeAbbrs = []string{"B", "KB", "MB", "GB", "TB", "PB", "EB"}

// FormatSize renders a byte count with a binary unit, e.g. "1.5 MB".
func FormatSize(bytes int64) string {
	if bytes < KB {
		return fmt.Sprintf("%d B", bytes)
	}
	return units.CustomSize("%.1f %s", float64(bytes), 1024, sizeAbbrs)
}

// ParseSize parses binary sizes like "50MB", "1.5G", "512" (bytes).
// An empty string is a zero size.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	size, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return size, nil
}

// ParseAge parses a retention age. On top of time.ParseDuration units
// it accepts days ("7d") and weeks ("2w"). Ages overflowing a
// time.Duration are rejected.
func ParseAge(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty age")
	}
	d, err := str2duration.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid age %q: %w", s, err)
	}
	return d, nil
}

// FormatAge is the inverse of ParseAge for whole days, falling back to
// the duration notation otherwise.
func FormatAge(d time.Duration) string {
	if d > 0 && d%Day == 0 {
		return strconv.FormatInt(int64(d/Day), 10) + "d"
	}
	return d.String()
}
