// Package common provides general utility helper functions shared across benchlab.
package common

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"
)

// GenerateKey generates a reproducible key from a given destination path, used
// to index the fetch cache by destination rather than by source URL so that two
// programs fetching different sources to the same path share one cache entry.
func GenerateKey(path string) uint64 {
	hash := fnv.New64a()
	hash.Write([]byte(path))

	return hash.Sum64()
}

// ContentKey returns a reproducible xxh3 hex key for the content b.
func ContentKey(b []byte) string {
	return xxh3.HashString(string(b)).String()
}

// TempSuffix returns a short random suffix for temp-file-and-rename writes.
func TempSuffix() string {
	return uuid.NewString()[:8]
}

// TimeTrack logs the elapsed time since start under the given operation name.
func TimeTrack(start time.Time, name string, logger *slog.Logger) {
	logger.Debug(name, "duration", time.Since(start))
}

// SanitizeFloat replaces +/-Inf and NaN with zero so they survive TOML/CSV round trips.
func SanitizeFloat(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}

	return v
}

// Round returns the closest multiple of nearest to value. side "left" rounds down,
// "right" rounds up, anything else rounds to nearest.
func Round(value int64, nearest int64, side string) int64 {
	switch side {
	case "right":
		return int64(math.Ceil(float64(value)/float64(nearest))) * nearest
	case "left":
		return int64(math.Floor(float64(value)/float64(nearest))) * nearest
	default:
		return int64(math.Round(float64(value)/float64(nearest))) * nearest
	}
}

// FormatDuration renders a duration the way run summaries and table columns expect:
// HH:MM:SS, with a leading "D-" day count for anything past 24h.
func FormatDuration(d time.Duration) string {
	day := 24 * time.Hour
	if d > day {
		days := d / day

		return fmt.Sprintf("%d-%s", days, formatClock(d%day))
	}

	return formatClock(d)
}

func formatClock(d time.Duration) string {
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	s := int((d % time.Minute) / time.Second)

	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
