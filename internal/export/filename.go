package export

import (
	"regexp"
	"strings"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// SafeName reduces a display name to [A-Za-z0-9_-].
func SafeName(s string) string {
	s = unsafeChars.ReplaceAllString(strings.TrimSpace(s), "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "map"
	}
	return s
}

// MapFilename names the PNG snapshot of the primary map.
func MapFilename(label string, overlay bool) string {
	name := SafeName(label)
	if overlay {
		name += "_race_overlay"
	}
	return name + ".png"
}

// IndexFilename names an index CSV download.
func IndexFilename(kind, name string) string {
	return SafeName(name) + "_" + kind + "_index.csv"
}

// RaceStatsFilename names a race statistics CSV download.
func RaceStatsFilename(field string) string {
	return SafeName(field) + "_race_stats.csv"
}
