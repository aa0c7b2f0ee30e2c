package replication

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Source is a replication server publishing numbered OSC diffs.
type Source struct {
	Name           string
	BaseURL        string
	UpdateInterval time.Duration
}

// StateURL returns the URL of the newest state.
func (s *Source) StateURL() string {
	return s.BaseURL + "/state.txt"
}

// SequenceStateURL returns the URL of the state of seq.
func (s *Source) SequenceStateURL(seq int64) string {
	return fmt.Sprintf("%s/%s.state.txt", s.BaseURL, SequenceToPath(seq))
}

// SequenceDataURL returns the URL of the diff of seq.
func (s *Source) SequenceDataURL(seq int64) string {
	return fmt.Sprintf("%s/%s.osc.gz", s.BaseURL, SequenceToPath(seq))
}

var (
	SourcePlanetMinute = &Source{
		Name:           "planet-minute",
		BaseURL:        "https://planet.openstreetmap.org/replication/minute",
		UpdateInterval: time.Minute,
	}
	SourcePlanetHour = &Source{
		Name:           "planet-hour",
		BaseURL:        "https://planet.openstreetmap.org/replication/hour",
		UpdateInterval: time.Hour,
	}
	SourcePlanetDay = &Source{
		Name:           "planet-day",
		BaseURL:        "https://planet.openstreetmap.org/replication/day",
		UpdateInterval: 24 * time.Hour,
	}
)

// Geofabrik extract paths by short name.
var geofabrikRegions = map[string]string{
	"europe":         "europe",
	"germany":        "europe/germany",
	"france":         "europe/france",
	"great-britain":  "europe/great-britain",
	"united-kingdom": "europe/great-britain",
	"netherlands":    "europe/netherlands",
	"switzerland":    "europe/switzerland",
	"monaco":         "europe/monaco",
	"north-america":  "north-america",
	"us":             "north-america/us",
	"canada":         "north-america/canada",
	"south-america":  "south-america",
	"asia":           "asia",
	"japan":          "asia/japan",
	"africa":         "africa",
	"australia":      "australia-oceania/australia",
}

// GetGeofabrikSource returns the daily diffs of a Geofabrik extract.
// Unknown regions are taken as extract paths.
func GetGeofabrikSource(region string) (*Source, error) {
	region = strings.ToLower(strings.TrimSpace(region))
	if region == "" {
		return nil, fmt.Errorf("empty geofabrik region")
	}
	path, ok := geofabrikRegions[region]
	if !ok {
		path = region
	}
	return &Source{
		Name:           "geofabrik/" + region,
		BaseURL:        fmt.Sprintf("https://download.geofabrik.de/%s-updates", path),
		UpdateInterval: 24 * time.Hour,
	}, nil
}

// ParseSource accepts "planet-minute", "hour" and similar, "geofabrik/<region>",
// a known region name or an http(s) URL.
func ParseSource(s string) (*Source, error) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)

	switch lower {
	case "planet-minute", "planet/minute", "minute":
		return SourcePlanetMinute, nil
	case "planet-hour", "planet/hour", "hour":
		return SourcePlanetHour, nil
	case "planet-day", "planet/day", "day":
		return SourcePlanetDay, nil
	}
	if region, ok := strings.CutPrefix(lower, "geofabrik/"); ok {
		return GetGeofabrikSource(region)
	}
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return &Source{
			Name:           "custom",
			BaseURL:        strings.TrimSuffix(s, "/"),
			UpdateInterval: time.Hour,
		}, nil
	}
	if _, ok := geofabrikRegions[lower]; ok {
		return GetGeofabrikSource(lower)
	}
	return nil, fmt.Errorf("unknown replication source: %s", s)
}

// ListSources describes the predefined sources, one per line.
func ListSources() []string {
	out := []string{
		"planet-minute - OpenStreetMap planet minutely diffs",
		"planet-hour   - OpenStreetMap planet hourly diffs",
		"planet-day    - OpenStreetMap planet daily diffs",
		"",
		"Geofabrik regions (use as geofabrik/<region>):",
	}
	regions := make([]string, 0, len(geofabrikRegions))
	for r := range geofabrikRegions {
		regions = append(regions, r)
	}
	sort.Strings(regions)
	for _, r := range regions {
		out = append(out, "  geofabrik/"+r)
	}
	return out
}
