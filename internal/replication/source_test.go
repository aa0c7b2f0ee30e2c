package replication

import (
	"strings"
	"testing"
)

func TestParseSource(t *testing.T) {
	tests := []struct {
		input       string
		wantName    string
		wantBaseURL string
		wantErr     bool
	}{
		{"planet-minute", "planet-minute", "https://planet.openstreetmap.org/replication/minute", false},
		{"minute", "planet-minute", "https://planet.openstreetmap.org/replication/minute", false},
		{"planet/hour", "planet-hour", "https://planet.openstreetmap.org/replication/hour", false},
		{"day", "planet-day", "https://planet.openstreetmap.org/replication/day", false},
		{"geofabrik/monaco", "geofabrik/monaco", "https://download.geofabrik.de/europe/monaco-updates", false},
		{"Geofabrik/Germany", "geofabrik/germany", "https://download.geofabrik.de/europe/germany-updates", false},
		{"geofabrik/europe/andorra", "geofabrik/europe/andorra", "https://download.geofabrik.de/europe/andorra-updates", false},
		{"monaco", "geofabrik/monaco", "https://download.geofabrik.de/europe/monaco-updates", false},
		{"https://my-server.com/replication/", "custom", "https://my-server.com/replication", false},
		{"unknown-source-xyz", "", "", true},
		{"geofabrik/", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			source, err := ParseSource(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if source.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", source.Name, tt.wantName)
			}
			if source.BaseURL != tt.wantBaseURL {
				t.Errorf("BaseURL = %q, want %q", source.BaseURL, tt.wantBaseURL)
			}
		})
	}
}

func TestSourceURLs(t *testing.T) {
	source := SourcePlanetMinute
	base := "https://planet.openstreetmap.org/replication/minute"

	if got := source.StateURL(); got != base+"/state.txt" {
		t.Errorf("StateURL() = %q", got)
	}
	if got := source.SequenceStateURL(1234567); got != base+"/001/234/567.state.txt" {
		t.Errorf("SequenceStateURL(1234567) = %q", got)
	}
	if got := source.SequenceDataURL(1234567); got != base+"/001/234/567.osc.gz" {
		t.Errorf("SequenceDataURL(1234567) = %q", got)
	}
}

func TestListSources(t *testing.T) {
	joined := strings.Join(ListSources(), "\n")
	for _, want := range []string{"planet-minute", "geofabrik/monaco", "geofabrik/us"} {
		if !strings.Contains(joined, want) {
			t.Errorf("ListSources() lacks %q", want)
		}
	}
	// Regions are listed in a stable order.
	if strings.Index(joined, "geofabrik/africa") > strings.Index(joined, "geofabrik/us") {
		t.Error("regions are not sorted")
	}
}
