package replication

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseState(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantSeq int64
		wantTS  time.Time
		wantErr bool
	}{
		{
			name: "standard OSM state file",
			input: `#Sat Jan 15 12:00:00 UTC 2024
sequenceNumber=12345
timestamp=2024-01-15T12\:00\:00Z`,
			wantSeq: 12345,
			wantTS:  time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "extra whitespace",
			input: `  # comment
  sequenceNumber = 67890
  timestamp = 2024-06-20T08\:30\:00Z  `,
			wantSeq: 67890,
			wantTS:  time.Date(2024, 6, 20, 8, 30, 0, 0, time.UTC),
		},
		{
			name:    "unescaped timestamp",
			input:   "sequenceNumber=100\ntimestamp=2024-03-10T15:45:00Z",
			wantSeq: 100,
			wantTS:  time.Date(2024, 3, 10, 15, 45, 0, 0, time.UTC),
		},
		{
			name:    "invalid sequence number",
			input:   "sequenceNumber=abc\ntimestamp=2024-01-01T00:00:00Z",
			wantErr: true,
		},
		{
			name:    "invalid timestamp",
			input:   "sequenceNumber=100\ntimestamp=invalid",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, err := ParseState(strings.NewReader(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if state.SequenceNumber != tt.wantSeq {
				t.Errorf("SequenceNumber = %d, want %d", state.SequenceNumber, tt.wantSeq)
			}
			if !state.Timestamp.Equal(tt.wantTS) {
				t.Errorf("Timestamp = %v, want %v", state.Timestamp, tt.wantTS)
			}
		})
	}
}

func TestWriteState(t *testing.T) {
	state := &State{SequenceNumber: 6321543, Timestamp: time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC)}

	var buf bytes.Buffer
	if err := WriteState(&buf, state); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `timestamp=2024-05-01T10\:20\:30Z`) {
		t.Errorf("colons not escaped:\n%s", buf.String())
	}

	path := filepath.Join(t.TempDir(), "replication.state")
	if err := WriteStateFile(path, state); err != nil {
		t.Fatal(err)
	}
	got, err := ParseStateFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.SequenceNumber != state.SequenceNumber || !got.Timestamp.Equal(state.Timestamp) {
		t.Errorf("read back %v, want %v", got, state)
	}
}

func TestSequencePaths(t *testing.T) {
	tests := []struct {
		seq  int64
		path string
	}{
		{0, "000/000/000"},
		{1, "000/000/001"},
		{1000, "000/001/000"},
		{12345, "000/012/345"},
		{1234567, "001/234/567"},
		{6321543, "006/321/543"},
	}
	for _, tt := range tests {
		if got := SequenceToPath(tt.seq); got != tt.path {
			t.Errorf("SequenceToPath(%d) = %q, want %q", tt.seq, got, tt.path)
		}
		got, err := PathToSequence(tt.path + ".osc.gz")
		if err != nil || got != tt.seq {
			t.Errorf("PathToSequence(%q) = %d, %v", tt.path, got, err)
		}
	}

	for _, bad := range []string{"invalid", "000/000", "abc/def/ghi", "000/1000/000"} {
		if _, err := PathToSequence(bad); err == nil {
			t.Errorf("PathToSequence(%q): expected error", bad)
		}
	}
}
