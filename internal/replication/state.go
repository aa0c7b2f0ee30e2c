package replication

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// State is the position of a database in a replication stream.
type State struct {
	SequenceNumber int64
	Timestamp      time.Time
}

func (s State) String() string {
	return fmt.Sprintf("Sequence: %d, Timestamp: %s", s.SequenceNumber, s.Timestamp.Format(time.RFC3339))
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// ParseState reads a state.txt file:
//
//	#comment line
//	sequenceNumber=12345
//	timestamp=2024-01-15T12\:00\:00Z
func ParseState(r io.Reader) (*State, error) {
	state := &State{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch strings.TrimSpace(key) {
		case "sequenceNumber":
			seq, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid sequence number: %w", err)
			}
			state.SequenceNumber = seq
		case "timestamp":
			// Java properties escape colons.
			value = strings.ReplaceAll(value, `\:`, ":")
			t, err := parseTimestamp(value)
			if err != nil {
				return nil, err
			}
			state.Timestamp = t
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading state: %w", err)
	}
	return state, nil
}

func parseTimestamp(value string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", value)
}

// ParseStateFile reads a state file from disk.
func ParseStateFile(filename string) (*State, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseState(f)
}

// WriteState writes state in state.txt format.
func WriteState(w io.Writer, state *State) error {
	ts := strings.ReplaceAll(state.Timestamp.UTC().Format(time.RFC3339), ":", `\:`)
	_, err := fmt.Fprintf(w, "# osmindex-go replication state\nsequenceNumber=%d\ntimestamp=%s\n", state.SequenceNumber, ts)
	return err
}

// WriteStateFile replaces filename with state. The file is written next
// to its final name and renamed, so readers never see a partial state.
func WriteStateFile(filename string, state *State) error {
	tmp := filename + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := WriteState(f, state); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, filename)
}

// SequenceToPath converts a sequence number to the AAA/BBB/CCC layout of
// replication servers.
func SequenceToPath(seq int64) string {
	return fmt.Sprintf("%03d/%03d/%03d", seq/1000000, (seq/1000)%1000, seq%1000)
}

// PathToSequence converts a path like "006/321/543.osc.gz" back to a
// sequence number.
func PathToSequence(path string) (int64, error) {
	path = strings.TrimSuffix(path, ".osc.gz")
	path = strings.TrimSuffix(path, ".state.txt")

	parts := strings.Split(path, "/")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid path format: %s", path)
	}
	var seq int64
	for _, part := range parts {
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil || n < 0 || n > 999 {
			return 0, fmt.Errorf("invalid path component %q", part)
		}
		seq = seq*1000 + n
	}
	return seq, nil
}
