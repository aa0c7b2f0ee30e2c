package updater

import (
	"github.com/wegman-software/osmindex-go/internal/element"
	"github.com/wegman-software/osmindex-go/internal/spatial"
)

// Moved records an element whose index changed. Dependents look up
// candidates through the parents of From.
type Moved struct {
	ID        element.ID
	From      spatial.Index
	To        spatial.Index
	Timestamp int64
}

// Stats counts what a cycle did.
type Stats struct {
	Entries  int
	Touched  int
	Inserted int
	Kept     int
	Erased   int
	Moved    int
	Implicit int
}

// Result is the outcome of one Update.
type Result struct {
	Moved  []Moved
	Report *Report
	Stats  Stats
}
