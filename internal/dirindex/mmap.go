package dirindex

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/wegman-software/osmindex-go/internal/element"
	"github.com/wegman-software/osmindex-go/internal/spatial"
	"github.com/wegman-software/osmindex-go/internal/store"
)

const (
	// Each entry is one spatial index (uint32), stored at offset id*4.
	entrySize = 4
	// DefaultCapacity covers current node ids with headroom.
	DefaultCapacity = 16_000_000_000
)

// ErrOutOfRange is returned for ids beyond the directory capacity.
var ErrOutOfRange = store.ErrOutOfRange

// MmapDirectory is a memory-mapped Index Directory.
// The index of element id lives at offset id*4; zero means no entry.
// The file is sparse, so disk usage follows the ids actually written.
type MmapDirectory struct {
	mu       sync.RWMutex
	file     *os.File
	data     mmap.MMap
	capacity uint64
	writable bool
}

// Create opens path for writing, creating it if needed. An existing file
// keeps its entries and is extended to capacity.
func Create(path string, capacity uint64) (*MmapDirectory, error) {
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open directory file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat directory file: %w", err)
	}
	size := int64(capacity) * entrySize
	if info.Size() < size {
		// Sparse on Linux
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to truncate directory file: %w", err)
		}
	} else {
		size = info.Size()
	}

	data, err := mmap.MapRegion(f, int(size), mmap.RDWR, 0, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to mmap directory file: %w", err)
	}

	return &MmapDirectory{
		file:     f,
		data:     data,
		capacity: uint64(size) / entrySize,
		writable: true,
	}, nil
}

// Open maps an existing directory read-only.
func Open(path string) (*MmapDirectory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open directory file: %w", err)
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to mmap directory file: %w", err)
	}

	return &MmapDirectory{
		file:     f,
		data:     data,
		capacity: uint64(len(data)) / entrySize,
	}, nil
}

// Capacity is the number of ids the directory can hold.
func (d *MmapDirectory) Capacity() uint64 {
	return d.capacity
}

func (d *MmapDirectory) Get(_ context.Context, id element.ID) (spatial.Index, bool, error) {
	if uint64(id) >= d.capacity {
		return 0, false, fmt.Errorf("get %d: %w", id, ErrOutOfRange)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	v := spatial.Index(binary.LittleEndian.Uint32(d.data[uint64(id)*entrySize:]))
	return v, v != spatial.DeletedValue, nil
}

func (d *MmapDirectory) Put(_ context.Context, id element.ID, idx spatial.Index) error {
	if !d.writable {
		return fmt.Errorf("put %d: directory opened read-only", id)
	}
	if uint64(id) >= d.capacity {
		return fmt.Errorf("put %d: %w", id, ErrOutOfRange)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	binary.LittleEndian.PutUint32(d.data[uint64(id)*entrySize:], uint32(idx))
	return nil
}

// Sync flushes changes to disk.
func (d *MmapDirectory) Sync() error {
	if !d.writable {
		return nil
	}
	return d.data.Flush()
}

// Close flushes and unmaps the directory.
func (d *MmapDirectory) Close() error {
	if err := d.Sync(); err != nil {
		d.data.Unmap()
		d.file.Close()
		return err
	}
	if err := d.data.Unmap(); err != nil {
		d.file.Close()
		return err
	}
	return d.file.Close()
}
