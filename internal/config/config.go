package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// BBox represents a geographic bounding box
type BBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
	IsSet                          bool
}

// Contains checks if a point is within the bounding box
func (b *BBox) Contains(lat, lon float64) bool {
	if b == nil || !b.IsSet {
		return true
	}
	return lon >= b.MinLon && lon <= b.MaxLon && lat >= b.MinLat && lat <= b.MaxLat
}

// ParseBBox parses a bbox string in format "minlon,minlat,maxlon,maxlat"
func ParseBBox(s string) (*BBox, error) {
	if s == "" {
		return &BBox{IsSet: false}, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("bbox must have 4 values: minlon,minlat,maxlon,maxlat")
	}

	var coords [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bbox coordinate %q: %w", p, err)
		}
		coords[i] = v
	}

	bbox := &BBox{
		MinLon: coords[0],
		MinLat: coords[1],
		MaxLon: coords[2],
		MaxLat: coords[3],
		IsSet:  true,
	}

	if bbox.MinLon > bbox.MaxLon {
		return nil, fmt.Errorf("minlon (%f) must be <= maxlon (%f)", bbox.MinLon, bbox.MaxLon)
	}
	if bbox.MinLat > bbox.MaxLat {
		return nil, fmt.Errorf("minlat (%f) must be <= maxlat (%f)", bbox.MinLat, bbox.MaxLat)
	}

	return bbox, nil
}

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMmap     = "mmap"
)

// Config holds the settings shared by every command. Flags override
// values read from the YAML file.
type Config struct {
	// Storage
	DataDir           string `yaml:"data_dir"`
	Backend           string `yaml:"backend"`
	DirectoryBackend  string `yaml:"directory_backend"`
	DirectoryCapacity int64  `yaml:"directory_capacity"`

	// Database settings
	DBHost         string `yaml:"db_host"`
	DBPort         int    `yaml:"db_port"`
	DBName         string `yaml:"db_name"`
	DBUser         string `yaml:"db_user"`
	DBPassword     string `yaml:"db_password"`
	DBSchema       string `yaml:"db_schema"`
	TablePrefix    string `yaml:"table_prefix"`
	TablespaceMain string `yaml:"tablespace_main"`

	// Update behaviour
	BatchSize            int    `yaml:"batch_size"`
	MetaMode             string `yaml:"meta_mode"`
	SkipUnchanged        bool   `yaml:"skip_unchanged"`
	RecordMinusculeMoves bool   `yaml:"record_minuscule_moves"`
	RoleLimit            int    `yaml:"role_limit"`

	// Change log
	ChangeLog       string `yaml:"change_log"`
	ChangeLogFormat string `yaml:"change_log_format"`

	// Tile expiry
	ExpireOutput  string `yaml:"expire_output"`
	ExpireMinZoom int    `yaml:"expire_min_zoom"`
	ExpireMaxZoom int    `yaml:"expire_max_zoom"`

	// Ingest filtering
	TagFilter string `yaml:"tag_filter"`
	LuaFilter string `yaml:"lua_filter"`
	BBox      *BBox  `yaml:"-"`
	Workers   int    `yaml:"workers"`

	// Replication
	ReplicationSource string `yaml:"replication_source"`

	// Logging and metrics
	Verbose         bool          `yaml:"verbose"`
	LogFile         string        `yaml:"log_file"`
	HeartbeatEvery  int           `yaml:"heartbeat_every"`
	MetricsInterval time.Duration `yaml:"metrics_interval"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		DataDir:           "./osmindex_data",
		Backend:           BackendMemory,
		DirectoryBackend:  BackendMemory,
		DirectoryCapacity: 16_000_000_000,
		DBHost:            "localhost",
		DBPort:            5432,
		DBName:            "osm",
		DBUser:            "postgres",
		DBSchema:          "public",
		TablePrefix:       "osmindex",
		BatchSize:         100000,
		MetaMode:          "meta",
		ChangeLogFormat:   "json",
		ExpireMinZoom:     10,
		ExpireMaxZoom:     18,
		BBox:              &BBox{},
		Workers:           4,
		HeartbeatEvery:    10000,
		MetricsInterval:   30 * time.Second,
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.Merge(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Merge overlays the settings present in the YAML file at path.
func (c *Config) Merge(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string
func (c *Config) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBName, c.DBUser,
	)
	if c.DBPassword != "" {
		connStr += fmt.Sprintf(" password=%s", c.DBPassword)
	}
	return connStr
}

// NeedsDatabase reports whether any configured backend is PostgreSQL.
func (c *Config) NeedsDatabase() bool {
	return c.Backend == BackendPostgres || c.DirectoryBackend == BackendPostgres
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("unknown backend %q (want memory or postgres)", c.Backend)
	}
	switch c.DirectoryBackend {
	case BackendMemory, BackendPostgres:
	case BackendMmap:
		if c.DirectoryCapacity < 1 {
			return errors.New("directory capacity must be positive")
		}
	default:
		return fmt.Errorf("unknown directory backend %q (want memory, mmap or postgres)", c.DirectoryBackend)
	}
	switch c.MetaMode {
	case "data", "meta", "attic":
	default:
		return fmt.Errorf("unknown meta mode %q (want data, meta or attic)", c.MetaMode)
	}
	switch c.ChangeLogFormat {
	case "json", "parquet":
	default:
		return fmt.Errorf("unknown change log format %q (want json or parquet)", c.ChangeLogFormat)
	}
	if c.ExpireOutput != "" && (c.ExpireMinZoom < 0 || c.ExpireMaxZoom > 30 || c.ExpireMinZoom > c.ExpireMaxZoom) {
		return fmt.Errorf("invalid expire zoom range %d-%d", c.ExpireMinZoom, c.ExpireMaxZoom)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	return nil
}
