package cmd

import (
	"os"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/wegman-software/osmindex-go/internal/config"
	"github.com/wegman-software/osmindex-go/internal/logger"
)

var (
	cfg        = config.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "osmindex-go",
	Short: "Spatially clustered OSM element index",
	Long: `osmindex-go maintains a spatially clustered index of OpenStreetMap elements.

Features:
  - Skeleton, metadata and tag tables keyed by a coarse spatial index
  - Relocation of ways and relations when their members move
  - Optional history tables keeping every superseded version
  - Memory, PostgreSQL and memory-mapped storage backends
  - Incremental updates from OSC change files and replication servers`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			if err := loadConfigFile(cmd.Flags(), configFile); err != nil {
				return err
			}
		}

		if cfg.LogFile != "" {
			logger.InitWithFile(cfg.Verbose, cfg.LogFile)
		} else {
			logger.Init(cfg.Verbose)
		}
		return cfg.Validate()
	},
}

// loadConfigFile overlays the YAML file on cfg, then re-applies every flag
// given on the command line so flags win over the file.
func loadConfigFile(flags *pflag.FlagSet, path string) error {
	set := map[string]string{}
	flags.Visit(func(f *pflag.Flag) {
		set[f.Name] = f.Value.String()
	})
	if err := cfg.Merge(path); err != nil {
		return err
	}
	for name, value := range set {
		if err := flags.Set(name, value); err != nil {
			return err
		}
	}
	return nil
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&configFile, "config", "c", "", "YAML configuration file")

	// Logging and metrics
	f.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Enable verbose output")
	f.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Path to log file for persistent logging (JSON format)")
	f.DurationVar(&cfg.MetricsInterval, "metrics-interval", cfg.MetricsInterval, "Interval for system metrics logging (e.g., 10s, 1m)")
	f.IntVar(&cfg.HeartbeatEvery, "heartbeat-every", cfg.HeartbeatEvery, "Elements between progress heartbeats")

	// Storage
	f.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory for directory files and replication state")
	f.StringVar(&cfg.Backend, "backend", cfg.Backend, "Table backend: memory or postgres")
	f.StringVar(&cfg.DirectoryBackend, "directory-backend", cfg.DirectoryBackend, "Directory backend: memory, mmap or postgres")
	f.Int64Var(&cfg.DirectoryCapacity, "directory-capacity", cfg.DirectoryCapacity, "Highest element id an mmap directory can hold")
	f.IntVarP(&cfg.Workers, "workers", "j", cfg.Workers, "Number of parallel PBF decoders")

	// Database
	f.StringVar(&cfg.DBHost, "db-host", cfg.DBHost, "PostgreSQL host")
	f.IntVar(&cfg.DBPort, "db-port", cfg.DBPort, "PostgreSQL port")
	f.StringVarP(&cfg.DBName, "db-name", "d", cfg.DBName, "PostgreSQL database name")
	f.StringVarP(&cfg.DBUser, "db-user", "U", cfg.DBUser, "PostgreSQL user")
	f.StringVarP(&cfg.DBPassword, "db-password", "W", cfg.DBPassword, "PostgreSQL password")
	f.StringVar(&cfg.DBSchema, "db-schema", cfg.DBSchema, "PostgreSQL schema")
	f.StringVar(&cfg.TablePrefix, "table-prefix", cfg.TablePrefix, "Prefix of every table name")
	f.StringVar(&cfg.TablespaceMain, "tablespace-main", cfg.TablespaceMain, "Tablespace for the index tables")

	// Update behaviour
	f.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Staged elements per update cycle")
	f.StringVar(&cfg.MetaMode, "meta-mode", cfg.MetaMode, "Metadata kept: data, meta or attic")
	f.BoolVar(&cfg.SkipUnchanged, "skip-unchanged", cfg.SkipUnchanged, "Leave resubmitted elements that did not change in place")
	f.BoolVar(&cfg.RecordMinusculeMoves, "record-minuscule-moves", cfg.RecordMinusculeMoves, "Report replaced co-located elements as moved")
	f.IntVar(&cfg.RoleLimit, "role-limit", cfg.RoleLimit, "Maximum number of distinct relation roles (0 = no limit)")

	// Change log and filtering
	f.StringVar(&cfg.ChangeLog, "change-log", cfg.ChangeLog, "Write the change log of every cycle to this file")
	f.StringVar(&cfg.ChangeLogFormat, "change-log-format", cfg.ChangeLogFormat, "Change log format: json or parquet")
	f.StringVarP(&cfg.ExpireOutput, "expire-output", "e", cfg.ExpireOutput, "Append tiles touched by changed elements to this file (z/x/y)")
	f.IntVar(&cfg.ExpireMinZoom, "expire-min-zoom", cfg.ExpireMinZoom, "Minimum zoom level for tile expiry")
	f.IntVar(&cfg.ExpireMaxZoom, "expire-max-zoom", cfg.ExpireMaxZoom, "Maximum zoom level for tile expiry")
	f.StringVar(&cfg.TagFilter, "tag-filter", cfg.TagFilter, "YAML tag filter rules applied on ingest")
	f.StringVar(&cfg.LuaFilter, "lua-filter", cfg.LuaFilter, "Lua script defining filter_tags(kind, id, tags)")
}

func exitWithError(msg string, err error) {
	log := logger.Get()
	if err != nil {
		log.Error(msg, zap.Error(err))
	} else {
		log.Error(msg)
	}
	os.Exit(1)
}
