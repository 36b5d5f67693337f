package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the CLI configuration. It is read from a YAML file and then
// overridden by flags.
type Config struct {
	DataPath    string         `yaml:"data_path"`
	BlockSize   int64          `yaml:"block_size"`
	TTL         time.Duration  `yaml:"ttl"`
	Group       string         `yaml:"group"`
	IOLimitMB   int64          `yaml:"io_limit_mb"`
	MaxReloads  int64          `yaml:"max_reloads"`
	MetricsAddr string         `yaml:"metrics_addr"`
	Log         LogConfig      `yaml:"log"`
	Cache       CacheConfig    `yaml:"cache"`
	Snapshot    SnapshotConfig `yaml:"snapshot"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// CacheConfig selects and configures the cache store.
type CacheConfig struct {
	Backend     string `yaml:"backend"` // memory, redis or dynamodb
	CapacityMB  int64  `yaml:"capacity_mb"`
	Codec       string `yaml:"codec"`
	Compression string `yaml:"compression"`
	Breaker     bool   `yaml:"breaker"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisPrefix string `yaml:"redis_prefix"`
	DynamoTable string `yaml:"dynamodb_table"`
	Region      string `yaml:"region"`
}

// SnapshotConfig selects and configures the snapshot blob store.
type SnapshotConfig struct {
	Backend     string `yaml:"backend"` // local, s3 or minio
	Path        string `yaml:"path"`
	Bucket      string `yaml:"bucket"`
	Prefix      string `yaml:"prefix"`
	Endpoint    string `yaml:"endpoint"`
	Region      string `yaml:"region"`
	AccessKey   string `yaml:"access_key"`
	SecretKey   string `yaml:"secret_key"`
	Secure      bool   `yaml:"secure"`
	BlockSize   int64  `yaml:"block_size"`
	Compression string `yaml:"compression"`
}

func defaultConfig() Config {
	return Config{
		DataPath:    "./data",
		BlockSize:   100,
		Group:       "participants",
		MaxReloads:  8,
		MetricsAddr: ":2112",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Cache: CacheConfig{
			Backend:     "memory",
			CapacityMB:  64,
			Compression: "lz4",
			RedisAddr:   "localhost:6379",
			DynamoTable: "pdbcache",
		},
		Snapshot: SnapshotConfig{
			Backend:     "local",
			Path:        "./snapshots",
			BlockSize:   1000,
			Compression: "zstd",
		},
	}
}

func (c Config) validate() error {
	var errs []error
	if c.DataPath == "" {
		errs = append(errs, errors.New("data_path is required"))
	}
	if c.BlockSize <= 0 {
		errs = append(errs, fmt.Errorf("block_size must be positive, got %d", c.BlockSize))
	}
	if c.MaxReloads <= 0 {
		errs = append(errs, fmt.Errorf("max_reloads must be positive, got %d", c.MaxReloads))
	}
	switch c.Cache.Backend {
	case "memory", "redis", "dynamodb":
	default:
		errs = append(errs, fmt.Errorf("unknown cache backend %q", c.Cache.Backend))
	}
	switch c.Snapshot.Backend {
	case "local", "s3", "minio":
	default:
		errs = append(errs, fmt.Errorf("unknown snapshot backend %q", c.Snapshot.Backend))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	return errors.Join(errs...)
}

// loadConfig parses the global flags in args, reads the config file if one
// is named and applies every explicitly set flag on top. It returns the
// remaining arguments.
func loadConfig(args []string, stderr io.Writer) (Config, []string, error) {
	fs := flag.NewFlagSet("pdbcache", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { usage(fs) }

	configPath := fs.String("config", "", "Path to YAML config file")
	dataPath := fs.String("data", "", "Path to the pebble table directory")
	blockSize := fs.Int64("block-size", 0, "Ids per cached block")
	cacheBackend := fs.String("cache", "", "Cache store: memory, redis or dynamodb")
	redisAddr := fs.String("redis", "", "Redis address for the redis cache store")
	snapshotDir := fs.String("snapshot-dir", "", "Directory for local snapshots")
	metricsAddr := fs.String("metrics-addr", "", "Listen address for serve")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn or error")
	logJSON := fs.Bool("log-json", false, "Log as JSON")

	if err := fs.Parse(args); err != nil {
		return Config{}, nil, err
	}

	cfg := defaultConfig()
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			return Config{}, nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
			return Config{}, nil, fmt.Errorf("parse config %s: %w", *configPath, err)
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "data":
			cfg.DataPath = *dataPath
		case "block-size":
			cfg.BlockSize = *blockSize
		case "cache":
			cfg.Cache.Backend = *cacheBackend
		case "redis":
			cfg.Cache.RedisAddr = *redisAddr
		case "snapshot-dir":
			cfg.Snapshot.Backend = "local"
			cfg.Snapshot.Path = *snapshotDir
		case "metrics-addr":
			cfg.MetricsAddr = *metricsAddr
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-json":
			if *logJSON {
				cfg.Log.Format = "json"
			}
		}
	})

	if err := cfg.validate(); err != nil {
		return Config{}, nil, err
	}
	return cfg, fs.Args(), nil
}

func usage(fs *flag.FlagSet) {
	out := fs.Output()
	fmt.Fprintf(out, "Usage: pdbcache [flags] <command> [args]\n\n")
	fmt.Fprintf(out, "Commands:\n")
	fmt.Fprintf(out, "  get <id>...                 print records\n")
	fmt.Fprintf(out, "  put <id> [name=value]...    create or replace a record\n")
	fmt.Fprintf(out, "  delete <id>                 delete a record\n")
	fmt.Fprintf(out, "  invalidate <lo> [hi]        mark blocks stale\n")
	fmt.Fprintf(out, "  warm <lo> <hi>              load blocks into the cache\n")
	fmt.Fprintf(out, "  info                        show table and cache details\n")
	fmt.Fprintf(out, "  export                      write a snapshot\n")
	fmt.Fprintf(out, "  import <id|latest>          restore a snapshot\n")
	fmt.Fprintf(out, "  snapshots                   list snapshots\n")
	fmt.Fprintf(out, "  serve                       serve records and /metrics over HTTP\n\n")
	fmt.Fprintf(out, "Flags:\n")
	fs.PrintDefaults()
}
