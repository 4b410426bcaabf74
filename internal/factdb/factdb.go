// Package factdb opens the fact source described by a database location, a
// cache location and an application identifier.
package factdb

import (
	"context"
	"errors"
	"fmt"
	"os"

	"ptagraph/internal/config"
	"ptagraph/internal/facts"
	"ptagraph/internal/facts/cache"
	"ptagraph/internal/facts/datalog"
	"ptagraph/internal/facts/sqlitedb"
	"ptagraph/internal/logging"
	"ptagraph/internal/mangle"
)

// Options selects and configures a fact source.
type Options struct {
	// DBPath is a directory of .facts files or a SQLite file. Empty means
	// only cached queries can be answered.
	DBPath string
	// CachePath, when set, puts a query cache in front of the database.
	CachePath string
	// App selects the application inside the database and names its cache.
	App string
	// Mangle configures the engine used for .facts directories.
	Mangle mangle.Config
}

// FromConfig builds Options from a loaded configuration.
func FromConfig(cfg *config.Config) Options {
	return Options{
		DBPath:    cfg.Facts.DBPath,
		CachePath: cfg.Facts.CachePath,
		App:       cfg.Facts.App,
		Mangle: mangle.Config{
			FactLimit:    cfg.Mangle.FactLimit,
			QueryTimeout: cfg.QueryTimeoutDuration(),
		},
	}
}

// Open returns the source for opts. The caller owns it and must Close it.
func Open(ctx context.Context, opts Options) (facts.Source, error) {
	if opts.DBPath == "" && opts.CachePath == "" {
		return nil, fmt.Errorf("%w: neither a database nor a cache location is configured", facts.ErrSourceUnavailable)
	}

	var backend facts.Source
	if opts.DBPath != "" {
		var err error
		backend, err = openBackend(ctx, opts)
		if err != nil {
			return nil, err
		}
	}

	if opts.CachePath == "" {
		return backend, nil
	}
	c, err := cache.Wrap(backend, opts.CachePath, opts.App)
	if err != nil {
		if backend != nil {
			_ = backend.Close()
		}
		return nil, err
	}
	return c, nil
}

func openBackend(ctx context.Context, opts Options) (facts.Source, error) {
	info, err := os.Stat(opts.DBPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", facts.ErrSourceUnavailable, opts.DBPath)
		}
		return nil, fmt.Errorf("%w: %v", facts.ErrSourceUnavailable, err)
	}
	if info.IsDir() {
		logging.Boot("fact database %s is a .facts directory", opts.DBPath)
		return datalog.Open(ctx, opts.DBPath, opts.App, opts.Mangle)
	}
	logging.Boot("fact database %s is a sqlite file", opts.DBPath)
	return sqlitedb.Open(opts.DBPath, opts.App)
}
