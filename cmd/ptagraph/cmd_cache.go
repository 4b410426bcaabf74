package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ptagraph/internal/facts/cache"
)

// cacheCmd groups query cache maintenance
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the per-application query cache",
}

var cacheLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List cached queries",
	Args:  cobra.NoArgs,
	RunE:  cacheList,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached query for the application",
	Args:  cobra.NoArgs,
	RunE:  cacheClear,
}

func openCache() (*cache.Cache, error) {
	if cfg.Facts.CachePath == "" {
		return nil, fmt.Errorf("no cache location configured (set facts.cache_path, --cache or PTAGRAPH_CACHE)")
	}
	return cache.Wrap(nil, cfg.Facts.CachePath, cfg.Facts.App)
}

func cacheList(cmd *cobra.Command, args []string) error {
	c, err := openCache()
	if err != nil {
		return err
	}
	defer c.Close()

	entries, err := c.Entries()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintf(out, "cache %s is empty\n", c.Path())
		return nil
	}

	fmt.Fprintf(out, "%-28s %5s %9s  %s\n", "QUERY", "ARITY", "ROWS", "CACHED")
	for _, e := range entries {
		fmt.Fprintf(out, "%-28s %5d %9d  %s\n", e.Name, e.Arity, e.Rows, e.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func cacheClear(cmd *cobra.Command, args []string) error {
	c, err := openCache()
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Clear(); err != nil {
		return err
	}
	logger.Info("Cache cleared", zap.String("path", c.Path()))
	fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", c.Path())
	return nil
}
