package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ptagraph/internal/factdb"
	"ptagraph/internal/facts/sqlitedb"
)

// exportCmd converts the configured fact source into a SQLite fact database
var exportCmd = &cobra.Command{
	Use:   "export [out.db]",
	Short: "Write every fact query to a SQLite database",
	Long: `Drains each catalogue query from the configured fact source and writes
it to a new SQLite file, one table per query, tagged with the application.
The result can be passed back with --db.

Example:
  ptagraph --db out/antlr --app antlr export antlr.db`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	src, err := factdb.Open(ctx, factdb.FromConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to open fact source: %w", err)
	}
	defer src.Close()

	if err := sqlitedb.Export(ctx, src, args[0], cfg.Facts.App); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	logger.Info("Exported fact database", zap.String("path", args[0]), zap.String("app", cfg.Facts.App))
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
	return nil
}
