package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"liminal/internal/config"
	"liminal/internal/db"
)

var errNoArchivePath = errors.New("no archive path: set archive.path in the config or pass --path")

func buildArchiveCommand() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Maintain the SQLite spin archive",
	}
	cmd.PersistentFlags().StringVar(&path, "path", "", "archive file (defaults to archive.path from the config)")

	resolve := func() (string, error) {
		if path != "" {
			return path, nil
		}
		cfg, err := config.Load(configFile)
		if err != nil {
			return "", fmt.Errorf("failed to load config: %w", err)
		}
		if cfg.Archive.Path == "" {
			return "", errNoArchivePath
		}
		return cfg.Archive.Path, nil
	}

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the archive schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := resolve()
			if err != nil {
				return err
			}
			v, err := db.SchemaVersion(cmd.Context(), p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: schema version %d\n", p, v)
			return nil
		},
	}

	var target int
	rollback := &cobra.Command{
		Use:   "rollback",
		Short: "Roll the archive schema back to an earlier version",
		Long: `Undo archive migrations above --to, newest first. Stop the hub first:
the next 'serve' migrates the file forward again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := resolve()
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
			from, err := db.Rollback(cmd.Context(), p, target, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: rolled back from version %d to %d\n", p, from, target)
			return nil
		},
	}
	rollback.Flags().IntVar(&target, "to", 0, "target schema version")
	_ = rollback.MarkFlagRequired("to")

	cmd.AddCommand(version, rollback)
	return cmd
}
