package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/linkage/internal/compiler"
	"github.com/roach88/linkage/internal/schema"
	"github.com/roach88/linkage/internal/store"
)

// MigrateOptions holds flags for the migrate command.
type MigrateOptions struct {
	*RootOptions
	DBPath string
	DryRun bool
}

// MigrateResult is the outcome of a migration.
type MigrateResult struct {
	Database   string   `json:"database,omitempty"`
	Statements []string `json:"statements"`
	Applied    bool     `json:"applied"`
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate [schema-dir]",
		Short: "Create the tables of a schema",
		Long: `Create every resource table, foreign key column and join table of a
schema in the configured SQLite database. Migration is idempotent:
existing tables are left alone.

Examples:
  linkage migrate ./schema --db blog.db
  linkage migrate --dry-run`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := rootOpts.Config.SchemaDir()
			if len(args) == 1 {
				dir = args[0]
			}
			return runMigrate(opts, dir, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DBPath, "db", "", "database file (default database.path from config)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "print the DDL without applying it")

	return cmd
}

func runMigrate(opts *MigrateOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	reg, err := loadRegistry(dir)
	if err != nil {
		return err
	}
	stmts, err := store.DDL(reg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to generate DDL", err)
	}

	result := MigrateResult{Statements: stmts}
	if !opts.DryRun {
		st, err := openStore(opts.RootOptions, opts.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(cmd.Context(), reg); err != nil {
			return WrapExitError(ExitCommandError, "migration failed", err)
		}
		result.Database = dbPath(opts.RootOptions, opts.DBPath)
		result.Applied = true
		opts.Logger.Info("migrated", "db", result.Database, "statements", len(stmts))
	}

	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	if opts.DryRun || opts.Verbose {
		for _, stmt := range stmts {
			fmt.Fprintf(formatter.Writer, "%s;\n", stmt)
		}
	}
	if result.Applied {
		fmt.Fprintf(formatter.Writer, "✓ Migrated %s (%d statement(s))\n", result.Database, len(stmts))
	}
	return nil
}

// loadRegistry loads the schema in dir. Any load error is a command error.
func loadRegistry(dir string) (*schema.Registry, error) {
	result, errs := compiler.LoadDir(dir, compiler.LoadModeCollectAll)
	if len(errs) > 0 {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to load schema %s", dir), errors.Join(errs...))
	}
	return result.Registry, nil
}

func dbPath(opts *RootOptions, flag string) string {
	if flag != "" {
		return flag
	}
	return opts.Config.DatabasePath()
}

// openStore opens the database named by flag, or by the config file,
// with the configured driver.
func openStore(opts *RootOptions, flag string) (*store.Store, error) {
	path := dbPath(opts, flag)
	st, err := store.Open(path, store.WithDriver(opts.Config.Driver()))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to open database %s", path), err)
	}
	opts.Logger.Debug("database opened", "path", path, "driver", st.Driver())
	return st, nil
}
