package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/KeyIP-Protonate/pkg/errors"
)

// MigrationState reports the schema version of the run ledger.
type MigrationState struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

func (s MigrationState) String() string {
	if s.Dirty {
		return fmt.Sprintf("version %d (dirty)", s.Version)
	}
	return fmt.Sprintf("version %d", s.Version)
}

func (s MigrationState) TableHeaders() []string { return []string{"VERSION", "DIRTY"} }

func (s MigrationState) TableRows() [][]string {
	return [][]string{{strconv.FormatUint(uint64(s.Version), 10), strconv.FormatBool(s.Dirty)}}
}

func newMigrateCmd(deps CommandDependencies) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the run ledger schema",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if root := cmd.Root(); root.PersistentPreRunE != nil {
				if err := root.PersistentPreRunE(cmd, args); err != nil {
					return err
				}
			}
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if path == "" {
				path = cliCtx.Config.Postgres.MigrationPath
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&path, "path", "", "migration source URL (default from config)")

	dsn := func(cmd *cobra.Command) (string, error) {
		cliCtx, err := GetCLIContext(cmd)
		if err != nil {
			return "", err
		}
		if cliCtx.Config.Postgres.User == "" {
			return "", errors.New(errors.ErrCodeValidation, "postgres.user is not configured")
		}
		return cliCtx.Config.Postgres.DSN(), nil
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				url, err := dsn(cmd)
				if err != nil {
					return err
				}
				if err := deps.Migrator.Up(url, path); err != nil {
					return err
				}
				PrintSuccess(cmd, "migrations applied")
				return nil
			},
		},
		&cobra.Command{
			Use:   "down [STEPS]",
			Short: "Roll back migrations (default one step)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				steps := 1
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil || n < 1 {
						return errors.New(errors.ErrCodeValidation, "steps must be a positive integer").WithDetail(args[0])
					}
					steps = n
				}
				url, err := dsn(cmd)
				if err != nil {
					return err
				}
				if err := deps.Migrator.Down(url, path, steps); err != nil {
					return err
				}
				PrintSuccess(cmd, fmt.Sprintf("rolled back %d migration(s)", steps))
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				url, err := dsn(cmd)
				if err != nil {
					return err
				}
				version, dirty, err := deps.Migrator.Status(url, path)
				if err != nil {
					return err
				}
				return PrintResult(cmd, MigrationState{Version: version, Dirty: dirty})
			},
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Set the schema version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := strconv.Atoi(args[0])
				if err != nil || version < 0 {
					return errors.New(errors.ErrCodeValidation, "version must be a non-negative integer").WithDetail(args[0])
				}
				url, err := dsn(cmd)
				if err != nil {
					return err
				}
				if err := deps.Migrator.Force(url, path, version); err != nil {
					return err
				}
				PrintSuccess(cmd, fmt.Sprintf("schema version forced to %d", version))
				return nil
			},
		},
	)
	return cmd
}
