package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Protonate/pkg/errors"
)

// PurgeResult reports a cache purge.
type PurgeResult struct {
	Prefix  string `json:"prefix"`
	Removed int64  `json:"removed"`
}

func (r PurgeResult) TableHeaders() []string { return []string{"PREFIX", "REMOVED"} }

func (r PurgeResult) TableRows() [][]string {
	return [][]string{{r.Prefix, strconv.FormatInt(r.Removed, 10)}}
}

func newCacheCmd(deps CommandDependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the engine output cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Remove every cached engine output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			cache, release, err := deps.Cache(ctx, cliCtx)
			if err != nil {
				return err
			}
			defer release()

			n, err := cache.Purge(ctx)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeCacheError, "cache purge failed")
			}
			cliCtx.Logger.Info("cache purged", logging.Int64("removed", n))

			res := PurgeResult{Prefix: cliCtx.Config.Engine.Cache.Prefix, Removed: n}
			if cliCtx.OutputFormat == "text" {
				PrintSuccess(cmd, strconv.FormatInt(n, 10)+" cached output(s) removed")
				return nil
			}
			return PrintResult(cmd, res)
		},
	})
	return cmd
}
