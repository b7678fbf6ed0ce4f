package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/loykin/woodlandmigrate/internal/config"
	"github.com/loykin/woodlandmigrate/pkg/status"
)

var (
	statusFailures      bool
	statusFailuresAll   bool
	statusFailuresLimit int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration progress per state, target row counts, and optionally failed units",
	RunE: func(cmd *cobra.Command, args []string) error {
		v := viper.GetViper()
		cfg, err := config.Load(v, v.GetString("config"))
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		info, err := status.FromConfig(ctx, cfg)
		if err != nil {
			return err
		}
		if statusFailures {
			_, _ = fmt.Fprint(cmd.OutOrStdout(), info.FormatHumanWithLimit(true, statusFailuresLimit, statusFailuresAll))
		} else {
			_, _ = fmt.Fprint(cmd.OutOrStdout(), info.FormatHuman(false))
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusFailures, "failures", false, "list failed units as well")
	statusCmd.Flags().BoolVar(&statusFailuresAll, "failures-all", false, "when used with --failures, list every failed unit")
	statusCmd.Flags().IntVar(&statusFailuresLimit, "failures-limit", 10, "when used with --failures, list up to N failed units (default 10)")
}
