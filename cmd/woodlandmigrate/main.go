package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/loykin/woodlandmigrate/internal/config"
	"github.com/loykin/woodlandmigrate/internal/constants"
)

var rootCmd = &cobra.Command{
	Use:           "woodlandmigrate",
	Short:         "Migrate legacy woodland owner, agent and user records and their files to V2",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Defaults
	v := viper.GetViper()
	v.SetDefault("config", "")

	// Environment variables support: WOODLANDMIGRATE_CONFIG, ...
	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()

	// Bind flags via Cobra and then bind to Viper
	rootCmd.PersistentFlags().String("config", v.GetString("config"), "path to a config yaml")
	runCmd.Flags().Int("max-degree-of-parallelism", constants.DefaultMaxDegreeOfParallelism, "number of units migrated concurrently")
	runCmd.Flags().Int64("resume-after", 0, "start after this legacy owner id (committed units are skipped regardless)")
	runCmd.Flags().String("metrics-addr", "", "serve /metrics and /progress on this address while running")

	_ = v.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("max_degree_of_parallelism", runCmd.Flags().Lookup("max-degree-of-parallelism"))
	_ = v.BindPFlag("resume_after", runCmd.Flags().Lookup("resume-after"))
	_ = v.BindPFlag("metrics.addr", runCmd.Flags().Lookup("metrics-addr"))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		exitHandler.LogFatalError(err, "woodlandmigrate failed")
	}
}
