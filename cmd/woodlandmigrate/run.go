package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/loykin/woodlandmigrate"
	"github.com/loykin/woodlandmigrate/internal/config"
)

var runReportPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the migration; committed units from earlier runs are skipped",
	RunE: func(cmd *cobra.Command, args []string) error {
		v := viper.GetViper()
		cfg, err := config.Load(v, v.GetString("config"))
		if err != nil {
			return err
		}
		if _, err := cfg.SetupLogging(nil); err != nil {
			return err
		}

		parent := cmd.Context()
		if parent == nil {
			parent = context.Background()
		}
		ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
		defer stop()

		m, err := woodlandmigrate.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = m.Close() }()

		summary, runErr := m.Run(ctx)
		printSummary(cmd.OutOrStdout(), summary)
		if runReportPath != "" {
			if err := writeReport(runReportPath, summary, runErr); err != nil {
				return err
			}
		}
		return runErr
	},
}

func init() {
	runCmd.Flags().StringVar(&runReportPath, "report", "", "write the run summary as YAML to this path")
}

func printSummary(w io.Writer, s woodlandmigrate.Summary) {
	_, _ = fmt.Fprintln(w, s.String())
	for _, f := range s.Failures {
		_, _ = fmt.Fprintf(w, "failed #%d kind=%s attempts=%d: %s\n", f.LegacyOwnerID, f.Kind, f.Attempts, f.Reason)
	}
}

// runReport is the YAML document written by --report.
type runReport struct {
	Summary woodlandmigrate.Summary `yaml:"summary"`
	Error   string                  `yaml:"error,omitempty"`
}

func writeReport(path string, s woodlandmigrate.Summary, runErr error) error {
	rep := runReport{Summary: s}
	if runErr != nil {
		rep.Error = runErr.Error()
	}
	out, err := yaml.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	clean := filepath.Clean(path)
	if err := os.WriteFile(clean, out, 0o600); err != nil {
		return fmt.Errorf("write report %s: %w", clean, err)
	}
	return nil
}
