// Package main replays experiment fixtures on the simulated display and audits
// sessions saved by freqtag-controller.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/danielpatrickdp/freqtag/go-controller/internal/audit"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/logger"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/logging"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/replay"
)

// errDiverged marks a run that completed but did not match expectations.
var errDiverged = errors.New("replay diverged")

// #region main

var rootCmd = &cobra.Command{
	Use:          "freqtag-replay",
	Short:        "Replay fixtures and audit recorded sessions",
	SilenceUsage: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		return logger.Configure(viper.GetString("log-level"), "")
	},
}

var fixtureCmd = &cobra.Command{
	Use:   "fixture <path>...",
	Short: "Run fixtures and compare them against their expectations",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		failed := 0
		for _, path := range args {
			ok, err := runFixture(cmd, path, viper.GetBool("record"))
			if err != nil {
				return err
			}
			if !ok {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%w: %d of %d fixtures", errDiverged, failed, len(args))
		}
		return nil
	},
}

var sessionCmd = &cobra.Command{
	Use:   "session [session-id]",
	Short: "Audit the timing of a saved session (default: latest)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := ""
		if len(args) == 1 {
			id = args[0]
		}
		return runSession(cmd, viper.GetString("db"), id)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug|info|warn|error)")
	fixtureCmd.Flags().Bool("record", false, "overwrite each fixture's expectations with this run")
	sf := sessionCmd.Flags()
	sf.String("db", "freqtag.db", "path to the log database")
	sf.Float64("refresh-rate", 60, "nominal refresh rate of the recording display, Hz")
	sf.Float64("max-overshoot", 1.0, "allowed state overshoot, frames")
	sf.Float64("max-freq-error", 0.05, "allowed relative flicker frequency error")

	for _, fs := range []*cobra.Command{rootCmd, fixtureCmd, sessionCmd} {
		if err := viper.BindPFlags(fs.Flags()); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding flags: %v\n", err)
			os.Exit(1)
		}
	}
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding flags: %v\n", err)
		os.Exit(1)
	}
	viper.SetEnvPrefix("FREQTAG")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(fixtureCmd, sessionCmd)
}

// #endregion main

// #region fixture-mode

func runFixture(cmd *cobra.Command, path string, record bool) (bool, error) {
	f, err := replay.LoadFixture(path)
	if err != nil {
		return false, err
	}
	r, err := replay.ReplayFixture(cmd.Context(), f)
	if err != nil {
		return false, fmt.Errorf("replay %s: %w", path, err)
	}

	out := cmd.OutOrStdout()
	if record {
		f.Expected = replay.ExpectedFrom(r)
		if err := replay.SaveFixture(path, f); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "%-32s  RECORDED  %d states, %d refreshes\n", path, len(r.States), r.Refreshes)
		return true, nil
	}

	diffs := replay.Compare(f.Expected, r)
	if len(diffs) == 0 {
		fmt.Fprintf(out, "%-32s  OK        %d states, %d refreshes\n", path, len(r.States), r.Refreshes)
		return true, nil
	}
	fmt.Fprintf(out, "%-32s  DIFF\n", path)
	for _, d := range diffs {
		fmt.Fprintf(out, "    %s\n", d)
	}
	return false, nil
}

// #endregion fixture-mode

// #region session-mode

func runSession(cmd *cobra.Command, dbPath, id string) error {
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	store, err := logging.NewStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if id == "" {
		if id, err = store.LatestSession(); err != nil {
			return err
		}
	}
	sess, err := store.LoadSession(id)
	if err != nil {
		return err
	}

	cfg := audit.DefaultAuditConfig()
	cfg.RefreshRate = viper.GetFloat64("refresh-rate")
	cfg.MaxOvershootFrames = viper.GetFloat64("max-overshoot")
	cfg.MaxFrequencyError = viper.GetFloat64("max-freq-error")
	result := audit.NewHarness(cfg).Run(sess)

	printAudit(cmd, sess, result)
	if !result.Passed {
		return fmt.Errorf("%w: %s", errDiverged, result.Reason)
	}
	return nil
}

func printAudit(cmd *cobra.Command, sess *logging.Session, result audit.AuditResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "session %s  label=%q  states=%d\n\n", sess.ID, sess.Label, result.States)
	fmt.Fprintf(out, "%-28s| %-12s| %s\n", "Metric", "Value", "Pass")
	fmt.Fprintf(out, "%-28s+%-13s+%s\n", "----------------------------", "-------------", "------")
	for _, m := range result.Metrics {
		pass := "OK"
		if !m.Pass {
			pass = "FAIL"
		}
		fmt.Fprintf(out, "%-28s| %-12.4f| %s\n", m.Name, m.Value, pass)
	}
	if result.Passed {
		fmt.Fprintln(out, "\nSummary: passed")
		return
	}
	fmt.Fprintf(out, "\nSummary: failed (%s)\n", result.Reason)
}

// #endregion session-mode
