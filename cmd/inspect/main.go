// Package main inspects logs saved by freqtag-controller and queries a running
// controller's status server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/danielpatrickdp/freqtag/go-controller/internal/logger"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/logging"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/status"
)

// #region main

var rootCmd = &cobra.Command{
	Use:          "freqtag-inspect",
	Short:        "Inspect saved experiment logs",
	SilenceUsage: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		return logger.Configure(viper.GetString("log-level"), "")
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved sessions, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		return runList(cmd.OutOrStdout(), store, viper.GetInt("last"), viper.GetBool("json"))
	},
}

var showCmd = &cobra.Command{
	Use:   "show [session-id]",
	Short: "Print a session's state table (default: latest session)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		id := ""
		if len(args) == 1 {
			id = args[0]
		}
		return runShow(cmd.OutOrStdout(), store, id, showOptions{
			continuous: viper.GetBool("continuous"),
			columns:    viper.GetStringSlice("columns"),
			json:       viper.GetBool("json"),
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Ask a running controller for its mode",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := status.Dial(viper.GetString("addr"))
		if err != nil {
			return err
		}
		defer client.Close()
		ctx, cancel := context.WithTimeout(cmd.Context(), viper.GetDuration("timeout"))
		defer cancel()
		mode, err := client.Mode(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), mode)
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("db", "freqtag.db", "path to the log database")
	pf.Bool("json", false, "output as JSON instead of a table")
	pf.String("log-level", "", "log level (debug|info|warn|error)")
	listCmd.Flags().Int("last", 20, "show N most recent sessions")
	showCmd.Flags().Bool("continuous", false, "print refresh-stamped events instead of states")
	showCmd.Flags().StringSlice("columns", nil, "only print these columns")
	statusCmd.Flags().String("addr", "localhost:50071", "status server address")
	statusCmd.Flags().Duration("timeout", 3*time.Second, "status request timeout")

	for _, c := range []*cobra.Command{listCmd, showCmd, statusCmd} {
		if err := viper.BindPFlags(c.Flags()); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding flags: %v\n", err)
			os.Exit(1)
		}
	}
	if err := viper.BindPFlags(pf); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding flags: %v\n", err)
		os.Exit(1)
	}
	viper.SetEnvPrefix("FREQTAG")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(listCmd, showCmd, statusCmd)
}

func openStore() (*logging.Store, error) {
	path := viper.GetString("db")
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return logging.NewStore(path)
}

// #endregion main

// #region list-mode

type listRow struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	CreatedAt string `json:"created_at"`
	States    int    `json:"states"`
	Events    int    `json:"events"`
}

func runList(w io.Writer, store *logging.Store, last int, jsonOut bool) error {
	sessions, err := store.ListSessions(last)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(os.Stderr, "no sessions found")
		return nil
	}

	rows := make([]listRow, len(sessions))
	for i, s := range sessions {
		rows[i] = listRow{
			ID:        s.ID,
			Label:     s.Label,
			CreatedAt: s.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
			States:    s.States,
			Events:    s.Events,
		}
	}
	if jsonOut {
		return printJSON(w, rows)
	}

	fmt.Fprintf(w, "%-12s  %-20s  %7s  %7s  %s\n", "Session", "Label", "States", "Events", "Time")
	fmt.Fprintf(w, "%-12s+-%-20s+-%7s+-%7s+-%s\n", "------------", "--------------------", "-------", "-------", "--------------------")
	for _, r := range rows {
		fmt.Fprintf(w, "%-12s  %-20s  %7d  %7d  %s\n", shortID(r.ID), truncate(r.Label, 20), r.States, r.Events, r.CreatedAt)
	}
	return nil
}

// #endregion list-mode

// #region show-mode

type showOptions struct {
	continuous bool
	columns    []string
	json       bool
}

func runShow(w io.Writer, store *logging.Store, id string, opts showOptions) error {
	if id == "" || id == "latest" {
		latest, err := store.LatestSession()
		if err != nil {
			return err
		}
		id = latest
	}
	sess, err := store.LoadSession(id)
	if err != nil {
		return err
	}

	table := sess.StatesTable()
	if opts.continuous {
		table = sess.ContinuousTable()
	}
	table = selectColumns(table, opts.columns)

	if opts.json {
		out := make([]map[string]any, len(table.Rows))
		for i, row := range table.Rows {
			m := make(map[string]any, len(table.Columns))
			for j, c := range table.Columns {
				m[c] = jsonSafe(row[j])
			}
			out[i] = m
		}
		return printJSON(w, out)
	}

	fmt.Fprintf(w, "session %s  label=%q  states=%d  events=%d\n\n", sess.ID, sess.Label, len(sess.Records), len(sess.Events))
	fmt.Fprintln(w, strings.Join(table.Columns, "\t"))
	for _, row := range table.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatCell(v)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	return nil
}

func selectColumns(t logging.Table, cols []string) logging.Table {
	if len(cols) == 0 {
		return t
	}
	idx := make([]int, 0, len(cols))
	names := make([]string, 0, len(cols))
	for _, c := range cols {
		for i, have := range t.Columns {
			if have == c {
				idx = append(idx, i)
				names = append(names, c)
				break
			}
		}
	}
	out := logging.Table{Columns: names, Rows: make([][]any, len(t.Rows))}
	for r, row := range t.Rows {
		sel := make([]any, len(idx))
		for j, i := range idx {
			sel[j] = row[i]
		}
		out.Rows[r] = sel
	}
	return out
}

// #endregion show-mode

// #region helpers

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case float64:
		return fmt.Sprintf("%.4f", x)
	default:
		return fmt.Sprint(x)
	}
}

// jsonSafe replaces non-finite floats, which encoding/json rejects.
func jsonSafe(v any) any {
	if f, ok := v.(float64); ok && (math.IsInf(f, 0) || math.IsNaN(f)) {
		return fmt.Sprint(f)
	}
	return v
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

// #endregion helpers
