// Package main exports a saved session as a protobuf or JSON bundle.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/danielpatrickdp/freqtag/go-controller/internal/logger"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/logging"
)

// #region main

var rootCmd = &cobra.Command{
	Use:          "freqtag-export [session-id]",
	Short:        "Write a saved session as a bundle file (default: latest session)",
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	PreRunE: func(*cobra.Command, []string) error {
		return logger.Configure(viper.GetString("log-level"), "")
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		id := ""
		if len(args) == 1 {
			id = args[0]
		}
		format, err := logging.ParseBundleFormat(viper.GetString("format"))
		if err != nil {
			return err
		}
		out := viper.GetString("out")
		if out == "" {
			return fmt.Errorf("--out is required")
		}
		written, err := run(viper.GetString("db"), id, out, format)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported session %s to %s (%s)\n", written, out, format)
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.Flags()
	f.String("db", "freqtag.db", "path to the log database")
	f.String("out", "", "output bundle path")
	f.String("format", "binary", "bundle encoding (binary|json)")
	f.String("log-level", "", "log level (debug|info|warn|error)")
	if err := viper.BindPFlags(f); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding flags: %v\n", err)
		os.Exit(1)
	}
	viper.SetEnvPrefix("FREQTAG")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// #endregion main

// #region export

// run loads session id (or the latest) from dbPath and writes its bundle to out.
// It returns the exported session id.
func run(dbPath, id, out string, format logging.BundleFormat) (string, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return "", fmt.Errorf("open db: %w", err)
	}
	store, err := logging.NewStore(dbPath)
	if err != nil {
		return "", err
	}
	defer store.Close()

	if id == "" {
		if id, err = store.LatestSession(); err != nil {
			return "", err
		}
	}
	sess, err := store.LoadSession(id)
	if err != nil {
		return "", err
	}
	if err := sess.WriteBundle(out, format); err != nil {
		return "", err
	}
	return sess.ID, nil
}

// #endregion export
