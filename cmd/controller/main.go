// Package main runs a frequency-tagging experiment design on the simulated
// display, writing the log to SQLite and sending triggers to a DLP-IO8-G.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/danielpatrickdp/freqtag/go-controller/internal/controller"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/design"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/display"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/logger"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/logging"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/metrics"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/status"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/trigger"
)

var (
	logLevel string
	logFile  string
	version  = "0.3.0"
)

// #region commands
var rootCmd = &cobra.Command{
	Use:   "freqtag-controller",
	Short: "Refresh-locked frequency-tagging experiment controller",
	Long: `freqtag-controller presents flickering word stimuli at precomputed refresh
schedules, logs every refresh-stamped change and signals EEG triggers.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an experiment design",
	Long: `Run an experiment design on the simulated display. Without --design a short
built-in two-word demo runs. Type q and Enter to quit, p and Enter to pause or resume.`,
	RunE: runExperiment,
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports for the trigger box",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ports, err := trigger.ListPorts()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "no serial ports found")
		}
		for _, p := range ports {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "freqtag-controller v%s\n", version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (debug|info|warn|error) [default: info]")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr")

	f := runCmd.Flags()
	f.String("design", "", "experiment design YAML (default: built-in demo)")
	f.String("db", "freqtag.db", "SQLite database the log is saved to")
	f.String("label", "", "session label stored with the log")
	f.String("bundle", "", "also write a protobuf bundle to this path")
	f.String("bundle-format", "binary", "bundle encoding (binary|json)")
	f.Float64("refresh-rate", 0, "simulated display rate in Hz (default: the design's)")
	f.Int("drop-every", 0, "simulate a dropped frame every N refreshes")
	f.Bool("realtime", false, "pace refreshes against the wall clock")
	f.String("trigger-port", "", "serial device of the DLP-IO8-G (default: no hardware)")
	f.Int("trigger-baud", trigger.DefaultBaud, "trigger port baud rate")
	f.Duration("trigger-pulse", trigger.DefaultPulse, "trigger pulse width")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address")
	f.String("status-addr", "", "serve gRPC health status on this address")
	f.Bool("keys", true, "read q/p commands from stdin")

	for _, name := range []string{"log-level", "log-file"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding %s flag: %v\n", name, err)
			os.Exit(1)
		}
	}
	if err := viper.BindPFlags(f); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding run flags: %v\n", err)
		os.Exit(1)
	}
	viper.SetEnvPrefix("FREQTAG")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(versionCmd)

	cobra.OnInitialize(initConfig)
}

func initConfig() {
	if err := logger.Configure(viper.GetString("log-level"), viper.GetString("log-file")); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		os.Exit(1)
	}
}

// #endregion commands

// #region run
func runExperiment(cmd *cobra.Command, _ []string) error {
	lg := logger.NewComponent("run")

	des := design.DefaultDesign()
	if path := viper.GetString("design"); path != "" {
		var err error
		if des, err = design.Load(path); err != nil {
			return err
		}
	}
	format, err := logging.ParseBundleFormat(viper.GetString("bundle-format"))
	if err != nil {
		return err
	}

	if rate := viper.GetFloat64("refresh-rate"); rate > 0 && rate != des.RefreshRate {
		if des, err = des.AtRefreshRate(rate); err != nil {
			return err
		}
	}
	rate := des.RefreshRate
	var displayOpts []display.VirtualOption
	if n := viper.GetInt("drop-every"); n > 0 {
		displayOpts = append(displayOpts, display.WithDroppedFrames(n))
	}
	if viper.GetBool("realtime") {
		displayOpts = append(displayOpts, display.WithRealtime())
	}
	clock := display.NewVirtualClock(0)
	win, err := display.NewVirtual(clock, rate, displayOpts...)
	if err != nil {
		return err
	}

	exp, err := design.Build(des, win)
	if err != nil {
		return err
	}
	explog := logging.New(exp.Loggables())
	label := viper.GetString("label")
	if label == "" {
		label = des.Name
	}
	explog.SetLabel(label)

	// metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg)
	if addr := viper.GetString("metrics-addr"); addr != "" {
		srv := &http.Server{Addr: addr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				lg.Error("metrics server stopped", "err", err)
			}
		}()
		defer srv.Close()
		lg.Info("metrics listening", "addr", addr)
	}

	opts := []controller.Option{
		controller.WithLogger(logger.NewComponent("controller")),
		controller.WithMetrics(m),
	}

	// status
	if addr := viper.GetString("status-addr"); addr != "" {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen status %s: %w", addr, err)
		}
		st := status.NewServer()
		go func() {
			if err := st.Serve(lis); err != nil {
				lg.Error("status server stopped", "err", err)
			}
		}()
		defer st.Stop()
		opts = append(opts, controller.WithModeListener(st.ReportMode))
	}

	// triggers
	var port trigger.Port = trigger.NewMock()
	if dev := viper.GetString("trigger-port"); dev != "" {
		s, err := trigger.Open(dev, viper.GetInt("trigger-baud"), viper.GetDuration("trigger-pulse"))
		if err != nil {
			return err
		}
		port = s
	}
	defer port.Close()

	if viper.GetBool("keys") {
		opts = append(opts, controller.WithKeys(newStdinKeys(os.Stdin), "q", "p"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctrl, err := exp.NewController(win, clock, explog, port, nil, opts...)
	if err != nil {
		return err
	}
	lg.Info("session", "id", explog.SessionID(), "design", des.Name, "refresh_rate", rate)

	runErr := ctrl.RunExperiment(ctx)
	signalEnd(port, runErr, ctrl.Quitting(), lg)

	saveErr := saveLog(explog, viper.GetString("db"), viper.GetString("bundle"), format, lg)
	if runErr != nil {
		lg.Error("run failed", "err", runErr, "state", ctrl.Current(), "index", ctrl.StateNumber())
		return errors.Join(runErr, saveErr)
	}
	if saveErr != nil {
		return saveErr
	}
	lg.Info("run complete", "mode", ctrl.Mode(), "trials", ctrl.Trial(), "refreshes", ctrl.Refreshes(), "dropped", win.Dropped())
	return nil
}

// signalEnd sends EXPEND after a clean finish, ABORT after a quit and ERROR
// after a failure.
func signalEnd(port trigger.Port, runErr error, quit bool, lg *log.Logger) {
	name := trigger.ExpEnd
	switch {
	case runErr != nil && !errors.Is(runErr, context.Canceled):
		name = trigger.Error
	case runErr != nil || quit:
		name = trigger.Abort
	}
	code, err := trigger.DefaultTable().Code(name)
	if err == nil {
		err = port.Signal(code)
	}
	if err != nil {
		lg.Warn("end trigger not sent", "trigger", name, "err", err)
	}
}

// saveLog flushes whatever pending values can still resolve, then writes the
// database and the optional bundle.
func saveLog(l *logging.ExperimentLog, db, bundle string, format logging.BundleFormat, lg *log.Logger) error {
	if l.Pending() > 0 {
		if err := l.Flush(); err != nil {
			lg.Warn("unresolved values dropped", "err", err)
		}
	}
	if err := l.Save(db); err != nil {
		return fmt.Errorf("save log: %w", err)
	}
	if bundle != "" {
		if err := l.WriteBundle(bundle, format); err != nil {
			return fmt.Errorf("write bundle: %w", err)
		}
	}
	return nil
}

// #endregion run
