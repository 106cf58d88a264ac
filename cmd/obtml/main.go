package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"olist-ml/internal/cfg"
	"olist-ml/internal/metrics"
	"olist-ml/internal/report"

	"github.com/fatih/color"
	_ "github.com/mattn/go-sqlite3" // sqlite3:// sample warehouses
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var rootFlags struct {
	envFile  string
	logLevel string
	output   string
}

// app is set up by the root command before any subcommand runs.
var app *App

var rootCmd = &cobra.Command{
	Use:   "obtml",
	Short: "Delivery delay, churn and review models over the Olist OBT",
	Long: `obtml trains and serves binary classifiers on the Olist one-big-table
export: late delivery, customer churn and positive review.

Configuration comes from the environment, a .env file and, when
CONFIG_FILE is set, a YAML file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var envFiles []string
		if rootFlags.envFile != "" {
			envFiles = append(envFiles, rootFlags.envFile)
		}
		settings, err := cfg.Load(envFiles...)
		if err != nil {
			return err
		}
		if rootFlags.logLevel != "" {
			settings.LogLevel = rootFlags.logLevel
		}
		app = newApp(settings, cmd.OutOrStdout(), rootFlags.output)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.envFile, "env-file", "", "Env file to load (default .env)")
	rootCmd.PersistentFlags().StringVar(&rootFlags.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVarP(&rootFlags.output, "output", "o", "", "Directory for exported reports")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if app != nil {
		app.Close()
	}
	if err != nil {
		color.Red("✗ %v", err)
		os.Exit(1)
	}
}

// App holds what every subcommand shares.
type App struct {
	Settings cfg.Settings
	Metrics  *metrics.Metrics
	Wrapper  *metrics.MetricsWrapper
	Reporter *report.Reporter
	logFile  io.Closer
}

func newApp(settings cfg.Settings, out io.Writer, outputPath string) *App {
	a := &App{Settings: settings}
	a.logFile = setupLogging(settings)
	a.Metrics = metrics.New()
	a.Wrapper = metrics.NewWrapper(a.Metrics)
	a.Reporter = report.NewReporter(out, outputPath)
	return a
}

// setupLogging points the global logger at stderr and, when LogFile is
// set, at a rotating file as well.
func setupLogging(settings cfg.Settings) io.Closer {
	zerolog.SetGlobalLevel(settings.Level())
	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	var closer io.Closer
	if settings.LogFile != "" {
		rotating := &lumberjack.Logger{
			Filename:   settings.LogFile,
			MaxSize:    32, // megabytes
			MaxBackups: 8,
			MaxAge:     15, // days
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(out, rotating)
		closer = rotating
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return closer
}

// Close flushes the metrics textfile and the log file.
func (a *App) Close() {
	if a.Settings.MetricsFile != "" {
		if err := a.Metrics.WriteToTextfile(a.Settings.MetricsFile); err != nil {
			log.Error().Err(err).Str("file", a.Settings.MetricsFile).Msg("Failed to write metrics")
		} else {
			log.Debug().Str("file", a.Settings.MetricsFile).Msg("Metrics written")
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}
