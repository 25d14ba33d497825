package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/specialistvlad/buildchain/internal/app"
)

// Exit codes.
const (
	ExitBuildFailure = 1
	ExitUsage        = 2
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error { return e.Err }

func usageError(format string, args ...any) *ExitError {
	return &ExitError{Code: ExitUsage, Message: fmt.Sprintf(format, args...)}
}

func buildFailure(err error) *ExitError {
	return &ExitError{Code: ExitBuildFailure, Message: err.Error(), Err: err}
}

// Execute runs the command line given by args. User-facing output goes to
// outW, logs and diagnostics to errW.
func Execute(ctx context.Context, args []string, outW, errW io.Writer) error {
	root := NewRootCommand(outW, errW)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	// Anything cobra rejects before a command runs is a usage problem.
	return &ExitError{Code: ExitUsage, Message: err.Error(), Err: err}
}

// NewRootCommand creates the buildchain command tree.
func NewRootCommand(outW, errW io.Writer) *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "buildchain",
		Short: "Run declarative build chains",
		Long: `buildchain runs the steps declared in HCL chain files in dependency order.

Steps declare the items they consume and produce. A step runs as soon as
everything it consumes is available, and independent steps run concurrently.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(outW)
	root.SetErr(errW)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError("%v\n\n%s", err, cmd.UsageString())
	})

	flags := root.PersistentFlags()
	flags.String("config", "", "Path to a config file (default: ./buildchain.yaml if present).")
	flags.Int("workers", 10, "Number of concurrent workers for the executor.")
	flags.Bool("fail-fast", false, "Cancel pending steps after the first fatal failure.")
	flags.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	flags.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	flags.Int("healthcheck-port", 0, "Port for the HTTP health check and metrics server. 0 is disabled.")
	flags.String("report", "", "Write a build report to this path (.json or .yaml).")
	flags.String("events-url", "", "Stream build events to this socket.io server.")
	flags.String("trace-exporter", "none", "Trace exporter. Options: 'none', 'stdout', 'otlp'.")
	flags.String("metric-exporter", "prometheus", "Metric exporter. Options: 'none', 'stdout', 'prometheus'.")
	flags.String("otlp-endpoint", "localhost:4317", "OTLP gRPC endpoint for the otlp trace exporter.")
	flags.Int("cache-size", 16, "Number of built chains kept in memory by watch mode.")
	flags.Bool("no-color", false, "Disable colored output.")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return bindConfig(v, cmd.Flags())
	}

	root.AddCommand(
		newRunCommand(v, outW, errW),
		newGraphCommand(v, outW, errW),
		newWatchCommand(v, outW, errW),
		newVersionCommand(outW),
	)
	return root
}

// bindConfig layers flags over BUILDCHAIN_* environment variables over the
// config file.
func bindConfig(v *viper.Viper, flags *pflag.FlagSet) error {
	if err := v.BindPFlags(flags); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	v.SetEnvPrefix("BUILDCHAIN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return usageError("failed to read config file %s: %v", path, err)
		}
		return nil
	}

	v.SetConfigName("buildchain")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return usageError("failed to read config file: %v", err)
		}
	}
	return nil
}

// appConfig turns the bound settings and positional chain paths into a
// validated app.Config. Paths fall back to the "paths" config key.
func appConfig(v *viper.Viper, args []string, logW io.Writer) (*app.Config, error) {
	paths := args
	if len(paths) == 0 {
		paths = v.GetStringSlice("paths")
	}
	if len(paths) == 0 {
		return nil, usageError("at least one chain file or directory is required")
	}

	cfg, err := app.NewConfig(app.Config{
		ChainPaths:      paths,
		Workers:         v.GetInt("workers"),
		FailFast:        v.GetBool("fail-fast"),
		CacheSize:       v.GetInt("cache-size"),
		LogFormat:       strings.ToLower(v.GetString("log-format")),
		LogLevel:        strings.ToLower(v.GetString("log-level")),
		LogOutput:       logW,
		HealthcheckPort: v.GetInt("healthcheck-port"),
		NoColor:         v.GetBool("no-color") || color.NoColor,
		ReportPath:      v.GetString("report"),
		EventsURL:       v.GetString("events-url"),
		TraceExporter:   strings.ToLower(v.GetString("trace-exporter")),
		MetricExporter:  strings.ToLower(v.GetString("metric-exporter")),
		OTLPEndpoint:    v.GetString("otlp-endpoint"),
	})
	if err != nil {
		return nil, usageError("%v", err)
	}
	return cfg, nil
}

// withApp builds the App for one command and closes it afterwards.
func withApp(cmd *cobra.Command, v *viper.Viper, args []string, outW, errW io.Writer, fn func(a *app.App) error) error {
	cfg, err := appConfig(v, args, errW)
	if err != nil {
		return err
	}
	a, err := app.NewApp(cmd.Context(), outW, cfg)
	if err != nil {
		return buildFailure(err)
	}
	runErr := fn(a)
	if err := a.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		var exitErr *ExitError
		if errors.As(runErr, &exitErr) {
			return exitErr
		}
		return buildFailure(runErr)
	}
	return nil
}
