package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/pledgeworks/pledge/internal/config"
	"github.com/pledgeworks/pledge/internal/logger"
)

// RootOptions holds global flags and the configuration loaded from them.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Config and Logger are set before any subcommand runs.
	Config *config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the pledge CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "pledge",
		Short: "pledge - commitments you can be held to",
		Long: `Create commitments, confirm them on schedule, and enforce stake penalties.

Every write is an operation appended to a SQLite journal. Each command
replays the journal into a fresh engine, so the journal is the only state.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}

			cfg, err := config.Load(cmd)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}
			level := cfg.Log.Level
			if opts.Verbose {
				level = "debug"
			}
			opts.Config = cfg
			opts.Logger = logger.New(cmd.ErrOrStderr(), level)
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.String("config", "", "config file (default ./"+config.DefaultConfigFile+" if present)")
	flags.String("db", config.DefaultStorePath, "path to the SQLite journal")
	flags.String("as", "", "identity submitting operations")
	flags.String("registrar", config.DefaultRegistrar, "registrar identity recorded in a new journal")
	flags.String("log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	flags.String("lock-timeout", config.DefaultStoreLockTimeout, "how long to wait for the journal lock")

	cmd.AddCommand(NewRegisterKindCommand(opts))
	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewConfirmCommand(opts))
	cmd.AddCommand(NewCancelCommand(opts))
	cmd.AddCommand(NewPauseCommand(opts))
	cmd.AddCommand(NewResumeCommand(opts))
	cmd.AddCommand(NewStartCommand(opts))
	cmd.AddCommand(NewExitCommand(opts))
	cmd.AddCommand(NewJoinCommand(opts))
	cmd.AddCommand(NewPenalizeCommand(opts))
	cmd.AddCommand(NewWithdrawCommand(opts))

	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewKindsCommand(opts))

	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// Execute runs cmd and returns the process exit code. Errors a command
// has not already written to its output go to stderr.
func Execute(cmd *cobra.Command) int {
	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if !errors.As(err, &exitErr) || !exitErr.reported {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
	}
	return GetExitCode(err)
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
