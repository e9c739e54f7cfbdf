// Package cmd provides the docindex CLI commands.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/config"
	apperrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/logging"
	"github.com/Aman-CERP/docindex/internal/profiling"
	"github.com/Aman-CERP/docindex/pkg/version"
)

// app carries state shared by all commands of one invocation.
type app struct {
	dir      string
	logLevel string
	logFile  string
	verbose  bool
	profile  profiling.Options

	cfg    *config.Config
	cfgErr error

	profiler       *profiling.Session
	loggingCleanup func()
}

// config returns the configuration loaded for --dir.
func (a *app) config() (*config.Config, error) {
	return a.cfg, a.cfgErr
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "docindex",
		Short: "Embedding index and semantic search for text documents",
		Long: `docindex splits documents into overlapping chunks, embeds them with a
configurable provider (OpenAI-compatible, Ollama or a local static hasher)
and stores the vectors in a single index file for similarity search.

Configuration is read from ~/.config/docindex/config.yaml, .docindex.yaml
in --dir and DOCINDEX_* environment variables, in that order.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("docindex version {{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.dir, "dir", ".", "Directory holding .docindex.yaml and .env")
	pf.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error (default from config)")
	pf.StringVar(&a.logFile, "log-file", logging.DefaultLogPath(), "Log file path, empty to disable")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Also write logs to stderr")
	pf.StringVar(&a.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	pf.StringVar(&a.profile.Heap, "profile-mem", "", "Write heap profile to file")
	pf.StringVar(&a.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = a.start
	cmd.PersistentPostRunE = a.stop

	cmd.AddCommand(newIndexCmd(a))
	cmd.AddCommand(newSearchCmd(a))
	cmd.AddCommand(newMergeCmd(a))
	cmd.AddCommand(newInfoCmd(a))
	cmd.AddCommand(newWatchCmd(a))
	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newConfigCmd(a))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func (a *app) start(_ *cobra.Command, _ []string) error {
	a.cfg, a.cfgErr = config.Load(a.dir)

	level := a.logLevel
	if level == "" {
		level = "info"
		if a.cfg != nil {
			level = a.cfg.Server.LogLevel
		}
	}
	logger, cleanup, err := logging.Setup(logging.Config{
		Level:     level,
		FilePath:  a.logFile,
		MaxSizeMB: 10,
		MaxFiles:  5,
		Stderr:    a.verbose,
	})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	a.loggingCleanup = cleanup
	slog.SetDefault(logger)

	if a.profile.Enabled() {
		if a.profiler, err = profiling.Start(a.profile); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) stop(_ *cobra.Command, _ []string) error {
	err := a.profiler.Stop()
	a.profiler = nil
	if a.loggingCleanup != nil {
		a.loggingCleanup()
		a.loggingCleanup = nil
	}
	return err
}

// Execute runs the root command and prints errors in CLI form.
func Execute() error {
	cmd := NewRootCmd()
	err := cmd.Execute()
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), apperrors.FormatForCLI(err))
	}
	return err
}
