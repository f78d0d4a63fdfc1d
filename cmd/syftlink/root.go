package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/openmined/syftlink/internal/link"
	"github.com/openmined/syftlink/internal/logging"
	"github.com/openmined/syftlink/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cli holds state shared by the commands of one invocation.
type cli struct {
	v         *viper.Viper
	cfg       *appConfig
	logCloser io.Closer
	// consoleLevel is raised while the progress view owns the terminal.
	consoleLevel *slog.LevelVar

	// interactive reports whether prompts and the progress view may be used.
	interactive func() bool
}

// newRootCmd builds the command tree. The returned func closes the log file
// once the command has finished.
func newRootCmd() (*cobra.Command, func()) {
	c := &cli{
		v:            viper.New(),
		interactive:  interactiveTerminal,
		consoleLevel: new(slog.LevelVar),
	}
	setDefaults(c.v)

	rootCmd := &cobra.Command{
		Use:           "syftlink",
		Short:         "Two-way sync between a local folder and a remote location",
		Version:       version.Detailed(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}

	rootCmd.PersistentFlags().String("config-dir", defaultConfigDir, "directory holding link definitions and ledgers")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	_ = c.v.BindPFlag("config_dir", rootCmd.PersistentFlags().Lookup("config-dir"))
	_ = c.v.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(newCreateCmd(c))
	rootCmd.AddCommand(newDeleteCmd(c))
	rootCmd.AddCommand(newListCmd(c))
	rootCmd.AddCommand(newSyncCmd(c))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd, c.teardown
}

func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := loadConfig(c.v)
	if err != nil {
		return err
	}
	c.cfg = cfg

	logger, closer, err := logging.New(logging.Options{
		Level:        cfg.LogLevel,
		Console:      cmd.ErrOrStderr(),
		FilePath:     cfg.LogFilePath(),
		ConsoleLevel: c.consoleLevel,
	})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	c.logCloser = closer
	return nil
}

func (c *cli) teardown() {
	if c.logCloser != nil {
		c.logCloser.Close()
		c.logCloser = nil
	}
}

// quietConsole keeps all but errors off the console until restore is called.
// The log file still receives everything.
func (c *cli) quietConsole() (restore func()) {
	previous := c.consoleLevel.Level()
	if previous < slog.LevelError {
		c.consoleLevel.Set(slog.LevelError)
	}
	return func() { c.consoleLevel.Set(previous) }
}

func (c *cli) registry() (*link.Registry, error) {
	return link.NewRegistry(c.cfg.ConfigDir)
}

// interactiveTerminal is swapped out by tests.
var interactiveTerminal = stdioIsTerminal

func stdioIsTerminal() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stderr.Fd())
}
