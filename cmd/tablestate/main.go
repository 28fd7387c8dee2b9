package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/internal/config"
	tserrors "github.com/lucasriondel/use-persisting-state-for-react-table-sub001/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	logLevel   string
}

func main() {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "tablestate",
		Short: "Persisted table state for data grids",
		Long: `tablestate keeps the pagination, sorting, filters, column visibility,
global filter and row selection of data tables in sync with the URL
query string and a persistent local blob.

Tables are declared in tablestate.json. The serve command hosts them
over HTTP; resolve and apply work on a single table from the shell.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to tablestate.json or its directory (default: search upwards)")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		initCmd(flags),
		validateCmd(flags),
		resolveCmd(flags),
		applyCmd(flags),
		serveCmd(flags),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		tserrors.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration named by --config.
func (f *globalFlags) loadConfig() (*config.Config, error) {
	if f.configPath == "" {
		return config.LoadFromWorkingDir()
	}
	if st, err := os.Stat(f.configPath); err == nil && st.IsDir() {
		return config.Load(f.configPath)
	}
	return config.LoadFile(f.configPath)
}

// logger returns a text logger on stderr at the --log-level.
func (f *globalFlags) logger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(f.logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}
