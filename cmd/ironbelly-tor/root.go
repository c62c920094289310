package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/i1skn/ironbelly-sub000/internal/log"
)

// NewRootCmd creates the root command for ironbelly-tor.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ironbelly-tor",
		Short: "Supervise the Tor proxy used by the Ironbelly wallet",
		Long: `ironbelly-tor launches a Tor client, authenticates on its control port
with the cookie file and reports bootstrap progress until Tor exits.

Settings come from a YAML file (see "ironbelly-tor init") and can be
overridden with flags. State transitions of every run are kept in a
journal that "ironbelly-tor history" prints.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .ironbelly-tor in current or home directory)")

	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewCheckCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// getBoolFlag retrieves a bool flag from the command or the root's
// persistent flags.
func getBoolFlag(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// setupLogger creates the secure logger on stderr and makes it the default.
func setupLogger(cmd *cobra.Command) *slog.Logger {
	logger := log.New(cmd.ErrOrStderr(), log.Options{
		Verbose: getBoolFlag(cmd, "verbose"),
		JSON:    getBoolFlag(cmd, "log-json"),
	})
	slog.SetDefault(logger)
	return logger
}
