package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/i1skn/ironbelly-sub000/internal/config"
)

//go:embed templates/ironbelly-tor.yaml
var configTemplate embed.FS

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new ironbelly-tor configuration file",
		Long: `Initialize creates a new .ironbelly-tor configuration file in the current directory.

The generated file includes:
- Ports and the cookie path the wallet expects
- Connection and polling timeouts
- Commented examples for the tor binary, GeoIP files and bridges

Examples:
  # Create .ironbelly-tor in current directory
  ironbelly-tor init

  # Create config file at a specific path
  ironbelly-tor init -o ~/.config/ironbelly-tor/config.yaml

  # Force overwrite existing file
  ironbelly-tor init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile("templates/ironbelly-tor.yaml")
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to configure settings such as:")
	fmt.Fprintln(out, "  - The tor binary and GeoIP resource directory")
	fmt.Fprintln(out, "  - Bridges for censored networks")
	fmt.Fprintln(out, "  - Connection and polling timeouts")

	return nil
}
