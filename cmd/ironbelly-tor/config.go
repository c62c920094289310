package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/i1skn/ironbelly-sub000/internal/config"
)

// addProxyFlags registers the flags shared by commands that talk to Tor.
func addProxyFlags(cmd *cobra.Command) {
	cmd.Flags().String("data-dir", "",
		"Tor data directory (default: XDG data directory)")
	cmd.Flags().Int("proxy-port", config.DefaultProxyPort,
		"SOCKS port Tor listens on")
	cmd.Flags().Int("control-port", config.DefaultControlPort,
		"Control port Tor listens on")
	cmd.Flags().String("control-host", config.DefaultControlHost,
		"Host of the SOCKS and control ports")
}

// loadConfig builds a Config from defaults, the configuration file and
// flags, in that order, and validates it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		configPath, _ = cmd.Root().PersistentFlags().GetString("config")
	}
	cfg.ConfigFilePath = configPath

	// An explicit path must exist; otherwise a missing file means defaults.
	if path := config.FindConfigFile(configPath); path != "" {
		f, err := config.LoadConfigFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		f.Apply(cfg)
	} else if configPath != "" {
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, configPath)
	}

	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}

	cfg.Verbose = getBoolFlag(cmd, "verbose")
	cfg.LogJSON = getBoolFlag(cmd, "log-json")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

// applyFlags copies the flags the user set onto cfg. Flags left at their
// defaults do not override the configuration file.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var errs []error

	if flags.Changed("data-dir") {
		v, err := flags.GetString("data-dir")
		errs = append(errs, err)
		cfg.DataDir = v
	}
	if flags.Changed("proxy-port") {
		v, err := flags.GetInt("proxy-port")
		errs = append(errs, err)
		cfg.ProxyPort = v
	}
	if flags.Changed("control-port") {
		v, err := flags.GetInt("control-port")
		errs = append(errs, err)
		cfg.ControlPort = v
	}
	if flags.Changed("control-host") {
		v, err := flags.GetString("control-host")
		errs = append(errs, err)
		cfg.ControlHost = v
	}
	if flags.Changed("tor") {
		v, err := flags.GetString("tor")
		errs = append(errs, err)
		cfg.BinaryPath = v
	}
	if flags.Changed("resource-dir") {
		v, err := flags.GetString("resource-dir")
		errs = append(errs, err)
		cfg.ResourceDir = v
	}
	if flags.Changed("bridge") {
		v, err := flags.GetStringArray("bridge")
		errs = append(errs, err)
		cfg.Bridges = v
	}
	if flags.Changed("connect-timeout") {
		v, err := flags.GetDuration("connect-timeout")
		errs = append(errs, err)
		cfg.ConnectTimeout = v
	}
	if flags.Changed("poll-interval") {
		v, err := flags.GetDuration("poll-interval")
		errs = append(errs, err)
		cfg.PollInterval = v
	}
	if flags.Changed("journal-dir") {
		v, err := flags.GetString("journal-dir")
		errs = append(errs, err)
		cfg.JournalDir = v
	}
	if flags.Changed("no-journal") {
		if off, err := flags.GetBool("no-journal"); err != nil {
			errs = append(errs, err)
		} else if off {
			cfg.JournalDir = ""
		}
	}
	return errors.Join(errs...)
}
