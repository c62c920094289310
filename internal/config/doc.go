// Package config provides the Tor proxy supervisor's configuration: a flat
// Config with defaults and validation, XDG directory helpers, and the YAML
// configuration file loader.
package config
