// Package config loads and validates the daemon's TOML configuration file:
// a [globals] table plus ordered [[input]], [[transform]], [[output]] and
// [[route]] arrays. Validation happens once at startup; a configuration
// error is fatal for the daemon.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/log-store/log-ship/errors"
	"github.com/log-store/log-ship/pipe"
)

// FileName is the configuration file searched for when --config-file is not
// given.
const FileName = "log-ship.toml"

// searchDirs are the locations probed for FileName, in order
var searchDirs = []string{".", "/etc/log-ship", "/etc"}

// Config is the validated configuration object consumed by the engine
type Config struct {
	Globals    Globals      `mapstructure:"globals"`
	Inputs     []PluginDecl `mapstructure:"input"`
	Transforms []PluginDecl `mapstructure:"transform"`
	Outputs    []PluginDecl `mapstructure:"output"`
	Routes     []RouteDecl  `mapstructure:"route"`
}

// Globals holds daemon-wide settings
type Globals struct {
	// ChannelSize is the bounded channel capacity between pipeline stages
	ChannelSize int `mapstructure:"channel_size"`

	// LogFile is the process log destination; empty means stdout
	LogFile string `mapstructure:"log_file"`

	// MetricsAddr optionally serves Prometheus metrics over HTTP
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// PluginDecl declares one named plugin instance
type PluginDecl struct {
	Name        string         `mapstructure:"name"`
	Type        string         `mapstructure:"type"`
	Description string         `mapstructure:"description"`
	Args        map[string]any `mapstructure:"args"`
}

// RouteDecl wires one input through ordered transforms to one or more
// outputs. Routes are immutable after startup.
type RouteDecl struct {
	Name       string   `mapstructure:"name"`
	Input      string   `mapstructure:"input"`
	Transforms []string `mapstructure:"transforms"`
	Outputs    []string `mapstructure:"outputs"`
}

// Find locates the configuration file, returning the checked paths on
// failure so the error message can list them.
func Find() (string, []string, error) {
	var checked []string
	for _, dir := range searchDirs {
		path := filepath.Join(dir, FileName)
		checked = append(checked, path)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, checked, nil
		}
	}
	return "", checked, errors.WrapFatal(errors.ErrConfigNotFound, "config", "Find", "configuration file search")
}

// Load reads and decodes the configuration file at path
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetDefault("globals.channel_size", pipe.DefaultCapacity)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.WrapFatal(err, "config", "Load", "configuration file read")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.WrapFatal(err, "config", "Load", "configuration decode")
	}

	return &cfg, nil
}

// Validate checks the configuration: channel bounds, unique names per kind,
// at least one route, and resolvable references.
func (c *Config) Validate() error {
	if c.Globals.ChannelSize < pipe.MinCapacity || c.Globals.ChannelSize > pipe.MaxCapacity {
		return errors.WrapFatal(
			fmt.Errorf("channel_size %d out of range; it should be between %d and %d",
				c.Globals.ChannelSize, pipe.MinCapacity, pipe.MaxCapacity),
			"config", "Validate", "globals check")
	}

	if len(c.Routes) == 0 {
		return errors.WrapFatal(errors.New("no routes specified"), "config", "Validate", "route check")
	}

	inputs, err := declNames("input", c.Inputs)
	if err != nil {
		return err
	}
	transforms, err := declNames("transform", c.Transforms)
	if err != nil {
		return err
	}
	outputs, err := declNames("output", c.Outputs)
	if err != nil {
		return err
	}

	seenRoutes := make(map[string]bool)
	for _, route := range c.Routes {
		if route.Name == "" {
			return errors.WrapFatal(errors.New("route with empty name"), "config", "Validate", "route check")
		}
		if seenRoutes[route.Name] {
			return errors.WrapFatal(
				fmt.Errorf("route %q is declared twice", route.Name),
				"config", "Validate", "route check")
		}
		seenRoutes[route.Name] = true

		if !inputs[route.Input] {
			return errors.WrapFatal(
				fmt.Errorf("input %q not found for route %q; ensure the config file has an [[input]] entry with that name",
					route.Input, route.Name),
				"config", "Validate", "route reference check")
		}
		for _, name := range route.Transforms {
			if !transforms[name] {
				return errors.WrapFatal(
					fmt.Errorf("transform %q not found for route %q; ensure the config file has a [[transform]] entry with that name",
						name, route.Name),
					"config", "Validate", "route reference check")
			}
		}
		if len(route.Outputs) == 0 {
			return errors.WrapFatal(
				fmt.Errorf("route %q has no outputs", route.Name),
				"config", "Validate", "route reference check")
		}
		for _, name := range route.Outputs {
			if !outputs[name] {
				return errors.WrapFatal(
					fmt.Errorf("output %q not found for route %q; ensure the config file has an [[output]] entry with that name",
						name, route.Name),
					"config", "Validate", "route reference check")
			}
		}
	}

	return nil
}

// declNames collects declaration names, rejecting duplicates and blanks
func declNames(kind string, decls []PluginDecl) (map[string]bool, error) {
	names := make(map[string]bool, len(decls))
	for _, d := range decls {
		if d.Name == "" {
			return nil, errors.WrapFatal(
				fmt.Errorf("%s with empty name", kind),
				"config", "Validate", "declaration check")
		}
		if d.Type == "" {
			return nil, errors.WrapFatal(
				fmt.Errorf("%s %q has no type", kind, d.Name),
				"config", "Validate", "declaration check")
		}
		if names[d.Name] {
			return nil, errors.WrapFatal(
				fmt.Errorf("%s %q is declared twice", kind, d.Name),
				"config", "Validate", "declaration check")
		}
		names[d.Name] = true
	}
	return names, nil
}

// PrintRoutes writes the --check route listing
func (c *Config) PrintRoutes(w io.Writer) {
	for _, route := range c.Routes {
		fmt.Fprintf(w, "▶ %s ◀\n", route.Name)
		fmt.Fprintf(w, "INPUT: %s\n", route.Input)
		if len(route.Transforms) > 0 {
			fmt.Fprintf(w, "⮱ TRANSFORMS: %s\n", strings.Join(route.Transforms, " → "))
		}
		fmt.Fprintf(w, "  ⮱ OUTPUTS: %s\n\n", strings.Join(route.Outputs, ", "))
	}
}
