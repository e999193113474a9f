// Copyright 2024 Cargo Relay Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"cargo-relay/internal/cli"
	"cargo-relay/internal/config"
)

// Version is the release version reported by --version
const Version = "1.0.0"

// rootOptions holds the global flags shared by every subcommand
type rootOptions struct {
	configFile string
	envFile    string
	serverURL  string
	format     string
	quiet      bool
	noColor    bool
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "cargo-relay",
		Short: "ACPL Cargo tracking relay for WhatsApp",
		Long: `Cargo Relay looks up consignments on the ACPL Cargo tracking site and
answers "TRACK <number>" messages received through the WhatsApp Cloud API.

Run "serve" to start the webhook server, or use "track" and "extract" for
one-off lookups from the terminal.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "Config file (default: ./config.yaml, ./config/, $HOME/.cargo-relay/)")
	flags.StringVar(&opts.envFile, "env-file", "", "Dotenv file to load (default: .env)")
	flags.StringVarP(&opts.serverURL, "server", "s", "", "Relay server address for remote commands")
	flags.StringVarP(&opts.format, "format", "f", "", "Output format (text, json)")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "Quiet mode (minimal output)")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable color output")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newTrackCmd(opts),
		newExtractCmd(opts),
		newMessagesCmd(opts),
		newSendCmd(opts),
	)

	return rootCmd
}

// Execute runs the root command. This is called by main.main().
func Execute() error {
	return fang.Execute(context.Background(), newRootCmd())
}

// loadConfig reads the server configuration; --log-level overrides the
// configured level
func (o *rootOptions) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configFile != "" {
		cfg, err = config.LoadWithFile(o.configFile, o.envFile)
	} else {
		cfg, err = config.Load(o.envFile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return cfg, nil
}

// outputConfig resolves the terminal output and remote API settings
func (o *rootOptions) outputConfig() (*cli.Config, error) {
	return cli.LoadConfig(cli.Flags{
		ServerURL: o.serverURL,
		Format:    o.format,
		Quiet:     o.quiet,
		NoColor:   o.noColor,
	})
}

// commandLogger is the logger for one-off commands. They stay quiet below
// warn unless --log-level asks for more.
func (o *rootOptions) commandLogger(w io.Writer) *slog.Logger {
	level := o.logLevel
	if level == "" {
		level = "warn"
	}
	return newLogger(level, w)
}

// newLogger builds a text logger; unknown levels fall back to info
func newLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
