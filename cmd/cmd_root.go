// Copyright 2026 The PipJoin Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "pipjoin",
	Short: "batch point-in-polygon joiner",
	Long: `
pipjoin pages through an identifier register, resolves the point behind
every record, searches a WFS polygon layer for the feature containing it
and appends the joined rows to an output file.
`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		setupLogging()
	},
}

// setupLogging configures the global zerolog logger: console output when
// stderr is a terminal, JSON otherwise.
func setupLogging() {
	level, err := zerolog.ParseLevel(strings.ToLower(logLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	var output io.Writer = os.Stderr
	if isatty.IsTerminal(os.Stderr.Fd()) {
		output = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

var Version = "dev"

func Execute(version string) {
	Version = version

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&logLevel,
		"log-level",
		"info",
		"Minimum log level (debug, info, warn, error)",
	)
}
