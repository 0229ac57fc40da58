package main

import (
	"github.com/spf13/cobra"

	"github.com/c360studio/courtstream/commands"
)

func rootCmd() *cobra.Command {
	opts := &commands.Options{}

	cmd := &cobra.Command{
		Use:   "courtstream",
		Short: "Court registry ingestion pipeline",
		Long: `Courtstream ingests decisions from the Unified State Register of
Court Decisions of Ukraine into a canonical, versioned local store.

A change monitor discovers new and updated documents, fetch workers
download and content-address them, parsers extract structured case
data, and a version writer commits gapless document versions. Stages
communicate over NATS JetStream, so each can be scaled, restarted, and
replayed independently.`,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	commands.Register(cmd, opts)

	return cmd
}
