package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Build info (set via ldflags).
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"

	// Global flags.
	logLevel  string
	logFormat string
)

func main() {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	rootCmd := &cobra.Command{
		Use:   "specsync",
		Short: "Keeps OpenAPI documents in sync with their code",
		Long: `specsync fills in missing OpenAPI descriptions from source code.

Each project pairs a source OpenAPI document with a git repository. Every run
fetches the document, finds what changed since the last snapshot and asks a
code-aware retrieval service to describe the changed operations.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			log.SetLevel(level)

			switch logFormat {
			case "json":
				log.SetFormatter(&logrus.JSONFormatter{})
			default:
				log.SetFormatter(&logrus.TextFormatter{
					FullTimestamp: true,
				})
			}

			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level (trace, debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text",
		"Log format (text, json)")

	rootCmd.AddCommand(
		newServerCmd(log),
		newMigrateCmd(log),
		newDiffCmd(log),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
