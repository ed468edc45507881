package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"idp/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "idp",
	Short: "IDP CLI - confidence assessment and accuracy evaluation for document extraction",
	Long: `IDP CLI runs the post-extraction stages of an intelligent document
processing pipeline: assessment (the model rates its own extraction
confidence per attribute, with schema-driven thresholds and review alerts)
and evaluation (extraction output is compared against ground truth and
scored into precision/recall/F1 style reports).

Document records, extraction results, and configuration documents are
addressed by s3:// URIs or local file paths interchangeably.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Info().
			Str("version", version).
			Msg("IDP CLI executed")

		fmt.Println("Welcome to IDP CLI!")
		fmt.Println("Use --help to see available commands and options.")
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}
