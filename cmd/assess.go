package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"idp/internal/assessment"
	"idp/internal/config"
	"idp/internal/logger"
	"idp/internal/schema"
)

var assessCmd = &cobra.Command{
	Use:   "assess [document-record]",
	Short: "Run confidence assessment for a document's extraction results",
	Long: `Assess the extraction results of every section of a document.

For each section, the extraction result and the section's page text and
images are assembled into an assessment prompt; the model rates its own
confidence per attribute; the response is annotated with the schema's
confidence thresholds; and the extraction record is rewritten in place
with the explainability payload. Attributes whose confidence falls below
their threshold are attached to the section record as review alerts.

The document record argument and all URIs inside it may be s3:// URIs or
local file paths.`,
	Example: `  # Assess a document tracked in S3
  idp assess s3://bucket/documents/doc-42.json --config s3://bucket/config.json

  # Local dry run against files on disk
  idp assess testdata/doc.json --config testdata/config.json`,
	Args: cobra.ExactArgs(1),
	RunE: runAssess,
}

func init() {
	rootCmd.AddCommand(assessCmd)

	assessCmd.Flags().StringP("config", "c", "", "Configuration document (classes, schemas, prompts)")
	assessCmd.Flags().Int("timeout", 900, "Processing timeout in seconds")
	assessCmd.Flags().Bool("save", true, "Write the updated document record back")
	_ = assessCmd.MarkFlagRequired("config")
}

func runAssess(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("assess")

	configURI, _ := cmd.Flags().GetString("config")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")
	save, _ := cmd.Flags().GetBool("save")
	documentURI := args[0]

	log.Info().
		Str("document", documentURI).
		Str("config", configURI).
		Msg("Starting assessment")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	ctx, cancel := signalContext(timeoutSecs, log)
	defer cancel()

	store, err := storeFor(ctx, cfg, documentURI)
	if err != nil {
		return err
	}
	schemaCfg, err := schema.Load(ctx, store, configURI)
	if err != nil {
		return err
	}
	invoker, err := buildInvoker(ctx, cfg)
	if err != nil {
		return err
	}

	svc, err := assessment.NewService(store, invoker, cfg, schemaCfg)
	if err != nil {
		return err
	}

	doc, err := loadDocument(ctx, store, documentURI)
	if err != nil {
		return err
	}

	assessErr := svc.AssessDocument(ctx, doc)

	if save {
		if err := store.WriteJSON(ctx, documentURI, doc); err != nil {
			return fmt.Errorf("save document record: %w", err)
		}
	}
	if assessErr != nil {
		return assessErr
	}

	alerts := 0
	for _, section := range doc.Sections {
		alerts += len(section.ConfidenceAlerts)
	}
	fmt.Printf("Assessed %d section(s), status %s, %d confidence alert(s)\n",
		len(doc.Sections), doc.Status, alerts)
	for _, section := range doc.Sections {
		for _, alert := range section.ConfidenceAlerts {
			fmt.Printf("  %s/%s: confidence %.2f below threshold %.2f\n",
				section.ID, alert.AttributeName, alert.Confidence, alert.ConfidenceThreshold)
		}
	}
	return nil
}
