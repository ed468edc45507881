package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"idp/internal/config"
	"idp/internal/evaluation"
	"idp/internal/logger"
	"idp/internal/schema"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [document-record]",
	Short: "Evaluate extraction results against ground truth",
	Long: `Compare a document's extraction results against a ground-truth
document and compute accuracy metrics.

Every section is evaluated on a bounded worker pool: each attribute is
compared with its configured method (EXACT, FUZZY, NUMERIC, SEMANTIC, LLM,
or HUNGARIAN list matching), outcomes are folded into a confusion matrix,
and precision/recall/F1/accuracy are derived per section and per document.
results.json and report.md are written under {input_key}/evaluation/ at
the output location.

The ground-truth document is a JSON object keyed by section ID, each value
holding that section's expected attribute values.`,
	Example: `  # Evaluate against ground truth in S3
  idp evaluate s3://bucket/documents/doc-42.json \
    --config s3://bucket/config.json \
    --ground-truth s3://bucket/baseline/doc-42.json \
    --output s3://bucket/reports

  # Local run
  idp evaluate testdata/doc.json -c testdata/config.json \
    -g testdata/truth.json -o out`,
	Args: cobra.ExactArgs(1),
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringP("config", "c", "", "Configuration document (classes, schemas, prompts)")
	evaluateCmd.Flags().StringP("ground-truth", "g", "", "Ground-truth document keyed by section ID")
	evaluateCmd.Flags().StringP("output", "o", "", "Base URI or directory for results.json and report.md")
	evaluateCmd.Flags().Int("timeout", 900, "Processing timeout in seconds")
	_ = evaluateCmd.MarkFlagRequired("config")
	_ = evaluateCmd.MarkFlagRequired("ground-truth")
	_ = evaluateCmd.MarkFlagRequired("output")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("evaluate")

	configURI, _ := cmd.Flags().GetString("config")
	groundTruthURI, _ := cmd.Flags().GetString("ground-truth")
	outputBase, _ := cmd.Flags().GetString("output")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")
	documentURI := args[0]

	log.Info().
		Str("document", documentURI).
		Str("ground_truth", groundTruthURI).
		Str("output", outputBase).
		Msg("Starting evaluation")

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
	embedder, err := buildEmbedder(ctx, cfg)
	if err != nil {
		return err
	}

	comparator := evaluation.NewComparator(invoker, embedder, cfg, schemaCfg.Evaluation)
	evaluator := evaluation.NewEvaluator(store, comparator, cfg, schemaCfg)

	doc, err := loadDocument(ctx, store, documentURI)
	if err != nil {
		return err
	}
	groundTruth, err := evaluation.LoadGroundTruth(ctx, store, groundTruthURI)
	if err != nil {
		return err
	}

	result, evalErr := evaluator.EvaluateDocument(ctx, doc, groundTruth)
	if result != nil {
		if err := evaluation.WriteArtifacts(ctx, store, outputBase, doc, result); err != nil {
			return err
		}
	}
	if evalErr != nil {
		return evalErr
	}

	resultsURI, reportURI := evaluation.ArtifactURIs(outputBase, doc.InputKey)
	m := result.Metrics
	fmt.Printf("Evaluated %d section(s) in %.1fs\n", len(result.Sections), result.ExecutionTime)
	fmt.Printf("  precision %.3f | recall %.3f | f1 %.3f | accuracy %.3f\n",
		m.Precision, m.Recall, m.F1, m.Accuracy)
	fmt.Printf("  tp/fp/fn/tn: %d/%d/%d/%d (fp1 %d, fp2 %d)\n",
		m.TruePositives, m.FalsePositives, m.FalseNegatives, m.TrueNegatives,
		m.FalsePositives1, m.FalsePositives2)
	if len(result.Errors) > 0 {
		fmt.Printf("  %d error(s):\n    %s\n", len(result.Errors), strings.Join(result.Errors, "\n    "))
	}
	fmt.Printf("Wrote %s and %s\n", resultsURI, reportURI)
	return nil
}
