package evaluation

import (
	"context"
	"fmt"
	"strings"

	"idp/internal/s3store"
	"idp/pkg/models"
)

// ArtifactURIs returns the terminal artifact locations for one document's
// evaluation: results.json and report.md under {input_key}/evaluation/.
func ArtifactURIs(baseURI, inputKey string) (resultsURI, reportURI string) {
	prefix := strings.TrimSuffix(baseURI, "/") + "/" + strings.Trim(inputKey, "/") + "/evaluation"
	return prefix + "/results.json", prefix + "/report.md"
}

// WriteArtifacts writes the full result serialization and the Markdown
// report. Re-running evaluation replaces both.
func WriteArtifacts(ctx context.Context, store s3store.Store, baseURI string, doc *models.Document, result *models.DocumentEvaluationResult) error {
	const op = "WriteArtifacts"

	resultsURI, reportURI := ArtifactURIs(baseURI, doc.InputKey)

	if err := store.WriteJSON(ctx, resultsURI, result); err != nil {
		return fmt.Errorf("evaluation: %s: %w", op, err)
	}
	if err := store.WriteBytes(ctx, reportURI, []byte(RenderMarkdown(result)), "text/markdown"); err != nil {
		return fmt.Errorf("evaluation: %s: %w", op, err)
	}
	return nil
}

// RenderMarkdown renders the human-readable evaluation report.
func RenderMarkdown(result *models.DocumentEvaluationResult) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Evaluation Report: %s\n\n", result.DocumentID)
	fmt.Fprintf(&sb, "Execution time: %.2fs | Tokens: %d in / %d out\n\n",
		result.ExecutionTime, result.Usage.InputTokens, result.Usage.OutputTokens)

	sb.WriteString("## Document Metrics\n\n")
	writeMetricsTable(&sb, result.Metrics)

	for _, section := range result.Sections {
		fmt.Fprintf(&sb, "## Section %s (%s)\n\n", section.SectionID, section.DocumentClass)

		sb.WriteString("| Attribute | Matched | Score | Method | Reason |\n")
		sb.WriteString("|---|---|---|---|---|\n")
		for _, attr := range section.Attributes {
			matched := "no"
			if attr.Matched {
				matched = "yes"
			}
			fmt.Fprintf(&sb, "| %s | %s | %.3f | %s | %s |\n",
				attr.Name, matched, attr.Score, attr.EvaluationMethod, markdownCell(attr.Reason))
		}
		sb.WriteString("\n")
		writeMetricsTable(&sb, section.Metrics)
	}

	if len(result.Errors) > 0 {
		sb.WriteString("## Errors\n\n")
		for _, msg := range result.Errors {
			fmt.Fprintf(&sb, "- %s\n", msg)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func writeMetricsTable(sb *strings.Builder, m models.Metrics) {
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|---|---|\n")
	fmt.Fprintf(sb, "| Precision | %.3f |\n", m.Precision)
	fmt.Fprintf(sb, "| Recall | %.3f |\n", m.Recall)
	fmt.Fprintf(sb, "| F1 | %.3f |\n", m.F1)
	fmt.Fprintf(sb, "| Accuracy | %.3f |\n", m.Accuracy)
	fmt.Fprintf(sb, "| False alarm rate | %.3f |\n", m.FalseAlarmRate)
	fmt.Fprintf(sb, "| False discovery rate | %.3f |\n", m.FalseDiscoveryRate)
	fmt.Fprintf(sb, "| tp / fp / fn / tn | %d / %d / %d / %d |\n", m.TruePositives, m.FalsePositives, m.FalseNegatives, m.TrueNegatives)
	fmt.Fprintf(sb, "| fp1 / fp2 | %d / %d |\n\n", m.FalsePositives1, m.FalsePositives2)
}

// markdownCell keeps a free-text reason from breaking the table layout.
func markdownCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
