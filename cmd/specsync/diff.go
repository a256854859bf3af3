package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/ethpandaops/specsync/pkg/fetcher"
	"github.com/ethpandaops/specsync/pkg/spec"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newDiffCmd(log *logrus.Logger) *cobra.Command {
	var (
		output   string
		validate bool
	)

	cmd := &cobra.Command{
		Use:   "diff <previous> <current>",
		Short: "Show path and schema changes between two OpenAPI documents",
		Long: `Compare two local OpenAPI documents (JSON or YAML) the way a pipeline run
does before deciding what to annotate.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(cmd.Context(), log, cmd.OutOrStdout(), args[0], args[1], output, validate)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text, json)")
	cmd.Flags().BoolVar(&validate, "validate", false, "Validate both documents against OpenAPI 3")

	return cmd
}

func runDiff(
	ctx context.Context,
	log logrus.FieldLogger,
	out io.Writer,
	previousPath, currentPath, output string,
	validate bool,
) error {
	previous, err := readDocument(ctx, previousPath, validate)
	if err != nil {
		return err
	}

	current, err := readDocument(ctx, currentPath, validate)
	if err != nil {
		return err
	}

	report := spec.Diff(previous, current)

	log.WithFields(logrus.Fields{
		"previous": previousPath,
		"current":  currentPath,
		"empty":    report.IsEmpty(),
	}).Debug("Compared documents")

	switch output {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")

		return enc.Encode(struct {
			Summary spec.DiffSummary `json:"summary"`
			*spec.DiffReport
		}{report.Summary(), report})
	case "text":
		return writeDiffText(out, report)
	default:
		return fmt.Errorf("unsupported output format: %s", output)
	}
}

func readDocument(ctx context.Context, path string, validate bool) (spec.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	doc, err := fetcher.Decode(ctx, data, validate)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	return doc, nil
}

func writeDiffText(out io.Writer, report *spec.DiffReport) error {
	if report.IsEmpty() {
		_, err := fmt.Fprintln(out, "No changes")

		return err
	}

	sections := []struct {
		title    string
		added    map[string]any
		removed  map[string]any
		modified map[string]spec.Change
	}{
		{"Paths", report.AddedPaths, report.RemovedPaths, report.ModifiedPaths},
		{"Schemas", report.AddedSchemas, report.RemovedSchemas, report.ModifiedSchemas},
	}

	for _, section := range sections {
		if len(section.added)+len(section.removed)+len(section.modified) == 0 {
			continue
		}

		if _, err := fmt.Fprintf(out, "%s:\n", section.title); err != nil {
			return err
		}

		for _, key := range slices.Sorted(maps.Keys(section.added)) {
			fmt.Fprintf(out, "  + %s\n", key)
		}

		for _, key := range slices.Sorted(maps.Keys(section.removed)) {
			fmt.Fprintf(out, "  - %s\n", key)
		}

		for _, key := range slices.Sorted(maps.Keys(section.modified)) {
			fmt.Fprintf(out, "  ~ %s\n", key)
		}
	}

	summary := report.Summary()

	_, err := fmt.Fprintf(out, "\n%d paths and %d schemas changed\n",
		summary.AddedPaths+summary.RemovedPaths+summary.ModifiedPaths,
		summary.AddedSchemas+summary.RemovedSchemas+summary.ModifiedSchemas)

	return err
}
