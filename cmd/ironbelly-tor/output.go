package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/i1skn/ironbelly-sub000/internal/report"
)

// addFormatFlags registers the report format flags.
func addFormatFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown (mutually exclusive with --json)")
	cmd.MarkFlagsMutuallyExclusive("json", "markdown")
}

// newReportWriter picks a report writer from the format flags.
func newReportWriter(cmd *cobra.Command, out io.Writer) (report.Writer, error) {
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return nil, err
	}
	asMarkdown, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return nil, err
	}

	switch {
	case asJSON:
		return report.NewJSONWriter(out, report.WithPrettyPrint()), nil
	case asMarkdown:
		return report.NewMarkdownWriter(out), nil
	default:
		return report.NewSimpleWriter(out, report.WithVerbose(getBoolFlag(cmd, "verbose"))), nil
	}
}
