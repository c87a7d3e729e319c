package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/adapter/export"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/report"
)

type parseOutput struct {
	ScoreSource report.ScoreSource  `json:"scoreSource"`
	Report      domain.ParsedReport `json:"report"`
}

func newParseCmd(load catalogLoader) *cobra.Command {
	var (
		visaCode    string
		inputFile   string
		xlsxFile    string
		withSource  bool
		validateOut bool
	)
	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Parse an officer report into structured JSON",
		Long:  "Parse a markdown officer report for the given visa category and print the structured result as JSON. Use --file - to read from stdin.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := load()
			if err != nil {
				return err
			}
			v, err := catalog.Get(visaCode)
			if err != nil {
				return err
			}
			text, err := readInput(cmd, inputFile)
			if err != nil {
				return err
			}

			parsed, src := report.ParseWithSource(string(text), v.Criteria)
			if validateOut {
				if err := report.Validate(parsed); err != nil {
					return err
				}
			}
			if xlsxFile != "" {
				data, err := export.Scorecard(domain.Result{VisaType: v.Code, Report: parsed})
				if err != nil {
					return err
				}
				if err := os.WriteFile(xlsxFile, data, 0o644); err != nil {
					return fmt.Errorf("failed to write scorecard: %w", err)
				}
			}
			if withSource {
				return writeJSON(cmd.OutOrStdout(), parseOutput{ScoreSource: src, Report: parsed})
			}
			return writeJSON(cmd.OutOrStdout(), parsed)
		},
	}
	cmd.Flags().StringVar(&visaCode, "visa", "", "Visa category code, e.g. O-1A")
	cmd.Flags().StringVarP(&inputFile, "file", "f", "", "Path to the report markdown, or - for stdin")
	cmd.Flags().StringVar(&xlsxFile, "xlsx", "", "Also write an XLSX scorecard to this path")
	cmd.Flags().BoolVar(&withSource, "with-source", false, "Wrap the output with the step that produced the overall score")
	cmd.Flags().BoolVar(&validateOut, "validate", true, "Check the parsed report against the JSON schema")
	_ = cmd.MarkFlagRequired("visa")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
