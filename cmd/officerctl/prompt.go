package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/prompt"
)

func newPromptCmd(load catalogLoader) *cobra.Command {
	var (
		visaCode  string
		inputFile string
		model     string
		maxTokens int
		part      string
	)
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Render the officer review prompts for a petition record",
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch part {
			case "system", "user", "both":
			default:
				return fmt.Errorf("invalid --part %q: want system, user or both", part)
			}
			catalog, err := load()
			if err != nil {
				return err
			}
			v, err := catalog.Get(visaCode)
			if err != nil {
				return err
			}
			data, err := readInput(cmd, inputFile)
			if err != nil {
				return err
			}

			record, truncated := string(data), false
			if maxTokens > 0 {
				if record, truncated, err = tokencount.NewCounter().Truncate(record, model, maxTokens); err != nil {
					return err
				}
			}
			p, err := prompt.BuildOfficer(v, record, truncated)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if part == "system" || part == "both" {
				fmt.Fprintln(out, p.System)
			}
			if part == "both" {
				fmt.Fprintln(out, "---")
			}
			if part == "user" || part == "both" {
				fmt.Fprintln(out, p.User)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&visaCode, "visa", "", "Visa category code, e.g. EB-1A")
	cmd.Flags().StringVarP(&inputFile, "file", "f", "", "Path to the petition text, or - for stdin")
	cmd.Flags().StringVar(&model, "model", "anthropic/claude-sonnet-4", "Model used for token counting")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Truncate the record to this many tokens (0 disables)")
	cmd.Flags().StringVar(&part, "part", "both", "Which prompt to print: system, user or both")
	_ = cmd.MarkFlagRequired("visa")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
