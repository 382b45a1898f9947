package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/scrkit/papermeta/internal/extract"
	"github.com/scrkit/papermeta/internal/ingest"
	"github.com/scrkit/papermeta/internal/model"
	"github.com/scrkit/papermeta/internal/reconcile"
	"github.com/scrkit/papermeta/pkg/anthropic"
)

func init() {
	rootCmd.AddCommand(probeCmd)
}

// probeCmd finds just the DOI of one PDF, cheaply: page-text pattern sweep
// first, model probe only when the sweep comes up empty.
var probeCmd = &cobra.Command{
	Use:   "probe-doi <pdf>",
	Short: "Extract only the DOI from a single PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		src := ingest.NewDirSource(".", 0)
		doc, err := src.Read(ctx, args[0])
		if err != nil {
			return err
		}

		candidates, err := extract.NewDocinfoExtractor().Extract(ctx, doc)
		if err == nil {
			for _, c := range candidates {
				if c.Field == model.FieldDOI {
					fmt.Fprintln(cmd.OutOrStdout(), reconcile.NormalizeDOI(c.Value))
					return nil
				}
			}
		}

		if cfg.Anthropic.Key == "" {
			return eris.New("no DOI in document text and no anthropic key configured")
		}
		llm := extract.NewLLMExtractor(anthropic.NewClient(cfg.Anthropic.Key),
			cfg.Anthropic.Model, cfg.Anthropic.MaxTokens, cfg.Anthropic.FirstPageChars)
		doi, err := llm.ProbeDOI(ctx, doc)
		if err != nil {
			return err
		}
		if doi == "" {
			return eris.New("no DOI found")
		}
		fmt.Fprintln(cmd.OutOrStdout(), reconcile.NormalizeDOI(doi))
		return nil
	},
}
