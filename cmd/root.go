package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scrkit/papermeta/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "papermeta",
	Short: "Bibliographic metadata reconciliation for PDF corpora",
	Long:  "Extracts title, authors, year, DOI and related fields from academic PDFs via multiple independent extractors, reconciles disagreements by weighted vote, and cross-checks against Crossref and OpenAlex.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := c.Validate(); err != nil {
			return err
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
