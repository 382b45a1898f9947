package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/scrkit/papermeta/internal/config"
	"github.com/scrkit/papermeta/internal/diag"
	"github.com/scrkit/papermeta/internal/enrich"
	"github.com/scrkit/papermeta/internal/extract"
	"github.com/scrkit/papermeta/internal/ingest"
	"github.com/scrkit/papermeta/internal/pipeline"
	"github.com/scrkit/papermeta/internal/reconcile"
	"github.com/scrkit/papermeta/internal/resilience"
	"github.com/scrkit/papermeta/internal/store"
	"github.com/scrkit/papermeta/pkg/anthropic"
	"github.com/scrkit/papermeta/pkg/crossref"
	"github.com/scrkit/papermeta/pkg/grobid"
	"github.com/scrkit/papermeta/pkg/openalex"
)

var (
	runInput    string
	runNoEnrich bool
)

func init() {
	runCmd.Flags().StringVarP(&runInput, "input", "i", "", "directory of input PDFs (required)")
	runCmd.Flags().BoolVar(&runNoEnrich, "no-enrich", false, "skip external registry enrichment")
	runCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process a PDF corpus into canonical metadata records",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		extractors, err := buildExtractors(ctx)
		if err != nil {
			return err
		}

		var enricher *enrich.Enricher
		if !runNoEnrich {
			enricher = enrich.NewEnricher(buildRegistries(), cfg.Enrich.MinMatchConfidence)
		}

		runID := uuid.New().String()
		runDir := filepath.Join(cfg.Output.Dir, runID)
		if err := os.MkdirAll(runDir, 0o755); err != nil {
			return eris.Wrapf(err, "create run dir %s", runDir)
		}
		if err := writeRunInfo(runDir, runID); err != nil {
			return err
		}

		out, err := os.Create(filepath.Join(runDir, "records.jsonl"))
		if err != nil {
			return eris.Wrap(err, "create records file")
		}
		defer out.Close()

		if _, err := st.CreateRun(ctx, runID, runInput); err != nil {
			return err
		}
		zap.L().Info("run starting",
			zap.String("run_id", runID),
			zap.String("input", runInput),
			zap.Int("concurrency", cfg.Pipeline.Concurrency),
		)

		p := pipeline.New(
			ingest.NewDirSource(runInput, 0),
			extract.NewRunner(extractors, time.Duration(cfg.Extractors.TimeoutSecs)*time.Second),
			reconcile.NewEngine(cfg.Extractors.Priority),
			enricher,
			st,
			pipeline.NewJSONLSink(out),
			pipeline.Options{
				Concurrency: cfg.Pipeline.Concurrency,
				Resume:      cfg.Pipeline.Resume,
			},
		)

		report, err := p.Run(ctx, runID)
		if err != nil {
			return err
		}

		if err := diag.WriteWorkbook(filepath.Join(runDir, "diagnostics.xlsx"), report); err != nil {
			return err
		}
		reportJSON, err := json.Marshal(report)
		if err != nil {
			return eris.Wrap(err, "marshal report")
		}
		return st.CompleteRun(ctx, runID, reportJSON)
	},
}

// buildExtractors instantiates the configured extractors in priority order.
// Extractors whose backing service is unavailable are dropped with a warning
// rather than failing the run.
func buildExtractors(ctx context.Context) ([]extract.Extractor, error) {
	var out []extract.Extractor
	for _, name := range cfg.Extractors.Priority {
		switch name {
		case "grobid":
			client := grobid.NewClient(cfg.Grobid.BaseURL, time.Duration(cfg.Grobid.TimeoutSecs)*time.Second)
			if !client.IsAlive(ctx) {
				zap.L().Warn("grobid service unreachable, extractor disabled",
					zap.String("base_url", cfg.Grobid.BaseURL))
				continue
			}
			out = append(out, extract.NewGrobidExtractor(client))
		case "docinfo":
			out = append(out, extract.NewDocinfoExtractor())
		case "filename":
			out = append(out, extract.NewFilenameExtractor())
		case "llm":
			if cfg.Anthropic.Key == "" {
				zap.L().Warn("no anthropic key, llm extractor disabled")
				continue
			}
			client := anthropic.NewClient(cfg.Anthropic.Key)
			out = append(out, extract.NewLLMExtractor(client, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens, cfg.Anthropic.FirstPageChars))
		}
	}
	if len(out) == 0 {
		return nil, eris.New("no extractors available")
	}
	return out, nil
}

func buildRegistries() []enrich.Registry {
	var out []enrich.Registry
	for _, r := range cfg.Enrich.Registries {
		retry := registryRetry(r)
		switch r.Name {
		case "crossref":
			out = append(out, crossref.NewClient(r.BaseURL, r.MailTo, r.RatePerSec, r.Burst,
				crossref.WithRetryPolicy(retry)))
		case "openalex":
			out = append(out, openalex.NewClient(r.BaseURL, r.MailTo, r.RatePerSec, r.Burst,
				openalex.WithRetryPolicy(retry)))
		default:
			zap.L().Warn("unknown registry skipped", zap.String("name", r.Name))
		}
	}
	return out
}

func registryRetry(r config.RegistryConfig) resilience.Policy {
	p := resilience.DefaultPolicy()
	if r.MaxAttempts > 0 {
		p.MaxAttempts = r.MaxAttempts
	}
	if cfg.Enrich.InitialBackoff > 0 {
		p.InitialBackoff = cfg.Enrich.InitialBackoff
	}
	if cfg.Enrich.MaxBackoff > 0 {
		p.MaxBackoff = cfg.Enrich.MaxBackoff
	}
	p.OnRetry = resilience.RetryLogger(r.Name, "works")
	return p
}

// runInfo is the bookkeeping snapshot written next to the run's outputs.
type runInfo struct {
	RunID     string         `yaml:"run_id"`
	StartedAt time.Time      `yaml:"started_at"`
	InputDir  string         `yaml:"input_dir"`
	Config    *config.Config `yaml:"config"`
}

func writeRunInfo(runDir, runID string) error {
	info := runInfo{
		RunID:     runID,
		StartedAt: time.Now().UTC(),
		InputDir:  runInput,
		Config:    cfg.Redacted(),
	}
	data, err := yaml.Marshal(&info)
	if err != nil {
		return eris.Wrap(err, "marshal run info")
	}
	path := filepath.Join(runDir, "run_info.yaml")
	return eris.Wrapf(os.WriteFile(path, data, 0o644), "write %s", path)
}
