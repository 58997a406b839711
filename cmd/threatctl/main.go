package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"threatlens/internal/app"
	"threatlens/internal/config"
	"threatlens/internal/domain"
	"threatlens/internal/logging"
	"threatlens/internal/services/analysis"
	"threatlens/internal/services/sources"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "threatctl",
		Short:         "Enrich and classify threat indicators from the command line",
		SilenceUsage:  true,
	}
	root.AddCommand(newClassifyCmd(), newProvidersCmd(), newMigrateCmd())
	return root
}

// setup loads configuration and a logger that writes to stderr only at warn
// and above, keeping stdout clean for JSON output.
func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, err
	}
	level := cfg.LogLevel
	if level == "info" || level == "debug" {
		level = "warn"
	}
	logger, err := logging.New("production", level)
	return cfg, logger, err
}

func newClassifyCmd() *cobra.Command {
	var (
		typ    string
		source string
		tags   []string
	)
	cmd := &cobra.Command{
		Use:   "classify VALUE",
		Short: "Run enrichment and classification for one indicator and print the verdict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			ctx := cmd.Context()

			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			t, err := domain.ParseIndicatorType(typ)
			if err != nil {
				return err
			}
			sub, err := a.Analysis.Submit(ctx, analysis.Submission{Type: t, Value: args[0], Source: source, Tags: tags})
			if err != nil {
				return err
			}
			res, err := a.Analysis.Classify(ctx, sub.Indicator.ID, true)
			if err != nil {
				return err
			}
			// The CLI classified inline; retire the queued job.
			if job, found, err := a.Store.ClaimJob(ctx, sub.JobID); err == nil && found {
				_ = a.Store.MarkCompleted(ctx, job.ID)
			}
			return printJSON(cmd, verdictOutput(res))
		},
	}
	cmd.Flags().StringVarP(&typ, "type", "t", "", "indicator type: "+typeList())
	cmd.Flags().StringVar(&source, "source", "cli", "source label stored with the indicator")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag to attach (repeatable)")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the enrichment providers the current configuration registers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			reg, _, err := app.BuildProviders(cfg.Providers, logger)
			if err != nil {
				return err
			}
			for _, src := range sources.New(reg).List() {
				types := make([]string, 0, len(src.IndicatorTypes))
				for _, t := range src.IndicatorTypes {
					types = append(types, string(t))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %-16s %s\n", src.ID, src.SignalType, strings.Join(types, ","))
			}
			return nil
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			store, err := app.OpenStore(cmd.Context(), cfg.Database, logger)
			if err != nil {
				return err
			}
			store.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", cfg.Database.Driver)
			return nil
		},
	}
}

type verdictJSON struct {
	Indicator    string   `json:"indicator"`
	Type         string   `json:"type"`
	RiskLevel    string   `json:"risk_level"`
	RiskScore    float64  `json:"risk_score"`
	Confidence   float64  `json:"confidence"`
	Reasoning    string   `json:"reasoning"`
	KeyFactors   []string `json:"key_factors"`
	Model        string   `json:"model"`
	AverageScore float64  `json:"average_score"`
	MaxScore     float64  `json:"max_score"`
	Providers    int      `json:"providers"`
	Successful   int      `json:"successful"`
}

func verdictOutput(res analysis.Result) verdictJSON {
	ok := 0
	for _, o := range res.Outcomes {
		if o.Success {
			ok++
		}
	}
	v := res.Verdict
	return verdictJSON{
		Indicator:    res.Indicator.Value,
		Type:         string(res.Indicator.Type),
		RiskLevel:    string(v.RiskLevel),
		RiskScore:    v.RiskScore,
		Confidence:   v.Confidence,
		Reasoning:    v.Reasoning,
		KeyFactors:   v.KeyFactors,
		Model:        v.Model,
		AverageScore: v.AverageScore,
		MaxScore:     v.MaxScore,
		Providers:    len(res.Outcomes),
		Successful:   ok,
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func typeList() string {
	names := make([]string, 0, len(domain.IndicatorTypes))
	for _, t := range domain.IndicatorTypes {
		names = append(names, string(t))
	}
	return strings.Join(names, ", ")
}
