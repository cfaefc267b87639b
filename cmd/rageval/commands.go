package main

import (
	"fmt"
	"log/slog"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/IDEA-FinAI/RagLLaVA/internal/catalog"
	"github.com/IDEA-FinAI/RagLLaVA/internal/config"
)

// buildRootCmd creates the rageval command tree.
func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rageval",
		Short:         "Multimodal retrieval-augmented QA evaluation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(buildRunCmd(), buildModelsCmd())
	return root
}

// runFlags mirrors the command-line overrides of config.Config.
type runFlags struct {
	reranker   string
	generator  string
	datasets   string
	filter     float64
	rerankOff  bool
	topk       int
	rerankKeep int
	output     string
	failFast   bool
	catalog    string
}

func buildRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate a dataset split end to end",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			slog.SetDefault(newLogger(cfg.SlogLevel()))
			applyFlags(cmd.Flags(), f, cfg)
			return runEval(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	bindRunFlags(cmd.Flags(), &f)
	return cmd
}

func bindRunFlags(flags *pflag.FlagSet, f *runFlags) {
	flags.StringVar(&f.reranker, "reranker-model", "lora_caption", "Reranker selector from the model catalog")
	flags.StringVar(&f.generator, "generator-model", "base_sft", "Generator selector from the model catalog")
	flags.StringVar(&f.datasets, "datasets", "val", "Dataset split: val, dev or train")
	flags.Float64Var(&f.filter, "filter", 0, "Minimum relevance probability for a selected image (0-1)")
	flags.BoolVar(&f.rerankOff, "rerank-off", false, "Pass every retrieved image to the generator without reranking")
	flags.IntVar(&f.topk, "clip-topk", 20, "Number of images retrieved per question")
	flags.IntVar(&f.rerankKeep, "rerank-keep", 2, "Number of reranked images kept before filtering")
	flags.StringVar(&f.output, "output", "", "Answer file path (default answer_set_<generator>_<filter>[_clip_top<k>].jsonl)")
	flags.BoolVar(&f.failFast, "fail-fast", false, "Abort the run on the first failed example")
	flags.StringVar(&f.catalog, "catalog", "", "Model catalog YAML file (default: built-in catalog)")
}

// applyFlags copies explicitly set flags over the environment configuration.
func applyFlags(flags *pflag.FlagSet, f runFlags, cfg *config.Config) {
	flags.Visit(func(fl *pflag.Flag) {
		switch fl.Name {
		case "reranker-model":
			cfg.RerankerModel = f.reranker
		case "generator-model":
			cfg.GeneratorModel = f.generator
		case "datasets":
			cfg.Dataset = f.datasets
		case "filter":
			cfg.Filter = f.filter
		case "rerank-off":
			cfg.RerankOff = f.rerankOff
		case "clip-topk":
			cfg.TopK = f.topk
		case "rerank-keep":
			cfg.RerankKeep = f.rerankKeep
		case "output":
			cfg.OutputPath = f.output
		case "fail-fast":
			cfg.FailFast = f.failFast
		case "catalog":
			cfg.ModelCatalog = f.catalog
		}
	})
}

func buildModelsCmd() *cobra.Command {
	var catalogPath string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List reranker and generator selectors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := loadCatalog(catalogPath)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tNAME\tBACKEND\tMODEL")
			for _, kind := range []struct {
				name    string
				entries map[string]catalog.Model
			}{{"reranker", cat.Rerankers}, {"generator", cat.Generators}} {
				names := make([]string, 0, len(kind.entries))
				for name := range kind.entries {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					m := kind.entries[name]
					model := m.Model
					if m.ReuseReranker {
						model = "(reranker model)"
					}
					backend := m.Backend
					if backend == "" {
						backend = cat.Defaults.Backend
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", kind.name, name, backend, model)
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "Model catalog YAML file (default: built-in catalog)")
	return cmd
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}
