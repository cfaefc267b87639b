package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IDEA-FinAI/RagLLaVA/internal/catalog"
	"github.com/IDEA-FinAI/RagLLaVA/internal/config"
	"github.com/IDEA-FinAI/RagLLaVA/internal/dataset"
	"github.com/IDEA-FinAI/RagLLaVA/internal/embedder"
	"github.com/IDEA-FinAI/RagLLaVA/internal/generator"
	"github.com/IDEA-FinAI/RagLLaVA/internal/llm"
	"github.com/IDEA-FinAI/RagLLaVA/internal/observability"
	"github.com/IDEA-FinAI/RagLLaVA/internal/pipeline"
	"github.com/IDEA-FinAI/RagLLaVA/internal/repository"
	"github.com/IDEA-FinAI/RagLLaVA/internal/repository/postgres"
	"github.com/IDEA-FinAI/RagLLaVA/internal/reranker"
	"github.com/IDEA-FinAI/RagLLaVA/internal/results"
	"github.com/IDEA-FinAI/RagLLaVA/internal/scoring"
	"github.com/IDEA-FinAI/RagLLaVA/internal/server"
	"github.com/IDEA-FinAI/RagLLaVA/internal/vectorstore"
)

// runParams is the stored run configuration.
type runParams struct {
	Reranker   string  `json:"reranker_model"`
	Generator  string  `json:"generator_model"`
	Mode       string  `json:"datasets"`
	Filter     float64 `json:"filter"`
	RerankOff  bool    `json:"rerank_off"`
	TopK       int     `json:"clip_topk"`
	RerankKeep int     `json:"rerank_keep"`
	Output     string  `json:"output"`
}

func runEval(parent context.Context, cfg *config.Config, stdout io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate(); err != nil {
		return err
	}
	mode, err := cfg.Mode()
	if err != nil {
		return err
	}
	files, err := cfg.Files()
	if err != nil {
		return err
	}
	paths, err := cfg.Paths()
	if err != nil {
		return err
	}

	// Resolve models
	cat, err := loadCatalog(cfg.ModelCatalog)
	if err != nil {
		return err
	}
	sel, err := cat.Resolve(cfg.RerankerModel, cfg.GeneratorModel)
	if err != nil {
		return err
	}
	useCaption := sel.UseCaption && !cfg.RerankOff

	slog.Info("starting evaluation",
		"reranker", sel.Reranker.Name,
		"generator", sel.Generator.Name,
		"mode", mode,
		"filter", cfg.Filter,
		"rerank_off", cfg.RerankOff,
		"clip_topk", cfg.TopK,
	)

	// Load inputs
	data, err := dataset.Load(files.Dataset)
	if err != nil {
		return err
	}
	idMap, err := dataset.LoadIDMap(files.IDMap)
	if err != nil {
		return err
	}
	var captions dataset.Captions
	if useCaption {
		if captions, err = dataset.LoadCaptions(files.Captions); err != nil {
			return err
		}
	}
	slog.Info("loaded dataset", "path", files.Dataset, "examples", data.Len(), "index_size", len(idMap))

	// Initialize the image index
	store, err := vectorstore.NewQdrantStore(ctx, cfg.QdrantGRPCURL, cfg.QdrantAPIKey)
	if err != nil {
		return fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	defer store.Close()
	if err := store.EnsureCollection(ctx, files.Collection); err != nil {
		return err
	}
	embed := embedder.NewOllamaEmbedder(embedder.OllamaConfig{
		BaseURL:    cfg.EmbedURL,
		Model:      cfg.EmbedModel,
		Dimension:  cfg.EmbedDimension,
		HTTPClient: &http.Client{Timeout: cfg.RequestTimeout},
	})
	index := vectorstore.NewTextToImage(embed, store, files.Collection)
	slog.Info("connected to image index", "collection", files.Collection, "embed_model", embed.ModelName())

	// Initialize model clients
	rerankClient, err := llm.NewClient(endpointFor(cfg, sel.Reranker, cfg.RerankerURL))
	if err != nil {
		return err
	}
	genURL := cfg.GeneratorURL
	if sel.SharedModel {
		genURL = cfg.RerankerURL
	}
	genClient, err := llm.NewClient(endpointFor(cfg, sel.Generator, genURL))
	if err != nil {
		return err
	}

	var scorer reranker.Scorer
	if !cfg.RerankOff {
		scorer = newScorer(rerankClient, sel.Reranker.Model, cfg.TopLogprobs)
	}
	style := generator.PromptShortAnswer
	if sel.RawPrompt {
		style = generator.PromptRaw
	}
	gen := generator.NewLLMGenerator(genClient, sel.Generator.Model, generator.WithPromptStyle(style))

	// Observability
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	progress := server.NewProgress(data.Len())
	if cfg.StatusAddr != "" {
		status := server.NewStatusServer(server.StatusServerConfig{
			Addr:     cfg.StatusAddr,
			Progress: progress,
			Logger:   slog.Default(),
		})
		go func() {
			if err := status.Start(); err != nil {
				slog.Error("status server stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := status.Shutdown(shutdownCtx); err != nil {
				slog.Error("failed to stop status server", "error", err)
			}
		}()
	}

	// Output sinks
	outputPath := cfg.OutputPath
	if outputPath == "" {
		outputPath = results.OutputName(sel.Generator.Name, cfg.Filter, cfg.TopK)
	}
	jsonl, err := results.CreateJSONL(outputPath)
	if err != nil {
		return err
	}
	sinks := results.MultiSink{jsonl}

	var runs repository.RunRepository
	var runID uuid.UUID
	if cfg.DatabaseURL != "" {
		db, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			_ = jsonl.Close()
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		repo := postgres.NewRunRepo(db)
		run, err := createRun(ctx, repo, sel, mode, cfg, outputPath)
		if err != nil {
			_ = jsonl.Close()
			return err
		}
		runs, runID = repo, run.ID
		sinks = append(sinks, results.NewRepoSink(repo, runID))
		slog.Info("recording run in PostgreSQL", "run_id", runID)
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			slog.Error("failed to close output", "error", err)
		}
	}()

	pipeCfg := pipeline.Config{
		TopK:       cfg.TopK,
		RerankOff:  cfg.RerankOff,
		Filter:     cfg.Filter,
		RerankKeep: cfg.RerankKeep,
		UseCaption: useCaption,
		FailFast:   cfg.FailFast,
	}
	opts := []pipeline.Option{
		pipeline.WithConfig(pipeCfg),
		pipeline.WithRecorder(metrics),
		pipeline.WithProgress(progress.Update),
		pipeline.WithLogger(slog.Default()),
	}
	if useCaption {
		opts = append(opts, pipeline.WithCaptions(captions))
	}
	p, err := pipeline.New(index, idMap, paths, scorer, gen, scoring.WebQAApprox{}, opts...)
	if err != nil {
		return err
	}

	progress.Start()
	stats, hard, runErr := p.Run(ctx, data.Examples(), sinks)
	progress.Finish(runErr)

	summary := stats.Summary()
	if err := summary.Print(stdout); err != nil {
		slog.Error("failed to print summary", "error", err)
	}
	if err := summary.Err(); err != nil {
		slog.Warn("some metrics are undefined", "error", err)
	}

	outErr := writeOutputs(cfg, stats, hard, summary)
	if runs != nil {
		finishRun(runs, runID, summary, errors.Join(runErr, outErr))
	}
	if runErr != nil {
		return fmt.Errorf("evaluation aborted: %w", runErr)
	}
	if outErr != nil {
		return outErr
	}
	slog.Info("evaluation finished", "output", outputPath, "processed", stats.Processed, "failed", stats.Failed)
	return nil
}

func endpointFor(cfg *config.Config, m catalog.Resolved, url string) llm.Endpoint {
	ep := llm.Endpoint{
		Backend: llm.Backend(m.Backend),
		BaseURL: url,
		APIKey:  cfg.OpenAIAPIKey,
		Model:   m.Model,
		Timeout: cfg.RequestTimeout,
	}
	if ep.Backend == llm.BackendOllama {
		ep.BaseURL = cfg.OllamaURL
	}
	return ep
}

// newScorer prefers first-token log-probabilities and falls back to parsing a
// generated verdict when the backend cannot report them.
func newScorer(client llm.LLM, model string, topLogprobs int) reranker.Scorer {
	if lp, ok := client.(llm.LogprobLLM); ok {
		return reranker.NewLogprobScorer(lp, reranker.WithModel(model), reranker.WithTopLogprobs(topLogprobs))
	}
	slog.Warn("reranker backend has no log-probabilities, parsing verdicts instead", "model", model)
	return reranker.NewGenerativeScorer(client, model)
}

func createRun(ctx context.Context, repo *postgres.RunRepo, sel catalog.Selection, mode dataset.Mode, cfg *config.Config, output string) (*repository.Run, error) {
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	params, err := json.Marshal(runParams{
		Reranker:   sel.Reranker.Name,
		Generator:  sel.Generator.Name,
		Mode:       string(mode),
		Filter:     cfg.Filter,
		RerankOff:  cfg.RerankOff,
		TopK:       cfg.TopK,
		RerankKeep: cfg.RerankKeep,
		Output:     output,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode run config: %w", err)
	}
	run := &repository.Run{
		Reranker:  sel.Reranker.Name,
		Generator: sel.Generator.Name,
		Mode:      string(mode),
		Status:    repository.RunRunning,
		Config:    params,
	}
	if err := repo.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

func finishRun(runs repository.RunRepository, id uuid.UUID, summary pipeline.Summary, runErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	body, err := json.Marshal(summary)
	if err != nil {
		slog.Error("failed to encode summary", "error", err)
		body = nil
	}
	status, msg := repository.RunFinished, ""
	if runErr != nil {
		status, msg = repository.RunFailed, runErr.Error()
	}
	if err := runs.FinishRun(ctx, id, status, body, msg); err != nil {
		slog.Error("failed to finish run", "run_id", id, "error", err)
	}
}

func writeOutputs(cfg *config.Config, stats *pipeline.RunStatistics, hard pipeline.HardExampleSet, summary pipeline.Summary) error {
	var errs []error
	if cfg.HardExamplesPath != "" {
		if err := results.WriteJSON(cfg.HardExamplesPath, hard); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.ProbabilityPath != "" {
		if err := results.WriteJSON(cfg.ProbabilityPath, stats.Probabilities); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.SummaryPath != "" {
		if err := results.WriteJSON(cfg.SummaryPath, summary); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
