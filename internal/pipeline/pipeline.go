// Package pipeline runs retrieve, rerank, filter, generate and score over a
// dataset, one example at a time.
//
// For each example the question is searched against the image index, the
// candidates are optionally scored by a relevance model and cut to the best
// few, the surviving images are handed to the answer generator and the answer
// is scored against the ground truth. One OutputRecord per example is written
// to the sink as soon as the example finishes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/IDEA-FinAI/RagLLaVA/internal/dataset"
	"github.com/IDEA-FinAI/RagLLaVA/internal/evalerr"
	"github.com/IDEA-FinAI/RagLLaVA/internal/generator"
	"github.com/IDEA-FinAI/RagLLaVA/internal/reranker"
	"github.com/IDEA-FinAI/RagLLaVA/internal/results"
	"github.com/IDEA-FinAI/RagLLaVA/internal/scoring"
	"github.com/IDEA-FinAI/RagLLaVA/internal/vectorstore"
)

// Defaults for Config.
const (
	DefaultTopK       = 20
	DefaultRerankKeep = 2
)

// Config controls selection behaviour.
type Config struct {
	// TopK is the number of neighbours retrieved per question.
	TopK int
	// RerankOff passes every retrieved image to the generator unscored.
	RerankOff bool
	// Filter drops selected images whose probability is below it.
	Filter float64
	// RerankKeep caps the reranked selection.
	RerankKeep int
	// UseCaption adds the image caption to the relevance prompt.
	UseCaption bool
	// FailFast aborts the run on the first failed example.
	FailFast bool
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{TopK: DefaultTopK, RerankKeep: DefaultRerankKeep}
}

// Validate rejects configurations that cannot run.
func (c Config) Validate() error {
	if c.TopK < 1 {
		return evalerr.Configf("topk must be at least 1, got %d", c.TopK)
	}
	if c.RerankKeep < 1 {
		return evalerr.Configf("rerank keep must be at least 1, got %d", c.RerankKeep)
	}
	if math.IsNaN(c.Filter) || c.Filter < 0 || c.Filter > 1 {
		return evalerr.Configf("filter must be within [0, 1], got %v", c.Filter)
	}
	return nil
}

// PositionResolver maps an index position to an image identifier.
type PositionResolver interface {
	Resolve(pos int64) (string, error)
}

// CaptionSource looks up the caption of an image.
type CaptionSource interface {
	Lookup(imageID string) (string, error)
}

// PathResolver maps an image identifier to its file path.
type PathResolver interface {
	Resolve(imageID string) string
}

// Recorder receives per-example and per-call observations.
type Recorder interface {
	ExampleDone(outcome string, evidence int, hard bool)
	AdapterCall(adapter string, elapsed time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) ExampleDone(string, int, bool)            {}
func (nopRecorder) AdapterCall(string, time.Duration, error) {}

// Pipeline drives the per-example evaluation.
type Pipeline struct {
	index     vectorstore.Index
	positions PositionResolver
	paths     PathResolver
	scorer    reranker.Scorer
	generator generator.Generator
	metric    scoring.Metric

	cfg      Config
	captions CaptionSource
	recorder Recorder
	progress func(Summary)
	logger   *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithConfig sets the selection configuration.
func WithConfig(cfg Config) Option {
	return func(p *Pipeline) {
		p.cfg = cfg
	}
}

// WithCaptions sets the caption source used when Config.UseCaption is set.
func WithCaptions(c CaptionSource) Option {
	return func(p *Pipeline) {
		p.captions = c
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithProgress registers a callback that receives the running summary after
// every example.
func WithProgress(fn func(Summary)) Option {
	return func(p *Pipeline) {
		p.progress = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a pipeline. scorer may be nil when reranking is off.
func New(index vectorstore.Index, positions PositionResolver, paths PathResolver, scorer reranker.Scorer, gen generator.Generator, metric scoring.Metric, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		index:     index,
		positions: positions,
		paths:     paths,
		scorer:    scorer,
		generator: gen,
		metric:    metric,
		cfg:       DefaultConfig(),
		recorder:  nopRecorder{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}
	if index == nil || positions == nil || paths == nil || gen == nil || metric == nil {
		return nil, evalerr.Configf("pipeline requires an index, position map, path resolver, generator and metric")
	}
	if !p.cfg.RerankOff && scorer == nil {
		return nil, evalerr.Configf("reranking is enabled but no relevance scorer is configured")
	}
	if !p.cfg.RerankOff && p.cfg.UseCaption && p.captions == nil {
		return nil, evalerr.Configf("caption prompts are enabled but no caption source is configured")
	}
	return p, nil
}

// outcome is what one example contributes to the run.
type outcome struct {
	record    results.OutputRecord
	evidence  []string
	intersect []string
	selected  []Scored
	accuracy  float64
}

// Run processes examples in order and writes one record per example to sink.
// Lookup and adapter failures are recorded on the example and the run
// continues unless FailFast is set. Configuration and sink errors abort.
// The caller owns sink and must close it.
func (p *Pipeline) Run(ctx context.Context, examples []*dataset.Example, sink results.Sink) (*RunStatistics, HardExampleSet, error) {
	stats := NewRunStatistics()
	hard := make(HardExampleSet)

	p.logger.Info("run started",
		"examples", len(examples),
		"topk", p.cfg.TopK,
		"rerank_off", p.cfg.RerankOff,
		"rerank_keep", p.cfg.RerankKeep,
		"filter", p.cfg.Filter,
		"use_caption", p.cfg.UseCaption,
	)
	start := time.Now()

	for i, ex := range examples {
		if err := ctx.Err(); err != nil {
			return stats, hard, fmt.Errorf("run stopped after %d of %d examples: %w", i, len(examples), err)
		}

		out, err := p.process(ctx, ex)
		if err != nil {
			stats.Failed++
			p.recorder.ExampleDone(evalerr.Code(err), 0, false)
			out.record.Error = err.Error()
			if errors.Is(err, evalerr.ErrConfiguration) || p.cfg.FailFast || ctx.Err() != nil {
				if werr := sink.Write(context.WithoutCancel(ctx), out.record); werr != nil {
					p.logger.Warn("write failed record", "guid", ex.GUID, "error", werr)
				}
				return stats, hard, err
			}
			p.logger.Warn("example failed", "guid", ex.GUID, "error", err)

			if werr := sink.Write(ctx, out.record); werr != nil {
				return stats, hard, &evalerr.ExampleError{GUID: ex.GUID, Stage: evalerr.StagePersist, Err: werr}
			}
			p.reportProgress(stats)
			continue
		}

		isHard := len(out.intersect) == 0
		if isHard {
			hard[ex.GUID] = ex
			stats.HardExamples++
		}
		stats.addAccuracy(dataset.CategoryOf(ex), out.accuracy)
		stats.addRetrieval(out.evidence, out.record.GTImages)
		if !p.cfg.RerankOff {
			gt := toSet(out.record.GTImages)
			for _, s := range out.selected {
				if gt[s.ImageID] {
					stats.Probabilities.GT = append(stats.Probabilities.GT, s.Probability)
				} else {
					stats.Probabilities.False = append(stats.Probabilities.False, s.Probability)
				}
			}
		}
		stats.Processed++
		p.recorder.ExampleDone("ok", len(out.evidence), isHard)

		p.logger.Debug("example done",
			"guid", ex.GUID,
			"evidence", len(out.evidence),
			"intersect", len(out.intersect),
			"hard", isHard,
			"accuracy", out.accuracy,
		)

		if err := sink.Write(ctx, out.record); err != nil {
			return stats, hard, &evalerr.ExampleError{GUID: ex.GUID, Stage: evalerr.StagePersist, Err: err}
		}
		p.reportProgress(stats)
	}

	p.logger.Info("run finished",
		"processed", stats.Processed,
		"failed", stats.Failed,
		"hard_examples", stats.HardExamples,
		"elapsed", time.Since(start).String(),
	)
	return stats, hard, nil
}

func (p *Pipeline) reportProgress(stats *RunStatistics) {
	if p.progress != nil {
		p.progress(stats.Summary())
	}
}

// process runs one example. On error the returned outcome still carries the
// record fields known so far.
func (p *Pipeline) process(ctx context.Context, ex *dataset.Example) (outcome, error) {
	positives := ex.PositiveIDs()
	out := outcome{record: results.OutputRecord{
		GUID:            ex.GUID,
		Question:        ex.Question,
		EMAnswer:        ex.Answer.Raw(),
		Qcate:           ex.Category,
		GTImages:        positives,
		RetrievedImages: results.PlainImages([]string{}),
	}}
	fail := func(stage evalerr.Stage, err error) (outcome, error) {
		return out, &evalerr.ExampleError{GUID: ex.GUID, Stage: stage, Err: err}
	}

	retrieved, err := p.retrieve(ctx, ex.Question)
	if err != nil {
		return fail(evalerr.StageRetrieve, err)
	}

	var selectedIDs []string
	if p.cfg.RerankOff {
		selectedIDs = retrieved
		out.evidence = retrieved
		out.record.RetrievedImages = results.PlainImages(retrieved)
	} else {
		scored, err := p.rerank(ctx, ex.Question, retrieved)
		if err != nil {
			return fail(evalerr.StageRerank, err)
		}
		out.selected = SelectTop(scored, p.cfg.RerankKeep)
		selectedIDs = ids(out.selected)
		out.evidence = ApplyThreshold(out.selected, p.cfg.Filter)
		out.record.RetrievedImages = results.ScoredImages(selectedIDs, probabilities(out.selected))
	}
	out.intersect, _ = Partition(selectedIDs, positives)

	imagePaths := make([]string, len(out.evidence))
	for i, id := range out.evidence {
		imagePaths[i] = p.paths.Resolve(id)
	}
	out.record.ImagePath = JoinImagePaths(imagePaths)

	genStart := time.Now()
	answer, err := p.generator.Generate(ctx, ex.Question, imagePaths)
	p.recorder.AdapterCall("generator", time.Since(genStart), err)
	if err != nil {
		return fail(evalerr.StageGenerate, evalerr.Adapter("generator", err))
	}
	out.record.GeneratorAnswer = answer

	out.accuracy = p.metric.Score(answer, ex.Answer.Text, ex.Category)
	if math.IsNaN(out.accuracy) {
		return fail(evalerr.StageScore, fmt.Errorf("metric returned NaN"))
	}
	acc := out.accuracy
	out.record.Accuracy = &acc
	return out, nil
}

// retrieve searches the index and maps positions to image identifiers in rank order.
func (p *Pipeline) retrieve(ctx context.Context, question string) ([]string, error) {
	start := time.Now()
	neighbors, err := p.index.Search(ctx, question, p.cfg.TopK)
	p.recorder.AdapterCall("index", time.Since(start), err)
	if err != nil {
		return nil, evalerr.Adapter("index", err)
	}

	out := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		id, err := p.positions.Resolve(n.Position)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// rerank scores every candidate once, in retrieval order. A repeated
// identifier keeps its first position and takes the later probability.
func (p *Pipeline) rerank(ctx context.Context, question string, candidates []string) ([]Scored, error) {
	scored := make([]Scored, 0, len(candidates))
	index := make(map[string]int, len(candidates))

	for _, id := range candidates {
		caption := ""
		if p.cfg.UseCaption {
			c, err := p.captions.Lookup(id)
			if err != nil {
				return nil, err
			}
			caption = c
		}
		prompt := reranker.Prompt(question, caption, p.cfg.UseCaption)

		start := time.Now()
		prob, err := p.scorer.Score(ctx, p.paths.Resolve(id), prompt)
		p.recorder.AdapterCall("scorer", time.Since(start), err)
		if err != nil {
			return nil, evalerr.Adapter("scorer", err)
		}
		if math.IsNaN(prob) {
			return nil, evalerr.Adapter("scorer", fmt.Errorf("probability for image %s is NaN", id))
		}
		prob = math.Min(1, math.Max(0, prob))

		if i, ok := index[id]; ok {
			scored[i].Probability = prob
			continue
		}
		index[id] = len(scored)
		scored = append(scored, Scored{ImageID: id, Probability: prob})
	}
	return scored, nil
}
