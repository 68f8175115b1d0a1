// Package answer turns a retrieval decision into a final answer, either
// grounded in document excerpts or from the model's general knowledge.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/docsmith-ai/docsmith/internal/document"
	"github.com/docsmith-ai/docsmith/internal/rag"
)

// ErrUnavailable means the generation backend cannot be reached at all.
// Handlers map it to 503; it is distinct from a generation attempt failing
// mid-request, which degrades the answer instead.
var ErrUnavailable = errors.New("generation backend unavailable")

// generateTimeout bounds one generation call. Local models on modest
// hardware can legitimately take minutes.
const generateTimeout = 120 * time.Second

// healthTimeout bounds the backend liveness probe.
const healthTimeout = 5 * time.Second

// Source identifies one document a grounded answer drew on.
type Source struct {
	Filename   string  `json:"filename"`
	Similarity float64 `json:"similarity"`
	ChunkIndex int     `json:"chunk_index"`
}

// Response is a complete answer with its provenance.
type Response struct {
	Answer      string   `json:"answer"`
	Mode        string   `json:"mode"`
	Sources     []Source `json:"sources"`
	Confidence  int      `json:"confidence"`
	ContextUsed bool     `json:"context_used"`
}

// textGenerator is the seam between Generator and Genkit, kept narrow so
// tests can stub generation without a model backend.
type textGenerator interface {
	generate(ctx context.Context, system, prompt string, temperature float64) (string, error)
}

// genkitGenerator is the production textGenerator.
type genkitGenerator struct {
	g         *genkit.Genkit
	modelName string
	maxTokens int
}

func (gg *genkitGenerator) generate(ctx context.Context, system, prompt string, temperature float64) (string, error) {
	resp, err := genkit.Generate(ctx, gg.g,
		ai.WithModelName(gg.modelName),
		ai.WithSystem(system),
		ai.WithPrompt(prompt),
		ai.WithConfig(&ai.GenerationCommonConfig{
			Temperature:     temperature,
			MaxOutputTokens: gg.maxTokens,
		}),
	)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// Config carries the generation settings Generator needs.
type Config struct {
	// ModelName is the fully qualified Genkit model name, e.g.
	// "ollama/mistral:7b-instruct".
	ModelName string

	// Temperature is the model temperature for general-mode answers.
	// Grounded answers always use a lower fixed temperature.
	Temperature float64

	// MaxTokens caps generated output length.
	MaxTokens int

	// FallbackConfidence is attached to general-mode answers, which have no
	// retrieval similarity to score from.
	FallbackConfidence int

	// OllamaHost, when non-empty, enables the Ollama liveness probe.
	OllamaHost string
}

// Generator produces answers from retrieval decisions.
//
// Generator is safe for concurrent use by multiple goroutines.
type Generator struct {
	gen    textGenerator
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// New creates a Generator over an initialized Genkit instance.
// A nil logger falls back to slog.Default().
func New(g *genkit.Genkit, cfg Config, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		gen:    &genkitGenerator{g: g, modelName: cfg.ModelName, maxTokens: cfg.MaxTokens},
		cfg:    cfg,
		client: &http.Client{Timeout: healthTimeout},
		logger: logger,
	}
}

// Answer generates the final answer for question given a retrieval decision.
//
// When generation fails after successful retrieval, Answer returns a
// degraded Response with confidence 0 together with the error: the caller
// keeps the sources and decides how to surface the failure.
func (g *Generator) Answer(ctx context.Context, question string, decision rag.Decision) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	var (
		system      string
		prompt      string
		temperature float64
	)
	switch decision.Mode {
	case rag.ModeGrounded:
		system = fmt.Sprintf(groundedSystemPrompt, decision.Context)
		prompt = question
		temperature = groundedTemperature
	default:
		system = generalSystemPrompt
		prompt = question
		temperature = g.cfg.Temperature
	}

	sources := sourcesFrom(decision.Relevant)

	text, err := g.gen.generate(ctx, system, prompt, temperature)
	if err != nil {
		g.logger.Error("answer generation failed",
			"mode", decision.Mode, "error", err)
		return &Response{
			Answer:      degradedAnswer,
			Mode:        decision.Mode,
			Sources:     sources,
			Confidence:  0,
			ContextUsed: decision.Mode == rag.ModeGrounded,
		}, fmt.Errorf("generating answer: %w", err)
	}

	resp := &Response{
		Answer:  text,
		Mode:    decision.Mode,
		Sources: sources,
	}
	if decision.Mode == rag.ModeGrounded {
		resp.Confidence = decision.Confidence
		resp.ContextUsed = true
	} else {
		resp.Confidence = g.cfg.FallbackConfidence
	}

	g.logger.Info("generated answer",
		"mode", resp.Mode, "confidence", resp.Confidence, "sources", len(resp.Sources))
	return resp, nil
}

// Health probes the generation backend. For Ollama this hits the /api/tags
// endpoint; other providers are assumed reachable and checked only at
// generation time. A failed probe wraps ErrUnavailable.
func (g *Generator) Health(ctx context.Context) error {
	if g.cfg.OllamaHost == "" {
		return nil
	}

	endpoint, err := url.JoinPath(g.cfg.OllamaHost, "/api/tags")
	if err != nil {
		return fmt.Errorf("building health URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("building health request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d from %s", ErrUnavailable, resp.StatusCode, endpoint)
	}
	return nil
}

func sourcesFrom(matches []document.Match) []Source {
	if len(matches) == 0 {
		return nil
	}
	sources := make([]Source, len(matches))
	for i, m := range matches {
		sources[i] = Source{
			Filename:   m.Filename,
			Similarity: m.Similarity,
			ChunkIndex: m.ChunkIndex,
		}
	}
	return sources
}
