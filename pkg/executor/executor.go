// Package executor turns retrieved documents into an answer: extractive
// sentence selection first, then optional refinement by a language model.
package executor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xhad/multibot/internal/models"
	"github.com/xhad/multibot/internal/types"
	"github.com/xhad/multibot/pkg/ranker"
	"golang.org/x/sync/errgroup"
)

const (
	MaxDocuments       = 3
	SentencesPerDoc    = 2
	UntitledCitation   = "(untitled)"
	NoExtractionAnswer = "I couldn't extract a concise answer from the documents."
	DefaultInstruction = "You are an expert assistant."
	RefinementFallback = "Answer refinement was unavailable; showing the extracted answer."
)

// Answer is the executor's result. Draft is the extractive answer; Answer is
// the refined text when refinement succeeded and the draft otherwise.
type Answer struct {
	Answer    string   `json:"answer"`
	Draft     string   `json:"draft"`
	Citations []string `json:"citations"`
	Refined   bool     `json:"refined"`
	Notice    string   `json:"notice,omitempty"`
}

// Executor extracts and optionally refines answers.
type Executor struct {
	generator   types.Generator
	instruction string
	timeout     time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithInstruction sets the first line of the refinement prompt.
func WithInstruction(instruction string) Option {
	return func(e *Executor) {
		if strings.TrimSpace(instruction) != "" {
			e.instruction = instruction
		}
	}
}

// WithTimeout bounds the refinement call. A refinement that runs out of time
// falls back to the draft.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// New returns an Executor. A nil generator produces extractive answers only.
func New(generator types.Generator, opts ...Option) *Executor {
	e := &Executor{generator: generator, instruction: DefaultInstruction}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute builds an answer for query from matches. steps are the planner's
// steps and only shape the refinement prompt.
func (e *Executor) Execute(ctx context.Context, steps []string, matches []models.Match, query string) (Answer, error) {
	top := topMatches(matches, MaxDocuments)

	extracts := make([][]string, len(top))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range top {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			extracts[i] = ranker.Rank(ranker.Text(m.Document.Text), query, SentencesPerDoc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Answer{}, err
	}

	var (
		parts     []string
		citations = make([]string, 0, len(top))
	)
	for i, m := range top {
		parts = append(parts, extracts[i]...)
		title := strings.TrimSpace(m.Document.Title)
		if title == "" {
			title = UntitledCitation
		}
		citations = append(citations, title)
	}

	extracted := strings.TrimSpace(strings.Join(parts, " "))
	draft := extracted
	if draft == "" {
		draft = NoExtractionAnswer
	}

	answer := Answer{Answer: draft, Draft: draft, Citations: citations}
	if e.generator == nil {
		return answer, nil
	}

	refined, err := e.generate(ctx, e.prompt(steps, extracted, query))
	if ctx.Err() != nil {
		return Answer{}, ctx.Err()
	}
	refined = strings.TrimSpace(refined)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("refinement failed, using extracted answer")
		answer.Notice = RefinementFallback
	case refined == "":
		log.Warn().Msg("refinement returned nothing, using extracted answer")
		answer.Notice = RefinementFallback
	default:
		answer.Answer = refined
		answer.Refined = true
	}
	return answer, nil
}

func (e *Executor) prompt(steps []string, extracted, query string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s Based on the following plan and extracted information, "+
		"provide a concise and accurate answer to the user's query. "+
		"Use only the extracted information.\n", e.instruction)
	fmt.Fprintf(&b, "Plan:\n%s\n", strings.Join(steps, ", "))
	fmt.Fprintf(&b, "Extracted Information:\n%s\n", extracted)
	fmt.Fprintf(&b, "User Query:\n%s\n", query)
	b.WriteString("Provide the final answer below:\nFinal Answer:\n")
	return b.String()
}

// generate calls the generator under the refinement timeout. Only ctx being
// done is fatal to the caller; the child deadline is a generation error.
func (e *Executor) generate(ctx context.Context, prompt string) (string, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	return e.generator.Generate(ctx, prompt)
}

// topMatches drops unscored matches and keeps the n best, ties in input order.
func topMatches(matches []models.Match, n int) []models.Match {
	scored := make([]models.Match, 0, len(matches))
	for _, m := range matches {
		if m.HasScore() {
			scored = append(scored, m)
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > n {
		scored = scored[:n]
	}
	return scored
}
