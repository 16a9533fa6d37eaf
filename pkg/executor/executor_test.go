package executor_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/multibot/internal/models"
	"github.com/xhad/multibot/pkg/executor"
)

type blockingGenerator struct{}

func (blockingGenerator) Generate(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type fakeGenerator struct {
	reply  string
	err    error
	prompt string
	calls  int
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.calls++
	f.prompt = prompt
	return f.reply, f.err
}

func match(score float64, title, text string) models.Match {
	return models.Match{Score: score, Document: models.Document{ID: title, Title: title, Text: text}}
}

var steps = []string{"Retrieve relevant documents from the active persona's index."}

func TestExecuteCitationOrdering(t *testing.T) {
	matches := []models.Match{
		match(0.2, "B", "Bravo text."),
		match(0.9, "A", "Alpha text."),
		match(0.5, "", "Untitled text."),
		match(0.1, "D", "Delta text."),
	}

	got, err := executor.New(nil).Execute(context.Background(), steps, matches, "text")
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "(untitled)", "B"}, got.Citations)
	assert.Equal(t, "Alpha text. Untitled text. Bravo text.", got.Answer)
	assert.Equal(t, got.Answer, got.Draft)
	assert.False(t, got.Refined)
	assert.Empty(t, got.Notice)
}

func TestExecuteCitationsNotDeduplicated(t *testing.T) {
	matches := []models.Match{
		match(0.9, "FAQ", "Returns take 30 days."),
		match(0.8, "FAQ", "Refunds take 5 days."),
	}

	got, err := executor.New(nil).Execute(context.Background(), steps, matches, "returns")
	require.NoError(t, err)
	assert.Equal(t, []string{"FAQ", "FAQ"}, got.Citations)
}

func TestExecuteSkipsUnscoredMatches(t *testing.T) {
	matches := []models.Match{
		match(math.NaN(), "Ghost", "Should not appear."),
		match(0.4, "Real", "Real answer here."),
	}

	got, err := executor.New(nil).Execute(context.Background(), steps, matches, "answer")
	require.NoError(t, err)
	assert.Equal(t, []string{"Real"}, got.Citations)
	assert.Equal(t, "Real answer here.", got.Answer)
}

func TestExecuteTwoSentencesPerDocument(t *testing.T) {
	matches := []models.Match{
		match(0.9, "Guide", "Reset the router. Unplug the modem. Call support if the router fails."),
	}

	got, err := executor.New(nil).Execute(context.Background(), steps, matches, "router fails")
	require.NoError(t, err)
	assert.Equal(t, "Call support if the router fails. Reset the router.", got.Answer)
}

func TestExecuteEmptyExtraction(t *testing.T) {
	matches := []models.Match{match(0.9, "Blank", "   ")}

	got, err := executor.New(nil).Execute(context.Background(), steps, matches, "anything")
	require.NoError(t, err)
	assert.Equal(t, executor.NoExtractionAnswer, got.Answer)
	assert.Equal(t, []string{"Blank"}, got.Citations)
}

func TestExecuteRefines(t *testing.T) {
	gen := &fakeGenerator{reply: "  Returns are accepted within 30 days.  "}
	ex := executor.New(gen, executor.WithInstruction("You are a friendly support agent."))

	plan := []string{"step one", "step two"}
	got, err := ex.Execute(context.Background(), plan, []models.Match{match(0.9, "Policy", "Returns take 30 days.")}, "returns?")
	require.NoError(t, err)

	assert.True(t, got.Refined)
	assert.Equal(t, "Returns are accepted within 30 days.", got.Answer)
	assert.Equal(t, "Returns take 30 days.", got.Draft)
	assert.Equal(t, []string{"Policy"}, got.Citations)

	assert.Contains(t, gen.prompt, "You are a friendly support agent.")
	assert.Contains(t, gen.prompt, "Plan:\nstep one, step two\n")
	assert.Contains(t, gen.prompt, "Extracted Information:\nReturns take 30 days.\n")
	assert.Contains(t, gen.prompt, "User Query:\nreturns?\n")
}

func TestExecuteRefinementFallback(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
	}{
		{name: "error", gen: &fakeGenerator{err: errors.New("quota exceeded")}},
		{name: "empty reply", gen: &fakeGenerator{reply: "  \n"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := executor.New(tt.gen).Execute(context.Background(), steps,
				[]models.Match{match(0.9, "Policy", "Returns take 30 days.")}, "returns")
			require.NoError(t, err)

			assert.Equal(t, 1, tt.gen.calls)
			assert.False(t, got.Refined)
			assert.Equal(t, "Returns take 30 days.", got.Answer)
			assert.Equal(t, executor.RefinementFallback, got.Notice)
			assert.Equal(t, []string{"Policy"}, got.Citations)
		})
	}
}

func TestExecuteRefinementTimeout(t *testing.T) {
	ex := executor.New(blockingGenerator{}, executor.WithTimeout(20*time.Millisecond))

	got, err := ex.Execute(context.Background(), steps, []models.Match{match(0.9, "Policy", "Returns take 30 days.")}, "returns")
	require.NoError(t, err)

	assert.False(t, got.Refined)
	assert.Equal(t, "Returns take 30 days.", got.Answer)
	assert.Equal(t, executor.RefinementFallback, got.Notice)
}

func TestExecuteCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := &fakeGenerator{reply: "ignored"}
	_, err := executor.New(gen).Execute(ctx, steps, []models.Match{match(0.9, "A", "Alpha.")}, "alpha")
	assert.ErrorIs(t, err, context.Canceled)
}
