package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/xhad/multibot/internal/types"
	"github.com/xhad/multibot/pkg/llm"
)

type fakeModel struct {
	reply   string
	err     error
	prompts []string
	opts    llms.CallOptions
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, o := range options {
		o(&f.opts)
	}
	for _, m := range messages {
		for _, p := range m.Parts {
			if text, ok := p.(llms.TextContent); ok {
				f.prompts = append(f.prompts, text.Text)
			}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestChatGenerator(t *testing.T) {
	model := &fakeModel{reply: "  Reset your password from the login page.\n"}
	gen := llm.NewChatGenerator(model, llm.GeneratorConfig{Temperature: 0.2, MaxTokens: 256})

	out, err := gen.Generate(context.Background(), "How do I reset my password?")
	require.NoError(t, err)

	assert.Equal(t, "Reset your password from the login page.", out)
	assert.Equal(t, []string{"How do I reset my password?"}, model.prompts)
	assert.InDelta(t, 0.2, model.opts.Temperature, 1e-9)
	assert.Equal(t, 256, model.opts.MaxTokens)
}

func TestChatGeneratorError(t *testing.T) {
	model := &fakeModel{err: errors.New("model overloaded")}
	gen := llm.NewChatGenerator(model, llm.GeneratorConfig{})

	_, err := gen.Generate(context.Background(), "hi")
	assert.ErrorIs(t, err, model.err)
}

func TestNewGenerator(t *testing.T) {
	ctx := context.Background()

	gen, err := llm.NewGenerator(ctx, llm.GeneratorConfig{Provider: llm.ProviderNone})
	assert.NoError(t, err)
	assert.Nil(t, gen)

	_, err = llm.NewGenerator(ctx, llm.GeneratorConfig{Provider: llm.ProviderOpenAI})
	assert.ErrorIs(t, err, llm.ErrUnavailable)

	_, err = llm.NewGenerator(ctx, llm.GeneratorConfig{Provider: llm.ProviderGemini})
	assert.ErrorIs(t, err, llm.ErrUnavailable)

	_, err = llm.NewGenerator(ctx, llm.GeneratorConfig{Provider: "unknown"})
	assert.Error(t, err)
}

func TestGeneratorsPerModel(t *testing.T) {
	var built []string
	gens := llm.NewGeneratorsWith(llm.GeneratorConfig{Model: "base"},
		func(_ context.Context, cfg llm.GeneratorConfig) (types.Generator, error) {
			built = append(built, cfg.Model)
			return llm.NewChatGenerator(&fakeModel{reply: cfg.Model}, cfg), nil
		})

	ctx := context.Background()
	a, err := gens.For(ctx, "")
	require.NoError(t, err)
	b, err := gens.For(ctx, "base")
	require.NoError(t, err)
	c, err := gens.For(ctx, "gpt-4o-mini")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, []string{"base", "gpt-4o-mini"}, built)

	out, err := c.Generate(ctx, "which model?")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", out)
}
