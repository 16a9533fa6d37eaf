package ranker_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/multibot/pkg/ranker"
)

const pets = "Cats are great. Dogs are loyal. Cats and dogs are pets."

func TestSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"basic", "One. Two! Three?", []string{"One.", "Two!", "Three?"}},
		{"no terminal punctuation", "just words here", []string{"just words here"}},
		{"punctuation without space", "v1.2 is out.Next", []string{"v1.2 is out.Next"}},
		{"newlines and extra space", "  First.\n\nSecond.   ", []string{"First.", "Second."}},
		{"empty", "   ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ranker.Sentences(tt.text))
		})
	}
}

func TestRankOrdering(t *testing.T) {
	got := ranker.Rank(ranker.Text(pets), "cats pets", 2)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"Cats and dogs are pets.", "Cats are great."}, got)
	assert.NotContains(t, got, "Dogs are loyal.")
}

func TestRankStableTies(t *testing.T) {
	got := ranker.Rank(ranker.Text("Red apple. Green apple. Blue sky."), "apple", 3)
	assert.Equal(t, []string{"Red apple.", "Green apple.", "Blue sky."}, got)
}

func TestRankIsDeterministic(t *testing.T) {
	first := ranker.Rank(ranker.Text(pets), "dogs", 3)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, ranker.Rank(ranker.Text(pets), "dogs", 3))
	}
}

func TestRankDistinctTokens(t *testing.T) {
	text := "Cats cats cats cats. Cats like pets."
	got := ranker.Rank(ranker.Text(text), "cats pets", 1)
	assert.Equal(t, []string{"Cats like pets."}, got)
}

func TestRankZeroOverlapKeepsOrder(t *testing.T) {
	got := ranker.Rank(ranker.Text(pets), "quantum physics", 2)
	assert.Equal(t, []string{"Cats are great.", "Dogs are loyal."}, got)
}

func TestRankEmpty(t *testing.T) {
	assert.Empty(t, ranker.Rank(ranker.Text(""), "anything", 3))
	assert.Empty(t, ranker.Rank(ranker.Texts(), "anything", 3))
	assert.Empty(t, ranker.Rank(ranker.Text(pets), "cats", 0))
}

func TestRankMultipleTexts(t *testing.T) {
	got := ranker.Rank(ranker.Texts("Alpha beta", "Gamma delta."), "delta", 1)
	assert.Equal(t, []string{"Gamma delta."}, got)
}

func TestFromAny(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  []string
	}{
		{"mixed list drops non-strings", []any{"Hello world.", 42, nil}, []string{"Hello world."}},
		{"string", "Hello world.", []string{"Hello world."}},
		{"string slice", []string{"A one.", "B two."}, []string{"A one.", "B two."}},
		{"nil", nil, []string{}},
		{"number is stringified", 3.5, []string{"3.5"}},
		{"map is dropped", map[string]any{"k": "v"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				got := ranker.Rank(ranker.FromAny(tt.input), "hello", 5)
				assert.Equal(t, tt.want, got)
			})
		})
	}
}
