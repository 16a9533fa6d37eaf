package loader

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xhad/multibot/internal/models"
	"github.com/xhad/multibot/pkg/ranker"
)

// ChunkConfig controls how long documents are split.
type ChunkConfig struct {
	ChunkSize      int
	ChunkOverlap   int
	MinChunkLength int
}

// Chunk splits a long document into sentence-aligned pieces of at most
// ChunkSize bytes (a single longer sentence stays whole). Each piece
// carries the last ChunkOverlap bytes of the previous one. Pieces are
// identified as <id>_<n>; a document that fits in one chunk keeps its id.
func Chunk(doc models.Document, config ChunkConfig) []models.Document {
	if config.ChunkSize == 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 200
	}
	if config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize / 2
	}

	text := strings.Join(strings.Fields(doc.Text), " ")
	if len(text) <= config.ChunkSize {
		if len(text) < config.MinChunkLength {
			return nil
		}
		return []models.Document{{ID: doc.ID, Title: doc.Title, Text: text}}
	}

	var chunks []string
	var current strings.Builder

	for _, sentence := range ranker.Sentences(text) {
		if current.Len() > 0 && current.Len()+len(sentence)+1 > config.ChunkSize {
			if current.Len() >= config.MinChunkLength {
				chunks = append(chunks, current.String())
			}
			tail := overlapTail(current.String(), config.ChunkOverlap)
			current.Reset()
			current.WriteString(tail)
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
	}
	if current.Len() >= config.MinChunkLength {
		chunks = append(chunks, current.String())
	}

	out := make([]models.Document, len(chunks))
	for i, c := range chunks {
		out[i] = models.Document{ID: fmt.Sprintf("%s_%d", doc.ID, i), Title: doc.Title, Text: c}
	}
	return out
}

// overlapTail returns roughly the last n bytes of s, starting at a word
// boundary, or at least at a rune boundary.
func overlapTail(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return ""
	}
	cut := len(s) - n
	for cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut++
	}
	tail := s[cut:]
	if i := strings.IndexByte(tail, ' '); i >= 0 {
		tail = tail[i+1:]
	}
	return tail
}
