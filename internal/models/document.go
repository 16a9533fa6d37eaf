package models

import (
	"math"
	"time"
)

// Document is the retrieval unit stored in a persona's index.
type Document struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Match pairs a document with its similarity to the query vector.
// A NaN score means the backend did not report one.
type Match struct {
	Score    float64  `json:"score"`
	Document Document `json:"document"`
}

// HasScore reports whether the match carries a defined score.
func (m Match) HasScore() bool {
	return !math.IsNaN(m.Score)
}

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a chat transcript. Citations are only set on
// assistant messages.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Citations []string  `json:"citations,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Persona is the static configuration of one chatbot.
type Persona struct {
	Key            string `json:"key"`
	DisplayName    string `json:"display_name"`
	IndexName      string `json:"index_name"`
	Description    string `json:"persona"`
	PromptTemplate string `json:"prompt_template"`
	Model          string `json:"model,omitempty"`
}
