// Package bot runs chat turns for the configured personas: planning,
// retrieval, relevance gating, answering and recording the conversation.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xhad/multibot/internal/models"
	"github.com/xhad/multibot/internal/types"
	"github.com/xhad/multibot/pkg/executor"
	"github.com/xhad/multibot/pkg/planner"
	"github.com/xhad/multibot/pkg/store"
)

const (
	DefaultTopK               = 4
	DefaultRelevanceThreshold = 0.10
	DefaultTimeout            = 30 * time.Second

	ClarificationMessage = "I couldn't find sufficiently relevant documents in this bot's database. " +
		"Per system rules I cannot guess. Please clarify or provide supporting documents."
	RetrievalFailedMessage = "I couldn't reach this bot's document database right now. " +
		"Please try again in a moment."
)

// Outcome tells how a turn ended.
type Outcome string

const (
	OutcomeAnswered        Outcome = "answered"
	OutcomeDeclined        Outcome = "declined"
	OutcomeRetrievalFailed Outcome = "retrieval_failed"
)

// Turn is the result of one Ask.
type Turn struct {
	Persona   string   `json:"persona"`
	SessionID string   `json:"session_id"`
	Plan      []string `json:"plan"`
	Answer    string   `json:"answer"`
	Citations []string `json:"citations"`
	Outcome   Outcome  `json:"outcome"`
	Refined   bool     `json:"refined"`
	Notice    string   `json:"notice,omitempty"`
}

// GeneratorSource hands out a generator per model name. An empty model means
// the default one.
type GeneratorSource interface {
	For(ctx context.Context, model string) (types.Generator, error)
}

// Config holds the retrieval and timeout settings of an Orchestrator.
type Config struct {
	TopK               int
	RelevanceThreshold float64
	// Timeout bounds each external call made during a turn.
	Timeout time.Duration
}

// Orchestrator runs chat turns against the persona registry and session store.
type Orchestrator struct {
	registry   *Registry
	sessions   *SessionStore
	embedder   types.Embedder
	retriever  types.Retriever
	generators GeneratorSource
	config     Config
}

// NewOrchestrator wires the pipeline. generators may be nil for extractive
// answers only.
func NewOrchestrator(registry *Registry, sessions *SessionStore, embedder types.Embedder,
	retriever types.Retriever, generators GeneratorSource, config Config) *Orchestrator {
	if config.TopK <= 0 {
		config.TopK = DefaultTopK
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	return &Orchestrator{
		registry:   registry,
		sessions:   sessions,
		embedder:   embedder,
		retriever:  retriever,
		generators: generators,
		config:     config,
	}
}

// Registry returns the persona registry.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Sessions returns the session store.
func (o *Orchestrator) Sessions() *SessionStore { return o.sessions }

// Ask runs one turn for the persona in the given session, or in the active
// session when sessionID is empty. A declined or failed retrieval is not an
// error: it is recorded and reported through Turn.Outcome. A misconfigured
// index is returned as an error since retrying cannot help.
func (o *Orchestrator) Ask(ctx context.Context, personaKey, sessionID, query string) (*Turn, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	persona, err := o.registry.Get(personaKey)
	if err != nil {
		return nil, err
	}
	sess, err := o.sessions.Session(personaKey, sessionID)
	if err != nil {
		return nil, err
	}

	sess.turn.Lock()
	defer sess.turn.Unlock()

	logger := log.With().Str("persona", persona.Key).Str("session", sess.ID).Logger()

	sess.append(models.Message{Role: models.RoleUser, Content: query, CreatedAt: time.Now()})

	turn := &Turn{Persona: persona.Key, SessionID: sess.ID, Plan: planner.Plan(query), Citations: []string{}}
	logger.Debug().Strs("plan", turn.Plan).Msg("planned")

	vector, err := o.embed(ctx, query)
	if err != nil {
		logger.Error().Err(err).Msg("embedding failed")
		return nil, &EmbeddingError{Persona: persona.Key, Err: err}
	}

	matches, err := o.retrieve(ctx, persona.IndexName, vector)
	var cfgErr *store.ConfigurationError
	if errors.As(err, &cfgErr) {
		logger.Error().Err(err).Msg("index misconfigured")
		return nil, err
	}
	if err != nil {
		var rerr *store.RetrievalError
		if !errors.As(err, &rerr) {
			err = &store.RetrievalError{Index: persona.IndexName, Err: err}
		}
		logger.Warn().Err(err).Msg("retrieval failed")
		turn.Answer = RetrievalFailedMessage
		turn.Outcome = OutcomeRetrievalFailed
		o.record(sess, turn)
		return turn, nil
	}
	logger.Debug().Int("matches", len(matches)).Msg("retrieved")

	if !o.relevant(matches) {
		logger.Debug().Msg("declined: no sufficiently relevant documents")
		turn.Answer = ClarificationMessage
		turn.Outcome = OutcomeDeclined
		o.record(sess, turn)
		return turn, nil
	}

	answer, err := o.answer(ctx, persona, turn.Plan, matches, query)
	if err != nil {
		logger.Error().Err(err).Msg("answer failed")
		return nil, err
	}

	turn.Answer = answer.Answer
	turn.Citations = answer.Citations
	turn.Refined = answer.Refined
	turn.Notice = answer.Notice
	turn.Outcome = OutcomeAnswered
	o.record(sess, turn)
	return turn, nil
}

// relevant reports whether the best match clears the threshold. A score equal
// to the threshold passes.
func (o *Orchestrator) relevant(matches []models.Match) bool {
	if len(matches) == 0 {
		return false
	}
	top := matches[0]
	return top.HasScore() && top.Score >= o.config.RelevanceThreshold
}

func (o *Orchestrator) embed(ctx context.Context, query string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()

	vectors, err := o.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 text", len(vectors))
	}
	return vectors[0], nil
}

func (o *Orchestrator) retrieve(ctx context.Context, index string, vector []float32) ([]models.Match, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()
	return o.retriever.Query(ctx, index, vector, o.config.TopK)
}

func (o *Orchestrator) answer(ctx context.Context, persona models.Persona, plan []string,
	matches []models.Match, query string) (executor.Answer, error) {
	var (
		gen    types.Generator
		genErr error
	)
	if o.generators != nil {
		forCtx, cancel := context.WithTimeout(ctx, o.config.Timeout)
		gen, genErr = o.generators.For(forCtx, persona.Model)
		cancel()
		if genErr != nil {
			log.Warn().Err(genErr).Str("model", persona.Model).Msg("generator unavailable")
		}
	}

	ex := executor.New(gen,
		executor.WithInstruction(persona.PromptTemplate),
		executor.WithTimeout(o.config.Timeout))
	answer, err := ex.Execute(ctx, plan, matches, query)
	if err != nil {
		return executor.Answer{}, err
	}
	if genErr != nil {
		answer.Notice = executor.RefinementFallback
	}
	return answer, nil
}

func (o *Orchestrator) record(sess *Session, turn *Turn) {
	sess.append(models.Message{
		Role:      models.RoleAssistant,
		Content:   turn.Answer,
		Citations: turn.Citations,
		CreatedAt: time.Now(),
	})
}
