package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/xhad/multibot/internal/models"
	"github.com/xhad/multibot/pkg/loader"
)

const debugMessages = 10

type personaView struct {
	models.Persona
	Active bool `json:"active"`
}

type queryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

type selectPersonaRequest struct {
	Key string `json:"key"`
}

type renameRequest struct {
	Name string `json:"name"`
}

type debugResponse struct {
	Persona   string           `json:"persona"`
	IndexName string           `json:"index_name"`
	SessionID string           `json:"session_id"`
	Messages  []models.Message `json:"messages"`
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

// sessionID maps the "active" path segment to the active session.
func sessionID(r *http.Request) string {
	id := r.PathValue("id")
	if id == "active" {
		return ""
	}
	return id
}

func (s *Server) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	registry := s.bot.Registry()
	active := registry.ActivePersona().Key

	var out []personaView
	for _, p := range registry.List() {
		out = append(out, personaView{Persona: p, Active: p.Key == active})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleActivePersona(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bot.Registry().ActivePersona())
}

func (s *Server) handleSelectPersona(w http.ResponseWriter, r *http.Request) {
	var req selectPersonaRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.bot.Registry().SelectPersona(req.Key); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.bot.Registry().ActivePersona())
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	s.query(w, r, r.PathValue("key"))
}

func (s *Server) handleQueryActive(w http.ResponseWriter, r *http.Request) {
	s.query(w, r, s.bot.Registry().ActivePersona().Key)
}

func (s *Server) query(w http.ResponseWriter, r *http.Request, persona string) {
	var req queryRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	turn, err := s.bot.Ask(r.Context(), persona, req.SessionID, req.Query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	persona, err := s.bot.Registry().Get(r.PathValue("key"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	items, err := loader.Parse(http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if !errors.As(err, &tooLarge) {
			err = fmt.Errorf("%w: %v", errBadRequest, err)
		}
		writeError(w, r, err)
		return
	}

	report := s.loader.Load(r.Context(), persona.IndexName, items)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	persona, err := s.bot.Registry().Get(r.PathValue("key"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	sessions := s.bot.Sessions()
	active, err := sessions.ActiveSession(persona.Key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	msgs, err := sessions.Transcript(persona.Key, active.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(msgs) > debugMessages {
		msgs = msgs[len(msgs)-debugMessages:]
	}
	writeJSON(w, http.StatusOK, debugResponse{
		Persona:   persona.Key,
		IndexName: persona.IndexName,
		SessionID: active.ID,
		Messages:  msgs,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.bot.Sessions().ListSessions(r.PathValue("key"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.bot.Sessions().CreateSession(r.PathValue("key"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleSwitchSession(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := s.bot.Sessions().SwitchSession(key, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	info, err := s.bot.Sessions().ActiveSession(key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.bot.Sessions().RenameSession(r.PathValue("key"), sessionID(r), req.Name); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.bot.Sessions().DeleteSession(r.PathValue("key"), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.bot.Sessions().Transcript(r.PathValue("key"), sessionID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	if err := s.bot.Sessions().ClearSession(r.PathValue("key"), sessionID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

