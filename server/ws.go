package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/xhad/multibot/pkg/bot"
	"github.com/xhad/multibot/pkg/loader"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	msgQuery    = "query"
	msgPlan     = "plan"
	msgResponse = "response"
	msgDeclined = "declined"
	msgStatus   = "status"
	msgProgress = "progress"
	msgError    = "error"
)

// Message is the websocket envelope in both directions. Persona defaults to
// the active persona and SessionID to that persona's active session.
type Message struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	Persona   string `json:"persona,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Data      any    `json:"data,omitempty"`
}

type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(msg); err != nil {
		log.Warn().Err(err).Msg("error sending message")
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ws := &wsConn{conn: conn}
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("error reading message")
			}
			cancel()
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			ws.send(Message{Type: msgError, Content: fmt.Sprintf("invalid message: %v", err)})
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleMessage(ctx, ws, msg)
		}()
	}
}

func (s *Server) handleMessage(ctx context.Context, ws *wsConn, msg Message) {
	if msg.Type != "" && msg.Type != msgQuery {
		ws.send(Message{Type: msgError, Content: fmt.Sprintf("unknown message type %q", msg.Type)})
		return
	}

	persona := msg.Persona
	if persona == "" {
		persona = s.bot.Registry().ActivePersona().Key
	}
	query := msg.Content

	if url := loader.FindURL(query); url != "" {
		if !s.ingestURL(ctx, ws, persona, url) {
			return
		}
		// Only continue with chat if query contains more than just the URL
		if strings.TrimSpace(query) == url {
			return
		}
	}

	turn, err := s.bot.Ask(ctx, persona, msg.SessionID, query)
	if err != nil {
		ws.send(Message{Type: msgError, Content: err.Error(), Persona: persona, SessionID: msg.SessionID})
		return
	}

	ws.send(Message{Type: msgPlan, Content: strings.Join(turn.Plan, "\n"), Persona: persona, SessionID: turn.SessionID, Data: turn.Plan})

	reply := Message{Type: msgResponse, Content: turn.Answer, Persona: persona, SessionID: turn.SessionID, Data: turn}
	if turn.Outcome != bot.OutcomeAnswered {
		reply.Type = msgDeclined
	}
	ws.send(reply)
}

func (s *Server) ingestURL(ctx context.Context, ws *wsConn, persona, url string) bool {
	p, err := s.bot.Registry().Get(persona)
	if err != nil {
		ws.send(Message{Type: msgError, Content: err.Error()})
		return false
	}

	ws.send(Message{Type: msgStatus, Content: fmt.Sprintf("Processing URL: %s", url), Persona: persona})

	var scraped int32
	sc := s.config.Scraper
	sc.OnProgress = func(string) {
		n := atomic.AddInt32(&scraped, 1)
		ws.send(Message{Type: msgProgress, Content: fmt.Sprintf("Scraped %d pages", n), Persona: persona})
	}

	report, err := s.loader.LoadURL(ctx, p.IndexName, url, sc, s.config.Chunking)
	if err != nil {
		ws.send(Message{Type: msgError, Content: err.Error(), Persona: persona})
		return false
	}
	ws.send(Message{
		Type:    msgStatus,
		Content: fmt.Sprintf("Loaded %d/%d documents into %s", report.Succeeded, report.Total, p.IndexName),
		Persona: persona,
		Data:    report,
	})
	return true
}
