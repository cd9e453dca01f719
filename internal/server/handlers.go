package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"mazeparty/internal/events"
	"mazeparty/internal/gamecode"
	"mazeparty/internal/gamestate"
	"mazeparty/internal/logger"
	"mazeparty/internal/players"
	"mazeparty/internal/session"
)

const qrSize = 256

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("[Server] Encoding response: %v", err)
	}
}

// statusFor maps engine errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, gamecode.ErrInvalidCode):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotHost):
		return http.StatusForbidden
	case errors.Is(err, session.ErrBadState), errors.Is(err, session.ErrInvalidIntent):
		return http.StatusConflict
	case errors.Is(err, session.ErrCapacity), errors.Is(err, session.ErrInProgress):
		return http.StatusConflict
	case errors.Is(err, session.ErrConnection):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeErr(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	code, err := s.Engine.CreateSession(r.FormValue("name"))
	if err != nil {
		writeErr(w, err)
		return
	}
	logger.Info("[Server] Hosting %s", code)
	writeJSON(w, http.StatusCreated, map[string]string{"code": code, "join": gamecode.JoinURI(code)})
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	code := r.FormValue("code")
	if err := s.Engine.JoinSession(r.FormValue("name"), code); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": s.Engine.SessionState().Status()})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ready := r.FormValue("ready") != "wait"
	if err := s.Engine.SetReady(ready); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ready": ready})
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.Leave(); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sessionView struct {
	State  string             `json:"state"`
	Status string             `json:"status"`
	Info   session.Info       `json:"info"`
	Roster []players.Player   `json:"roster"`
	Game   gamestate.Snapshot `json:"game"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	st := s.Engine.SessionState()
	writeJSON(w, http.StatusOK, sessionView{
		State:  st.String(),
		Status: st.Status(),
		Info:   s.Engine.Info(),
		Roster: s.Engine.Roster(),
		Game:   s.Engine.Snapshot(),
	})
}

func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	info := s.Engine.Info()
	if !info.IsHost || info.Code == "" {
		http.Error(w, "Not hosting", http.StatusNotFound)
		return
	}
	png, err := gamecode.QRCode(info.Code, qrSize)
	if err != nil {
		logger.Error("[Server] QR for %s: %v", info.Code, err)
		http.Error(w, "Error rendering QR code", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := w.Write(png); err != nil {
		logger.Error("[Server] %v", err)
	}
}

func (s *Server) handleGame(w http.ResponseWriter, r *http.Request) {
	var err error
	switch action := r.PathValue("action"); action {
	case "start":
		err = s.Engine.StartGame()
	case "pause":
		err = s.Engine.PauseGame()
	case "resume":
		err = s.Engine.ResumeGame()
	case "restart":
		err = s.Engine.RestartGame()
	default:
		http.Error(w, "Unknown action "+action, http.StatusNotFound)
		return
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.SendChat(r.FormValue("text")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleScores(w http.ResponseWriter, r *http.Request) {
	if s.Scores == nil {
		http.Error(w, "Scores are not stored", http.StatusServiceUnavailable)
		return
	}
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, 100)
	}
	scores, err := s.Scores.TopScores(limit)
	if err != nil {
		logger.Error("[Server] Leaderboard error: %v", err)
		http.Error(w, "Error loading leaderboard", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

// handleEvents streams engine events as server-sent events named by topic.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var topics []events.Topic
	for _, t := range r.URL.Query()["topic"] {
		topics = append(topics, events.Topic(t))
	}
	ch := s.Engine.Subscribe(topics...)
	defer s.Engine.Unsubscribe(ch)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(eventBody(ev))
			if err != nil {
				logger.Error("[Server] Encoding %s event: %v", ev.Topic(), err)
				continue
			}
			fmt.Fprintf(w, "event: %s\n", ev.Topic())
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// eventBody replaces values that do not encode, such as errors.
func eventBody(ev events.Event) any {
	if f, ok := ev.(events.Fatal); ok {
		return map[string]string{"reason": f.Reason}
	}
	return ev
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if s.DB != nil {
		if err := s.DB.Ping(); err != nil {
			status = "db_error"
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": status, "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}
