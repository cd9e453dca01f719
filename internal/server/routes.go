package server

import (
	"errors"
	"net/http"
	"time"

	"mazeparty/internal/events"
	"mazeparty/internal/gamestate"
	"mazeparty/internal/logger"
	"mazeparty/internal/players"
	"mazeparty/internal/session"
	"mazeparty/internal/storage"
)

// Controller is the part of the engine a local UI drives.
type Controller interface {
	CreateSession(name string) (string, error)
	JoinSession(name, code string) error
	SetReady(ready bool) error
	StartGame() error
	PauseGame() error
	ResumeGame() error
	RestartGame() error
	Leave() error
	SendChat(text string) error

	Info() session.Info
	SessionState() session.State
	Snapshot() gamestate.Snapshot
	Roster() []players.Player

	Subscribe(topics ...events.Topic) chan events.Event
	Unsubscribe(ch chan events.Event)
}

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping() error
}

type Server struct {
	Engine Controller
	Scores storage.ScoreBook
	DB     Pinger // nil if no database configured
}

func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /session/create", s.handleCreate)
	mux.HandleFunc("POST /session/join", s.handleJoin)
	mux.HandleFunc("POST /session/ready", s.handleReady)
	mux.HandleFunc("POST /session/leave", s.handleLeave)
	mux.HandleFunc("GET /session", s.handleSession)
	mux.HandleFunc("GET /session/qr.png", s.handleQR)
	mux.HandleFunc("POST /game/{action}", s.handleGame)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /scores", s.handleScores)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// ListenAndServe serves the local API until srv is shut down.
func (s *Server) ListenAndServe(addr string) (*http.Server, <-chan error) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("[Server] Listening on http://%s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	return srv, errc
}
