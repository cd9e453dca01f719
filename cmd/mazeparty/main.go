package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"mazeparty/internal/config"
	"mazeparty/internal/engine"
	"mazeparty/internal/events"
	"mazeparty/internal/gamecode"
	"mazeparty/internal/gamelogic"
	"mazeparty/internal/logger"
	"mazeparty/internal/metrics"
	"mazeparty/internal/server"
	"mazeparty/internal/session"
	"mazeparty/internal/storage"
	"mazeparty/internal/transport/wsnet"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err.Error())
	}
}

func run() error {
	cfg := config.Load()

	name := flag.String("name", cfg.PlayerName, "display name")
	host := flag.Bool("host", false, "host a new game")
	join := flag.String("join", "", "join the game with this code")
	qrFile := flag.String("qr", "", "write the game code as a QR PNG to this file (host only)")
	httpAddr := flag.String("http", "", "serve the local control API on this address, e.g. 127.0.0.1:8080")
	autostart := flag.Int("autostart", 0, "host: start once this many players are ready (0 waits for the API)")
	flag.Parse()

	logger.SetDebug(cfg.Debug)
	if !*host && *join == "" {
		flag.Usage()
		return errors.New("one of -host or -join is required")
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	var store storage.Store = storage.NewMemory()
	var pinger server.Pinger
	if cfg.DatabaseURL != "" {
		database, err := storage.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Printf("[DB] Failed to connect: %v (running without database)\n", err)
		} else {
			defer database.Close()
			if err := database.Migrate(); err != nil {
				log.Printf("[DB] Migration failed: %v\n", err)
			}
			store, pinger = database, database
			log.Println("[DB] Database connected and migrations applied")
		}
	} else {
		log.Println("[DB] DATABASE_URL not set, running without database")
	}

	tr := wsnet.New(wsnet.Options{
		ID:         peerID(store),
		ListenAddr: cfg.ListenAddr,
		Group:      cfg.MulticastAddr,
		Binary:     cfg.Codec().Name() == "msgpack",
		Gatherer:   reg,
	})
	defer tr.Close()

	opts := engine.DefaultOptions()
	opts.Session = cfg.Session()
	opts.Rules = cfg.Rules()
	opts.CodeTTL = cfg.CodeTTL
	eng := engine.New(opts, engine.Deps{
		Transport: tr,
		Store:     store,
		Metrics:   m,
		Physics:   gamelogic.NopPhysics{},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runErr := make(chan error, 1)
	go func() { runErr <- eng.Run(ctx) }()

	sub := eng.Subscribe()
	w := watcher{eng: eng, host: *host, autostart: *autostart, stayOnDisconnect: *httpAddr != "", stop: stop}
	go w.run(sub)

	if *httpAddr != "" {
		api := &server.Server{Engine: eng, Scores: store, DB: pinger}
		srv, serveErr := api.ListenAndServe(*httpAddr)
		defer srv.Close()
		go func() {
			if err := <-serveErr; err != nil {
				log.Printf("[Server] %v\n", err)
			}
		}()
	}

	if *host {
		code, err := eng.CreateSession(*name)
		if err != nil {
			stop()
			<-runErr
			return fmt.Errorf("hosting: %w", err)
		}
		fmt.Printf("Hosting game %s (%s)\n", code, gamecode.JoinURI(code))
		if *qrFile != "" {
			if err := gamecode.WriteQRFile(code, 256, *qrFile); err != nil {
				log.Printf("[QR] %v\n", err)
			} else {
				fmt.Printf("QR code written to %s\n", *qrFile)
			}
		}
	} else {
		if err := eng.JoinSession(*name, *join); err != nil {
			stop()
			<-runErr
			return fmt.Errorf("joining %q: %w", *join, err)
		}
		fmt.Printf("Looking for game %s...\n", gamecode.Normalize(*join))
	}

	<-ctx.Done()
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	printScores(store)
	return nil
}

// peerID keeps this installation's peer id stable across runs, so a restarted
// member rejoins as the same player.
func peerID(kv storage.KV) string {
	if id, err := kv.Get(storage.KeyPlayerID); err == nil && id != "" {
		return id
	}
	id := uuid.NewString()
	if err := kv.Set(storage.KeyPlayerID, id); err != nil {
		log.Printf("[DB] Saving player id: %v\n", err)
	}
	return id
}

// watcher prints engine events, readies a member once connected and, with
// autostart, starts the game for the host. A fatal session error stops the
// program, and so does losing the game unless the local API is serving. A
// code nobody advertises is reported with the codes that were seen, e.g.
// "game K7M2QZ not found (did you mean K7M2QX?)".
type watcher struct {
	eng              *engine.Engine
	host             bool
	autostart        int
	stayOnDisconnect bool
	stop             func()

	starting bool
}

func (w *watcher) run(sub chan events.Event) {
	for ev := range sub {
		switch ev := ev.(type) {
		case events.SessionChanged:
			fmt.Printf("[%s] %s %s\n", ev.State, ev.Status, ev.Reason)
			switch ev.State {
			case session.Connected.String():
				if !w.host {
					if err := w.eng.SetReady(true); err != nil {
						log.Printf("[Engine] Ready: %v\n", err)
					}
				}
			case session.Hosting.String(), session.GameEnded.String():
				w.starting = false
			case session.NotConnected.String(), session.HostDisconnected.String():
				if ev.Previous != "" && !w.stayOnDisconnect {
					w.stop()
				}
			}
		case events.RosterChanged:
			ready := 0
			for _, p := range ev.Players {
				fmt.Printf("  %-16s %-10s ready=%t\n", p.Name, p.Role, p.Ready)
				if p.Ready {
					ready++
				}
			}
			if w.host && !w.starting && w.autostart > 0 && ready >= w.autostart && ready == len(ev.Players) {
				w.starting = true
				go func() {
					if err := w.eng.StartGame(); err != nil {
						log.Printf("[Engine] Start: %v\n", err)
					}
				}()
			}
		case events.StateChanged:
			s := ev.Snapshot
			fmt.Printf("level %d  score %d  lives %d  %s  %s\n", s.Level, s.TeamScore, s.TeamLives, s.Phase, s.Elapsed.Round(time.Second))
		case events.Feedback:
			fmt.Printf("* %s %s\n", ev.Cue, ev.PlayerID)
		case events.ChatReceived:
			fmt.Printf("<%s> %s\n", ev.Name, ev.Text)
		case events.Fatal:
			fmt.Printf("Session ended: %s\n", ev.Reason)
			w.stop()
		}
	}
}

func printScores(book storage.ScoreBook) {
	scores, err := book.TopScores(5)
	if err != nil || len(scores) == 0 {
		return
	}
	fmt.Println("High scores:")
	for i, h := range scores {
		fmt.Printf("%d. %6d  level %d  %s\n", i+1, h.Score, h.Level, h.Players)
	}
}
