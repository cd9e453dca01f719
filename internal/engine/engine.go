// Package engine runs one peer of a maze party. Everything that touches the
// session or the game state happens on the goroutine running Engine.Run:
// transport callbacks, contacts from the scene, timers and UI calls are all
// queued onto its inbox.
package engine

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"mazeparty/internal/broadcast"
	"mazeparty/internal/events"
	"mazeparty/internal/gamecode"
	"mazeparty/internal/gamelogic"
	"mazeparty/internal/gamestate"
	"mazeparty/internal/level"
	"mazeparty/internal/logger"
	"mazeparty/internal/metrics"
	"mazeparty/internal/players"
	"mazeparty/internal/powerup"
	"mazeparty/internal/reconcile"
	"mazeparty/internal/session"
	"mazeparty/internal/storage"
	"mazeparty/internal/transport"
)

var ErrStopped = errors.New("engine stopped")

const inboxSize = 256

// BuiltinLevels is how many generated levels a game has by default.
const BuiltinLevels = 5

type Options struct {
	Session       session.Config
	Rules         gamelogic.Config
	CodeTTL       time.Duration
	TickInterval  time.Duration // session upkeep and elapsed time
	SyncInterval  time.Duration // host state broadcasts during play
	SweepInterval time.Duration // expired game codes
}

func DefaultOptions() Options {
	return Options{
		Session:       session.DefaultConfig(),
		Rules:         gamelogic.DefaultConfig(),
		CodeTTL:       gamecode.DefaultTTL,
		TickInterval:  100 * time.Millisecond,
		SyncInterval:  2 * time.Second,
		SweepInterval: time.Minute,
	}
}

type Deps struct {
	Transport transport.Transport
	Levels    level.Source  // BuiltinLevels generated levels when nil
	Store     storage.Store // in-memory when nil
	Metrics   *metrics.Metrics
	Physics   gamelogic.Physics
	Clock     func() time.Time
	Rand      *rand.Rand
}

type Engine struct {
	opts  Options
	clock func() time.Time

	inbox chan func()
	done  chan struct{}

	bus *events.Bus
	hub *broadcast.Broadcaster

	store  storage.Store
	scores chan storage.HighScore

	codes    *gamecode.Registry
	roster   *players.Store
	state    *gamestate.State
	powerups *powerup.Tracker
	auth     *gamelogic.Authority
	contacts *gamelogic.ContactHandler
	rec      *reconcile.Reconciler
	sess     *session.Session

	lastTick time.Time
	lastSync time.Time
	recorded bool // high score of the current game written
}

func New(opts Options, deps Deps) *Engine {
	if opts.TickInterval <= 0 {
		opts.TickInterval = 100 * time.Millisecond
	}
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = 2 * time.Second
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	if opts.CodeTTL <= 0 {
		opts.CodeTTL = gamecode.DefaultTTL
	}
	if opts.Rules.TeamLives <= 0 {
		opts.Rules = gamelogic.DefaultConfig()
	}
	if deps.Levels == nil {
		deps.Levels = level.Builtin(BuiltinLevels)
	}
	if deps.Store == nil {
		deps.Store = storage.NewMemory()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	e := &Engine{
		opts:     opts,
		clock:    deps.Clock,
		inbox:    make(chan func(), inboxSize),
		done:     make(chan struct{}),
		bus:      events.NewBus(),
		store:    deps.Store,
		scores:   make(chan storage.HighScore, 16),
		codes:    gamecode.NewRegistry(opts.CodeTTL),
		roster:   players.NewStore(),
		state:    gamestate.New(),
		powerups: powerup.NewTracker(),
	}
	e.hub = broadcast.NewBroadcaster(e.bus)

	self := deps.Transport.LocalID()
	e.auth = gamelogic.NewAuthority(opts.Rules, e.state, e.roster, deps.Levels, e.powerups)
	e.contacts = gamelogic.NewContactHandler(self, e.roster, e.state, e.auth, gamelogic.SubmitFunc(e.submit))
	e.contacts.SetClock(e.clock)
	e.rec = reconcile.New(reconcile.Deps{
		Self:      self,
		State:     e.state,
		Roster:    e.roster,
		PowerUps:  e.powerups,
		Authority: e.auth,
		Contacts:  e.contacts,
		Physics:   deps.Physics,
		Scheduler: timerScheduler{post: e.post},
		Bus:       e.bus,
		Clock:     e.clock,
	})
	e.sess = session.New(opts.Session, session.Deps{
		Transport: deps.Transport,
		Codes:     e.codes,
		Roster:    e.roster,
		Metrics:   deps.Metrics,
		Clock:     e.clock,
		Post:      e.post,
		Rand:      deps.Rand,
	}, session.Hooks{
		StateChanged:  e.onTransition,
		Message:       e.onMessage,
		RosterChanged: e.onRoster,
		Snapshot:      e.rec.Snapshot,
		Failure:       e.onFailure,
		Fatal:         e.onFatal,
	})
	return e
}

// Run processes the inbox until ctx is done. It must be called exactly once;
// the engine cannot be restarted.
func (e *Engine) Run(ctx context.Context) error {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		scoreWriter(e.store, e.scores)
	}()
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		e.codes.Run(ctx, e.opts.SweepInterval, func(expired []string) {
			logger.Debug("[Engine] Swept %d expired game codes", len(expired))
		})
	}()

	ticker := time.NewTicker(e.opts.TickInterval)
	defer ticker.Stop()
	e.lastTick = e.clock()

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			close(e.done)
			close(e.scores)
			<-writerDone
			<-sweepDone
			e.bus.Close()
			return ctx.Err()
		case fn := <-e.inbox:
			fn()
		case <-ticker.C:
			e.tick(e.clock())
		}
	}
}

// post queues fn for the engine goroutine. It is safe from any goroutine and
// gives up once the engine stopped.
func (e *Engine) post(fn func()) {
	select {
	case e.inbox <- fn:
	case <-e.done:
	}
}

// do runs fn on the engine goroutine and waits for its result.
func (e *Engine) do(fn func() error) error {
	errc := make(chan error, 1)
	select {
	case e.inbox <- func() { errc <- fn() }:
	case <-e.done:
		return ErrStopped
	}
	select {
	case err := <-errc:
		return err
	case <-e.done:
		return ErrStopped
	}
}

func (e *Engine) tick(now time.Time) {
	e.sess.Tick(now)

	elapsed := now.Sub(e.lastTick)
	e.lastTick = now
	if e.state.Phase() == gamestate.PhasePlaying {
		e.state.Tick(elapsed)
	}
	e.rec.ExpirePowerUps()
	if n := e.contacts.Expire(now); n > 0 {
		logger.Debug("[Engine] Released %d unconfirmed reports", n)
	}

	if e.sess.IsHost() && e.sess.State() == session.GameInProgress && now.Sub(e.lastSync) >= e.opts.SyncInterval {
		e.lastSync = now
		e.broadcastState()
	}
}

func (e *Engine) shutdown() {
	if err := e.sess.Disconnect("shutting down"); err != nil {
		logger.Error("[Engine] Disconnect: %v", err)
	}
}
