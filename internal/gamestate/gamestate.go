package gamestate

import (
	"sort"
	"sync"
	"time"

	"mazeparty/internal/geom"
)

type Phase string

const (
	PhaseLobby      = Phase("lobby")
	PhasePlaying    = Phase("playing")
	PhasePaused     = Phase("paused")
	PhaseRespawning = Phase("respawning")
	PhaseGameOver   = Phase("game_over")
	PhaseCompleted  = Phase("completed")
)

// Active reports whether gameplay events may change the state in p.
func (p Phase) Active() bool {
	return p == PhasePlaying || p == PhaseRespawning
}

// Over reports whether the game has ended.
func (p Phase) Over() bool {
	return p == PhaseGameOver || p == PhaseCompleted
}

// Snapshot is a copy of the shared state.
type Snapshot struct {
	Level          int
	TeamScore      int
	TeamLives      int
	Checkpoints    []string
	LastCheckpoint geom.Vec
	Phase          Phase
	Elapsed        time.Duration
	ScrollOffset   geom.Vec
}

// State is the shared game state. The host's copy is authoritative; members
// only Restore what the host sends.
//
// Within a level the checkpoint set only grows and team lives only drop.
// AdvanceLevel clears checkpoints; only Start and Restart reset lives.
type State struct {
	mu             sync.Mutex
	level          int
	teamScore      int
	teamLives      int
	checkpoints    map[string]struct{}
	lastCheckpoint geom.Vec
	phase          Phase
	pausedFrom     Phase
	elapsed        time.Duration
	scroll         geom.Vec
	finished       map[string]struct{}
}

func New() *State {
	return &State{
		phase:       PhaseLobby,
		checkpoints: make(map[string]struct{}),
		finished:    make(map[string]struct{}),
	}
}

// Start begins play at level with a fresh life pool.
func (s *State) Start(level, lives int, spawn geom.Vec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.level = level
	s.teamScore = 0
	s.teamLives = lives
	s.checkpoints = make(map[string]struct{})
	s.finished = make(map[string]struct{})
	s.lastCheckpoint = spawn
	s.phase = PhasePlaying
	s.pausedFrom = ""
	s.elapsed = 0
	s.scroll = geom.Vec{}
}

// Restart is an explicit restart; it is the only way lives go back up.
func (s *State) Restart(level, lives int, spawn geom.Vec) {
	s.Start(level, lives, spawn)
}

// CompleteCheckpoint adds id to the completed set and moves the respawn point.
// It returns false, changing nothing, when id is already completed.
func (s *State) CompleteCheckpoint(id string, pos geom.Vec) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, done := s.checkpoints[id]; done {
		return false
	}
	s.checkpoints[id] = struct{}{}
	s.lastCheckpoint = pos
	return true
}

func (s *State) IsCompleted(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, done := s.checkpoints[id]
	return done
}

func (s *State) Checkpoints() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpointList()
}

func (s *State) checkpointList() []string {
	ids := make([]string, 0, len(s.checkpoints))
	for id := range s.checkpoints {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LoseLife removes exactly one team life. The phase becomes game over when
// the pool hits zero. ok is false when there was no life to lose.
func (s *State) LoseLife() (lives int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.teamLives <= 0 {
		return 0, false
	}
	s.teamLives--
	if s.teamLives == 0 {
		s.phase = PhaseGameOver
	}
	return s.teamLives, true
}

// SetLives mirrors the host's life count on a member.
func (s *State) SetLives(lives int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teamLives = max(lives, 0)
	if s.teamLives == 0 {
		s.phase = PhaseGameOver
	}
}

func (s *State) AddScore(points int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teamScore += points
	return s.teamScore
}

func (s *State) SetScore(score int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teamScore = score
}

// AdvanceLevel moves to level next: checkpoints cleared, scroll zeroed, bonus
// added, respawn point moved to spawn.
func (s *State) AdvanceLevel(next, bonus int, spawn geom.Vec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.level = next
	s.checkpoints = make(map[string]struct{})
	s.finished = make(map[string]struct{})
	s.scroll = geom.Vec{}
	s.teamScore += bonus
	s.lastCheckpoint = spawn
	s.phase = PhasePlaying
}

// MarkFinished records that playerID touched the finish. It returns false on
// repeats.
func (s *State) MarkFinished(playerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.finished[playerID]; ok {
		return false
	}
	s.finished[playerID] = struct{}{}
	return true
}

// Finished reports whether every id in alive has touched the finish.
func (s *State) Finished(alive []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(alive) == 0 {
		return false
	}
	for _, id := range alive {
		if _, ok := s.finished[id]; !ok {
			return false
		}
	}
	return true
}

// ClearFinished forgets finish contacts, used when everyone respawns.
func (s *State) ClearFinished() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = make(map[string]struct{})
}

func (s *State) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *State) SetPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = p
}

// Pause freezes an active game. It returns false if the game was not active.
func (s *State) Pause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.phase.Active() {
		return false
	}
	s.pausedFrom = s.phase
	s.phase = PhasePaused
	return true
}

func (s *State) Resume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhasePaused {
		return false
	}
	s.phase = s.pausedFrom
	if s.phase == "" {
		s.phase = PhasePlaying
	}
	s.pausedFrom = ""
	return true
}

// End finishes the game, successfully or not.
func (s *State) End(victory bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if victory {
		s.phase = PhaseCompleted
	} else {
		s.phase = PhaseGameOver
	}
}

// Scroll shifts the shared map offset by delta and returns the new offset.
func (s *State) Scroll(delta geom.Vec) geom.Vec {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scroll = s.scroll.Add(delta)
	return s.scroll
}

func (s *State) SetScroll(offset geom.Vec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scroll = offset
}

// Tick adds play time while the game is active.
func (s *State) Tick(elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase.Active() {
		s.elapsed += elapsed
	}
}

func (s *State) Level() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

func (s *State) TeamScore() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.teamScore
}

func (s *State) TeamLives() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.teamLives
}

func (s *State) LastCheckpoint() geom.Vec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCheckpoint
}

func (s *State) ScrollOffset() geom.Vec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scroll
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Level:          s.level,
		TeamScore:      s.teamScore,
		TeamLives:      s.teamLives,
		Checkpoints:    s.checkpointList(),
		LastCheckpoint: s.lastCheckpoint,
		Phase:          s.phase,
		Elapsed:        s.elapsed,
		ScrollOffset:   s.scroll,
	}
}

// Restore overwrites the state with a host snapshot.
func (s *State) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.level = snap.Level
	s.teamScore = snap.TeamScore
	s.teamLives = snap.TeamLives
	s.checkpoints = make(map[string]struct{}, len(snap.Checkpoints))
	for _, id := range snap.Checkpoints {
		s.checkpoints[id] = struct{}{}
	}
	s.lastCheckpoint = snap.LastCheckpoint
	s.phase = snap.Phase
	s.elapsed = snap.Elapsed
	s.scroll = snap.ScrollOffset
}
