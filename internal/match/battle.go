package match

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"robotarena/server/internal/arena"
	"robotarena/server/internal/events"
	"robotarena/server/internal/logging"
	"robotarena/server/internal/scoring"
)

var (
	// ErrBattleEnded is returned when a battle is ticked after its last round.
	ErrBattleEnded = errors.New("battle already ended")
	// ErrNoRobots is returned when a battle is created without combatants.
	ErrNoRobots = errors.New("battle needs at least one robot")
	// ErrInvalidRounds is returned when the number of rounds is not positive.
	ErrInvalidRounds = errors.New("number of rounds must be positive")
)

// Phase is the position of a battle in its round state machine.
type Phase int

const (
	PhaseWaitingRoundStart Phase = iota
	PhaseRoundActive
	PhaseRoundEnded
	PhaseBattleEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseWaitingRoundStart:
		return "waiting_round_start"
	case PhaseRoundActive:
		return "round_active"
	case PhaseRoundEnded:
		return "round_ended"
	case PhaseBattleEnded:
		return "battle_ended"
	default:
		return "unknown"
	}
}

// Observer receives the picture and the telemetry of every resolved turn.
type Observer interface {
	ObserveTurn(snapshot arena.Snapshot, records []events.Record)
}

// ObserverFunc adapts a function into an Observer.
type ObserverFunc func(snapshot arena.Snapshot, records []events.Record)

// ObserveTurn calls f.
func (f ObserverFunc) ObserveTurn(snapshot arena.Snapshot, records []events.Record) {
	if f != nil {
		f(snapshot, records)
	}
}

// Battle runs a fixed number of rounds between the same robots in one World.
type Battle struct {
	mu sync.RWMutex

	id        string
	world     *arena.World
	robots    []*arena.Robot
	rounds    int
	round     int
	phase     Phase
	rng       *rand.Rand
	stream    *events.Stream
	observers []Observer
	logger    *logging.Logger

	snapshot arena.Snapshot
	started  time.Time
	now      func() time.Time
}

// BattleOption configures optional Battle behaviour at construction time.
type BattleOption func(*Battle)

// WithRand supplies the random source used for robot placement.
func WithRand(rng *rand.Rand) BattleOption {
	return func(b *Battle) {
		if rng != nil {
			b.rng = rng
		}
	}
}

// WithSeed seeds a private random source for robot placement.
func WithSeed(seed int64) BattleOption {
	return func(b *Battle) {
		b.rng = rand.New(rand.NewSource(seed))
	}
}

// WithRounds overrides the number of rounds to fight.
func WithRounds(rounds int) BattleOption {
	return func(b *Battle) {
		b.rounds = rounds
	}
}

// WithBattleID labels the battle in logs and telemetry.
func WithBattleID(id string) BattleOption {
	return func(b *Battle) {
		b.id = id
	}
}

// WithLogger routes battle diagnostics through logger.
func WithLogger(logger *logging.Logger) BattleOption {
	return func(b *Battle) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithStream publishes every telemetry record to stream.
func WithStream(stream *events.Stream) BattleOption {
	return func(b *Battle) {
		b.stream = stream
	}
}

// WithObserver registers an observer notified after every turn.
func WithObserver(observer Observer) BattleOption {
	return func(b *Battle) {
		if observer != nil {
			b.observers = append(b.observers, observer)
		}
	}
}

// WithBattleClock injects a deterministic clock used for duration logging.
func WithBattleClock(clock func() time.Time) BattleOption {
	return func(b *Battle) {
		if clock != nil {
			b.now = clock
		}
	}
}

// NewBattle prepares a battle between robots in world. Robots keep their order: it decides
// placement order within a round and the order robots act within a turn.
func NewBattle(world *arena.World, robots []*arena.Robot, opts ...BattleOption) (*Battle, error) {
	if world == nil {
		return nil, fmt.Errorf("battle: world is nil")
	}
	if len(robots) == 0 {
		return nil, ErrNoRobots
	}
	seen := make(map[string]struct{}, len(robots))
	for _, r := range robots {
		if r == nil {
			return nil, arena.ErrNilRobot
		}
		if _, dup := seen[r.Name()]; dup {
			return nil, fmt.Errorf("%w: %s", arena.ErrDuplicateRobot, r.Name())
		}
		seen[r.Name()] = struct{}{}
	}

	b := &Battle{
		world:  world,
		robots: append([]*arena.Robot(nil), robots...),
		rounds: 1,
		phase:  PhaseWaitingRoundStart,
		now:    time.Now,
	}
	//1.- Apply caller options before falling back to defaults for the unset collaborators.
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	if b.rounds <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRounds, b.rounds)
	}
	if b.rng == nil {
		b.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if b.logger == nil {
		b.logger = logging.L()
	}
	if b.id != "" {
		b.logger = b.logger.With(logging.String("battle_id", b.id))
	}
	b.snapshot = world.Snapshot()
	return b, nil
}

// ID returns the battle label.
func (b *Battle) ID() string { return b.id }

// World returns the arena the battle is fought in.
func (b *Battle) World() *arena.World { return b.world }

// Robots returns the combatants in battle order.
func (b *Battle) Robots() []*arena.Robot {
	return append([]*arena.Robot(nil), b.robots...)
}

// Rounds returns the number of rounds to fight.
func (b *Battle) Rounds() int { return b.rounds }

// Round returns the 1-based number of the current round, 0 before the first turn.
func (b *Battle) Round() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.round
}

// Phase returns the position in the round state machine.
func (b *Battle) Phase() Phase {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.phase
}

// Ended reports whether the last round is over.
func (b *Battle) Ended() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.phase == PhaseBattleEnded
}

// Snapshot returns the picture of the last resolved turn. The final turn of a round
// remains visible after the world has been cleared for the next round.
func (b *Battle) Snapshot() arena.Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshot
}

// Tick advances the battle by one turn, starting and ending rounds as needed.
func (b *Battle) Tick() error {
	if b == nil {
		return ErrBattleEnded
	}
	b.mu.Lock()
	if b.phase == PhaseBattleEnded {
		b.mu.Unlock()
		return ErrBattleEnded
	}

	//1.- A world without turns is waiting for the next round to be set up.
	if b.world.Turn() == 0 {
		b.round++
		b.setupRound()
	}

	b.world.Tick()
	//2.- Capture the turn before the destroyed robots leave the world.
	b.snapshot = b.world.Snapshot()
	b.handleDeadRobots()

	if len(b.world.Robots()) <= 1 {
		b.endRound()
		if b.round >= b.rounds {
			b.endBattle()
		}
	}

	records := b.world.DrainRecords()
	snapshot := b.snapshot
	b.mu.Unlock()

	//3.- Telemetry leaves the battle outside the lock so observers may query it.
	b.publish(snapshot, records)
	return nil
}

// Run ticks the battle until it ends.
func (b *Battle) Run() {
	for b.Tick() == nil {
	}
}

func (b *Battle) setupRound() {
	if b.round == 1 {
		b.started = b.now()
	}
	b.world.SetRound(b.round)
	//1.- Re-arm every robot first so the placement only sees robots of this round.
	for _, r := range b.robots {
		r.Reset(len(b.robots))
	}
	for _, r := range b.robots {
		placeRobot(b.world, r, b.rng, b.logger)
		if err := b.world.AddRobot(r); err != nil {
			b.logger.Error("robot not added to round", logging.String("robot", r.Name()), logging.Error(err))
		}
	}
	b.phase = PhaseRoundActive
	b.world.Record(events.Record{Kind: events.RecordRoundStarted, Value: float64(len(b.robots))})
	b.logger.Info("round started", logging.Int("round", b.round), logging.Int("robots", len(b.robots)))
}

// handleDeadRobots scores placements and survival for the robots destroyed this turn and
// removes them from the world.
func (b *Battle) handleDeadRobots() {
	var dead, alive []*arena.Robot
	for _, r := range b.world.Robots() {
		if r.Dead() {
			dead = append(dead, r)
		} else {
			alive = append(alive, r)
		}
	}
	if len(dead) == 0 {
		return
	}
	for _, r := range dead {
		r.Statistics().ScoreRobotDeath(len(alive), r.Winner())
		for _, survivor := range alive {
			survivor.Statistics().ScoreSurvival()
		}
		b.logger.Debug("robot destroyed", logging.String("robot", r.Name()),
			logging.Int("round", b.round), logging.Int("turn", b.world.Turn()), logging.Int("enemies_remaining", len(alive)))
	}
	b.world.ClearDeadRobots()
}

func (b *Battle) endRound() {
	winner := ""
	for _, r := range b.world.Robots() {
		if r.Alive() && !r.Winner() {
			r.Statistics().ScoreLastSurvivor()
			r.SetWinner(true)
			winner = r.Name()
		}
	}
	for _, r := range b.robots {
		r.AddEvent(events.RoundEnded{Round: b.round, Winner: r.Winner()})
		r.ProcessEvents()
	}
	for _, r := range b.robots {
		fields := append([]logging.Field{logging.Int("round", b.round)}, r.Statistics().LoggingFields()...)
		r.Statistics().GenerateTotals()
		b.logger.Debug("round score", fields...)
	}

	b.world.Record(events.Record{Kind: events.RecordRoundEnded, Robot: winner, Value: float64(b.world.Turn())})
	b.logger.Info("round ended", logging.Int("round", b.round), logging.Int("turns", b.world.Turn()), logging.String("winner", winner))
	b.world.Reset()
	b.phase = PhaseRoundEnded
}

func (b *Battle) endBattle() {
	for _, r := range b.robots {
		r.AddEvent(events.BattleEnded{Rounds: b.rounds})
		r.ProcessEvents()
	}
	b.world.Record(events.Record{Kind: events.RecordBattleEnded, Value: float64(b.rounds)})
	b.phase = PhaseBattleEnded
	b.logger.Info("battle ended", logging.Int("rounds", b.rounds), logging.Duration("elapsed", b.now().Sub(b.started)))
}

func (b *Battle) publish(snapshot arena.Snapshot, records []events.Record) {
	if b.stream != nil && len(records) > 0 {
		if _, err := b.stream.PublishAll(records); err != nil {
			b.logger.Warn("telemetry not published", logging.Error(err))
		}
	}
	for _, observer := range b.observers {
		observer.ObserveTurn(snapshot, records)
	}
}

// Results returns the ranked final results of every robot.
func (b *Battle) Results() []scoring.Results {
	b.mu.RLock()
	defer b.mu.RUnlock()
	results := make([]scoring.Results, 0, len(b.robots))
	for _, r := range b.robots {
		results = append(results, r.Statistics().FinalResults())
	}
	return scoring.Rank(results)
}
