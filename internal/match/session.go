package match

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	uuid "github.com/satori/go.uuid"
)

const (
	envBattleID  = "ARENA_BATTLE_ID"
	envMinRobots = "ARENA_MIN_ROBOTS"
	envMaxRobots = "ARENA_MAX_ROBOTS"

	// DefaultMinRobots is the smallest roster a battle starts with.
	DefaultMinRobots = 2
)

var (
	// ErrInvalidRobotName is returned when a join request omits the robot name.
	ErrInvalidRobotName = errors.New("robot name must not be empty")
	// ErrSessionFull indicates that the roster has reached the configured capacity limit.
	ErrSessionFull = errors.New("battle roster is full")
	// ErrRobotAlreadyJoined is returned when a robot name is registered twice.
	ErrRobotAlreadyJoined = errors.New("robot already joined")
	// ErrSessionLocked is returned when the roster changes after the battle started.
	ErrSessionLocked = errors.New("battle already started")
	// ErrInvalidCapacity is returned when capacity updates violate basic invariants.
	ErrInvalidCapacity = errors.New("invalid roster capacity configuration")
	// ErrNotReady is returned when a battle is started before enough robots joined.
	ErrNotReady = errors.New("not enough robots joined")
)

// Capacity expresses the configured roster limits for a battle.
type Capacity struct {
	MinRobots int `json:"min_robots"`
	MaxRobots int `json:"max_robots"`
}

// Entrant is a robot registered for the battle.
type Entrant struct {
	Name     string    `json:"name"`
	Bot      string    `json:"bot"`
	JoinedAt time.Time `json:"joined_at"`
}

// SessionSnapshot captures a stable view of the roster for observers.
type SessionSnapshot struct {
	BattleID string    `json:"battle_id"`
	Capacity Capacity  `json:"capacity"`
	Locked   bool      `json:"locked"`
	Entrants []Entrant `json:"entrants"`
}

// SessionOption configures optional Session behaviour at construction time.
type SessionOption func(*Session)

// Session gathers the roster of a battle before it starts and labels it with an identifier.
type Session struct {
	mu sync.RWMutex

	id        string
	capacity  Capacity
	entrants  []Entrant
	locked    bool
	now       func() time.Time
	envLookup func(string) string

	idConfigured  bool
	capConfigured bool
}

// WithSessionClock overrides the default wall-clock time source.
func WithSessionClock(clock func() time.Time) SessionOption {
	return func(s *Session) {
		//1.- Allow tests to inject a deterministic time source for reproducibility.
		if clock != nil {
			s.now = clock
		}
	}
}

// WithSessionEnvLookup injects a custom environment variable lookup mechanism.
func WithSessionEnvLookup(lookup func(string) string) SessionOption {
	return func(s *Session) {
		s.envLookup = lookup
	}
}

// WithSessionBattleID sets the identifier of the battle.
func WithSessionBattleID(id string) SessionOption {
	return func(s *Session) {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			return
		}
		s.id = trimmed
		s.idConfigured = true
	}
}

// WithSessionCapacity configures the roster limits explicitly, bypassing environment parsing.
func WithSessionCapacity(cap Capacity) SessionOption {
	return func(s *Session) {
		s.capacity = cap
		s.capConfigured = true
	}
}

// NewSession constructs a battle session using environment defaults when available.
func NewSession(opts ...SessionOption) (*Session, error) {
	session := &Session{
		capacity:  Capacity{MinRobots: DefaultMinRobots},
		now:       time.Now,
		envLookup: os.Getenv,
	}
	//1.- Apply any caller supplied functional options prior to reading the environment.
	for _, opt := range opts {
		if opt != nil {
			opt(session)
		}
	}
	//2.- Populate configuration from the environment when the caller did not override values.
	if err := session.applyEnvironment(); err != nil {
		return nil, err
	}
	//3.- Label the battle so replays and telemetry can be correlated.
	if strings.TrimSpace(session.id) == "" {
		session.id = uuid.NewV4().String()
	}
	if err := session.validateCapacity(session.capacity); err != nil {
		return nil, err
	}
	return session, nil
}

// ID returns the battle identifier.
func (s *Session) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

// Join registers a robot with the battle, enforcing capacity and unique names.
func (s *Session) Join(name, bot string) (SessionSnapshot, error) {
	if s == nil {
		return SessionSnapshot{}, fmt.Errorf("session is nil")
	}
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return SessionSnapshot{}, ErrInvalidRobotName
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locked {
		return SessionSnapshot{}, ErrSessionLocked
	}
	if s.indexLocked(trimmed) >= 0 {
		return SessionSnapshot{}, fmt.Errorf("%w: %s", ErrRobotAlreadyJoined, trimmed)
	}
	//1.- Reject new robots once the roster holds the maximum number of entrants.
	if s.capacity.MaxRobots > 0 && len(s.entrants) >= s.capacity.MaxRobots {
		return SessionSnapshot{}, ErrSessionFull
	}
	s.entrants = append(s.entrants, Entrant{Name: trimmed, Bot: strings.TrimSpace(bot), JoinedAt: s.now()})
	return s.snapshotLocked(), nil
}

// Leave removes a robot from the roster while the battle has not started.
func (s *Session) Leave(name string) (SessionSnapshot, error) {
	if s == nil {
		return SessionSnapshot{}, fmt.Errorf("session is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return SessionSnapshot{}, ErrSessionLocked
	}
	if idx := s.indexLocked(strings.TrimSpace(name)); idx >= 0 {
		s.entrants = append(s.entrants[:idx], s.entrants[idx+1:]...)
	}
	return s.snapshotLocked(), nil
}

// Lock freezes the roster for the start of the battle and returns the entrants in join
// order.
func (s *Session) Lock() ([]Entrant, error) {
	if s == nil {
		return nil, fmt.Errorf("session is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entrants) < s.capacity.MinRobots {
		return nil, fmt.Errorf("%w: %d of %d", ErrNotReady, len(s.entrants), s.capacity.MinRobots)
	}
	s.locked = true
	return append([]Entrant(nil), s.entrants...), nil
}

// Snapshot returns a read-only view of the roster.
func (s *Session) Snapshot() SessionSnapshot {
	if s == nil {
		return SessionSnapshot{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// AdjustCapacity changes the roster limits without evicting entrants.
func (s *Session) AdjustCapacity(minRobots, maxRobots int) (SessionSnapshot, error) {
	if s == nil {
		return SessionSnapshot{}, fmt.Errorf("session is nil")
	}
	proposed := Capacity{MinRobots: minRobots, MaxRobots: maxRobots}
	if err := s.validateCapacity(proposed); err != nil {
		return SessionSnapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if proposed.MaxRobots > 0 && len(s.entrants) > proposed.MaxRobots {
		return SessionSnapshot{}, fmt.Errorf("%w: %d entrants exceed max %d", ErrInvalidCapacity, len(s.entrants), proposed.MaxRobots)
	}
	s.capacity = proposed
	return s.snapshotLocked(), nil
}

func (s *Session) applyEnvironment() error {
	lookup := s.envLookup
	if lookup == nil {
		return nil
	}
	if !s.idConfigured {
		if id := strings.TrimSpace(lookup(envBattleID)); id != "" {
			s.id = id
			s.idConfigured = true
		}
	}
	if s.capConfigured {
		return nil
	}
	if raw := strings.TrimSpace(lookup(envMinRobots)); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidCapacity, envMinRobots, raw)
		}
		s.capacity.MinRobots = value
	}
	if raw := strings.TrimSpace(lookup(envMaxRobots)); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidCapacity, envMaxRobots, raw)
		}
		s.capacity.MaxRobots = value
	}
	return nil
}

func (s *Session) indexLocked(name string) int {
	for i, entrant := range s.entrants {
		if entrant.Name == name {
			return i
		}
	}
	return -1
}

func (s *Session) snapshotLocked() SessionSnapshot {
	snapshot := SessionSnapshot{BattleID: s.id, Capacity: s.capacity, Locked: s.locked}
	if len(s.entrants) > 0 {
		snapshot.Entrants = append([]Entrant(nil), s.entrants...)
	}
	return snapshot
}

func (s *Session) validateCapacity(cap Capacity) error {
	if cap.MinRobots < 1 {
		return fmt.Errorf("%w: minimum robots must be at least one", ErrInvalidCapacity)
	}
	if cap.MaxRobots < 0 {
		return fmt.Errorf("%w: maximum robots must be non-negative", ErrInvalidCapacity)
	}
	if cap.MaxRobots > 0 && cap.MaxRobots < cap.MinRobots {
		return fmt.Errorf("%w: max %d is less than min %d", ErrInvalidCapacity, cap.MaxRobots, cap.MinRobots)
	}
	return nil
}
