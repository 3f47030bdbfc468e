package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"robotarena/server/internal/arena"
	"robotarena/server/internal/bots"
	"robotarena/server/internal/config"
	httpapi "robotarena/server/internal/http"
	"robotarena/server/internal/logging"
	"robotarena/server/internal/match"
	"robotarena/server/internal/replay"
	"robotarena/server/internal/scoring"
)

var errReplayDisabled = errors.New("replay recording disabled")

// contender is one robot of the roster together with its replay description.
type contender struct {
	robot *arena.Robot
	entry replay.RosterEntry
}

// assembleRoster registers every robot of setup with the session, locks the roster and
// builds the robots in join order.
func assembleRoster(setup config.Battle, session *match.Session, registry *bots.Registry, logger *logging.Logger) ([]contender, error) {
	if session == nil || registry == nil {
		return nil, errors.New("session and bot registry are required")
	}
	if logger == nil {
		logger = logging.L()
	}
	byName := make(map[string]config.RobotSpec, len(setup.Robots))
	for _, robot := range setup.Robots {
		if _, err := session.Join(robot.Name, robot.Bot); err != nil {
			return nil, fmt.Errorf("join %s: %w", robot.Name, err)
		}
		byName[robot.Name] = robot
	}
	entrants, err := session.Lock()
	if err != nil {
		return nil, err
	}

	roster := make([]contender, 0, len(entrants))
	for _, entrant := range entrants {
		robotSpec := byName[entrant.Name]
		//1.- Resolve the behavior first so unknown bots fail before the battle exists.
		behavior, err := registry.New(entrant.Bot, robotSpec.Params)
		if err != nil {
			return nil, fmt.Errorf("robot %s: %w", entrant.Name, err)
		}
		opts := []arena.RobotOption{arena.WithRobotLogger(logger.With(logging.String("robot", entrant.Name)))}
		//2.- A configured color overrides whatever the behavior picks for itself.
		if robotSpec.Color != "" {
			palette, err := arena.PaletteFromHex(robotSpec.Color)
			if err != nil {
				return nil, fmt.Errorf("robot %s: %w", entrant.Name, err)
			}
			opts = append(opts, arena.WithPalette(palette))
		}
		roster = append(roster, contender{
			robot: arena.NewRobot(entrant.Name, behavior, opts...),
			entry: replay.RosterEntry{Name: entrant.Name, Bot: entrant.Bot, Color: robotSpec.Color},
		})
	}
	return roster, nil
}

// battleServer owns the running battle and answers the HTTP and gRPC surfaces about it.
type battleServer struct {
	id       string
	setup    config.Battle
	battle   *match.Battle
	roster   []replay.RosterEntry
	recorder *replay.Recorder
	logger   *logging.Logger

	mu         sync.Mutex
	startupErr error
	finished   bool
}

func newBattleServer(id string, setup config.Battle, battle *match.Battle, roster []contender, recorder *replay.Recorder, logger *logging.Logger) *battleServer {
	if logger == nil {
		logger = logging.L()
	}
	entries := make([]replay.RosterEntry, 0, len(roster))
	for _, c := range roster {
		entries = append(entries, c.entry)
	}
	return &battleServer{
		id:       id,
		setup:    setup,
		battle:   battle,
		roster:   entries,
		recorder: recorder,
		logger:   logger,
	}
}

// turn resolves one turn and reports whether another should follow.
func (s *battleServer) turn() bool {
	if s == nil || s.battle == nil {
		return false
	}
	if err := s.battle.Tick(); err != nil {
		if !errors.Is(err, match.ErrBattleEnded) {
			s.logger.Error("turn failed", logging.Error(err))
		}
		return false
	}
	return !s.battle.Ended()
}

// finish closes the replay bundle with the final standings. Later calls do nothing.
func (s *battleServer) finish() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return nil
	}
	s.finished = true
	s.mu.Unlock()
	if s.recorder == nil {
		return nil
	}
	return s.recorder.Close(s.header())
}

func (s *battleServer) header() replay.Header {
	return replay.Header{
		SchemaVersion: replay.HeaderSchemaVersion,
		BattleID:      s.id,
		Seed:          s.setup.Seed,
		Rounds:        s.battle.Rounds(),
		Width:         s.setup.Width,
		Height:        s.setup.Height,
		Roster:        append([]replay.RosterEntry(nil), s.roster...),
		Results:       s.battle.Results(),
		FilePointer:   replay.ManifestFile,
	}
}

// setStartupError marks the server unready.
func (s *battleServer) setStartupError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startupErr = err
}

// StartupError implements httpapi.BattleProvider.
func (s *battleServer) StartupError() error {
	if s == nil {
		return errors.New("battle server not initialised")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startupErr
}

// Status implements httpapi.BattleProvider.
func (s *battleServer) Status() httpapi.BattleStatus {
	if s == nil || s.battle == nil {
		return httpapi.BattleStatus{}
	}
	snapshot := s.battle.Snapshot()
	alive := 0
	for _, robot := range snapshot.Robots {
		if robot.State != arena.StateDead.String() {
			alive++
		}
	}
	return httpapi.BattleStatus{
		BattleID: s.id,
		Phase:    s.battle.Phase().String(),
		Round:    s.battle.Round(),
		Rounds:   s.battle.Rounds(),
		Turn:     snapshot.Turn,
		Robots:   alive,
		Ended:    s.battle.Ended(),
	}
}

// Results implements httpapi.BattleProvider and the gRPC results source.
func (s *battleServer) Results() []scoring.Results {
	if s == nil || s.battle == nil {
		return nil
	}
	return s.battle.Results()
}

// FlushReplay implements httpapi.ReplayFlusher.
func (s *battleServer) FlushReplay(ctx context.Context) (string, error) {
	if s == nil || s.recorder == nil {
		return "", errReplayDisabled
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}
	return s.recorder.Flush()
}
