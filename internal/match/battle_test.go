package match

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"robotarena/server/internal/arena"
	"robotarena/server/internal/events"
	"robotarena/server/internal/geometry"
	"robotarena/server/internal/logging"
	"robotarena/server/internal/rules"
)

type testBot struct {
	run         func(r *arena.Robot)
	deaths      int
	roundsEnded []events.RoundEnded
	battleEnded []events.BattleEnded
}

func (b *testBot) Run(r *arena.Robot) {
	if b.run != nil {
		b.run(r)
	}
}

func (b *testBot) OnDeath(events.Death) { b.deaths++ }

func (b *testBot) OnRoundEnded(ev events.RoundEnded) {
	b.roundsEnded = append(b.roundsEnded, ev)
}

func (b *testBot) OnBattleEnded(ev events.BattleEnded) {
	b.battleEnded = append(b.battleEnded, ev)
}

// hunter aims at target every turn and fires full power once the gun is on it.
func hunter(target **arena.Robot) *testBot {
	return &testBot{run: func(r *arena.Robot) {
		bearing := geometry.Bearing(r.Position(), (*target).Position())
		r.SetGunHeadingTo(bearing)
		if math.Abs(r.GunTurnRemaining()) < 1e-3 {
			r.SetFire(rules.MaxBulletPower)
		}
	}}
}

func TestBattleRunsEveryRoundToTheEnd(t *testing.T) {
	world := arena.NewWorld(800, 600, arena.WithLogger(logging.NewTestLogger()))
	var duck *arena.Robot
	hunterBot := hunter(&duck)
	duckBot := &testBot{}
	shooter := arena.NewRobot("hunter", hunterBot, arena.WithRobotLogger(logging.NewTestLogger()))
	duck = arena.NewRobot("duck", duckBot, arena.WithRobotLogger(logging.NewTestLogger()))

	stream := events.NewStream(events.Config{Retain: 4096})
	observed := 0
	battle, err := NewBattle(world, []*arena.Robot{shooter, duck},
		WithRounds(2),
		WithSeed(7),
		WithLogger(logging.NewTestLogger()),
		WithStream(stream),
		WithObserver(ObserverFunc(func(arena.Snapshot, []events.Record) { observed++ })),
	)
	if err != nil {
		t.Fatalf("new battle: %v", err)
	}

	ticks := 0
	for !battle.Ended() && ticks < 2000 {
		if err := battle.Tick(); err != nil {
			t.Fatalf("tick %d: %v", ticks, err)
		}
		ticks++
	}
	if !battle.Ended() || battle.Round() != 2 || battle.Phase() != PhaseBattleEnded {
		t.Fatalf("expected the battle to end after two rounds, round=%d phase=%v", battle.Round(), battle.Phase())
	}
	if err := battle.Tick(); !errors.Is(err, ErrBattleEnded) {
		t.Fatalf("expected ticks after the end to fail, got %v", err)
	}
	if observed != ticks {
		t.Fatalf("expected %d observed turns, got %d", ticks, observed)
	}

	results := battle.Results()
	if len(results) != 2 || results[0].Name != "hunter" || results[0].Rank != 1 {
		t.Fatalf("unexpected ranking %+v", results)
	}
	best, worst := results[0], results[1]
	//1.- Two rounds of survival, last survivor bonus, capped bullet damage and kill bonus.
	if best.Survival != 100 || best.LastSurvivorBonus != 20 || best.BulletDamage != 200 || best.BulletKillBonus != 40 {
		t.Fatalf("unexpected winner breakdown %+v", best)
	}
	if best.Score != 360 || best.Firsts != 2 {
		t.Fatalf("unexpected winner totals %+v", best)
	}
	if worst.Score != 0 || worst.Seconds != 2 || worst.Firsts != 0 {
		t.Fatalf("unexpected loser totals %+v", worst)
	}

	if duckBot.deaths != 2 || hunterBot.deaths != 0 {
		t.Fatalf("expected one death per round for the duck, got %d and %d", duckBot.deaths, hunterBot.deaths)
	}
	if len(hunterBot.roundsEnded) != 2 || !hunterBot.roundsEnded[1].Winner || hunterBot.roundsEnded[1].Round != 2 {
		t.Fatalf("unexpected round end events %+v", hunterBot.roundsEnded)
	}
	if len(duckBot.roundsEnded) != 2 || duckBot.roundsEnded[0].Winner {
		t.Fatalf("expected the dead duck to hear about the round end, got %+v", duckBot.roundsEnded)
	}
	if len(duckBot.battleEnded) != 1 || len(hunterBot.battleEnded) != 1 || hunterBot.battleEnded[0].Rounds != 2 {
		t.Fatalf("expected one battle end each, got %+v and %+v", duckBot.battleEnded, hunterBot.battleEnded)
	}

	counts := map[events.RecordKind]int{}
	for _, envelope := range stream.Since(0) {
		counts[envelope.Record.Kind]++
	}
	if counts[events.RecordRoundStarted] != 2 || counts[events.RecordRoundEnded] != 2 ||
		counts[events.RecordBattleEnded] != 1 || counts[events.RecordDeath] != 2 {
		t.Fatalf("unexpected telemetry counts %v", counts)
	}
	if counts[events.RecordBulletHit] != 14 {
		t.Fatalf("expected seven hits per round, got %d", counts[events.RecordBulletHit])
	}
}

func TestBattleKeepsLastTurnVisible(t *testing.T) {
	world := arena.NewWorld(800, 600, arena.WithLogger(logging.NewTestLogger()))
	solo := arena.NewRobot("solo", nil, arena.WithRobotLogger(logging.NewTestLogger()))
	battle, err := NewBattle(world, []*arena.Robot{solo}, WithSeed(1), WithLogger(logging.NewTestLogger()))
	if err != nil {
		t.Fatalf("new battle: %v", err)
	}
	if err := battle.Tick(); err != nil {
		t.Fatalf("tick: %v", err)
	}
	//1.- A lone robot wins at once; the world is cleared but the snapshot is kept.
	if !battle.Ended() || len(world.Robots()) != 0 {
		t.Fatalf("expected the single robot battle to end in one turn")
	}
	snap := battle.Snapshot()
	if snap.Turn != 1 || snap.Round != 1 || len(snap.Robots) != 1 || snap.Robots[0].Name != "solo" {
		t.Fatalf("unexpected last snapshot %+v", snap)
	}
	results := battle.Results()
	if results[0].Firsts != 1 || results[0].LastSurvivorBonus != 0 {
		t.Fatalf("unexpected solo results %+v", results[0])
	}
}

func TestNewBattleValidatesRoster(t *testing.T) {
	world := arena.NewWorld(800, 600)
	if _, err := NewBattle(world, nil); !errors.Is(err, ErrNoRobots) {
		t.Fatalf("expected no robots error, got %v", err)
	}
	twin := []*arena.Robot{arena.NewRobot("twin", nil), arena.NewRobot("twin", nil)}
	if _, err := NewBattle(world, twin); !errors.Is(err, arena.ErrDuplicateRobot) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if _, err := NewBattle(world, []*arena.Robot{arena.NewRobot("one", nil)}, WithRounds(0)); !errors.Is(err, ErrInvalidRounds) {
		t.Fatalf("expected invalid rounds error, got %v", err)
	}
	if _, err := NewBattle(nil, []*arena.Robot{arena.NewRobot("one", nil)}); err == nil {
		t.Fatalf("expected an error for a missing world")
	}
}

func TestPlacementAvoidsOverlapAndWalls(t *testing.T) {
	world := arena.NewWorld(800, 600)
	rng := rand.New(rand.NewSource(42))
	logger := logging.NewTestLogger()
	for i := 0; i < 10; i++ {
		r := arena.NewRobot(string(rune('a'+i)), nil)
		if !placeRobot(world, r, rng, logger) {
			t.Fatalf("robot %d could not be placed", i)
		}
		if r.X() < PlacementMargin || r.X() > 800-PlacementMargin || r.Y() < PlacementMargin || r.Y() > 600-PlacementMargin {
			t.Fatalf("robot %d placed outside the margin at (%v, %v)", i, r.X(), r.Y())
		}
		if err := world.AddRobot(r); err != nil {
			t.Fatalf("add robot: %v", err)
		}
	}
	for _, r := range world.Robots() {
		if world.Colliding(r) {
			t.Fatalf("robot %s overlaps another robot", r.Name())
		}
	}
}

func TestPlacementGivesUpInCrowdedArena(t *testing.T) {
	world := arena.NewWorld(200, 200)
	rng := rand.New(rand.NewSource(3))
	logger := logging.NewTestLogger()
	failures := 0
	for i := 0; i < 10; i++ {
		r := arena.NewRobot(string(rune('a'+i)), nil)
		if !placeRobot(world, r, rng, logger) {
			failures++
		}
		if err := world.AddRobot(r); err != nil {
			t.Fatalf("add robot: %v", err)
		}
	}
	//1.- At most four robots fit the placement square without overlapping.
	if failures < 6 {
		t.Fatalf("expected at least six failed placements, got %d", failures)
	}
}

func TestPhaseNames(t *testing.T) {
	if PhaseRoundActive.String() != "round_active" || Phase(42).String() != "unknown" {
		t.Fatalf("unexpected phase names")
	}
}
