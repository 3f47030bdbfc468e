package arena

import (
	"math"
	"testing"

	"robotarena/server/internal/events"
	"robotarena/server/internal/rules"
)

func fireOnce(power float64) *hookRecorder {
	fired := false
	return &hookRecorder{run: func(r *Robot) {
		if !fired {
			r.SetFire(power)
			fired = true
		}
	}}
}

func TestPointBlankHitScoresDamageAndBonus(t *testing.T) {
	w := newTestWorld(t)
	shooter := placeRobot(t, w, "shooter", fireOnce(3), 100, 100)
	target := placeRobot(t, w, "target", nil, 100, 160)
	resetAll(w)

	for turn := 0; turn < 10 && target.Energy() == rules.StartingEnergy; turn++ {
		w.Tick()
	}
	if target.Energy() != 84 {
		t.Fatalf("expected target energy 84, got %v", target.Energy())
	}
	//1.- Firing cost 3 and the hit returned three times the power.
	if shooter.Energy() != 106 {
		t.Fatalf("expected shooter energy 106, got %v", shooter.Energy())
	}
	if got := shooter.Statistics().Current().BulletDamage; got != 16 {
		t.Fatalf("expected bullet damage score 16, got %v", got)
	}

	bullets := w.Bullets()
	if len(bullets) != 1 || bullets[0].State() != BulletHitVictim || bullets[0].Victim() != target.Handle() {
		t.Fatalf("expected a bullet lodged in the target, got %+v", bullets)
	}
	//2.- The lodged bullet is drawn relative to the victim.
	at := bullets[0].PaintPosition(w)
	if !target.BoundingBox().Contains(at) && at.Distance(target.Position()) > rules.RobotHeight {
		t.Fatalf("expected paint position near the target, got %+v", at)
	}
}

func TestBulletKillScoresOnlyRemainingEnergy(t *testing.T) {
	w := newTestWorld(t)
	shooter := placeRobot(t, w, "shooter", fireOnce(3), 100, 100)
	victimHooks := &hookRecorder{}
	victim := placeRobot(t, w, "victim", victimHooks, 100, 160)
	resetAll(w)
	victim.energy = 2

	for turn := 0; turn < 10 && victim.Alive(); turn++ {
		w.Tick()
	}
	if victim.Alive() {
		t.Fatalf("expected the victim to die")
	}
	score := shooter.Statistics().Current()
	if score.BulletDamage != 2 {
		t.Fatalf("expected damage capped to remaining energy, got %v", score.BulletDamage)
	}
	if math.Abs(score.BulletKillBonus-0.4) > 1e-9 {
		t.Fatalf("expected kill bonus 0.4, got %v", score.BulletKillBonus)
	}

	removed := w.ClearDeadRobots()
	if len(removed) != 1 || removed[0] != victim {
		t.Fatalf("expected the victim to be removed, got %v", removed)
	}
	if victimHooks.deaths != 1 {
		t.Fatalf("expected one death event, got %d", victimHooks.deaths)
	}

	//3.- Further turns never deliver a second death.
	w.Tick()
	w.ClearDeadRobots()
	if victimHooks.deaths != 1 {
		t.Fatalf("expected death to stay delivered once, got %d", victimHooks.deaths)
	}

	deaths := 0
	for _, record := range w.DrainRecords() {
		if record.Kind == events.RecordDeath {
			deaths++
			if record.Robot != "victim" || record.Round != w.Round() {
				t.Fatalf("unexpected death record %+v", record)
			}
		}
	}
	if deaths != 1 {
		t.Fatalf("expected one death record, got %d", deaths)
	}
}

func TestCrossingBulletsDestroyEachOther(t *testing.T) {
	w := newTestWorld(t)
	leftHooks := fireOnce(3)
	rightHooks := fireOnce(3)
	left := placeRobot(t, w, "left", leftHooks, 100, 100)
	right := placeRobot(t, w, "right", rightHooks, 300, 100)
	resetAll(w)
	left.gunHeading = math.Pi / 4
	right.gunHeading = 7 * math.Pi / 4

	crossed := false
	for turn := 0; turn < 20 && !crossed; turn++ {
		w.Tick()
		for _, b := range w.Bullets() {
			if b.State() == BulletHitBullet {
				crossed = true
			}
		}
	}
	if !crossed {
		t.Fatalf("expected the bullets to collide")
	}
	for _, b := range w.Bullets() {
		if b.State() != BulletHitBullet {
			t.Fatalf("expected both bullets stopped, got %v for %s", b.State(), b.OwnerName())
		}
	}

	w.Tick()
	if len(leftHooks.crossed) != 1 || len(rightHooks.crossed) != 1 {
		t.Fatalf("expected one event per owner, got %d and %d", len(leftHooks.crossed), len(rightHooks.crossed))
	}
	if leftHooks.crossed[0].Mine.Owner != "left" || leftHooks.crossed[0].Hit.Owner != "right" {
		t.Fatalf("unexpected event %+v", leftHooks.crossed[0])
	}
	if rightHooks.crossed[0].Mine.Owner != "right" || rightHooks.crossed[0].Hit.Owner != "left" {
		t.Fatalf("unexpected event %+v", rightHooks.crossed[0])
	}
	if left.Energy() != 97 || right.Energy() != 97 {
		t.Fatalf("expected only the firing cost, got %v and %v", left.Energy(), right.Energy())
	}
}

func TestBulletLeavesArenaAndExpires(t *testing.T) {
	w := newTestWorld(t)
	placeRobot(t, w, "shooter", fireOnce(rules.MinBulletPower), 400, 550)
	resetAll(w)

	missed := false
	for turn := 0; turn < 10; turn++ {
		w.Tick()
		for _, record := range w.DrainRecords() {
			if record.Kind == events.RecordBulletMissed {
				missed = true
			}
		}
	}
	if !missed {
		t.Fatalf("expected the bullet to hit the wall")
	}
	for turn := 0; turn < rules.ExplosionLength+1; turn++ {
		w.Tick()
	}
	if len(w.Bullets()) != 0 {
		t.Fatalf("expected spent bullets to be purged, got %d", len(w.Bullets()))
	}
}

func TestBulletStateNames(t *testing.T) {
	if BulletHitVictim.String() != "hit_victim" || BulletInactive.String() != "inactive" {
		t.Fatalf("unexpected bullet state names")
	}
	if BulletState(99).String() != "unknown" {
		t.Fatalf("expected unknown for out of range state")
	}
}
