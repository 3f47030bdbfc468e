package rules

import (
	"math"
	"testing"
)

func TestBulletDamageIsPiecewiseLinear(t *testing.T) {
	if got := BulletDamage(3); got != 16 {
		t.Fatalf("expected damage 16 for power 3, got %v", got)
	}
	if got := BulletDamage(1); got != 4 {
		t.Fatalf("expected damage 4 for power 1, got %v", got)
	}
	if got := BulletDamage(0.5); got != 2 {
		t.Fatalf("expected damage 2 for power 0.5, got %v", got)
	}
	//1.- Damage never decreases across the legal power range.
	previous := -1.0
	for power := MinBulletPower; power <= MaxBulletPower; power += 0.05 {
		damage := BulletDamage(power)
		if damage < previous {
			t.Fatalf("damage decreased at power %v", power)
		}
		previous = damage
	}
}

func TestBulletHitBonusAndSpeed(t *testing.T) {
	if got := BulletHitBonus(3); got != 9 {
		t.Fatalf("expected bonus 9, got %v", got)
	}
	if got := BulletSpeed(3); got != 11 {
		t.Fatalf("expected speed 11, got %v", got)
	}
	if got := BulletSpeed(100); got != 11 {
		t.Fatalf("expected clamped speed 11, got %v", got)
	}
	if got := BulletSpeed(0); math.Abs(got-19.7) > 1e-9 {
		t.Fatalf("expected clamped speed 19.7, got %v", got)
	}
}

func TestTurnRateAndWallDamage(t *testing.T) {
	if got := TurnRate(0); got != 10 {
		t.Fatalf("expected 10 deg at rest, got %v", got)
	}
	if got := TurnRate(-8); got != 4 {
		t.Fatalf("expected 4 deg at full speed, got %v", got)
	}
	if got := WallHitDamage(8); got != 3 {
		t.Fatalf("expected wall damage 3, got %v", got)
	}
	if got := WallHitDamage(1); got != 0 {
		t.Fatalf("expected no wall damage at low speed, got %v", got)
	}
	if got := GunHeat(3); math.Abs(got-1.6) > 1e-9 {
		t.Fatalf("expected gun heat 1.6, got %v", got)
	}
}
