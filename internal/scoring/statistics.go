package scoring

import (
	"robotarena/server/internal/logging"
	"robotarena/server/internal/rules"
)

const (
	// SurvivalScore is awarded to every robot still alive when an opponent dies.
	SurvivalScore = 50.0
	// LastSurvivorBonusPerEnemy is multiplied by the number of opponents in the round.
	LastSurvivorBonusPerEnemy = 10.0
	// BulletKillBonusRatio is the share of cumulative bullet damage awarded on a kill.
	BulletKillBonusRatio = 0.20
	// RammingKillBonusRatio is the share of cumulative ramming damage awarded on a kill.
	RammingKillBonusRatio = 0.30
)

// Breakdown groups the score categories tracked per robot.
type Breakdown struct {
	Survival          float64 `json:"survival"`
	LastSurvivorBonus float64 `json:"last_survivor_bonus"`
	BulletDamage      float64 `json:"bullet_damage"`
	BulletKillBonus   float64 `json:"bullet_kill_bonus"`
	RammingDamage     float64 `json:"ramming_damage"`
	RammingKillBonus  float64 `json:"ramming_kill_bonus"`
}

// Total sums every category.
func (b Breakdown) Total() float64 {
	return b.Survival + b.LastSurvivorBonus + b.BulletDamage + b.BulletKillBonus + b.RammingDamage + b.RammingKillBonus
}

func (b *Breakdown) add(o Breakdown) {
	b.Survival += o.Survival
	b.LastSurvivorBonus += o.LastSurvivorBonus
	b.BulletDamage += o.BulletDamage
	b.BulletKillBonus += o.BulletKillBonus
	b.RammingDamage += o.RammingDamage
	b.RammingKillBonus += o.RammingKillBonus
}

// Statistics is the running score ledger of a single robot across a battle.
type Statistics struct {
	name           string
	numberOfRobots int
	active         bool
	inRound        bool

	round  Breakdown
	totals Breakdown
	// damage records damage dealt per opponent during the current round.
	damage map[string]float64

	firsts  int
	seconds int
	thirds  int
}

// NewStatistics creates an empty ledger for the named robot.
func NewStatistics(name string) *Statistics {
	return &Statistics{name: name, damage: make(map[string]float64)}
}

// Name returns the robot the ledger belongs to.
func (s *Statistics) Name() string {
	if s == nil {
		return ""
	}
	return s.name
}

// Reset clears the round scores and arms the ledger for a round of numberOfRobots robots.
func (s *Statistics) Reset(numberOfRobots int) {
	if s == nil {
		return
	}
	s.resetRound()
	s.numberOfRobots = numberOfRobots
	s.active = true
	s.inRound = true
}

// SetInactive clears the round scores and stops further scoring.
func (s *Statistics) SetInactive() {
	if s == nil {
		return
	}
	s.resetRound()
	s.active = false
}

// InRound reports whether the round scores have not been folded into totals yet.
func (s *Statistics) InRound() bool {
	return s != nil && s.inRound
}

func (s *Statistics) resetRound() {
	s.round = Breakdown{}
	s.damage = make(map[string]float64)
}

// ScoreSurvival credits the robot for outliving an opponent.
func (s *Statistics) ScoreSurvival() {
	if s == nil || !s.active {
		return
	}
	s.round.Survival += SurvivalScore
}

// ScoreLastSurvivor credits the sole survivor of a round and counts a first place.
func (s *Statistics) ScoreLastSurvivor() {
	if s == nil || !s.active {
		return
	}
	enemies := s.numberOfRobots - 1
	if enemies < 0 {
		enemies = 0
	}
	s.round.LastSurvivorBonus += LastSurvivorBonusPerEnemy * float64(enemies)
	s.firsts++
}

// ScoreBulletDamage records bullet damage dealt to the victim.
func (s *Statistics) ScoreBulletDamage(victim string, damage float64) {
	if s == nil || !s.active {
		return
	}
	s.damage[victim] += damage
	s.round.BulletDamage += damage
}

// ScoreBulletKill awards the bullet kill bonus for the victim and returns it.
func (s *Statistics) ScoreBulletKill(victim string) float64 {
	if s == nil || !s.active {
		return 0
	}
	bonus := s.damage[victim] * BulletKillBonusRatio
	s.round.BulletKillBonus += bonus
	return bonus
}

// ScoreRammingDamage records one ram against the victim.
func (s *Statistics) ScoreRammingDamage(victim string) {
	if s == nil || !s.active {
		return
	}
	s.damage[victim] += rules.RobotHitDamage
	s.round.RammingDamage += rules.RobotHitBonus
}

// ScoreRammingKill awards the ramming kill bonus for the victim and returns it.
func (s *Statistics) ScoreRammingKill(victim string) float64 {
	if s == nil || !s.active {
		return 0
	}
	bonus := s.damage[victim] * RammingKillBonusRatio
	s.round.RammingKillBonus += bonus
	return bonus
}

// ScoreRobotDeath counts a placement for a robot that died with enemiesRemaining still alive.
func (s *Statistics) ScoreRobotDeath(enemiesRemaining int, winner bool) {
	if s == nil {
		return
	}
	switch enemiesRemaining {
	case 0:
		if !winner {
			s.firsts++
		}
	case 1:
		s.seconds++
	case 2:
		s.thirds++
	}
}

// DamageDealt returns the damage recorded against an opponent this round.
func (s *Statistics) DamageDealt(victim string) float64 {
	if s == nil {
		return 0
	}
	return s.damage[victim]
}

// GenerateTotals folds the round scores into the lifetime totals.
func (s *Statistics) GenerateTotals() {
	if s == nil {
		return
	}
	s.totals.add(s.round)
	s.inRound = false
}

// Current returns the scores of the round in progress.
func (s *Statistics) Current() Breakdown {
	if s == nil {
		return Breakdown{}
	}
	return s.round
}

// Totals returns the lifetime scores folded so far.
func (s *Statistics) Totals() Breakdown {
	if s == nil {
		return Breakdown{}
	}
	return s.totals
}

// CurrentScore returns the total of the round in progress.
func (s *Statistics) CurrentScore() float64 { return s.Current().Total() }

// TotalScore returns the lifetime total.
func (s *Statistics) TotalScore() float64 { return s.Totals().Total() }

// Placements returns the first, second and third place counts.
func (s *Statistics) Placements() (firsts, seconds, thirds int) {
	if s == nil {
		return 0, 0, 0
	}
	return s.firsts, s.seconds, s.thirds
}

// FinalResults converts the lifetime totals into a rounded results record.
func (s *Statistics) FinalResults() Results {
	if s == nil {
		return Results{}
	}
	return newResults(s.name, s.totals, s.firsts, s.seconds, s.thirds)
}

// LoggingFields converts the round scores into structured logging attributes.
func (s *Statistics) LoggingFields() []logging.Field {
	if s == nil {
		return nil
	}
	round := s.round
	return []logging.Field{
		logging.String("robot", s.name),
		logging.Float64("round_score", round.Total()),
		logging.Float64("total_score", s.totals.Total()),
		logging.Float64("bullet_damage", round.BulletDamage),
		logging.Float64("ramming_damage", round.RammingDamage),
		logging.Int("firsts", s.firsts),
	}
}
