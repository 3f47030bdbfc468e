package scoring

import (
	"cmp"
	"slices"
)

// Results is the rounded final record of a robot's battle.
type Results struct {
	Name              string `json:"name"`
	Rank              int    `json:"rank"`
	Score             int    `json:"score"`
	Survival          int    `json:"survival"`
	LastSurvivorBonus int    `json:"last_survivor_bonus"`
	BulletDamage      int    `json:"bullet_damage"`
	BulletKillBonus   int    `json:"bullet_kill_bonus"`
	RammingDamage     int    `json:"ramming_damage"`
	RammingKillBonus  int    `json:"ramming_kill_bonus"`
	Firsts            int    `json:"firsts"`
	Seconds           int    `json:"seconds"`
	Thirds            int    `json:"thirds"`

	rawScore float64
}

func newResults(name string, totals Breakdown, firsts, seconds, thirds int) Results {
	return Results{
		Name:              name,
		Score:             round(totals.Total()),
		Survival:          round(totals.Survival),
		LastSurvivorBonus: round(totals.LastSurvivorBonus),
		BulletDamage:      round(totals.BulletDamage),
		BulletKillBonus:   round(totals.BulletKillBonus),
		RammingDamage:     round(totals.RammingDamage),
		RammingKillBonus:  round(totals.RammingKillBonus),
		Firsts:            firsts,
		Seconds:           seconds,
		Thirds:            thirds,
		rawScore:          totals.Total(),
	}
}

// round truncates x+0.5 toward zero, matching the scoreboard rounding of non-negative scores.
func round(x float64) int {
	return int(x + 0.5)
}

// Compare orders two results by total score, ascending. Unrounded totals break rounding ties.
func Compare(a, b Results) int {
	if c := cmp.Compare(a.Score, b.Score); c != 0 {
		return c
	}
	return cmp.Compare(a.rawScore, b.rawScore)
}

// Rank sorts the results from best to worst and assigns 1-based ranks.
func Rank(results []Results) []Results {
	ranked := slices.Clone(results)
	//1.- Higher scores first, then more first places, then by name for a stable order.
	slices.SortStableFunc(ranked, func(a, b Results) int {
		if c := Compare(b, a); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Firsts, a.Firsts); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}
