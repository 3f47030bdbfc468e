package main

import (
	"fmt"
	"io"

	"github.com/cheggaaa/pb"
	"github.com/ttacon/chalk"

	"robotarena/server/internal/arena"
	"robotarena/server/internal/events"
	"robotarena/server/internal/scoring"
)

const progressWidth = 80

// roundProgress ticks a progress bar every time a round ends.
type roundProgress struct {
	bar *pb.ProgressBar
}

func newRoundProgress(w io.Writer, rounds int) *roundProgress {
	bar := pb.New(rounds)
	if w != nil {
		bar.Output = w
	}
	bar.ShowSpeed = false
	bar.SetWidth(progressWidth)
	bar.Prefix("rounds ")
	bar.Start()
	return &roundProgress{bar: bar}
}

// ObserveTurn advances the bar for every round that ended this turn.
func (p *roundProgress) ObserveTurn(_ arena.Snapshot, records []events.Record) {
	if p == nil {
		return
	}
	for _, record := range records {
		if record.Kind == events.RecordRoundEnded {
			p.bar.Increment()
		}
	}
}

// Finish prints the final state of the bar.
func (p *roundProgress) Finish() {
	if p == nil {
		return
	}
	p.bar.Finish()
}

// printResults writes the ranked standings as a colored table.
func printResults(w io.Writer, battleID string, results []scoring.Results) {
	fmt.Fprint(w, chalk.Green)
	fmt.Fprintf(w, "Results for battle %s\n", battleID)
	fmt.Fprint(w, chalk.Reset)

	fmt.Fprint(w, chalk.Blue)
	fmt.Fprintf(w, "%-4s %-20s %7s %7s %7s %7s %7s %7s %7s %5s %5s %5s\n",
		"Rank", "Robot", "Score", "Surv", "Bonus", "Dmg", "Kill", "Ram", "RamK", "1sts", "2nds", "3rds")
	fmt.Fprint(w, chalk.Reset)

	for _, r := range results {
		//1.- The winners stand out from the rest of the table.
		if r.Rank == 1 {
			fmt.Fprint(w, chalk.Yellow)
		}
		fmt.Fprintf(w, "%-4d %-20s %7d %7d %7d %7d %7d %7d %7d %5d %5d %5d\n",
			r.Rank, r.Name, r.Score, r.Survival, r.LastSurvivorBonus, r.BulletDamage, r.BulletKillBonus,
			r.RammingDamage, r.RammingKillBonus, r.Firsts, r.Seconds, r.Thirds)
		if r.Rank == 1 {
			fmt.Fprint(w, chalk.Reset)
		}
	}
}
