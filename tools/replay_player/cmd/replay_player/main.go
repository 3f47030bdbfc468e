package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/ttacon/chalk"

	"robotarena/server/internal/render"
	"robotarena/server/tools/replay_player"
)

func main() {
	path := flag.String("path", "", "Path to a replay directory or manifest.json")
	asJSON := flag.Bool("json", false, "Print the bundle summary as JSON")
	terminal := flag.Bool("terminal", false, "Play the battle back in the terminal")
	speed := flag.Duration("speed", 50*time.Millisecond, "Delay between replayed turns")
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "path flag is required")
		os.Exit(1)
	}

	loader, err := replayplayer.Open(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
	turns, err := replayplayer.Turns(loader)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}

	if *terminal {
		if err := play(turns, *speed); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(3)
		}
	}

	summary := replayplayer.Summarise(loader, turns)
	if *asJSON {
		//1.- Render the summary as JSON so callers can pipe the output elsewhere.
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			fmt.Fprintln(os.Stderr, "encode error:", err)
			os.Exit(3)
		}
		return
	}
	printSummary(os.Stdout, summary)
}

// play drives the terminal view with the recorded turns until they run out or the viewer quits.
func play(turns []replayplayer.Turn, delay time.Duration) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("open terminal: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("init terminal: %w", err)
	}
	defer screen.Fini()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	view := render.NewView(screen)
	go view.Run(ctx, cancel)

	if _, err := replayplayer.Play(ctx, turns, view, delay); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	//2.- Hold the last turn on screen until the viewer quits.
	<-ctx.Done()
	return nil
}

func printSummary(w io.Writer, summary replayplayer.Summary) {
	fmt.Fprint(w, chalk.Green)
	fmt.Fprintf(w, "Battle %s", summary.BattleID)
	fmt.Fprintln(w, chalk.Reset)
	fmt.Fprintf(w, "seed %d, %d rounds, %d turns, %d frames, %d records\n",
		summary.Seed, summary.Rounds, summary.Turns, summary.Frames, summary.Records)
	for _, kind := range summary.KindNames() {
		fmt.Fprintf(w, "  %-18s %d\n", kind, summary.Kinds[kind])
	}
	if len(summary.Results) == 0 {
		return
	}
	fmt.Fprint(w, chalk.Blue)
	fmt.Fprintf(w, "%-4s %-20s %7s", "Rank", "Robot", "Score")
	fmt.Fprintln(w, chalk.Reset)
	for _, result := range summary.Results {
		fmt.Fprintf(w, "%-4d %-20s %7d\n", result.Rank, result.Name, result.Score)
	}
}
