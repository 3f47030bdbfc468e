package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/ttacon/chalk"

	"robotarena/server/tools/replay_catalog"
)

func main() {
	root := flag.String("dir", "replays", "directory containing replay bundles")
	jsonFlag := flag.Bool("json", false, "emit JSON instead of human-readable output")
	flag.Parse()

	entries, err := replaycatalog.List(*root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *jsonFlag {
		payload, err := replaycatalog.MarshalEntries(entries)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(string(payload))
		return
	}

	for _, entry := range entries {
		if !entry.Complete {
			fmt.Printf("%s%s%s (incomplete, started %s)\n", chalk.Yellow, entry.BattleID, chalk.Reset, entry.CreatedAt)
			fmt.Printf("  dir: %s\n", entry.Directory)
			continue
		}
		fmt.Printf("%s%s%s (%d rounds, seed %d)\n", chalk.Green, entry.BattleID, chalk.Reset, entry.Rounds, entry.Seed)
		fmt.Printf("  robots: %s\n", strings.Join(entry.Roster, ", "))
		if entry.Winner != "" {
			fmt.Printf("  winner: %s\n", entry.Winner)
		}
		fmt.Printf("  dir: %s\n", entry.Directory)
	}
}
