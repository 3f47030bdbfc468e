package replaycatalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"robotarena/server/internal/replay"
)

// Entry summarises one replay bundle for operators.
type Entry struct {
	Directory    string   `json:"directory"`
	ManifestPath string   `json:"manifest_path"`
	BattleID     string   `json:"battle_id"`
	CreatedAt    string   `json:"created_at"`
	Complete     bool     `json:"complete"`
	Seed         int64    `json:"seed,omitempty"`
	Rounds       int      `json:"rounds,omitempty"`
	Roster       []string `json:"roster,omitempty"`
	Winner       string   `json:"winner,omitempty"`
}

// List returns the bundles stored directly under root, newest first.
func List(root string) ([]Entry, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("root directory must be provided")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root must be a directory")
	}

	bundles, err := replay.Catalog(root)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(bundles))
	for _, bundle := range bundles {
		entries = append(entries, newEntry(bundle))
	}
	return entries, nil
}

func newEntry(bundle replay.BundleInfo) Entry {
	entry := Entry{
		Directory:    bundle.Directory,
		ManifestPath: filepath.Join(bundle.Directory, replay.ManifestFile),
		BattleID:     bundle.Manifest.BattleID,
		CreatedAt:    bundle.Manifest.CreatedAt,
		Complete:     bundle.Complete,
	}
	//1.- Incomplete bundles have no header, so only the manifest facts are known.
	if !bundle.Complete {
		return entry
	}
	header := bundle.Header
	entry.BattleID = header.BattleID
	entry.Seed = header.Seed
	entry.Rounds = header.Rounds
	for _, robot := range header.Roster {
		entry.Roster = append(entry.Roster, robot.Name)
	}
	for _, result := range header.Results {
		if result.Rank == 1 {
			entry.Winner = result.Name
			break
		}
	}
	return entry
}

// MarshalEntries produces a stable JSON representation of the entries for CLI output.
func MarshalEntries(entries []Entry) ([]byte, error) {
	//1.- Marshal with indentation to keep CLI output legible for operators.
	return json.MarshalIndent(entries, "", "  ")
}
