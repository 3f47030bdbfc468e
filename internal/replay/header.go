package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"robotarena/server/internal/scoring"
)

// HeaderSchemaVersion tracks the schema version for replay header documents.
const HeaderSchemaVersion = 1

// HeaderFile is the name of the header document inside a bundle.
const HeaderFile = "header.json"

// RosterEntry describes one robot that fought in the recorded battle.
type RosterEntry struct {
	Name  string `json:"name"`
	Bot   string `json:"bot"`
	Color string `json:"color,omitempty"`
}

// Header represents the metadata persisted alongside a replay bundle.
type Header struct {
	SchemaVersion int               `json:"schema_version"`
	BattleID      string            `json:"battle_id"`
	Seed          int64             `json:"seed"`
	Rounds        int               `json:"rounds"`
	Width         float64           `json:"width"`
	Height        float64           `json:"height"`
	Roster        []RosterEntry     `json:"roster"`
	Results       []scoring.Results `json:"results,omitempty"`
	FilePointer   string            `json:"file_pointer"`
}

// Clone returns a copy that shares no slices with h.
func (h Header) Clone() Header {
	clone := h
	clone.Roster = append([]RosterEntry(nil), h.Roster...)
	clone.Results = append([]scoring.Results(nil), h.Results...)
	return clone
}

// Validate ensures the header contains enough information for catalogue tooling.
func (h Header) Validate() error {
	if h.SchemaVersion <= 0 {
		return fmt.Errorf("schema_version must be positive")
	}
	if strings.TrimSpace(h.BattleID) == "" {
		return fmt.Errorf("battle_id must not be empty")
	}
	if h.Width <= 0 || h.Height <= 0 {
		return fmt.Errorf("arena size must be positive, got %vx%v", h.Width, h.Height)
	}
	//1.- Ensure catalogue tooling can locate the bundle manifest reliably.
	if strings.TrimSpace(h.FilePointer) == "" {
		return fmt.Errorf("file_pointer must not be empty")
	}
	return nil
}

// WriteHeader persists the supplied header to the provided file path.
func WriteHeader(path string, header Header) error {
	if err := header.Validate(); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(header, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	//1.- Terminate with a newline so POSIX tooling can append easily.
	return os.WriteFile(path, append(payload, '\n'), 0o644)
}

// ReadHeader loads and decodes a replay header from disk.
func ReadHeader(path string) (Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Header{}, err
	}
	var header Header
	if err := json.Unmarshal(data, &header); err != nil {
		return Header{}, err
	}
	if err := header.Validate(); err != nil {
		return Header{}, err
	}
	return header, nil
}
