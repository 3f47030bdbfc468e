package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultRounds is the round count used when a battle file omits it.
	DefaultRounds = 10
	// DefaultBattleWidth is the arena width used when a battle file omits it.
	DefaultBattleWidth = 800.0
	// DefaultBattleHeight is the arena height used when a battle file omits it.
	DefaultBattleHeight = 600.0
	// MinArenaSize is the smallest side that still fits robot placement margins.
	MinArenaSize = 200.0
)

// RobotSpec names a robot and the behavior that controls it.
type RobotSpec struct {
	Name   string             `yaml:"name" json:"name"`
	Bot    string             `yaml:"bot" json:"bot"`
	Color  string             `yaml:"color,omitempty" json:"color,omitempty"`
	Params map[string]float64 `yaml:"params,omitempty" json:"params,omitempty"`
}

// Battle describes a battle to run: arena size, round count, seed and roster.
type Battle struct {
	Name   string      `yaml:"name" json:"name"`
	Rounds int         `yaml:"rounds" json:"rounds"`
	Width  float64     `yaml:"width" json:"width"`
	Height float64     `yaml:"height" json:"height"`
	Seed   int64       `yaml:"seed" json:"seed"`
	Robots []RobotSpec `yaml:"robots" json:"robots"`
}

// DefaultBattle returns the battle run when no file is configured.
func DefaultBattle() Battle {
	return Battle{
		Name:   "sample",
		Rounds: DefaultRounds,
		Width:  DefaultBattleWidth,
		Height: DefaultBattleHeight,
		Robots: []RobotSpec{
			{Name: "SuperTracker", Bot: "tracker", Color: "#808032"},
			{Name: "SpinBot", Bot: "spin", Color: "#29298c"},
		},
	}
}

// LoadBattleFile reads and validates a YAML battle description.
func LoadBattleFile(path string) (Battle, error) {
	if strings.TrimSpace(path) == "" {
		return Battle{}, errors.New("battle file path must be provided")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Battle{}, err
	}
	return ParseBattle(data)
}

// ParseBattle decodes a YAML battle description and fills defaults.
func ParseBattle(data []byte) (Battle, error) {
	var battle Battle
	if err := yaml.Unmarshal(data, &battle); err != nil {
		return Battle{}, fmt.Errorf("decode battle: %w", err)
	}
	//1.- Fill the omitted fields before validating the rest.
	if battle.Rounds == 0 {
		battle.Rounds = DefaultRounds
	}
	if battle.Width == 0 {
		battle.Width = DefaultBattleWidth
	}
	if battle.Height == 0 {
		battle.Height = DefaultBattleHeight
	}
	if strings.TrimSpace(battle.Name) == "" {
		battle.Name = "battle"
	}
	if err := battle.Validate(); err != nil {
		return Battle{}, err
	}
	return battle, nil
}

// Validate reports every problem with the battle description at once.
func (b Battle) Validate() error {
	var problems []string
	if b.Rounds < 1 {
		problems = append(problems, fmt.Sprintf("rounds must be positive, got %d", b.Rounds))
	}
	if b.Width < MinArenaSize || b.Height < MinArenaSize {
		problems = append(problems, fmt.Sprintf("arena must be at least %.0fx%.0f, got %.0fx%.0f", MinArenaSize, MinArenaSize, b.Width, b.Height))
	}
	if len(b.Robots) < 2 {
		problems = append(problems, fmt.Sprintf("at least two robots are required, got %d", len(b.Robots)))
	}
	seen := make(map[string]struct{}, len(b.Robots))
	for i, robot := range b.Robots {
		name := strings.TrimSpace(robot.Name)
		if name == "" {
			problems = append(problems, fmt.Sprintf("robots[%d] must have a name", i))
			continue
		}
		if _, dup := seen[name]; dup {
			problems = append(problems, fmt.Sprintf("robot name %q is used twice", name))
		}
		seen[name] = struct{}{}
		if strings.TrimSpace(robot.Bot) == "" {
			problems = append(problems, fmt.Sprintf("robot %q must name a bot", name))
		}
		if robot.Color != "" {
			if _, err := colorful.Hex(robot.Color); err != nil {
				problems = append(problems, fmt.Sprintf("robot %q color %q is not a #rrggbb value", name, robot.Color))
			}
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
