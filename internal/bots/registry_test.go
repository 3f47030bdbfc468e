package bots

import (
	"errors"
	"reflect"
	"testing"

	"robotarena/server/internal/arena"
)

func TestDefaultRegistryListsSampleBots(t *testing.T) {
	names := Default().Names()
	want := []string{"crazy", "spin", "static", "tracker", "velocity"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("unexpected bots %v", names)
	}
}

func TestRegistryNewAppliesOverrides(t *testing.T) {
	registry := Default()
	behavior, err := registry.New("  Spin ", map[string]float64{"power": 1})
	if err != nil {
		t.Fatalf("new spin: %v", err)
	}
	spin, ok := behavior.(*Spin)
	if !ok {
		t.Fatalf("expected a spin behavior, got %T", behavior)
	}
	if spin.Power != 1 || spin.BodySpin != 2 || spin.Ahead != 10 {
		t.Fatalf("unexpected spin tuning %+v", spin)
	}

	//1.- Every call builds an independent behavior.
	other, err := registry.New("spin", nil)
	if err != nil {
		t.Fatalf("new spin: %v", err)
	}
	if other == behavior {
		t.Fatalf("expected a fresh behavior per robot")
	}
}

func TestRegistryRejectsUnknownNamesAndParams(t *testing.T) {
	registry := Default()
	if _, err := registry.New("sniper", nil); !errors.Is(err, ErrUnknownBot) {
		t.Fatalf("expected unknown bot error, got %v", err)
	}
	if _, err := registry.New("tracker", map[string]float64{"powr": 2}); !errors.Is(err, ErrUnknownParam) {
		t.Fatalf("expected unknown param error, got %v", err)
	}
}

func TestRegistryRegister(t *testing.T) {
	registry := NewRegistry()
	idle := Definition{Name: "idle", Build: func(Params) arena.Behavior { return arena.BehaviorFunc(nil) }}
	if err := registry.Register(idle); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register(idle); !errors.Is(err, ErrDuplicateBot) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if err := registry.Register(Definition{Name: "broken"}); err == nil {
		t.Fatalf("expected an error for a definition without constructor")
	}
	if err := registry.Register(Definition{Name: " ", Build: idle.Build}); err == nil {
		t.Fatalf("expected an error for an empty name")
	}
	if _, ok := registry.Describe("IDLE"); !ok {
		t.Fatalf("expected lookups to ignore case")
	}
	var missing *Registry
	if _, err := missing.New("idle", nil); err == nil {
		t.Fatalf("expected an error from a nil registry")
	}
}
