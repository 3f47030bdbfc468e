package render

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"

	"robotarena/server/internal/arena"
	"robotarena/server/internal/events"
	"robotarena/server/internal/geometry"
	"robotarena/server/internal/logging"
)

func newScreen(t *testing.T, cols, rows int) tcell.SimulationScreen {
	t.Helper()
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatalf("init screen: %v", err)
	}
	screen.SetSize(cols, rows)
	t.Cleanup(screen.Fini)
	return screen
}

func runeAt(screen tcell.Screen, col, row int) rune {
	primary, _, _, _ := screen.GetContent(col, row)
	return primary
}

func rowText(screen tcell.Screen, row, cols int) string {
	var b strings.Builder
	for col := 0; col < cols; col++ {
		b.WriteRune(runeAt(screen, col, row))
	}
	return b.String()
}

func sampleSnapshot() arena.Snapshot {
	return arena.Snapshot{
		Round:  1,
		Turn:   5,
		Width:  800,
		Height: 600,
		Robots: []arena.RobotView{
			{Name: "tracker", X: 400, Y: 300, BodyHeading: geometry.Radians(90), Energy: 87.25, State: arena.StateActive.String(), BodyColor: "#808032"},
			{Name: "duck", X: 100, Y: 100, Energy: 0, State: arena.StateDead.String(), BodyColor: "#29298c"},
		},
		Bullets: []arena.BulletView{
			{ID: 1, Owner: "tracker", X: 100, Y: 500, State: arena.BulletMoving.String(), Color: "#ffffff"},
			{ID: 2, Owner: "tracker", X: 700, Y: 500, State: arena.BulletExploded.String(), Color: "#ffffff"},
		},
	}
}

func TestObserveTurnDrawsArena(t *testing.T) {
	screen := newScreen(t, 42, 23)
	view := NewView(screen, WithLogger(logging.NewTestLogger()))

	view.ObserveTurn(sampleSnapshot(), []events.Record{{Kind: events.RecordDeath, Round: 1, Turn: 5, Robot: "duck"}})

	if runeAt(screen, 0, 0) != '┌' || runeAt(screen, 41, 21) != '┘' {
		t.Fatalf("expected a border around the arena")
	}
	//1.- Inner area is 40x20 cells; the arena centre lands on column 21, row 11.
	if got := runeAt(screen, 21, 11); got != '→' {
		t.Fatalf("expected an east facing robot at the centre, got %q", got)
	}
	if got := runeAt(screen, 6, 4); got != bulletGlyph {
		t.Fatalf("expected a bullet at (6, 4), got %q", got)
	}
	if got := runeAt(screen, 36, 4); got != explosionGlyph {
		t.Fatalf("expected an explosion at (36, 4), got %q", got)
	}
	if got := runeAt(screen, 6, 17); got != deadGlyph {
		t.Fatalf("expected a wreck at (6, 17), got %q", got)
	}
	status := rowText(screen, 22, 42)
	if !strings.HasPrefix(status, "R1 T5  tracker 87.2") {
		t.Fatalf("unexpected status line %q", status)
	}
}

func TestHeadlineKeepsLastNotableRecord(t *testing.T) {
	records := []events.Record{
		{Kind: events.RecordDeath, Robot: "duck"},
		{Kind: events.RecordRoundEnded, Round: 2, Robot: "tracker"},
		{Kind: events.RecordFire, Robot: "tracker"},
	}
	if got := headlineFor(records); got != "round 2 won by tracker" {
		t.Fatalf("unexpected headline %q", got)
	}
	if got := headlineFor([]events.Record{{Kind: events.RecordFire}}); got != "" {
		t.Fatalf("expected no headline for routine records, got %q", got)
	}
}

func TestHeadingGlyphs(t *testing.T) {
	cases := map[float64]rune{0: '↑', 45: '↗', 90: '→', 180: '↓', 270: '←', 350: '↑', -45: '↖'}
	for degrees, want := range cases {
		if got := headingGlyph(geometry.Radians(degrees)); got != want {
			t.Fatalf("heading %v: expected %q, got %q", degrees, want, got)
		}
	}
}

func TestTinyScreenIsLeftBlank(t *testing.T) {
	screen := newScreen(t, 3, 3)
	view := NewView(screen)
	view.Draw(sampleSnapshot())
	if got := runeAt(screen, 0, 0); got != ' ' {
		t.Fatalf("expected nothing drawn on a tiny screen, got %q", got)
	}
}

func TestRunQuitsOnKey(t *testing.T) {
	screen := newScreen(t, 42, 23)
	view := NewView(screen, WithLogger(logging.NewTestLogger()))
	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		view.Run(context.Background(), func() { close(quit) })
		close(done)
	}()
	screen.InjectKey(tcell.KeyRune, 'q', tcell.ModNone)

	select {
	case <-quit:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected the quit callback")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected Run to return")
	}
}
