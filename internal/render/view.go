package render

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/lucasb-eyer/go-colorful"

	"robotarena/server/internal/arena"
	"robotarena/server/internal/events"
	"robotarena/server/internal/geometry"
	"robotarena/server/internal/logging"
)

// headingGlyphs maps the eight compass sectors to arrows, clockwise from north.
var headingGlyphs = [8]rune{'↑', '↗', '→', '↘', '↓', '↙', '←', '↖'}

const (
	bulletGlyph    = '•'
	explosionGlyph = '*'
	deadGlyph      = 'x'
)

// View draws arena snapshots on a terminal screen. It satisfies the battle observer
// contract so it can be attached directly to a running battle.
type View struct {
	screen tcell.Screen
	logger *logging.Logger

	mu       sync.Mutex
	snapshot arena.Snapshot
	drawn    bool
	headline string
}

// Option configures optional View behaviour.
type Option func(*View)

// WithLogger routes renderer diagnostics through logger.
func WithLogger(logger *logging.Logger) Option {
	return func(v *View) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// NewView binds a view to an initialised screen.
func NewView(screen tcell.Screen, opts ...Option) *View {
	v := &View{screen: screen, logger: logging.L()}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// ObserveTurn stores the latest turn and repaints the screen.
func (v *View) ObserveTurn(snapshot arena.Snapshot, records []events.Record) {
	if v == nil || v.screen == nil {
		return
	}
	v.mu.Lock()
	v.snapshot = snapshot
	v.drawn = true
	if headline := headlineFor(records); headline != "" {
		v.headline = headline
	}
	v.drawLocked()
	v.mu.Unlock()
	v.screen.Show()
}

// Draw paints snapshot without remembering it.
func (v *View) Draw(snapshot arena.Snapshot) {
	if v == nil || v.screen == nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	previous := v.snapshot
	v.snapshot = snapshot
	v.drawLocked()
	v.snapshot = previous
}

// Run processes terminal input until ctx is done. Pressing q, Escape or Ctrl-C invokes
// quit; resizes repaint the last turn.
func (v *View) Run(ctx context.Context, quit func()) {
	if v == nil || v.screen == nil {
		return
	}
	evCh := make(chan tcell.Event, 16)
	stop := make(chan struct{})
	go v.screen.ChannelEvents(evCh, stop)
	defer close(stop)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-evCh:
			if !ok {
				return
			}
			switch ev := ev.(type) {
			case *tcell.EventResize:
				v.screen.Sync()
				v.mu.Lock()
				if v.drawn {
					v.drawLocked()
				}
				v.mu.Unlock()
				v.screen.Show()
			case *tcell.EventKey:
				if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC || ev.Rune() == 'q' {
					v.logger.Info("terminal quit requested")
					if quit != nil {
						quit()
					}
					return
				}
			}
		}
	}
}

func (v *View) drawLocked() {
	v.screen.Clear()
	cols, rows := v.screen.Size()
	if cols < 4 || rows < 4 {
		return
	}
	snap := v.snapshot
	innerW, innerH := cols-2, rows-3

	border := tcell.StyleDefault.Foreground(tcell.ColorGray)
	v.drawBorder(innerW, innerH, border)

	for _, bullet := range snap.Bullets {
		col, row, ok := project(snap, bullet.X, bullet.Y, innerW, innerH)
		if !ok {
			continue
		}
		glyph := bulletGlyph
		switch bullet.State {
		case arena.BulletHitVictim.String(), arena.BulletHitBullet.String(), arena.BulletExploded.String():
			glyph = explosionGlyph
		}
		v.screen.SetContent(col, row, glyph, nil, tcell.StyleDefault.Foreground(hexColor(bullet.Color, tcell.ColorWhite)))
	}
	for _, robot := range snap.Robots {
		col, row, ok := project(snap, robot.X, robot.Y, innerW, innerH)
		if !ok {
			continue
		}
		style := tcell.StyleDefault.Foreground(hexColor(robot.BodyColor, tcell.ColorBlue)).Bold(true)
		glyph := headingGlyph(robot.BodyHeading)
		if robot.State == arena.StateDead.String() {
			glyph = deadGlyph
		}
		v.screen.SetContent(col, row, glyph, nil, style)
	}
	v.drawStatus(rows-1, cols, snap)
}

func (v *View) drawBorder(innerW, innerH int, style tcell.Style) {
	right, bottom := innerW+1, innerH+1
	for col := 1; col < right; col++ {
		v.screen.SetContent(col, 0, '─', nil, style)
		v.screen.SetContent(col, bottom, '─', nil, style)
	}
	for row := 1; row < bottom; row++ {
		v.screen.SetContent(0, row, '│', nil, style)
		v.screen.SetContent(right, row, '│', nil, style)
	}
	v.screen.SetContent(0, 0, '┌', nil, style)
	v.screen.SetContent(right, 0, '┐', nil, style)
	v.screen.SetContent(0, bottom, '└', nil, style)
	v.screen.SetContent(right, bottom, '┘', nil, style)
}

func (v *View) drawStatus(row, cols int, snap arena.Snapshot) {
	col := v.print(0, row, cols, fmt.Sprintf("R%d T%d", snap.Round, snap.Turn), tcell.StyleDefault.Bold(true))
	for _, robot := range snap.Robots {
		style := tcell.StyleDefault.Foreground(hexColor(robot.BodyColor, tcell.ColorBlue))
		col = v.print(col, row, cols, fmt.Sprintf("  %s %.1f", robot.Name, robot.Energy), style)
	}
	if v.headline != "" {
		v.print(col, row, cols, "  | "+v.headline, tcell.StyleDefault.Foreground(tcell.ColorYellow))
	}
}

// print writes text from col and returns the column after it, clipping at limit.
func (v *View) print(col, row, limit int, text string, style tcell.Style) int {
	for _, r := range text {
		if col >= limit {
			break
		}
		v.screen.SetContent(col, row, r, nil, style)
		col++
	}
	return col
}

// project maps arena coordinates to a cell inside the border. The arena y axis points up.
func project(snap arena.Snapshot, x, y float64, innerW, innerH int) (int, int, bool) {
	if snap.Width <= 0 || snap.Height <= 0 || innerW <= 0 || innerH <= 0 {
		return 0, 0, false
	}
	if x < 0 || y < 0 || x > snap.Width || y > snap.Height {
		return 0, 0, false
	}
	col := int(x / snap.Width * float64(innerW))
	row := int((snap.Height - y) / snap.Height * float64(innerH))
	col = min(col, innerW-1)
	row = min(row, innerH-1)
	return col + 1, row + 1, true
}

func headingGlyph(heading float64) rune {
	sector := int(math.Round(geometry.NormalAbsolute(heading)/(math.Pi/4))) % len(headingGlyphs)
	return headingGlyphs[sector]
}

func hexColor(hex string, fallback tcell.Color) tcell.Color {
	c, err := colorful.Hex(hex)
	if err != nil {
		return fallback
	}
	r, g, b := c.RGB255()
	return tcell.NewRGBColor(int32(r), int32(g), int32(b))
}

func headlineFor(records []events.Record) string {
	headline := ""
	for _, record := range records {
		switch record.Kind {
		case events.RecordDeath:
			headline = record.Robot + " destroyed"
		case events.RecordRoundEnded:
			if record.Robot != "" {
				headline = fmt.Sprintf("round %d won by %s", record.Round, record.Robot)
			} else {
				headline = fmt.Sprintf("round %d ended", record.Round)
			}
		case events.RecordBattleEnded:
			headline = "battle over"
		}
	}
	return headline
}
