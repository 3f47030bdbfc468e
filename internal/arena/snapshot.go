package arena

import "robotarena/server/internal/geometry"

// RobotView is the read-only picture of a robot handed to renderers and spectators.
type RobotView struct {
	Name         string       `json:"name"`
	X            float64      `json:"x"`
	Y            float64      `json:"y"`
	BodyHeading  float64      `json:"body_heading"`
	GunHeading   float64      `json:"gun_heading"`
	RadarHeading float64      `json:"radar_heading"`
	Velocity     float64      `json:"velocity"`
	Energy       float64      `json:"energy"`
	GunHeat      float64      `json:"gun_heat"`
	State        string       `json:"state"`
	BodyColor    string       `json:"body_color"`
	GunColor     string       `json:"gun_color"`
	RadarColor   string       `json:"radar_color"`
	ScanColor    string       `json:"scan_color"`
	Scan         geometry.Arc `json:"scan"`
}

// BulletView is the read-only picture of a bullet.
type BulletView struct {
	ID      uint64  `json:"id"`
	Owner   string  `json:"owner"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Heading float64 `json:"heading"`
	Power   float64 `json:"power"`
	State   string  `json:"state"`
	Frame   int     `json:"frame"`
	Color   string  `json:"color"`
}

// Snapshot captures everything a renderer needs to draw one turn.
type Snapshot struct {
	Round   int          `json:"round"`
	Turn    int          `json:"turn"`
	Width   float64      `json:"width"`
	Height  float64      `json:"height"`
	Robots  []RobotView  `json:"robots"`
	Bullets []BulletView `json:"bullets"`
}

// Snapshot copies the state of the round. The copy shares nothing with the world.
func (w *World) Snapshot() Snapshot {
	snap := Snapshot{
		Round:   w.round,
		Turn:    w.turn,
		Width:   w.width,
		Height:  w.height,
		Robots:  make([]RobotView, 0, len(w.robots)),
		Bullets: make([]BulletView, 0, len(w.bullets)),
	}
	for _, r := range w.robots {
		snap.Robots = append(snap.Robots, RobotView{
			Name:         r.name,
			X:            r.position.X,
			Y:            r.position.Y,
			BodyHeading:  r.bodyHeading,
			GunHeading:   r.gunHeading,
			RadarHeading: r.radarHeading,
			Velocity:     r.velocity,
			Energy:       r.energy,
			GunHeat:      r.gunHeat,
			State:        r.state.String(),
			BodyColor:    r.palette.Body.Hex(),
			GunColor:     r.palette.Gun.Hex(),
			RadarColor:   r.palette.Radar.Hex(),
			ScanColor:    r.palette.Scan.Hex(),
			Scan:         r.scanArc,
		})
	}
	for _, b := range w.bullets {
		at := b.PaintPosition(w)
		snap.Bullets = append(snap.Bullets, BulletView{
			ID:      b.id,
			Owner:   b.ownerName,
			X:       at.X,
			Y:       at.Y,
			Heading: b.heading,
			Power:   b.power,
			State:   b.state.String(),
			Frame:   b.frame,
			Color:   b.color.Hex(),
		})
	}
	return snap
}
