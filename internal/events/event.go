package events

// Kind enumerates the notifications a robot can receive.
type Kind int

const (
	KindWallHit Kind = iota + 1
	KindRobotHit
	KindBulletHitBullet
	KindScannedRobot
	KindDeath
	KindRoundEnded
	KindBattleEnded
)

func (k Kind) String() string {
	switch k {
	case KindWallHit:
		return "wall_hit"
	case KindRobotHit:
		return "robot_hit"
	case KindBulletHitBullet:
		return "bullet_hit_bullet"
	case KindScannedRobot:
		return "scanned_robot"
	case KindDeath:
		return "death"
	case KindRoundEnded:
		return "round_ended"
	case KindBattleEnded:
		return "battle_ended"
	default:
		return "unknown"
	}
}

// Event is the closed set of notifications queued on a robot. Only the types in this
// package implement it.
type Event interface {
	Kind() Kind
	sealed()
}

// WallHit reports that the robot ran into a wall this turn.
type WallHit struct {
	// Bearing is the angle to the wall relative to the body heading, in radians.
	Bearing float64
}

// RobotHit reports a collision with another robot.
type RobotHit struct {
	Name    string
	Bearing float64
	Energy  float64
	// AtFault is set for the robot whose motion caused the overlap.
	AtFault bool
}

// BulletInfo describes a bullet as seen by a robot behavior.
type BulletInfo struct {
	ID      uint64
	Owner   string
	Power   float64
	Heading float64
	X       float64
	Y       float64
}

// BulletHitBullet reports that one of the robot's bullets collided with another bullet.
type BulletHitBullet struct {
	Mine BulletInfo
	Hit  BulletInfo
}

// ScannedRobot reports a robot swept by the radar this turn.
type ScannedRobot struct {
	Name     string
	Energy   float64
	Bearing  float64
	Distance float64
	Heading  float64
	Velocity float64
}

// Death reports that the robot was destroyed.
type Death struct{}

// RoundEnded reports the end of a round.
type RoundEnded struct {
	Round int
	// Winner is set on the event delivered to the last survivor.
	Winner bool
}

// BattleEnded reports the end of the battle.
type BattleEnded struct {
	Rounds int
}

func (WallHit) Kind() Kind         { return KindWallHit }
func (RobotHit) Kind() Kind        { return KindRobotHit }
func (BulletHitBullet) Kind() Kind { return KindBulletHitBullet }
func (ScannedRobot) Kind() Kind    { return KindScannedRobot }
func (Death) Kind() Kind           { return KindDeath }
func (RoundEnded) Kind() Kind      { return KindRoundEnded }
func (BattleEnded) Kind() Kind     { return KindBattleEnded }

func (WallHit) sealed()         {}
func (RobotHit) sealed()        {}
func (BulletHitBullet) sealed() {}
func (ScannedRobot) sealed()    {}
func (Death) sealed()           {}
func (RoundEnded) sealed()      {}
func (BattleEnded) sealed()     {}
