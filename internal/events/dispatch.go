package events

// WallHitHandler receives WallHit events.
type WallHitHandler interface {
	OnHitWall(WallHit)
}

// RobotHitHandler receives RobotHit events.
type RobotHitHandler interface {
	OnHitRobot(RobotHit)
}

// BulletHitBulletHandler receives BulletHitBullet events.
type BulletHitBulletHandler interface {
	OnBulletHitBullet(BulletHitBullet)
}

// ScannedRobotHandler receives ScannedRobot events.
type ScannedRobotHandler interface {
	OnScannedRobot(ScannedRobot)
}

// DeathHandler receives the Death event.
type DeathHandler interface {
	OnDeath(Death)
}

// RoundEndedHandler receives RoundEnded events.
type RoundEndedHandler interface {
	OnRoundEnded(RoundEnded)
}

// BattleEndedHandler receives the BattleEnded event.
type BattleEndedHandler interface {
	OnBattleEnded(BattleEnded)
}

// Dispatch delivers the event to the matching hook implemented by hooks and reports
// whether a hook ran. Hooks that are not implemented make the event a no-op.
func Dispatch(hooks any, ev Event) bool {
	if hooks == nil || ev == nil {
		return false
	}
	switch e := ev.(type) {
	case WallHit:
		if h, ok := hooks.(WallHitHandler); ok {
			h.OnHitWall(e)
			return true
		}
	case RobotHit:
		if h, ok := hooks.(RobotHitHandler); ok {
			h.OnHitRobot(e)
			return true
		}
	case BulletHitBullet:
		if h, ok := hooks.(BulletHitBulletHandler); ok {
			h.OnBulletHitBullet(e)
			return true
		}
	case ScannedRobot:
		if h, ok := hooks.(ScannedRobotHandler); ok {
			h.OnScannedRobot(e)
			return true
		}
	case Death:
		if h, ok := hooks.(DeathHandler); ok {
			h.OnDeath(e)
			return true
		}
	case RoundEnded:
		if h, ok := hooks.(RoundEndedHandler); ok {
			h.OnRoundEnded(e)
			return true
		}
	case BattleEnded:
		if h, ok := hooks.(BattleEndedHandler); ok {
			h.OnBattleEnded(e)
			return true
		}
	}
	return false
}

// DispatchAll drains the queue and dispatches every event in order. When keep is set, events
// it rejects are drained without being delivered.
func DispatchAll(hooks any, queue *Queue, keep func(Event) bool) int {
	delivered := 0
	for _, ev := range queue.Drain() {
		if keep != nil && !keep(ev) {
			continue
		}
		if Dispatch(hooks, ev) {
			delivered++
		}
	}
	return delivered
}
