package arena

// Behavior is the decision logic of a robot. Run is invoked once per turn after the
// queued events were delivered; it stages commands through the robot and must not block.
//
// A behavior may also implement any of the hook interfaces of the events package
// (events.WallHitHandler, events.ScannedRobotHandler, ...) to be notified of events.
type Behavior interface {
	Run(r *Robot)
}

// BehaviorFunc adapts a function into a Behavior without event hooks.
type BehaviorFunc func(r *Robot)

// Run calls f(r).
func (f BehaviorFunc) Run(r *Robot) {
	if f != nil {
		f(r)
	}
}

// Binder is implemented by behaviors that stage commands from their event hooks.
// NewRobot hands the behavior the robot it controls before any option is applied, so
// colours set while binding yield to an explicit palette.
type Binder interface {
	Bind(r *Robot)
}
