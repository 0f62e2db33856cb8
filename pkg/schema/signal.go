package schema

// SignalType names a structural signal propagated up the execution tree.
type SignalType string

const (
	// SignalBreak unwinds the nearest enclosing iteration construct.
	SignalBreak SignalType = "break"
	// SignalCancel tears down a subtree without faulting it.
	SignalCancel SignalType = "cancel"
	// SignalFault reports an unhandled failure inside an activity.
	SignalFault SignalType = "fault"
)

// Activity type names shared between activities, triggers and the dispatch layer.
const (
	ActivityTypeTimer    = "waypoint.Timer"
	ActivityTypeDelay    = "waypoint.Delay"
	ActivityTypeCron     = "waypoint.Cron"
	ActivityTypeEvent    = "waypoint.Event"
	ActivityTypeReadLine = "waypoint.ReadLine"
)
