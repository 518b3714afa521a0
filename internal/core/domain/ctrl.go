package domain

// CtrlState is the liveness state of a controller connection.
type CtrlState int32

const (
	CtrlStateNew CtrlState = iota
	CtrlStateConnecting
	CtrlStateLive
	CtrlStateResetting
	CtrlStateDeleting
	CtrlStateDead
)

func (s CtrlState) String() string {
	switch s {
	case CtrlStateNew:
		return "new"
	case CtrlStateConnecting:
		return "connecting"
	case CtrlStateLive:
		return "live"
	case CtrlStateResetting:
		return "resetting"
	case CtrlStateDeleting:
		return "deleting"
	case CtrlStateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// CtrlTransitions lists, for each target state, the states it may be entered from.
var CtrlTransitions = map[CtrlState][]CtrlState{
	CtrlStateLive:       {CtrlStateNew, CtrlStateConnecting, CtrlStateResetting},
	CtrlStateResetting:  {CtrlStateNew, CtrlStateLive},
	CtrlStateConnecting: {CtrlStateNew, CtrlStateResetting},
	CtrlStateDeleting:   {CtrlStateLive, CtrlStateResetting, CtrlStateConnecting},
	CtrlStateDead:       {CtrlStateDeleting},
}

// CanTransitionCtrl reports whether a controller may move from one state to another.
func CanTransitionCtrl(from, to CtrlState) bool {
	for _, src := range CtrlTransitions[to] {
		if src == from {
			return true
		}
	}
	return false
}
