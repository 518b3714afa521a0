package mpath

import "github.com/vietddude/mpath/internal/core/domain"

// Action is the verdict for a failed request.
type Action int

const (
	// ActionComplete surfaces the error to the caller.
	ActionComplete Action = iota
	// ActionFailover absorbs the error and retries the I/O on another path.
	ActionFailover
)

func (a Action) String() string {
	if a == ActionFailover {
		return "failover"
	}
	return "complete"
}

// Classify maps a completion status to an action. Only errors tied to the
// command or the data itself are surfaced; anything else may be a path
// failure and is retried.
func Classify(status domain.Status) Action {
	switch status.Code() {
	// Generic command status
	case domain.StatusInvalidOpcode,
		domain.StatusInvalidField,
		domain.StatusInvalidNS,
		domain.StatusLBARange,
		domain.StatusCapExceeded,
		domain.StatusReservationConflict:
		return ActionComplete

	// Command set specific
	case domain.StatusBadAttributes,
		domain.StatusInvalidPI,
		domain.StatusReadOnly,
		domain.StatusONCSNotSupported:
		return ActionComplete

	// Media and data integrity errors
	case domain.StatusWriteFault,
		domain.StatusReadError,
		domain.StatusGuardCheck,
		domain.StatusAppTagCheck,
		domain.StatusRefTagCheck,
		domain.StatusCompareFailed,
		domain.StatusAccessDenied,
		domain.StatusUnwrittenBlock:
		return ActionComplete
	}

	return ActionFailover
}

// NeedsFailover reports whether a completed request should be rerouted.
// Requests that did not come through a head are never rerouted.
func NeedsFailover(req *domain.Request) bool {
	if req.Flags&domain.ReqMultipath == 0 {
		return false
	}
	return Classify(req.Status) == ActionFailover
}
