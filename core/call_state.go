package core

type CallState int

const (
	CallStateUnknown CallState = iota
	CallStateExecuting
	CallStateExecutingFailed
	CallStateRejected
	CallStateSucceeded
	CallStateCanceled
)

func CallStateFromString(s string) CallState {
	switch s {
	case CallStateUnknown.String():
		return CallStateUnknown

	case CallStateExecuting.String():
		return CallStateExecuting
	case CallStateExecutingFailed.String():
		return CallStateExecutingFailed

	case CallStateRejected.String():
		return CallStateRejected

	case CallStateSucceeded.String():
		return CallStateSucceeded

	case CallStateCanceled.String():
		return CallStateCanceled

	default:
		return CallStateUnknown
	}
}

func (s CallState) String() string {
	switch s {
	case CallStateUnknown:
		return "unknown"

	case CallStateExecuting:
		return "executing"
	case CallStateExecutingFailed:
		return "executing_failed"

	case CallStateRejected:
		return "rejected"

	case CallStateSucceeded:
		return "succeeded"

	case CallStateCanceled:
		return "canceled"

	default:
		return "unknown"
	}
}

// IsFinal reports whether no further transitions can happen.
func (s CallState) IsFinal() bool {
	return s == CallStateExecutingFailed || s == CallStateRejected || s == CallStateSucceeded || s == CallStateCanceled
}

func (s CallState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *CallState) UnmarshalText(text []byte) error {
	*s = CallStateFromString(string(text))
	return nil
}
