package worker

// State is a worker's lifecycle position.
//
//	Uninitialized -> Initializing -> Ready
//	                              -> Failed
//
// Failed is terminal. Closed is entered from any state on shutdown.
type State int32

const (
	Uninitialized State = iota
	Initializing
	Ready
	Failed
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	case Closed:
		return "closed"
	}
	return "unknown"
}
