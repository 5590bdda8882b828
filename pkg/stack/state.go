package stack

// State is where a Stacker has got to in its run
type State int

const(
	Idle State = iota
	Registering
	Building
	Fusing
	Reconstructing
	Done
	Failed
)

func (s State)String() string {
	switch s {
	case Idle:           return "idle"
	case Registering:    return "registering"
	case Building:       return "building"
	case Fusing:         return "fusing"
	case Reconstructing: return "reconstructing"
	case Done:           return "done"
	case Failed:         return "failed"
	}
	return "unknown"
}
