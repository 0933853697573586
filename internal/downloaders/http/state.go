package rangehttp

type TransferState int

const (
	StatePlanned TransferState = iota
	StateFetching
	StateResolved
	StateCompleted
	StateCorrupted
	StateIncomplete
	StateFailed
)

var stateNames = map[TransferState]string{
	StatePlanned:    "planned",
	StateFetching:   "fetching",
	StateResolved:   "resolved",
	StateCompleted:  "completed",
	StateCorrupted:  "corrupted",
	StateIncomplete: "incomplete",
	StateFailed:     "failed",
}

func (s TransferState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s TransferState) Terminal() bool {
	return s >= StateCompleted
}
