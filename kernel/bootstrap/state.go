package bootstrap

// State is the initialization lifecycle of a Manager
type State int32

const (
	StateUninitialized State = iota
	StateProbing
	StateReady
	StateDegraded
)

var stateNames = map[State]string{
	StateUninitialized: "UNINITIALIZED",
	StateProbing:       "PROBING",
	StateReady:         "READY",
	StateDegraded:      "DEGRADED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Terminal reports whether the state only changes through Reset.
func (s State) Terminal() bool {
	return s == StateReady || s == StateDegraded
}
