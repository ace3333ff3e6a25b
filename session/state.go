package session

// ConnectionState is the supervisor's lifecycle position. Exactly one exists
// per supervisor and only the supervisor mutates it; other components read it
// through Supervisor.State.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateJoining
	StateJoined
	StateReconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	case StateReconnecting:
		return "reconnecting"
	}
	return "disconnected"
}
