package session

// State is the session controller's lifecycle state.
type State string

const (
	// StateIdle means no room is open and nothing is in flight.
	StateIdle State = "idle"
	// StateJoining means a room-open flow (history seed + join emission) is
	// in progress.
	StateJoining State = "joining"
	// StateActive means all open rooms are joined and live updates flow.
	StateActive State = "active"
	// StateDegraded means the push channel is down; the store and typing
	// tracker are retained unmodified but no live updates are delivered.
	StateDegraded State = "degraded"
	// StateRejoining means the push channel came back and rooms are being
	// re-joined and caught up.
	StateRejoining State = "rejoining"
	// StateClosed means the session was shut down; subscriptions are
	// released and per-room state is dropped.
	StateClosed State = "closed"
)
